package api

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"net/http"
	"strconv"

	"github.com/fenceline/catsentry/internal/events"
	"github.com/fenceline/catsentry/internal/geometry"
	"github.com/fenceline/catsentry/internal/httputil"
	"github.com/fenceline/catsentry/internal/monitoring"
	"github.com/fenceline/catsentry/internal/version"
	"github.com/fenceline/catsentry/internal/vision"
)

// handleIndex serves the main page with the live stream and polygon editor.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if s.static == nil {
		httputil.WriteError(w, http.StatusNotFound, "no UI assets configured")
		return
	}

	page, err := fs.ReadFile(s.static, "index.html")
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to load index page: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(page)
}

// handleHealth handles the health check endpoint
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"status": "ok", "version": %q}`, version.String())
}

// handleStatus returns the detection status snapshot.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, s.status.Snapshot())
}

// handleGetSnapshot returns the most recent drawing-mode frame as JPEG.
// A 404 with an empty body means no snapshot has been captured yet; the
// UI polls this after entering drawing mode.
func (s *Server) handleGetSnapshot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	frame := s.snapshot.Snapshot()
	if frame == nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	jpeg, err := vision.EncodeJPEG(frame, s.snapshotQuality)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to encode snapshot: %v", err))
		return
	}

	w.Header().Set("Content-Type", "image/jpeg")
	_, _ = w.Write(jpeg)
}

// handleStartDrawing pauses detection so the UI can capture a still frame.
func (s *Server) handleStartDrawing(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	s.mode.Enter()
	httputil.WriteJSONOK(w, map[string]string{"status": "drawing_started"})
}

// handleStopDrawing resumes detection.
func (s *Server) handleStopDrawing(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	s.mode.Exit()
	httputil.WriteJSONOK(w, map[string]string{"status": "drawing_stopped"})
}

// handleSavePolygon replaces the region of interest with the posted points.
func (s *Server) handleSavePolygon(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}

	var body struct {
		Points geometry.Polygon `json:"points"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest,
			map[string]string{"status": "error", "message": err.Error()})
		return
	}

	if err := s.region.Replace(body.Points); err != nil {
		monitoring.Logf("api: save polygon: %v", err)
		httputil.WriteJSON(w, http.StatusInternalServerError,
			map[string]string{"status": "error", "message": "Failed to save polygon"})
		return
	}

	httputil.WriteJSONOK(w, map[string]string{
		"status":  "success",
		"message": fmt.Sprintf("Polygon saved with %d points", len(body.Points)),
	})
}

// handleLoadPolygon returns the current region of interest.
func (s *Server) handleLoadPolygon(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, map[string]geometry.Polygon{"points": s.region.Get()})
}

// handleRemovePolygon clears the region of interest from memory and disk.
func (s *Server) handleRemovePolygon(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}

	if err := s.region.Clear(); err != nil {
		monitoring.Logf("api: remove polygon: %v", err)
		httputil.WriteJSON(w, http.StatusInternalServerError,
			map[string]string{"status": "error", "message": "Failed to remove polygon"})
		return
	}

	httputil.WriteJSONOK(w, map[string]string{
		"status":  "success",
		"message": "Polygon removed",
	})
}

// handleStreamStats exposes publisher delivery counters for debugging.
func (s *Server) handleStreamStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, s.frames.Stats())
}

// parseLimit reads an optional ?limit= parameter. A written response means
// the caller should return immediately.
func parseLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	limit := 50 // default
	if l := r.URL.Query().Get("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed < 1 || parsed > 500 {
			httputil.BadRequest(w, "Invalid 'limit' parameter")
			return 0, false
		}
		limit = parsed
	}
	return limit, true
}

// handleRecentDetections lists recent detection records, newest first.
func (s *Server) handleRecentDetections(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.db == nil {
		httputil.WriteError(w, http.StatusServiceUnavailable, "event store not configured")
		return
	}

	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}

	records, err := s.db.RecentDetections(limit)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("Failed to retrieve detection events: %v", err))
		return
	}
	if records == nil {
		records = []events.DetectionEvent{}
	}
	httputil.WriteJSONOK(w, records)
}

// handleRecentTriggers lists recent actuation attempts, newest first.
func (s *Server) handleRecentTriggers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.db == nil {
		httputil.WriteError(w, http.StatusServiceUnavailable, "event store not configured")
		return
	}

	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}

	records, err := s.db.RecentTriggers(limit)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("Failed to retrieve trigger events: %v", err))
		return
	}
	if records == nil {
		records = []events.TriggerEvent{}
	}
	httputil.WriteJSONOK(w, records)
}
