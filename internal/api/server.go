// Package api serves the web UI and the JSON endpoints that the
// detection pipeline shares state with: live MJPEG streaming, the
// polygon editor, status polling, and event history.
package api

import (
	"io/fs"
	"net/http"
	"strconv"
	"time"

	"github.com/fenceline/catsentry/internal/events"
	"github.com/fenceline/catsentry/internal/framepub"
	"github.com/fenceline/catsentry/internal/monitoring"
	"github.com/fenceline/catsentry/internal/pipeline"
	"github.com/fenceline/catsentry/internal/region"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// DefaultSnapshotQuality is the JPEG quality for /get_snapshot responses.
const DefaultSnapshotQuality = 90

// Server handles the HTTP interface: the embedded UI, the video stream,
// drawing-mode control, the region editor, and event history.
type Server struct {
	status   *pipeline.Status
	mode     *pipeline.DrawMode
	snapshot *pipeline.SnapshotHolder
	region   *region.Store
	frames   *framepub.Publisher
	db       *events.DB
	static   fs.FS

	snapshotQuality int
}

// ServerConfig contains the collaborators and options for the web server.
type ServerConfig struct {
	Status   *pipeline.Status
	Mode     *pipeline.DrawMode
	Snapshot *pipeline.SnapshotHolder
	Region   *region.Store
	Frames   *framepub.Publisher
	DB       *events.DB // optional; event endpoints answer 503 when nil
	Static   fs.FS      // filesystem containing index.html and assets

	SnapshotQuality int // 0 means DefaultSnapshotQuality
}

// NewServer creates a web server with the provided configuration.
func NewServer(config ServerConfig) *Server {
	s := &Server{
		status:          config.Status,
		mode:            config.Mode,
		snapshot:        config.Snapshot,
		region:          config.Region,
		frames:          config.Frames,
		db:              config.DB,
		static:          config.Static,
		snapshotQuality: config.SnapshotQuality,
	}
	if s.snapshotQuality == 0 {
		s.snapshotQuality = DefaultSnapshotQuality
	}
	return s
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400 && statusCode < 500:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 500:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		monitoring.Logf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

// ServeMux registers every route. The admin/debug surface is attached
// only when an event store is configured.
func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/video_feed", s.handleVideoFeed)
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/get_snapshot", s.handleGetSnapshot)
	mux.HandleFunc("/start_drawing", s.handleStartDrawing)
	mux.HandleFunc("/stop_drawing", s.handleStopDrawing)
	mux.HandleFunc("/save_polygon", s.handleSavePolygon)
	mux.HandleFunc("/load_polygon", s.handleLoadPolygon)
	mux.HandleFunc("/remove_polygon", s.handleRemovePolygon)
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/api/events/detections", s.handleRecentDetections)
	mux.HandleFunc("/api/events/triggers", s.handleRecentTriggers)
	mux.HandleFunc("/api/report", s.handleReport)
	mux.HandleFunc("/api/stream_stats", s.handleStreamStats)

	if s.static != nil {
		mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.FS(s.static))))
	}

	if s.db != nil {
		s.db.AttachAdminRoutes(mux)
	}

	return mux
}
