package api

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/fenceline/catsentry/internal/framepub"
	"github.com/fenceline/catsentry/internal/httputil"
)

// streamTimeout bounds each wait for the next frame so a stalled pipeline
// still lets the handler notice a disconnected client.
const streamTimeout = time.Second

// handleVideoFeed streams published frames as an MJPEG multipart
// response. Each connection gets its own subscription; slow clients see
// dropped frames rather than stalling the pipeline. The stream ends when
// the client disconnects or the publisher shuts down.
func (s *Server) handleVideoFeed(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		httputil.InternalServerError(w, "streaming unsupported")
		return
	}

	sub := s.frames.Subscribe()
	defer sub.Close()

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	for {
		frame, err := sub.Next(streamTimeout)
		if errors.Is(err, framepub.ErrTimeout) {
			if r.Context().Err() != nil {
				return
			}
			continue
		}
		if err != nil {
			return
		}

		if _, err := io.WriteString(w, "--frame\r\nContent-Type: image/jpeg\r\n\r\n"); err != nil {
			return
		}
		if _, err := w.Write(frame.JPEG); err != nil {
			return
		}
		if _, err := io.WriteString(w, "\r\n"); err != nil {
			return
		}
		flusher.Flush()
	}
}
