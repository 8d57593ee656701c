package httpserver

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/drumstick90/authordigest/internal/digest"
)

// streamProgress handles GET /api/v1/digest/extract/progress/{sessionID}.
// It streams extraction progress as Server-Sent Events: one `data:` frame
// per event, a `: keepalive` comment when the stream is idle, and closes
// after the terminal event. A session with no active extraction gets a
// single error frame.
func (s *Server) streamProgress(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	stream, ok := s.digest.ProgressStream(sessionID)
	if !ok {
		writeSSE(w, flusher, map[string]string{"error": "No active extraction for this session"})
		return
	}

	writeSSE(w, flusher, digest.ProgressEvent{Phase: digest.PhaseConnected})

	keepAlive := time.NewTicker(s.keepAlive)
	defer keepAlive.Stop()

	for {
		select {
		case ev := <-stream.Events():
			writeSSE(w, flusher, ev)
			if ev.Terminal() {
				s.digest.ReleaseStream(sessionID)
				return
			}
			keepAlive.Reset(s.keepAlive)
		case <-keepAlive.C:
			fmt.Fprint(w, ": keepalive\n\n")
			flusher.Flush()
		case <-r.Context().Done():
			// Client went away; the stream stays registered so a reconnect
			// can pick the session back up.
			return
		}
	}
}

// writeSSE writes one SSE data frame and flushes it.
func writeSSE(w http.ResponseWriter, flusher http.Flusher, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", data)
	flusher.Flush()
}
