package serve

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// handleSSE streams launch events to the client. The optional resource and
// launch query parameters restrict the stream to one resource or launch.
func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	ch := s.broker.Subscribe()
	if ch == nil {
		http.Error(w, "too many subscribers", http.StatusServiceUnavailable)
		return
	}
	defer s.broker.Unsubscribe(ch)

	resource := r.URL.Query().Get("resource")
	launch := r.URL.Query().Get("launch")

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	// Send initial comment so EventSource fires onopen
	fmt.Fprintf(w, ": connected\n\n")
	flusher.Flush()

	// Heartbeat to keep the connection alive
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fmt.Fprintf(w, ": heartbeat\n\n")
			flusher.Flush()
		case event, ok := <-ch:
			if !ok {
				return
			}
			if (resource != "" && event.Resource != resource) || (launch != "" && event.Launch != launch) {
				continue
			}
			data, err := json.Marshal(event)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", event.RequestID, event.Type, data)
			flusher.Flush()
		}
	}
}
