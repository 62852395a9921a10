package streaming

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// ServeSSE writes event-stream framed events to w, draining session
// until the request context is cancelled or the session closes. New
// code in the same push-loop idiom as ws.go's writePump; stdlib-only
// since net/http.Flusher covers everything SSE needs.
func ServeSSE(hub *Hub, session *Session, w http.ResponseWriter, r *http.Request) error {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return fmt.Errorf("streaming: response writer does not support flushing")
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	defer hub.Unsubscribe(session)

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-session.Done():
			return nil
		case ev, ok := <-session.Out():
			if !ok {
				return nil
			}
			payload, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.EventType, payload); err != nil {
				return err
			}
			flusher.Flush()
		}
	}
}
