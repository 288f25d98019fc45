package sse

import (
	"fmt"
	"net/http"
	"strings"
	"time"
)

// heartbeatInterval keeps the SSE connection alive through intermediate
// proxies that would otherwise time out an idle stream.
const heartbeatInterval = 30 * time.Second

// SessionIDFromPath extracts the sessionId from a request path of the form
// "/sessions/{id}/events". Returns "" if the path doesn't match.
func SessionIDFromPath(path string) string {
	const prefix = "/sessions/"
	const suffix = "/events"
	if !strings.HasPrefix(path, prefix) || !strings.HasSuffix(path, suffix) {
		return ""
	}
	return strings.TrimSuffix(strings.TrimPrefix(path, prefix), suffix)
}

// Handler serves GET /sessions/{id}/events. Authentication/authorization of
// the caller against the session is the HTTP layer's responsibility ahead of
// this handler; Handler itself only manages the SSE transport and the
// subscriber's lifetime within the Hub.
func (h *Hub) Handler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	sessionID := SessionIDFromPath(r.URL.Path)
	if sessionID == "" {
		http.Error(w, "missing session id", http.StatusBadRequest)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	sub := h.Register(sessionID)
	defer h.Deregister(sub)

	fmt.Fprintf(w, "event: connected\ndata: {}\n\n")
	flusher.Flush()

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-sub.Events():
			if !ok {
				return
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", evt.Name, evt.Data)
			flusher.Flush()
		case <-ticker.C:
			fmt.Fprintf(w, ": heartbeat\n\n")
			flusher.Flush()
		}
	}
}
