// Package httpserver provides the HTTP handler assembly for the execution
// plane gateway. It accepts all dependencies as parameters so main() and
// tests build the same handler chain without route drift.
package httpserver

import (
	"encoding/json"
	"net/http"

	"github.com/GoatGit/semibot-sub006/internal/ratelimit"
	"github.com/GoatGit/semibot-sub006/internal/sse"
	"github.com/GoatGit/semibot-sub006/internal/store"
	"github.com/GoatGit/semibot-sub006/internal/vmhub"
)

// App holds all dependencies needed to build the gateway's HTTP handler.
type App struct {
	DB          *store.DB
	Hub         *vmhub.Hub
	SSE         *sse.Hub
	ConnLimiter *ratelimit.Limiter
}

// Handler builds the complete HTTP handler with all routes registered and
// middleware applied.
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", a.handleHealthz)
	mux.HandleFunc("/readyz", a.handleReadyz)

	mux.Handle("/ws/vm", a.rateLimited(a.Hub))
	mux.Handle("/sessions/", http.HandlerFunc(a.SSE.Handler))

	return SecurityHeaders(RequestID(mux))
}

// rateLimited enforces per-IP connect-rate limiting ahead of the WebSocket
// upgrade, per SPEC_FULL §4.3's addition over the Connection Hub.
func (a *App) rateLimited(next http.Handler) http.Handler {
	if a.ConnLimiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := ratelimit.ClientIP(r)
		if !a.ConnLimiter.Allow(ip) {
			http.Error(w, "too many connection attempts", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (a *App) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (a *App) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ready := true
	checks := map[string]any{}

	if err := a.DB.Ping(); err != nil {
		ready = false
		checks["database"] = map[string]string{"status": "unhealthy", "error": err.Error()}
	} else {
		checks["database"] = map[string]string{"status": "healthy"}
	}

	w.Header().Set("Content-Type", "application/json")
	if !ready {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	json.NewEncoder(w).Encode(map[string]any{"ready": ready, "checks": checks})
}
