package handler

import (
	"context"
	"net/http"
	"time"
)

// Pinger is a dependency the health check probes.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// HealthHandler handles GET /healthz.
type HealthHandler struct {
	deps map[string]Pinger
	hub  *Hub
}

// NewHealthHandler creates a HealthHandler probing the named dependencies.
func NewHealthHandler(hub *Hub, deps map[string]Pinger) *HealthHandler {
	return &HealthHandler{deps: deps, hub: hub}
}

// Healthz reports ok when every dependency answers, 503 otherwise.
func (h *HealthHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	checks := make(map[string]string, len(h.deps))
	for name, dep := range h.deps {
		if err := dep.Ping(ctx); err != nil {
			checks[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}
	body := map[string]any{"status": "ok", "checks": checks}
	if status != http.StatusOK {
		body["status"] = "degraded"
	}
	if h.hub != nil {
		body["websocket_clients"] = h.hub.ConnectionCount()
	}
	writeJSON(w, status, body)
}
