package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// Pinger is anything that can report whether its backend is reachable.
// *service.AuthService satisfies it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler answers liveness probes.
type HealthHandler struct {
	pinger  Pinger
	backend string
	timeout time.Duration
	logger  *slog.Logger
}

func NewHealthHandler(pinger Pinger, backend string, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{pinger: pinger, backend: backend, timeout: 2 * time.Second, logger: logger}
}

type healthResponse struct {
	Status  string `json:"status"`
	Backend string `json:"backend"`
}

// HandleHealth pings the account store.
//
// HTTP: GET /healthz
//
// RESPONSE: 200 {"status":"ok","backend":"sqlite"} or 503 {"status":"unavailable",...}
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	if err := h.pinger.Ping(ctx); err != nil {
		h.logger.Warn("health check failed",
			slog.String("backend", h.backend),
			slog.String("error", err.Error()),
		)
		writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "unavailable", Backend: h.backend})
		return
	}

	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Backend: h.backend})
}
