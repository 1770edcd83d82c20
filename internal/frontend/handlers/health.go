package handlers

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// HealthChecker reports whether a backing dependency is reachable.
type HealthChecker interface {
	Health(ctx context.Context, timeout time.Duration) error
}

// HealthHandler serves liveness checks against the Redis backend.
type HealthHandler struct {
	checker HealthChecker
	timeout time.Duration
	logger  *zap.Logger
}

// NewHealthHandler creates a HealthHandler with the given check timeout.
func NewHealthHandler(checker HealthChecker, timeout time.Duration, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{checker: checker, timeout: timeout, logger: logger}
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := h.checker.Health(r.Context(), h.timeout); err != nil {
		h.logger.Warn("health check failed", zap.Error(err))
		writeError(w, h.logger, http.StatusServiceUnavailable, "unhealthy")
		return
	}
	writeJSON(w, h.logger, http.StatusOK, map[string]string{"status": "ok"})
}
