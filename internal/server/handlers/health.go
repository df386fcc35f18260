package handlers

import (
	"context"
	"net/http"
	"time"
)

var startTime = time.Now()

const healthCheckTimeout = 2 * time.Second

// HealthCheck reports service liveness and database reachability.
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	status := "ok"
	httpStatus := http.StatusOK

	if err := h.db.Ping(ctx); err != nil {
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}

	JSON(w, httpStatus, map[string]string{
		"status": status,
		"uptime": time.Since(startTime).Round(time.Second).String(),
	})
}
