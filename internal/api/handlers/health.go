package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/depotfs/depotfs/internal/logger"
)

// HealthChecker is anything with a health probe; both store interfaces
// satisfy it.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// HealthHandler serves the liveness and readiness probes.
type HealthHandler struct {
	checks map[string]HealthChecker
}

// NewHealthHandler creates the health handler over a named set of
// dependency checks.
func NewHealthHandler(checks map[string]HealthChecker) *HealthHandler {
	return &HealthHandler{checks: checks}
}

type healthResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// Liveness handles GET /health. It only reports that the process is up.
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
	})
}

// Readiness handles GET /health/ready: every registered dependency must
// pass its probe within the shared deadline.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := http.StatusOK
	results := make(map[string]string, len(h.checks))
	overall := "healthy"

	for name, check := range h.checks {
		if err := check.HealthCheck(ctx); err != nil {
			logger.Warn("Readiness check failed", "check", name, "error", err)
			results[name] = err.Error()
			overall = "unhealthy"
			status = http.StatusServiceUnavailable
			continue
		}
		results[name] = "ok"
	}

	writeJSON(w, status, healthResponse{
		Status:    overall,
		Timestamp: time.Now().UTC(),
		Checks:    results,
	})
}
