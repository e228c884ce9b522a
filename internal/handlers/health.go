package handlers

import (
	"net/http"
	"time"

	domain "github.com/snackworks/api/internal/domain"
	"github.com/snackworks/api/internal/platform/httpx"
	"github.com/snackworks/api/internal/repositories"
)

// HealthHandlers serves the liveness and readiness endpoints.
type HealthHandlers struct {
	health    repositories.HealthRepository
	startedAt time.Time
	clock     func() time.Time
}

// NewHealthHandlers constructs the health endpoints. The health repository is
// optional; without one, readiness reports ok unconditionally.
func NewHealthHandlers(health repositories.HealthRepository) *HealthHandlers {
	return &HealthHandlers{
		health:    health,
		startedAt: time.Now(),
		clock:     time.Now,
	}
}

// Healthz is the liveness probe: the process is up and serving.
func (h *HealthHandlers) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"uptime":    h.clock().Sub(h.startedAt).String(),
		"timestamp": h.clock().UTC().Format(time.RFC3339),
	})
}

// Readyz probes downstream dependencies and reports 503 when any hard
// dependency errors.
func (h *HealthHandlers) Readyz(w http.ResponseWriter, r *http.Request) {
	if h.health == nil {
		writeJSONResponse(w, http.StatusOK, map[string]any{"status": "ok"})
		return
	}

	report, err := h.health.Collect(r.Context())
	if err != nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("health_check_failed", "readiness checks could not run", http.StatusServiceUnavailable))
		return
	}

	checks := make(map[string]any, len(report.Checks))
	for name, check := range report.Checks {
		entry := map[string]any{
			"status":     string(check.Status),
			"latency_ms": check.Latency.Milliseconds(),
		}
		if check.Error != "" {
			entry["error"] = check.Error
		}
		checks[name] = entry
	}

	status := http.StatusOK
	if report.Status == domain.HealthStatusError {
		status = http.StatusServiceUnavailable
	}
	writeJSONResponse(w, status, map[string]any{
		"status": string(report.Status),
		"checks": checks,
	})
}
