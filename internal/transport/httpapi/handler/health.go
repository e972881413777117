package handler

import (
	"context"
	"net/http"
	"sort"
	"time"
)

// Checker reports whether a dependency is usable
type Checker interface {
	Health(ctx context.Context) error
}

// CheckerFunc adapts a function to Checker
type CheckerFunc func(ctx context.Context) error

func (f CheckerFunc) Health(ctx context.Context) error {
	return f(ctx)
}

// HealthHandler handles health check requests
type HealthHandler struct {
	checks  map[string]Checker
	timeout time.Duration
}

// NewHealthHandler creates a new health handler over named dependencies
func NewHealthHandler(checks map[string]Checker) *HealthHandler {
	return &HealthHandler{
		checks:  checks,
		timeout: 2 * time.Second,
	}
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
	Uptime string            `json:"uptime,omitempty"`
}

var startTime = time.Now()

// GetHealth handles GET /health
func GetHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, HealthResponse{
		Status: "ok",
		Uptime: time.Since(startTime).Round(time.Second).String(),
		Checks: map[string]string{},
	})
}

// GetLiveness handles GET /health/live
func GetLiveness(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

// GetReadiness handles GET /health/ready. Every dependency must answer
// within the timeout.
func (h *HealthHandler) GetReadiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	checks := make(map[string]string, len(names))
	status, code := "ready", http.StatusOK
	for _, name := range names {
		if err := h.checks[name].Health(ctx); err != nil {
			checks[name] = "unhealthy: " + err.Error()
			status, code = "not_ready", http.StatusServiceUnavailable
			continue
		}
		checks[name] = "healthy"
	}

	respondJSON(w, code, HealthResponse{Status: status, Checks: checks})
}
