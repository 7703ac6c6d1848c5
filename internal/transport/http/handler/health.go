package handler

import (
	"net/http"
	"time"

	"dropsync-api/internal/transport/http/response"
)

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version"`
}

// Health handles GET /api/v1/health
// Used for liveness probes in Docker/Kubernetes.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Version:   "1.0.0",
	}

	response.OK(w, resp)
}

// ReadyResponse represents the readiness check response.
type ReadyResponse struct {
	Ready     bool      `json:"ready"`
	Timestamp time.Time `json:"timestamp"`
	Checks    []Check   `json:"checks"`
}

// Check represents an individual readiness check.
type Check struct {
	Name   string `json:"name"`
	Status string `json:"status"`
}

// Ready handles GET /api/v1/ready
// Used for readiness probes to check if the service can accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	checks := []Check{{Name: "api", Status: "ok"}}

	if h.db != nil {
		status := "ok"
		if err := h.db.Ping(r.Context()); err != nil {
			status = "unreachable"
		}
		checks = append(checks, Check{Name: "database", Status: status})
	}
	if h.cache != nil {
		status := "ok"
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "unreachable"
		}
		checks = append(checks, Check{Name: "cache", Status: status})
	}

	allReady := true
	for _, check := range checks {
		if check.Status != "ok" {
			allReady = false
			break
		}
	}

	resp := ReadyResponse{
		Ready:     allReady,
		Timestamp: time.Now().UTC(),
		Checks:    checks,
	}

	if !allReady {
		response.JSON(w, http.StatusServiceUnavailable, resp)
		return
	}

	response.OK(w, resp)
}
