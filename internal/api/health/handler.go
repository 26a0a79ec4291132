package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"airquality/internal/services/scoring"
	"airquality/pkg/logger"
)

// Checker is any dependency that can be pinged
type Checker interface {
	Health(ctx context.Context) error
}

// Models reports model readiness
type Models interface {
	Ready() bool
	Status() []scoring.ModelStatus
}

// Handler provides health check endpoints
type Handler struct {
	log         *logger.Logger
	models      Models
	deps        map[string]Checker
	startTime   time.Time
	serviceName string
	version     string
}

// New creates a health handler. deps holds the optional storage and
// transport clients keyed by name; nil entries are skipped.
func New(log *logger.Logger, models Models, deps map[string]Checker, serviceName, version string) *Handler {
	active := make(map[string]Checker, len(deps))
	for name, c := range deps {
		if c != nil {
			active[name] = c
		}
	}

	return &Handler{
		log:         log,
		models:      models,
		deps:        active,
		startTime:   time.Now(),
		serviceName: serviceName,
		version:     version,
	}
}

// HealthStatus represents the overall health status
type HealthStatus struct {
	Status    string                     `json:"status"` // "healthy", "degraded", "unhealthy"
	Service   string                     `json:"service"`
	Version   string                     `json:"version"`
	Uptime    string                     `json:"uptime"`
	Timestamp string                     `json:"timestamp"`
	Models    []scoring.ModelStatus      `json:"models"`
	Checks    map[string]ComponentHealth `json:"checks,omitempty"`
}

// ComponentHealth represents health of a single component
type ComponentHealth struct {
	Status       string `json:"status"`
	ResponseTime string `json:"response_time,omitempty"`
	Error        string `json:"error,omitempty"`
}

// HandleLiveness returns 200 OK while the process runs
func (h *Handler) HandleLiveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

// HandleReadiness returns 200 only when every enabled model is ready.
// Storage outages do not take the instance out of rotation; predictions still work without them.
func (h *Handler) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	status := h.baseStatus()

	code := http.StatusOK
	if !h.models.Ready() {
		status.Status = "unhealthy"
		code = http.StatusServiceUnavailable
		h.log.Debugw("Readiness check failed", "models", status.Models)
	}

	writeJSON(w, code, status)
}

// HandleHealth returns models plus every dependency check
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := h.baseStatus()
	status.Checks = make(map[string]ComponentHealth, len(h.deps))

	degraded := false
	for name, c := range h.deps {
		ch := check(ctx, c)
		if ch.Status != "healthy" {
			degraded = true
			h.log.Warnw("Health check failed", "component", name, "error", ch.Error)
		}
		status.Checks[name] = ch
	}

	code := http.StatusOK
	switch {
	case !h.models.Ready():
		status.Status = "unhealthy"
		code = http.StatusServiceUnavailable
	case degraded:
		status.Status = "degraded" // still 200
	}

	writeJSON(w, code, status)
}

func (h *Handler) baseStatus() HealthStatus {
	return HealthStatus{
		Status:    "healthy",
		Service:   h.serviceName,
		Version:   h.version,
		Uptime:    time.Since(h.startTime).Round(time.Second).String(),
		Timestamp: time.Now().Format(time.RFC3339),
		Models:    h.models.Status(),
	}
}

func check(ctx context.Context, c Checker) ComponentHealth {
	start := time.Now()
	err := c.Health(ctx)
	elapsed := time.Since(start)

	if err != nil {
		return ComponentHealth{
			Status:       "unhealthy",
			ResponseTime: elapsed.String(),
			Error:        err.Error(),
		}
	}
	return ComponentHealth{
		Status:       "healthy",
		ResponseTime: elapsed.String(),
	}
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
