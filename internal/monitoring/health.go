package monitoring

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/conneroisu/hammer/internal/logging"
)

// HealthStatus represents the health status of a component
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
	HealthStatusDegraded  HealthStatus = "degraded"
)

// HealthCheck is the outcome of one check.
type HealthCheck struct {
	Name     string        `json:"name"`
	Status   HealthStatus  `json:"status"`
	Message  string        `json:"message,omitempty"`
	Duration time.Duration `json:"duration"`
	Critical bool          `json:"critical"`
}

// CheckFunc runs one check.
type CheckFunc func(ctx context.Context) (HealthStatus, string)

type registeredCheck struct {
	name     string
	critical bool
	fn       CheckFunc
}

// HealthResponse represents the overall health response
type HealthResponse struct {
	Status    HealthStatus  `json:"status"`
	Timestamp time.Time     `json:"timestamp"`
	Uptime    time.Duration `json:"uptime"`
	Checks    []HealthCheck `json:"checks"`
}

// Health runs registered checks on demand.
type Health struct {
	mutex   sync.RWMutex
	checks  []registeredCheck
	started time.Time
	timeout time.Duration
	logger  logging.Logger
}

// NewHealth creates an empty health report.
func NewHealth(logger logging.Logger) *Health {
	return &Health{
		started: time.Now(),
		timeout: 5 * time.Second,
		logger:  logger.WithComponent("health"),
	}
}

// Register adds a check. A failing critical check makes the whole report
// unhealthy; a failing non-critical check degrades it.
func (h *Health) Register(name string, critical bool, fn CheckFunc) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	h.checks = slices.DeleteFunc(h.checks, func(c registeredCheck) bool { return c.name == name })
	h.checks = append(h.checks, registeredCheck{name: name, critical: critical, fn: fn})
}

// Check runs every check and aggregates the result.
func (h *Health) Check(ctx context.Context) HealthResponse {
	h.mutex.RLock()
	checks := slices.Clone(h.checks)
	h.mutex.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	response := HealthResponse{
		Status:    HealthStatusHealthy,
		Timestamp: time.Now(),
		Uptime:    time.Since(h.started),
		Checks:    make([]HealthCheck, 0, len(checks)),
	}

	for _, c := range checks {
		start := time.Now()
		status, message := c.fn(ctx)
		result := HealthCheck{
			Name:     c.name,
			Status:   status,
			Message:  message,
			Duration: time.Since(start),
			Critical: c.critical,
		}
		response.Checks = append(response.Checks, result)

		if status == HealthStatusHealthy {
			continue
		}
		h.logger.Warn(ctx, nil, "Health check failed", "name", c.name, "status", string(status), "message", message)

		switch {
		case c.critical && status == HealthStatusUnhealthy:
			response.Status = HealthStatusUnhealthy
		case response.Status == HealthStatusHealthy:
			response.Status = HealthStatusDegraded
		}
	}

	return response
}

// HTTPHandler returns an HTTP handler for health checks
func (h *Health) HTTPHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		health := h.Check(r.Context())

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")

		if health.Status == HealthStatusUnhealthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		} else {
			w.WriteHeader(http.StatusOK)
		}

		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(health); err != nil {
			h.logger.Error(r.Context(), err, "Failed to encode health response")
		}
	}
}

// OutputDirCheck reports whether files can be written in dir.
func OutputDirCheck(dir string) CheckFunc {
	return func(ctx context.Context) (HealthStatus, string) {
		marker := filepath.Join(dir, fmt.Sprintf(".hammer_health_%d", time.Now().UnixNano()))
		if err := os.WriteFile(marker, []byte("ok"), 0644); err != nil {
			return HealthStatusUnhealthy, fmt.Sprintf("cannot write to output directory: %v", err)
		}
		if err := os.Remove(marker); err != nil {
			return HealthStatusDegraded, fmt.Sprintf("cannot remove health file: %v", err)
		}

		return HealthStatusHealthy, "output directory is writable"
	}
}

// LastPassCheck reports the error of the most recent build pass.
func LastPassCheck(lastErr func() error) CheckFunc {
	return func(ctx context.Context) (HealthStatus, string) {
		if err := lastErr(); err != nil {
			return HealthStatusDegraded, err.Error()
		}

		return HealthStatusHealthy, "last pass succeeded"
	}
}
