package monitoring

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/hammer/internal/logging"
)

func fixed(status HealthStatus) CheckFunc {
	return func(context.Context) (HealthStatus, string) {
		return status, string(status)
	}
}

func TestHealthAggregation(t *testing.T) {
	tests := []struct {
		name   string
		checks map[string]HealthStatus
		crit   map[string]bool
		want   HealthStatus
	}{
		{
			name:   "all healthy",
			checks: map[string]HealthStatus{"a": HealthStatusHealthy, "b": HealthStatusHealthy},
			want:   HealthStatusHealthy,
		},
		{
			name:   "non-critical failure degrades",
			checks: map[string]HealthStatus{"a": HealthStatusHealthy, "b": HealthStatusUnhealthy},
			want:   HealthStatusDegraded,
		},
		{
			name:   "critical failure is unhealthy",
			checks: map[string]HealthStatus{"a": HealthStatusUnhealthy},
			crit:   map[string]bool{"a": true},
			want:   HealthStatusUnhealthy,
		},
		{
			name:   "critical degraded only degrades",
			checks: map[string]HealthStatus{"a": HealthStatusDegraded},
			crit:   map[string]bool{"a": true},
			want:   HealthStatusDegraded,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealth(logging.Nop())
			for name, status := range tt.checks {
				h.Register(name, tt.crit[name], fixed(status))
			}

			response := h.Check(context.Background())
			assert.Equal(t, tt.want, response.Status)
			assert.Len(t, response.Checks, len(tt.checks))
		})
	}
}

func TestHealthRegisterReplaces(t *testing.T) {
	h := NewHealth(logging.Nop())
	h.Register("a", false, fixed(HealthStatusUnhealthy))
	h.Register("a", false, fixed(HealthStatusHealthy))

	response := h.Check(context.Background())
	require.Len(t, response.Checks, 1)
	assert.Equal(t, HealthStatusHealthy, response.Status)
}

func TestHealthHTTPHandler(t *testing.T) {
	h := NewHealth(logging.Nop())
	h.Register("output", true, fixed(HealthStatusUnhealthy))

	rec := httptest.NewRecorder()
	h.HTTPHandler()(rec, httptest.NewRequest(http.MethodGet, "/hammer/health", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, HealthStatusUnhealthy, body.Status)
	require.Len(t, body.Checks, 1)
	assert.Equal(t, "output", body.Checks[0].Name)
}

func TestOutputDirCheck(t *testing.T) {
	status, _ := OutputDirCheck(t.TempDir())(context.Background())
	assert.Equal(t, HealthStatusHealthy, status)

	status, _ = OutputDirCheck(filepath.Join(t.TempDir(), "missing"))(context.Background())
	assert.Equal(t, HealthStatusUnhealthy, status)
}

func TestLastPassCheck(t *testing.T) {
	var last error
	check := LastPassCheck(func() error { return last })

	status, _ := check(context.Background())
	assert.Equal(t, HealthStatusHealthy, status)

	last = errors.New("build failed")
	status, message := check(context.Background())
	assert.Equal(t, HealthStatusDegraded, status)
	assert.Equal(t, "build failed", message)
}
