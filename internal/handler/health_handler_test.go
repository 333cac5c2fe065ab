package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLiveness(t *testing.T) {
	h := NewHealthHandler("mig-catalog-api", nil, zap.NewNop())

	rec := httptest.NewRecorder()
	h.Liveness(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")
}

func TestDetailedAllHealthy(t *testing.T) {
	checks := map[string]HealthCheckFunc{
		"redis":  func(ctx context.Context) error { return nil },
		"scylla": func(ctx context.Context) error { return nil },
	}
	h := NewHealthHandler("mig-catalog-api", checks, zap.NewNop())

	rec := httptest.NewRecorder()
	h.Detailed(rec, httptest.NewRequest(http.MethodGet, "/health/detailed", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Status       string            `json:"status"`
		Dependencies map[string]string `json:"dependencies"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body.Status)
	assert.Equal(t, "healthy", body.Dependencies["redis"])
	assert.Equal(t, "healthy", body.Dependencies["scylla"])
}

func TestDetailedReportsEachDependencyIndependently(t *testing.T) {
	// The slow healthy check finishes after the failing one; it must still
	// report its own state, not a cancellation caused by the failure.
	checks := map[string]HealthCheckFunc{
		"scylla": func(ctx context.Context) error { return errors.New("connection refused") },
		"redis": func(ctx context.Context) error {
			select {
			case <-time.After(50 * time.Millisecond):
				return ctx.Err()
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	}
	h := NewHealthHandler("mig-catalog-api", checks, zap.NewNop())

	rec := httptest.NewRecorder()
	h.Detailed(rec, httptest.NewRequest(http.MethodGet, "/health/detailed", nil))

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body struct {
		Status       string            `json:"status"`
		Dependencies map[string]string `json:"dependencies"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "degraded", body.Status)
	assert.Equal(t, "healthy", body.Dependencies["redis"])
	assert.Contains(t, body.Dependencies["scylla"], "connection refused")
}
