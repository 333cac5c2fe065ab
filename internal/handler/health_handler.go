package handler

import (
	"context"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/html-librarian/mig-catalog/internal/util"
)

// HealthCheckFunc probes one dependency.
type HealthCheckFunc func(ctx context.Context) error

// HealthHandler answers liveness and readiness probes. The detailed
// endpoint fans out to every registered dependency check in parallel.
type HealthHandler struct {
	serviceName string
	checks      map[string]HealthCheckFunc
	logger      *zap.Logger
}

func NewHealthHandler(serviceName string, checks map[string]HealthCheckFunc, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		serviceName: serviceName,
		checks:      checks,
		logger:      logger,
	}
}

func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": h.serviceName,
	})
}

func (h *HealthHandler) Detailed(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	var mu sync.Mutex
	results := make(map[string]string, len(h.checks))

	// Plain group, no shared cancellation: one failing dependency must not
	// turn the remaining probes into context errors.
	var g errgroup.Group
	for name, check := range h.checks {
		name, check := name, check
		g.Go(func() error {
			err := check(ctx)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				results[name] = "unhealthy: " + err.Error()
				return err
			}
			results[name] = "healthy"
			return nil
		})
	}

	status := http.StatusOK
	overall := "healthy"
	if err := g.Wait(); err != nil {
		status = http.StatusServiceUnavailable
		overall = "degraded"
		h.logger.Warn("health check reported unhealthy dependency", util.ErrorField(err))
	}

	respondWithJSON(w, status, map[string]interface{}{
		"status":       overall,
		"service":      h.serviceName,
		"dependencies": results,
	})
}
