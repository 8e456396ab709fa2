package handlers

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/wolfman30/whatsapp-booking-agent/pkg/logging"
	"golang.org/x/sync/errgroup"
)

// HealthCheck probes one dependency.
type HealthCheck func(ctx context.Context) error

// HealthHandler serves GET /health by running every check concurrently.
type HealthHandler struct {
	checks  map[string]HealthCheck
	version string
	timeout time.Duration
	logger  *logging.Logger
}

func NewHealthHandler(version string, checks map[string]HealthCheck, logger *logging.Logger) *HealthHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &HealthHandler{checks: checks, version: version, timeout: 3 * time.Second, logger: logger}
}

type healthResponse struct {
	Status  string            `json:"status"`
	Version string            `json:"version,omitempty"`
	Checks  map[string]string `json:"checks,omitempty"`
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	var (
		mu      sync.Mutex
		results = make(map[string]string, len(names))
		g       errgroup.Group
	)
	for _, name := range names {
		check := h.checks[name]
		g.Go(func() error {
			err := check(ctx)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				results[name] = err.Error()
				return err
			}
			results[name] = "ok"
			return nil
		})
	}

	resp := healthResponse{Status: "ok", Version: h.version, Checks: results}
	if err := g.Wait(); err != nil {
		h.logger.Warn("health check failed", "error", err)
		resp.Status = "degraded"
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
