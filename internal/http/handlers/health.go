package handlers

import (
	"context"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/wolfman30/clinic-frontdesk/internal/http/respond"
	"github.com/wolfman30/clinic-frontdesk/pkg/logging"
)

const healthCheckTimeout = 2 * time.Second

// HealthCheck reports whether one dependency is reachable.
type HealthCheck func(ctx context.Context) error

// HealthHandler runs the named dependency checks.
type HealthHandler struct {
	checks map[string]HealthCheck
	logger *logging.Logger
}

func NewHealthHandler(checks map[string]HealthCheck, logger *logging.Logger) *HealthHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &HealthHandler{checks: checks, logger: logger}
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// ServeHTTP handles GET /api/health.
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	resp := healthResponse{Status: "ok", Checks: map[string]string{}}
	var failed []string
	for _, name := range names {
		if err := h.checks[name](ctx); err != nil {
			h.logger.Warn("health check failed", "check", name, "error", err)
			resp.Checks[name] = "unavailable"
			resp.Status = "degraded"
			failed = append(failed, name)
			continue
		}
		resp.Checks[name] = "ok"
	}
	if resp.Status != "ok" {
		respond.Write(w, http.StatusServiceUnavailable, respond.Envelope{
			OK:    false,
			Data:  resp,
			Error: &respond.ErrorBody{Message: "dependencies unavailable: " + strings.Join(failed, ", ")},
		})
		return
	}
	respond.JSON(w, http.StatusOK, resp)
}
