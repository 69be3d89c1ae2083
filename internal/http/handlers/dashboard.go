package handlers

import (
	"context"
	"net/http"

	"github.com/wolfman30/clinic-frontdesk/internal/dashboard"
	"github.com/wolfman30/clinic-frontdesk/internal/http/respond"
	"github.com/wolfman30/clinic-frontdesk/pkg/logging"
)

// DashboardReader produces the staff dashboard views.
type DashboardReader interface {
	Stats(ctx context.Context) (dashboard.Stats, error)
	Summary(ctx context.Context) (*dashboard.Summary, error)
}

type DashboardHandler struct {
	dash   DashboardReader
	logger *logging.Logger
}

func NewDashboardHandler(dash DashboardReader, logger *logging.Logger) *DashboardHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &DashboardHandler{dash: dash, logger: logger}
}

// Summary handles GET /api/dashboard.
func (h *DashboardHandler) Summary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.dash.Summary(r.Context())
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	respond.JSON(w, http.StatusOK, summary)
}

// Stats handles GET /api/dashboard/stats.
func (h *DashboardHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.dash.Stats(r.Context())
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	respond.JSON(w, http.StatusOK, stats)
}
