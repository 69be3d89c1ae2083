package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/clinic-frontdesk/internal/appointments"
	"github.com/wolfman30/clinic-frontdesk/internal/audit"
	"github.com/wolfman30/clinic-frontdesk/internal/capacity"
	"github.com/wolfman30/clinic-frontdesk/internal/http/respond"
	"github.com/wolfman30/clinic-frontdesk/internal/observability/metrics"
	"github.com/wolfman30/clinic-frontdesk/pkg/logging"
)

// CapacityHandler lets staff manage the capacity ledger.
type CapacityHandler struct {
	ledger  *capacity.Ledger
	audit   audit.Recorder
	metrics *metrics.FrontDeskMetrics
	logger  *logging.Logger
}

func NewCapacityHandler(ledger *capacity.Ledger, recorder audit.Recorder, m *metrics.FrontDeskMetrics, logger *logging.Logger) *CapacityHandler {
	if recorder == nil {
		recorder = audit.Nop{}
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &CapacityHandler{ledger: ledger, audit: recorder, metrics: m, logger: logger}
}

type capacityListResponse struct {
	Fallback int              `json:"fallback"`
	Entries  []capacity.Entry `json:"entries"`
}

// List handles GET /api/capacity.
func (h *CapacityHandler) List(w http.ResponseWriter, r *http.Request) {
	entries, err := h.ledger.List(r.Context())
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	if entries == nil {
		entries = []capacity.Entry{}
	}
	respond.JSON(w, http.StatusOK, capacityListResponse{Fallback: h.ledger.Fallback(), Entries: entries})
}

type capacityRequest struct {
	Capacity *int `json:"capacity"`
}

// Put handles PUT /api/capacity/{day}.
func (h *CapacityHandler) Put(w http.ResponseWriter, r *http.Request) {
	var body capacityRequest
	if err := decodeJSON(r, &body); err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	if body.Capacity == nil {
		respond.Message(w, http.StatusBadRequest, "capacity is required")
		return
	}
	entry, err := h.ledger.Set(r.Context(), chi.URLParam(r, "day"), *body.Capacity)
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	h.metrics.ObserveCapacityUpdate("set")
	h.record(r, audit.Event{
		Type:    audit.EventCapacitySet,
		Subject: entry.Key,
		Details: audit.Details(map[string]any{"capacity": entry.Capacity}),
	})
	h.logger.Info("capacity updated", "key", entry.Key, "capacity", entry.Capacity)
	respond.JSON(w, http.StatusOK, entry)
}

// Delete handles DELETE /api/capacity/{day}.
func (h *CapacityHandler) Delete(w http.ResponseWriter, r *http.Request) {
	day := chi.URLParam(r, "day")
	key, _, err := capacity.NormalizeKey(day)
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	if err := h.ledger.Delete(r.Context(), key); err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	h.metrics.ObserveCapacityUpdate("delete")
	h.record(r, audit.Event{Type: audit.EventCapacityDeleted, Subject: key})
	h.logger.Info("capacity entry removed", "key", key)
	respond.JSON(w, http.StatusOK, map[string]string{"key": key})
}

// Effective handles GET /api/capacity/effective?date=.
func (h *CapacityHandler) Effective(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	if err := appointments.ValidateDate(date); err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	eff, err := h.ledger.Effective(r.Context(), date)
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	respond.JSON(w, http.StatusOK, eff)
}

func (h *CapacityHandler) record(r *http.Request, event audit.Event) {
	if err := h.audit.Record(r.Context(), event); err != nil {
		h.logger.Warn("failed to record audit event", "type", event.Type, "subject", event.Subject, "error", err)
	}
}
