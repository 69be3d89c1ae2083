package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/clinic-frontdesk/internal/appointments"
	"github.com/wolfman30/clinic-frontdesk/internal/audit"
	"github.com/wolfman30/clinic-frontdesk/internal/booking"
	"github.com/wolfman30/clinic-frontdesk/internal/http/respond"
	"github.com/wolfman30/clinic-frontdesk/pkg/logging"
)

const maxJSONBody = 1 << 20

// Booker creates appointments through the capacity checks.
type Booker interface {
	Book(ctx context.Context, req booking.Request) (*booking.Confirmation, error)
}

// HistoryLister reads the audit trail of one appointment.
type HistoryLister interface {
	ListBySubject(ctx context.Context, subject string, limit int) ([]audit.Event, error)
}

// AppointmentsHandler serves the staff appointment endpoints.
type AppointmentsHandler struct {
	repo    appointments.Repository
	ctrl    *appointments.Controller
	booker  Booker
	history HistoryLister
	logger  *logging.Logger
	now     func() time.Time
}

// NewAppointmentsHandler creates the staff appointments handler.
func NewAppointmentsHandler(repo appointments.Repository, ctrl *appointments.Controller, booker Booker, history HistoryLister, logger *logging.Logger) *AppointmentsHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &AppointmentsHandler{repo: repo, ctrl: ctrl, booker: booker, history: history, logger: logger, now: time.Now}
}

// ListResponse is one page of appointments.
type ListResponse struct {
	Items    []*appointments.Appointment `json:"items"`
	Total    int                         `json:"total"`
	Page     int                         `json:"page"`
	PageSize int                         `json:"page_size"`
}

func listFilter(r *http.Request) (appointments.ListFilter, error) {
	q := r.URL.Query()
	f := appointments.ListFilter{
		Query: strings.TrimSpace(q.Get("q")),
		Date:  strings.TrimSpace(q.Get("date")),
	}
	if raw := strings.TrimSpace(q.Get("status")); raw != "" {
		status, err := appointments.ParseStatus(raw)
		if err != nil {
			return f, err
		}
		f.Status = status
	}
	if f.Date != "" {
		if err := appointments.ValidateDate(f.Date); err != nil {
			return f, err
		}
	}
	f.Page, _ = strconv.Atoi(q.Get("page"))
	f.PageSize, _ = strconv.Atoi(q.Get("pageSize"))
	f.SortField, f.SortDesc = appointments.ParseSort(q.Get("sort"))
	return f.Normalized(), nil
}

// List handles GET /api/appointments.
func (h *AppointmentsHandler) List(w http.ResponseWriter, r *http.Request) {
	filter, err := listFilter(r)
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	items, total, err := h.repo.List(r.Context(), filter)
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	if items == nil {
		items = []*appointments.Appointment{}
	}
	respond.JSON(w, http.StatusOK, ListResponse{Items: items, Total: total, Page: filter.Page, PageSize: filter.PageSize})
}

// Search handles GET /api/appointments/search?phone=|ticket=.
func (h *AppointmentsHandler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	ticketRaw := strings.TrimSpace(q.Get("ticket"))
	phone := appointments.DigitsOnly(q.Get("phone"))

	var items []*appointments.Appointment
	switch {
	case ticketRaw != "":
		ticket, ok := booking.ParseTicket(ticketRaw)
		if !ok {
			respond.Message(w, http.StatusBadRequest, "ticket must be numeric")
			return
		}
		appt, err := h.repo.GetByTicket(r.Context(), ticket)
		if err == nil {
			items = append(items, appt)
		} else if respond.StatusFor(err) != http.StatusNotFound {
			respond.Error(w, h.logger, err)
			return
		}
	case phone != "":
		found, err := h.repo.SearchByPhone(r.Context(), phone)
		if err != nil {
			respond.Error(w, h.logger, err)
			return
		}
		items = found
	default:
		respond.Message(w, http.StatusBadRequest, "phone or ticket is required")
		return
	}
	if items == nil {
		items = []*appointments.Appointment{}
	}
	respond.JSON(w, http.StatusOK, items)
}

// Export handles GET /api/appointments/export?format=csv|xlsx with the list filters.
func (h *AppointmentsHandler) Export(w http.ResponseWriter, r *http.Request) {
	format := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("format")))
	if format == "" {
		format = "csv"
	}
	if format != "csv" && format != "xlsx" {
		respond.Message(w, http.StatusBadRequest, "format must be csv or xlsx")
		return
	}
	filter, err := listFilter(r)
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	filter.Unpaged = true
	items, _, err := h.repo.List(r.Context(), filter)
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}

	name := fmt.Sprintf("appointments_%s.%s", h.now().Format("20060102_150405"), format)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	switch format {
	case "xlsx":
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		err = appointments.WriteXLSX(w, items)
	default:
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		err = appointments.WriteCSV(w, items)
	}
	if err != nil {
		// headers are already sent
		h.logger.Error("appointment export failed", "format", format, "error", err)
		return
	}
	h.logger.Info("appointments exported", "format", format, "rows", len(items))
}

type createRequest struct {
	Name          string `json:"name"`
	Phone         string `json:"phone"`
	NationalID    string `json:"national_id"`
	Symptoms      string `json:"symptoms"`
	ScheduledDate string `json:"scheduled_date"`
}

// Create handles POST /api/appointments for staff bookings.
func (h *AppointmentsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var body createRequest
	if err := decodeJSON(r, &body); err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	conf, err := h.booker.Book(r.Context(), booking.Request{
		Name:          body.Name,
		Phone:         body.Phone,
		NationalID:    body.NationalID,
		Symptoms:      body.Symptoms,
		ScheduledDate: body.ScheduledDate,
		Source:        booking.SourceStaff,
	})
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	respond.JSON(w, http.StatusCreated, conf)
}

type updateRequest struct {
	Status         *string `json:"status"`
	UseNow         bool    `json:"use_now"`
	CompletionHour string  `json:"completion_hour"`
	ProceduresDone string  `json:"procedures_done"`
	ScheduledDate  *string `json:"scheduled_date"`
	Name           *string `json:"name"`
	Phone          *string `json:"phone"`
	Symptoms       *string `json:"symptoms"`
}

func (u updateRequest) change() (appointments.Change, error) {
	c := appointments.Change{
		UseNow:         u.UseNow,
		CompletionHour: u.CompletionHour,
		ProceduresDone: u.ProceduresDone,
		ScheduledDate:  u.ScheduledDate,
		Name:           u.Name,
		Phone:          u.Phone,
		Symptoms:       u.Symptoms,
	}
	if u.Status != nil {
		status, err := appointments.ParseStatus(*u.Status)
		if err != nil {
			return c, err
		}
		c.Status = &status
	}
	return c, nil
}

// Update handles PUT /api/appointments/{id}.
func (h *AppointmentsHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var body updateRequest
	if err := decodeJSON(r, &body); err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	change, err := body.change()
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	appt, err := h.ctrl.Apply(r.Context(), id, change)
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	respond.JSON(w, http.StatusOK, appt)
}

// Delete handles DELETE /api/appointments/{id}.
func (h *AppointmentsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.ctrl.Delete(r.Context(), id); err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	respond.JSON(w, http.StatusOK, map[string]string{"id": id})
}

// History handles GET /api/appointments/{id}/history.
func (h *AppointmentsHandler) History(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		respond.Message(w, http.StatusNotFound, respond.MessageNotFound)
		return
	}
	id := chi.URLParam(r, "id")
	if _, err := h.repo.Get(r.Context(), id); err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	events, err := h.history.ListBySubject(r.Context(), id, limit)
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	if events == nil {
		events = []audit.Event{}
	}
	respond.JSON(w, http.StatusOK, events)
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxJSONBody))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: malformed JSON body", appointments.ErrInvalidRequest)
	}
	return nil
}
