package handlers

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/wolfman30/clinic-frontdesk/internal/appointments"
	"github.com/wolfman30/clinic-frontdesk/internal/booking"
	"github.com/wolfman30/clinic-frontdesk/internal/http/respond"
	"github.com/wolfman30/clinic-frontdesk/internal/identity"
	"github.com/wolfman30/clinic-frontdesk/internal/media"
	"github.com/wolfman30/clinic-frontdesk/internal/tokens"
	"github.com/wolfman30/clinic-frontdesk/pkg/logging"
)

// defaultMaxUpload bounds a multipart booking including attachments.
const defaultMaxUpload = 16 << 20

// Scheduler is the patient side of the booking service.
type Scheduler interface {
	Booker
	Availability(ctx context.Context, date string) (booking.Availability, error)
	NextAvailableDate(ctx context.Context) (string, error)
}

// PatientHandler serves the public patient endpoints.
type PatientHandler struct {
	resolver  *identity.Resolver
	scheduler Scheduler
	logger    *logging.Logger
	maxUpload int64
}

func NewPatientHandler(resolver *identity.Resolver, scheduler Scheduler, logger *logging.Logger) *PatientHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &PatientHandler{resolver: resolver, scheduler: scheduler, logger: logger, maxUpload: defaultMaxUpload}
}

// WithMaxUpload caps the size of multipart bookings.
func (h *PatientHandler) WithMaxUpload(n int64) *PatientHandler {
	if n > 0 {
		h.maxUpload = n
	}
	return h
}

// ResolveResponse is returned by the patient lookup.
type ResolveResponse struct {
	Status       identity.Outcome          `json:"status"`
	Appointment  *appointments.Appointment `json:"appointment,omitempty"`
	Candidates   []identity.Candidate      `json:"candidates,omitempty"`
	SessionToken string                    `json:"session_token,omitempty"`
}

// Resolve handles GET /api/patient/appointments.
func (h *PatientHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	result, err := h.resolver.Resolve(r.Context(), identity.Query{
		NationalID: q.Get("national_id"),
		Ticket:     q.Get("ticket"),
		Phone:      q.Get("phone"),
		Date:       q.Get("date"),
	})
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	resp := ResolveResponse{Status: result.Outcome, Appointment: result.Appointment, Candidates: result.Candidates}
	if result.Outcome == identity.OutcomeResolved {
		token, err := h.resolver.IssueToken(result)
		switch {
		case err == nil:
			resp.SessionToken = token
		case errors.Is(err, tokens.ErrNoSecret):
		default:
			h.logger.Warn("patient session token not issued", "error", err)
		}
	}
	respond.JSON(w, http.StatusOK, resp)
}

// Session handles GET /api/patient/session.
func (h *PatientHandler) Session(w http.ResponseWriter, r *http.Request) {
	raw := bearerToken(r)
	if raw == "" {
		respond.Message(w, http.StatusUnauthorized, respond.MessageUnauthorized)
		return
	}
	appt, err := h.resolver.SessionAppointment(r.Context(), raw)
	if errors.Is(err, tokens.ErrNoSecret) {
		respond.Message(w, http.StatusUnauthorized, respond.MessageUnauthorized)
		return
	}
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	respond.JSON(w, http.StatusOK, appt)
}

// Book handles POST /api/patient/book as JSON or multipart form.
func (h *PatientHandler) Book(w http.ResponseWriter, r *http.Request) {
	req, err := h.bookingRequest(r)
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	req.Source = booking.SourcePatient
	conf, err := h.scheduler.Book(r.Context(), req)
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	respond.JSON(w, http.StatusCreated, conf)
}

// Availability handles GET /api/patient/availability?date=. Without a date it
// reports the next date that still has room.
func (h *PatientHandler) Availability(w http.ResponseWriter, r *http.Request) {
	date := strings.TrimSpace(r.URL.Query().Get("date"))
	if date == "" {
		next, err := h.scheduler.NextAvailableDate(r.Context())
		if err != nil {
			respond.Error(w, h.logger, err)
			return
		}
		date = next
	}
	a, err := h.scheduler.Availability(r.Context(), date)
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	respond.JSON(w, http.StatusOK, a)
}

func (h *PatientHandler) bookingRequest(r *http.Request) (booking.Request, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		var body createRequest
		if err := decodeJSON(r, &body); err != nil {
			return booking.Request{}, err
		}
		return booking.Request{
			Name:          body.Name,
			Phone:         body.Phone,
			NationalID:    body.NationalID,
			Symptoms:      body.Symptoms,
			ScheduledDate: body.ScheduledDate,
		}, nil
	}

	r.Body = http.MaxBytesReader(nil, r.Body, h.maxUpload)
	if err := r.ParseMultipartForm(h.maxUpload); err != nil {
		return booking.Request{}, fmt.Errorf("%w: invalid form upload", appointments.ErrInvalidRequest)
	}
	req := booking.Request{
		Name:          r.FormValue("name"),
		Phone:         r.FormValue("phone"),
		NationalID:    r.FormValue("national_id"),
		Symptoms:      r.FormValue("symptoms"),
		ScheduledDate: r.FormValue("scheduled_date"),
	}
	for _, field := range []struct {
		name   string
		kind   media.Kind
		prefix string
	}{
		{"image", media.KindImage, "image/"},
		{"voice", media.KindVoice, "audio/"},
	} {
		for _, fh := range r.MultipartForm.File[field.name] {
			att, err := attachment(fh, field.kind, field.prefix)
			if err != nil {
				return booking.Request{}, err
			}
			req.Attachments = append(req.Attachments, att)
		}
	}
	return req, nil
}

func attachment(fh *multipart.FileHeader, kind media.Kind, prefix string) (booking.Attachment, error) {
	contentType := fh.Header.Get("Content-Type")
	if contentType != "" && contentType != "application/octet-stream" && !strings.HasPrefix(contentType, prefix) {
		return booking.Attachment{}, fmt.Errorf("%w: %s upload has type %s", appointments.ErrInvalidRequest, kind, contentType)
	}
	f, err := fh.Open()
	if err != nil {
		return booking.Attachment{}, fmt.Errorf("%w: unreadable %s upload", appointments.ErrInvalidRequest, kind)
	}
	// multipart keeps the parsed files until the request ends
	return booking.Attachment{Kind: kind, Filename: fh.Filename, ContentType: contentType, Body: f}, nil
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
}
