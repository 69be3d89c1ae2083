package booking

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/clinic-frontdesk/internal/appointments"
	"github.com/wolfman30/clinic-frontdesk/internal/audit"
	"github.com/wolfman30/clinic-frontdesk/internal/capacity"
	"github.com/wolfman30/clinic-frontdesk/internal/media"
	"github.com/wolfman30/clinic-frontdesk/internal/observability/metrics"
	"github.com/wolfman30/clinic-frontdesk/pkg/logging"
)

var bookingTracer = otel.Tracer("frontdesk.internal.booking")

const (
	SourcePatient = "patient"
	SourceStaff   = "staff"

	defaultHorizonDays = 30
	// ticketAttempts bounds retries when an allocated ticket collides with an existing row.
	ticketAttempts = 3
)

// Attachment is an uploaded file that goes to the media store before the reservation.
type Attachment struct {
	Kind        media.Kind
	Filename    string
	ContentType string
	Body        io.Reader
}

// Request is a booking submitted by a patient or by staff on their behalf.
type Request struct {
	Name          string
	Phone         string
	NationalID    string
	Symptoms      string
	ScheduledDate string
	Attachments   []Attachment
	Source        string
}

// Confirmation is returned to the caller of Book.
type Confirmation struct {
	AppointmentID string              `json:"appointment_id"`
	TicketNumber  int64               `json:"ticket_number"`
	ScheduledDate string              `json:"scheduled_date"`
	Status        appointments.Status `json:"status"`
}

// Availability describes how full a single date is.
type Availability struct {
	Date      string          `json:"date"`
	Capacity  int             `json:"capacity"`
	Booked    int             `json:"booked"`
	Remaining int             `json:"remaining"`
	Unlimited bool            `json:"unlimited"`
	Source    capacity.Source `json:"source"`
}

// Service orchestrates capacity checks, ticket allocation and reservations.
type Service struct {
	repo    appointments.Repository
	ledger  *capacity.Ledger
	tickets TicketAllocator
	media   media.Store
	audit   audit.Recorder
	metrics *metrics.FrontDeskMetrics
	logger  *logging.Logger
	loc     *time.Location
	now     func() time.Time
	horizon int
}

// NewService constructs the booking orchestrator.
func NewService(repo appointments.Repository, ledger *capacity.Ledger, tickets TicketAllocator, store media.Store, logger *logging.Logger) *Service {
	if repo == nil || ledger == nil || tickets == nil {
		panic("booking: repository, ledger and ticket allocator required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		repo:    repo,
		ledger:  ledger,
		tickets: tickets,
		media:   store,
		audit:   audit.Nop{},
		logger:  logger,
		loc:     time.UTC,
		now:     time.Now,
		horizon: defaultHorizonDays,
	}
}

// WithAudit records each booking in r.
func (s *Service) WithAudit(r audit.Recorder) *Service {
	if r != nil {
		s.audit = r
	}
	return s
}

func (s *Service) WithMetrics(m *metrics.FrontDeskMetrics) *Service {
	s.metrics = m
	return s
}

// WithLocation sets the clinic time zone that decides what "today" is.
func (s *Service) WithLocation(loc *time.Location) *Service {
	if loc != nil {
		s.loc = loc
	}
	return s
}

func (s *Service) WithClock(now func() time.Time) *Service {
	if now != nil {
		s.now = now
	}
	return s
}

// WithHorizon sets how many days ahead auto-assignment searches.
func (s *Service) WithHorizon(days int) *Service {
	if days > 0 {
		s.horizon = days
	}
	return s
}

func (s *Service) today() string {
	return s.now().In(s.loc).Format(appointments.DateLayout)
}

// Book validates req, picks a date with room and reserves a ticket on it.
func (s *Service) Book(ctx context.Context, req Request) (*Confirmation, error) {
	ctx, span := bookingTracer.Start(ctx, "booking.book")
	defer span.End()
	source := req.Source
	if source == "" {
		source = SourcePatient
		req.Source = source
	}
	span.SetAttributes(attribute.String("booking.source", source))

	start := time.Now()
	conf, err := s.book(ctx, req)
	s.metrics.ObserveBooking(source, outcome(err), time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "booking failed")
		s.logger.Info("booking rejected", "source", source, "national_id", logging.MaskID(req.NationalID), "error", err)
		return nil, err
	}
	span.SetAttributes(
		attribute.String("booking.date", conf.ScheduledDate),
		attribute.Int64("booking.ticket", conf.TicketNumber),
	)
	s.logger.Info("appointment booked",
		"source", source,
		"id", conf.AppointmentID,
		"ticket", conf.TicketNumber,
		"date", conf.ScheduledDate,
	)
	return conf, nil
}

func (s *Service) book(ctx context.Context, req Request) (*Confirmation, error) {
	in := normalizeRequest(req)
	if err := validateInput(in); err != nil {
		return nil, err
	}
	today := s.today()
	if in.ScheduledDate != "" && in.ScheduledDate < today {
		return nil, fmt.Errorf("%w: scheduled_date is in the past", appointments.ErrInvalidRequest)
	}

	pending, err := s.repo.FindPending(ctx, in.NationalID, today)
	if err != nil {
		return nil, fmt.Errorf("booking: check pending: %w", err)
	}
	if len(pending) > 0 {
		return nil, fmt.Errorf("%w: ticket %d on %s", appointments.ErrDuplicatePending, pending[0].TicketNumber, pending[0].ScheduledDate)
	}

	imagePaths, voicePath, err := s.upload(ctx, in.NationalID, req.Attachments)
	if err != nil {
		return nil, err
	}

	appt := &appointments.Appointment{
		Name:          in.Name,
		Phone:         in.Phone,
		NationalID:    in.NationalID,
		Symptoms:      in.Symptoms,
		Status:        appointments.StatusPending,
		ImagePaths:    imagePaths,
		VoiceNotePath: voicePath,
	}

	if in.ScheduledDate != "" {
		saved, err := s.reserveOn(ctx, appt, in.ScheduledDate)
		if err != nil {
			return nil, err
		}
		return s.confirm(ctx, saved, req.Source), nil
	}

	day, err := time.Parse(appointments.DateLayout, today)
	if err != nil {
		return nil, fmt.Errorf("booking: parse today: %w", err)
	}
	for i := 0; i < s.horizon; i++ {
		date := day.AddDate(0, 0, i).Format(appointments.DateLayout)
		saved, err := s.reserveOn(ctx, appt, date)
		if errors.Is(err, appointments.ErrCapacityExceeded) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return s.confirm(ctx, saved, req.Source), nil
	}
	return nil, fmt.Errorf("%w: no available date within %d days", appointments.ErrCapacityExceeded, s.horizon)
}

// reserveOn books appt on date or returns a CapacityExceededError when the day is full.
func (s *Service) reserveOn(ctx context.Context, appt *appointments.Appointment, date string) (*appointments.Appointment, error) {
	limit, err := s.ledger.Effective(ctx, date)
	if err != nil {
		if errors.Is(err, capacity.ErrInvalidKey) {
			return nil, fmt.Errorf("%w: invalid date %q", appointments.ErrInvalidRequest, date)
		}
		return nil, fmt.Errorf("booking: effective capacity: %w", err)
	}
	if !limit.Unlimited() {
		booked, err := s.repo.CountActive(ctx, date)
		if err != nil {
			return nil, fmt.Errorf("booking: count active: %w", err)
		}
		// Full days are skipped before a sequence number is spent on them.
		if booked >= limit.Capacity {
			return nil, &appointments.CapacityExceededError{Date: date, Capacity: limit.Capacity, Booked: booked}
		}
	}

	var lastErr error
	for attempt := 0; attempt < ticketAttempts; attempt++ {
		seq, err := s.tickets.Next(ctx, date)
		if err != nil {
			return nil, err
		}
		ticket, err := FormatTicket(date, seq, appt.NationalID)
		if err != nil {
			return nil, err
		}
		trace.SpanFromContext(ctx).AddEvent("ticket allocated", trace.WithAttributes(
			attribute.String("booking.date", date),
			attribute.Int("booking.seq", seq),
			attribute.Int("booking.attempt", attempt+1),
		))
		candidate := appt.Clone()
		candidate.ScheduledDate = date
		candidate.TicketNumber = ticket
		saved, err := s.repo.Reserve(ctx, candidate, limit.Capacity)
		if errors.Is(err, appointments.ErrConflict) {
			lastErr = err
			continue
		}
		if err != nil {
			return nil, err
		}
		return saved, nil
	}
	return nil, fmt.Errorf("booking: allocate ticket for %s: %w", date, lastErr)
}

func (s *Service) upload(ctx context.Context, nationalID string, files []Attachment) ([]string, string, error) {
	if len(files) == 0 {
		return nil, "", nil
	}
	if s.media == nil {
		return nil, "", fmt.Errorf("%w: attachments are not accepted", appointments.ErrInvalidRequest)
	}
	at := s.now()
	var images []string
	var voice string
	counts := make(map[media.Kind]int)
	for _, f := range files {
		if f.Body != nil {
			counts[f.Kind]++
		}
	}
	if counts[media.KindVoice] > 1 {
		return nil, "", fmt.Errorf("%w: only one voice note per booking", appointments.ErrInvalidRequest)
	}
	clear(counts)
	for _, f := range files {
		if f.Body == nil {
			continue
		}
		counts[f.Kind]++
		key := media.ObjectKey(nationalID, f.Kind, at, f.Filename, counts[f.Kind])
		if err := s.media.Put(ctx, key, f.ContentType, f.Body); err != nil {
			return nil, "", fmt.Errorf("booking: upload attachment: %w", err)
		}
		if f.Kind == media.KindVoice {
			voice = key
		} else {
			images = append(images, key)
		}
	}
	return images, voice, nil
}

func (s *Service) confirm(ctx context.Context, saved *appointments.Appointment, source string) *Confirmation {
	if err := s.audit.Record(ctx, audit.Event{
		Type:    audit.EventAppointmentBooked,
		Subject: saved.ID,
		Details: audit.Details(map[string]any{
			"ticket_number":  saved.TicketNumber,
			"scheduled_date": saved.ScheduledDate,
			"source":         source,
		}),
	}); err != nil {
		s.logger.Warn("failed to record audit event", "type", audit.EventAppointmentBooked, "subject", saved.ID, "error", err)
	}
	return &Confirmation{
		AppointmentID: saved.ID,
		TicketNumber:  saved.TicketNumber,
		ScheduledDate: saved.ScheduledDate,
		Status:        saved.Status,
	}
}

// NextAvailableDate returns the first date from today within the horizon that still has room.
func (s *Service) NextAvailableDate(ctx context.Context) (string, error) {
	day, err := time.Parse(appointments.DateLayout, s.today())
	if err != nil {
		return "", fmt.Errorf("booking: parse today: %w", err)
	}
	for i := 0; i < s.horizon; i++ {
		date := day.AddDate(0, 0, i).Format(appointments.DateLayout)
		a, err := s.Availability(ctx, date)
		if err != nil {
			return "", err
		}
		if a.Unlimited || a.Remaining > 0 {
			return date, nil
		}
	}
	return "", fmt.Errorf("%w: no available date within %d days", appointments.ErrCapacityExceeded, s.horizon)
}

// Availability reports capacity and current bookings for date.
func (s *Service) Availability(ctx context.Context, date string) (Availability, error) {
	if err := appointments.ValidateDate(date); err != nil {
		return Availability{}, err
	}
	limit, err := s.ledger.Effective(ctx, date)
	if err != nil {
		return Availability{}, fmt.Errorf("booking: effective capacity: %w", err)
	}
	booked, err := s.repo.CountActive(ctx, date)
	if err != nil {
		return Availability{}, fmt.Errorf("booking: count active: %w", err)
	}
	a := Availability{
		Date:      date,
		Capacity:  limit.Capacity,
		Booked:    booked,
		Unlimited: limit.Unlimited(),
		Source:    limit.Source,
	}
	if !a.Unlimited && booked < limit.Capacity {
		a.Remaining = limit.Capacity - booked
	}
	return a, nil
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "booked"
	case errors.Is(err, appointments.ErrCapacityExceeded):
		return "capacity_exceeded"
	case errors.Is(err, appointments.ErrDuplicatePending):
		return "duplicate_pending"
	case errors.Is(err, appointments.ErrInvalidRequest):
		return "invalid"
	default:
		return "error"
	}
}
