package appointments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/wolfman30/clinic-frontdesk/internal/audit"
	"github.com/wolfman30/clinic-frontdesk/internal/observability/metrics"
	"github.com/wolfman30/clinic-frontdesk/pkg/logging"
)

var lifecycleTracer = otel.Tracer("frontdesk.internal.appointments")

// Change is a staff edit of one appointment. Nil or empty fields are left alone.
type Change struct {
	Status         *Status
	UseNow         bool
	CompletionHour string
	ProceduresDone string
	ScheduledDate  *string
	Name           *string
	Phone          *string
	Symptoms       *string
}

func (c Change) empty() bool {
	return c.Status == nil && !c.UseNow && c.CompletionHour == "" && c.ProceduresDone == "" &&
		c.ScheduledDate == nil && c.Name == nil && c.Phone == nil && c.Symptoms == nil
}

func (c Change) hasCompletionFields() bool {
	return c.UseNow || c.CompletionHour != "" || strings.TrimSpace(c.ProceduresDone) != ""
}

// CapacityFunc returns the capacity in force on date, 0 meaning unlimited.
type CapacityFunc func(ctx context.Context, date string) (int, error)

// Controller applies lifecycle transitions and field edits.
type Controller struct {
	repo     Repository
	capacity CapacityFunc
	audit    audit.Recorder
	metrics  *metrics.FrontDeskMetrics
	logger   *logging.Logger
	loc      *time.Location
	now      func() time.Time
}

// NewController creates a lifecycle controller over repo.
func NewController(repo Repository, logger *logging.Logger) *Controller {
	if repo == nil {
		panic("appointments: repository required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Controller{
		repo:   repo,
		audit:  audit.Nop{},
		logger: logger,
		loc:    time.UTC,
		now:    time.Now,
	}
}

// WithAudit records committed mutations in r.
func (c *Controller) WithAudit(r audit.Recorder) *Controller {
	if r != nil {
		c.audit = r
	}
	return c
}

// WithMetrics counts committed transitions.
func (c *Controller) WithMetrics(m *metrics.FrontDeskMetrics) *Controller {
	c.metrics = m
	return c
}

// WithCapacity gates moves of an active appointment onto another date.
func (c *Controller) WithCapacity(fn CapacityFunc) *Controller {
	c.capacity = fn
	return c
}

// WithLocation sets the clinic time zone used for "use now" completion times.
func (c *Controller) WithLocation(loc *time.Location) *Controller {
	if loc != nil {
		c.loc = loc
	}
	return c
}

// WithClock overrides the clock.
func (c *Controller) WithClock(now func() time.Time) *Controller {
	if now != nil {
		c.now = now
	}
	return c
}

// allowed reports whether from -> to is a legal lifecycle move. Field edits
// that keep the status are checked separately and pass in every state.
func allowed(from, to Status) bool {
	switch {
	case from == StatusPending && (to == StatusPending || to == StatusCompleted || to == StatusCancelled):
		return true
	case from == StatusCompleted && to == StatusPending:
		return true
	default:
		return false
	}
}

// Apply validates and commits change against the appointment id.
func (c *Controller) Apply(ctx context.Context, id string, change Change) (*Appointment, error) {
	ctx, span := lifecycleTracer.Start(ctx, "appointments.apply")
	defer span.End()
	span.SetAttributes(attribute.String("appointment.id", id))

	appt, err := c.apply(ctx, id, change)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "apply failed")
		return nil, err
	}
	return appt, nil
}

func (c *Controller) apply(ctx context.Context, id string, change Change) (*Appointment, error) {
	if change.empty() {
		return nil, fmt.Errorf("%w: no changes supplied", ErrInvalidRequest)
	}
	current, err := c.repo.Get(ctx, id)
	if err != nil {
		return nil, c.storeErr("load", err)
	}

	from := current.Status
	to := from
	if change.Status != nil {
		to = *change.Status
	}
	editOnly := to == from && !change.hasCompletionFields()
	if !editOnly && !allowed(from, to) {
		return nil, fmt.Errorf("%w: %s to %s", ErrInvalidTransition, from, to)
	}
	completing := from != StatusCompleted && to == StatusCompleted
	if change.hasCompletionFields() && !completing {
		return nil, fmt.Errorf("%w: completion details require a transition to completed", ErrInvalidRequest)
	}

	next := current.Clone()
	var changed []string
	next.Status = to
	if to != from {
		changed = append(changed, "status")
	}

	switch {
	case completing:
		hour, err := c.completionHour(change)
		if err != nil {
			return nil, err
		}
		next.CompletionHour = hour
		changed = append(changed, "completion_hour")
		if note := strings.TrimSpace(change.ProceduresDone); note != "" {
			next.ProceduresDone = append(next.ProceduresDone, note)
			changed = append(changed, "procedures_done")
		}
	case to != StatusCompleted && next.CompletionHour != "":
		next.CompletionHour = ""
		changed = append(changed, "completion_hour")
	}

	edited, err := applyEdits(next, change)
	if err != nil {
		return nil, err
	}
	changed = append(changed, edited...)
	if next.ScheduledDate != current.ScheduledDate && next.Status != StatusCancelled {
		if err := c.checkCapacity(ctx, next.ScheduledDate); err != nil {
			return nil, err
		}
	}

	saved, err := c.repo.Update(ctx, next, current.Version)
	if err != nil {
		return nil, c.storeErr("update", err)
	}

	eventType := audit.EventAppointmentEdited
	if to != from {
		eventType = audit.EventAppointmentTransition
		c.metrics.ObserveTransition(string(from), string(to))
	}
	c.record(ctx, audit.Event{
		Type:          eventType,
		Subject:       saved.ID,
		ChangedFields: changed,
		Details:       audit.Details(map[string]string{"from": string(from), "to": string(to)}),
	})
	c.logger.Info("appointment updated",
		"id", saved.ID,
		"ticket", saved.TicketNumber,
		"from", from,
		"to", to,
		"changed", changed,
	)
	return saved, nil
}

func (c *Controller) completionHour(change Change) (string, error) {
	if change.UseNow {
		return c.now().In(c.loc).Format("15:04"), nil
	}
	hour := strings.TrimSpace(change.CompletionHour)
	if err := ValidateCompletionHour(hour); err != nil {
		return "", err
	}
	return hour, nil
}

// checkCapacity refuses a move onto a date that is already full. The count
// excludes the appointment being moved since it still sits on its old date.
func (c *Controller) checkCapacity(ctx context.Context, date string) error {
	if c.capacity == nil {
		return nil
	}
	limit, err := c.capacity(ctx, date)
	if err != nil {
		return fmt.Errorf("appointments: capacity for %s: %w", date, err)
	}
	if limit <= 0 {
		return nil
	}
	booked, err := c.repo.CountActive(ctx, date)
	if err != nil {
		return c.storeErr("count active", err)
	}
	if booked >= limit {
		return &CapacityExceededError{Date: date, Capacity: limit, Booked: booked}
	}
	return nil
}

func applyEdits(next *Appointment, change Change) ([]string, error) {
	var changed []string
	if change.Name != nil {
		name := strings.TrimSpace(*change.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: name is required", ErrInvalidRequest)
		}
		if name != next.Name {
			next.Name = name
			changed = append(changed, "name")
		}
	}
	if change.Phone != nil {
		phone, err := NormalizePhone(*change.Phone)
		if err != nil {
			return nil, err
		}
		if phone != next.Phone {
			next.Phone = phone
			changed = append(changed, "phone")
		}
	}
	if change.ScheduledDate != nil {
		date := strings.TrimSpace(*change.ScheduledDate)
		if err := ValidateDate(date); err != nil {
			return nil, err
		}
		if date != next.ScheduledDate {
			next.ScheduledDate = date
			changed = append(changed, "scheduled_date")
		}
	}
	if change.Symptoms != nil && *change.Symptoms != next.Symptoms {
		next.Symptoms = *change.Symptoms
		changed = append(changed, "symptoms")
	}
	return changed, nil
}

// Delete removes an appointment permanently.
func (c *Controller) Delete(ctx context.Context, id string) error {
	ctx, span := lifecycleTracer.Start(ctx, "appointments.delete")
	defer span.End()
	span.SetAttributes(attribute.String("appointment.id", id))

	current, err := c.repo.Get(ctx, id)
	if err != nil {
		return c.storeErr("load", err)
	}
	if err := c.repo.Delete(ctx, id); err != nil {
		span.RecordError(err)
		return c.storeErr("delete", err)
	}
	c.record(ctx, audit.Event{
		Type:    audit.EventAppointmentDeleted,
		Subject: id,
		Details: audit.Details(map[string]any{"ticket_number": current.TicketNumber, "scheduled_date": current.ScheduledDate}),
	})
	c.logger.Info("appointment deleted", "id", id, "ticket", current.TicketNumber)
	return nil
}

func (c *Controller) record(ctx context.Context, event audit.Event) {
	if err := c.audit.Record(ctx, event); err != nil {
		c.logger.Warn("failed to record audit event", "type", event.Type, "subject", event.Subject, "error", err)
	}
}

// storeErr passes domain errors through and wraps anything else as a persistence failure.
func (c *Controller) storeErr(op string, err error) error {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrConflict), errors.Is(err, ErrInvalidRequest), errors.Is(err, ErrPersistence):
		return err
	default:
		return persistenceErr(op, err)
	}
}
