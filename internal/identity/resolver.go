package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/wolfman30/clinic-frontdesk/internal/appointments"
	"github.com/wolfman30/clinic-frontdesk/internal/booking"
	"github.com/wolfman30/clinic-frontdesk/internal/observability/metrics"
	"github.com/wolfman30/clinic-frontdesk/internal/tokens"
	"github.com/wolfman30/clinic-frontdesk/pkg/logging"
)

var identityTracer = otel.Tracer("frontdesk.internal.identity")

const (
	modeTicket     = "ticket"
	modeNationalID = "national_id"
)

// Query is what a patient types to find their appointment.
type Query struct {
	NationalID string `json:"national_id,omitempty"`
	Ticket     string `json:"ticket,omitempty"`
	Phone      string `json:"phone,omitempty"`
	Date       string `json:"date,omitempty"`
}

// Outcome of a lookup that found at least one appointment.
type Outcome string

const (
	OutcomeResolved       Outcome = "resolved"
	OutcomeDisambiguating Outcome = "disambiguating"
)

// Candidate is the minimal view shown while a patient picks among several matches.
type Candidate struct {
	TicketNumber  int64               `json:"ticket_number"`
	ScheduledDate string              `json:"scheduled_date"`
	Status        appointments.Status `json:"status"`
}

// Result is either one resolved appointment or a list of candidates.
type Result struct {
	Outcome     Outcome
	Appointment *appointments.Appointment
	Candidates  []Candidate
}

// Resolver finds a patient's appointment from partial identity.
type Resolver struct {
	repo    appointments.Repository
	signer  *tokens.Signer
	metrics *metrics.FrontDeskMetrics
	logger  *logging.Logger
}

// NewResolver creates a resolver over repo.
func NewResolver(repo appointments.Repository, logger *logging.Logger) *Resolver {
	if repo == nil {
		panic("identity: repository required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Resolver{repo: repo, logger: logger}
}

// WithSigner enables patient session tokens for resolved lookups.
func (r *Resolver) WithSigner(s *tokens.Signer) *Resolver {
	r.signer = s
	return r
}

func (r *Resolver) WithMetrics(m *metrics.FrontDeskMetrics) *Resolver {
	r.metrics = m
	return r
}

// Resolve runs q against the store. Zero matches is ErrNotFound with no hint
// about which field failed.
func (r *Resolver) Resolve(ctx context.Context, q Query) (*Result, error) {
	ctx, span := identityTracer.Start(ctx, "identity.resolve")
	defer span.End()

	mode := modeNationalID
	if strings.TrimSpace(q.Ticket) != "" {
		mode = modeTicket
	}
	span.SetAttributes(attribute.String("identity.mode", mode))

	result, err := r.resolve(ctx, q)
	r.metrics.ObserveLookup(mode, lookupResult(result, err))
	if err != nil {
		if !errors.Is(err, appointments.ErrNotFound) && !errors.Is(err, appointments.ErrInvalidRequest) {
			span.RecordError(err)
			span.SetStatus(codes.Error, "resolve failed")
			r.logger.Error("identity lookup failed", "mode", mode, "error", err)
		}
		return nil, err
	}
	span.SetAttributes(attribute.String("identity.outcome", string(result.Outcome)))
	return result, nil
}

func (r *Resolver) resolve(ctx context.Context, q Query) (*Result, error) {
	ticketRaw := strings.TrimSpace(q.Ticket)
	nationalID := strings.TrimSpace(q.NationalID)
	if ticketRaw != "" && nationalID != "" {
		return nil, fmt.Errorf("%w: search by ticket or by national id, not both", appointments.ErrInvalidRequest)
	}

	if ticketRaw != "" {
		ticket, ok := booking.ParseTicket(ticketRaw)
		if !ok {
			return nil, appointments.ErrNotFound
		}
		appt, err := r.repo.GetByTicket(ctx, ticket)
		if err != nil {
			return nil, err
		}
		return &Result{Outcome: OutcomeResolved, Appointment: appt}, nil
	}

	digits := appointments.DigitsOnly(nationalID)
	if len(digits) < 4 || digits != nationalID {
		return nil, fmt.Errorf("%w: national_id is required", appointments.ErrInvalidRequest)
	}
	date := strings.TrimSpace(q.Date)
	if date != "" {
		if err := appointments.ValidateDate(date); err != nil {
			return nil, err
		}
	}
	matches, err := r.repo.FindByIdentity(ctx, appointments.IdentityFilter{
		NationalID: digits,
		Phone:      appointments.DigitsOnly(q.Phone),
		Date:       date,
	})
	if err != nil {
		return nil, fmt.Errorf("identity: find by identity: %w", err)
	}

	switch len(matches) {
	case 0:
		return nil, appointments.ErrNotFound
	case 1:
		return &Result{Outcome: OutcomeResolved, Appointment: matches[0]}, nil
	default:
		candidates := make([]Candidate, 0, len(matches))
		for _, m := range matches {
			candidates = append(candidates, Candidate{
				TicketNumber:  m.TicketNumber,
				ScheduledDate: m.ScheduledDate,
				Status:        m.Status,
			})
		}
		return &Result{Outcome: OutcomeDisambiguating, Candidates: candidates}, nil
	}
}

// IssueToken signs a patient session token scoped to a resolved appointment.
func (r *Resolver) IssueToken(result *Result) (string, error) {
	if r.signer == nil {
		return "", tokens.ErrNoSecret
	}
	if result == nil || result.Outcome != OutcomeResolved || result.Appointment == nil {
		return "", fmt.Errorf("%w: only a resolved lookup gets a session", appointments.ErrInvalidRequest)
	}
	raw, _, err := r.signer.Issue(result.Appointment.ID)
	return raw, err
}

// SessionAppointment loads the appointment a patient token is scoped to.
func (r *Resolver) SessionAppointment(ctx context.Context, raw string) (*appointments.Appointment, error) {
	if r.signer == nil {
		return nil, tokens.ErrNoSecret
	}
	claims, err := r.signer.Verify(raw)
	if err != nil {
		return nil, err
	}
	return r.repo.Get(ctx, claims.Subject)
}

func lookupResult(result *Result, err error) string {
	switch {
	case err == nil:
		return string(result.Outcome)
	case errors.Is(err, appointments.ErrNotFound):
		return "not_found"
	case errors.Is(err, appointments.ErrInvalidRequest):
		return "invalid"
	default:
		return "error"
	}
}
