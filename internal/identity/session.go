package identity

import (
	"fmt"
	"strconv"

	"github.com/wolfman30/clinic-frontdesk/internal/appointments"
)

// State of a patient's lookup conversation.
type State string

const (
	StateUnresolved     State = "unresolved"
	StateDisambiguating State = "disambiguating"
	StateResolved       State = "resolved"
)

// Session tracks one patient narrowing down to a single appointment.
//
//	Unresolved -> Disambiguating -> Resolved
//	Unresolved -> Resolved
//
// A lookup that finds nothing leaves the session where it was.
type Session struct {
	State       State
	Query       Query
	Candidates  []Candidate
	Appointment *appointments.Appointment
}

// NewSession starts an unresolved session.
func NewSession() *Session {
	return &Session{State: StateUnresolved}
}

// Observe moves the session forward with the result of running q.
func (s *Session) Observe(q Query, result *Result) error {
	if s.State == StateResolved {
		return fmt.Errorf("%w: session already resolved", appointments.ErrInvalidRequest)
	}
	if result == nil {
		return nil
	}
	s.Query = q
	switch result.Outcome {
	case OutcomeResolved:
		s.State = StateResolved
		s.Appointment = result.Appointment
		s.Candidates = nil
	case OutcomeDisambiguating:
		s.State = StateDisambiguating
		s.Candidates = result.Candidates
	}
	return nil
}

// Narrow builds the follow-up query for a chosen candidate. The candidate's
// date is added; when several candidates share that date the query switches
// to the candidate's ticket instead.
func (s *Session) Narrow(choice Candidate) (Query, error) {
	if s.State != StateDisambiguating {
		return Query{}, fmt.Errorf("%w: nothing to narrow", appointments.ErrInvalidRequest)
	}
	var found bool
	sameDate := 0
	for _, c := range s.Candidates {
		if c.TicketNumber == choice.TicketNumber {
			found = true
		}
		if c.ScheduledDate == choice.ScheduledDate {
			sameDate++
		}
	}
	if !found {
		return Query{}, fmt.Errorf("%w: unknown candidate", appointments.ErrInvalidRequest)
	}
	if sameDate > 1 {
		return Query{Ticket: strconv.FormatInt(choice.TicketNumber, 10)}, nil
	}
	next := s.Query
	next.Date = choice.ScheduledDate
	return next, nil
}
