// Package audit records staff mutations of appointments and capacity.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// EventType names the kind of mutation.
type EventType string

const (
	EventAppointmentBooked     EventType = "appointment.booked"
	EventAppointmentTransition EventType = "appointment.transition"
	EventAppointmentEdited     EventType = "appointment.edited"
	EventAppointmentDeleted    EventType = "appointment.deleted"
	EventCapacitySet           EventType = "capacity.set"
	EventCapacityDeleted       EventType = "capacity.deleted"
)

// Event is an immutable audit record.
type Event struct {
	ID            string          `json:"id"`
	Type          EventType       `json:"event_type"`
	Subject       string          `json:"subject"`
	Actor         string          `json:"actor,omitempty"`
	ChangedFields []string        `json:"changed_fields,omitempty"`
	Details       json.RawMessage `json:"details,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// Recorder appends audit events.
type Recorder interface {
	Record(ctx context.Context, event Event) error
}

// Nop discards events.
type Nop struct{}

func (Nop) Record(context.Context, Event) error { return nil }

type actorKey struct{}

// WithActor stores the acting staff username on the context.
func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFromContext returns the acting username, if any.
func ActorFromContext(ctx context.Context) string {
	actor, _ := ctx.Value(actorKey{}).(string)
	return actor
}

// Details marshals v for Event.Details, dropping values that cannot be encoded.
func Details(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return data
}

func prepare(ctx context.Context, event Event) Event {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	if event.Actor == "" {
		event.Actor = ActorFromContext(ctx)
	}
	return event
}

// Store persists events in the audit_events table.
type Store struct {
	db *sql.DB
}

// NewStore creates a SQL backed audit store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Record inserts the event.
func (s *Store) Record(ctx context.Context, event Event) error {
	event = prepare(ctx, event)
	details := event.Details
	if len(details) == 0 {
		details = json.RawMessage(`{}`)
	}
	query := `
		INSERT INTO audit_events (id, event_type, subject, actor, changed_fields, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := s.db.ExecContext(ctx, query,
		event.ID,
		string(event.Type),
		event.Subject,
		nullString(event.Actor),
		pq.Array(event.ChangedFields),
		[]byte(details),
		event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("audit: failed to record event: %w", err)
	}
	return nil
}

// ListBySubject returns the events recorded for subject, newest first.
func (s *Store) ListBySubject(ctx context.Context, subject string, limit int) ([]Event, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, event_type, subject, actor, changed_fields, details, created_at
		FROM audit_events
		WHERE subject = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, subject, limit)
	if err != nil {
		return nil, fmt.Errorf("audit: failed to query events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			e       Event
			typ     string
			actor   sql.NullString
			details []byte
		)
		if err := rows.Scan(&e.ID, &typ, &e.Subject, &actor, pq.Array(&e.ChangedFields), &details, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("audit: failed to scan event: %w", err)
		}
		e.Type = EventType(typ)
		e.Actor = actor.String
		e.Details = details
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("audit: failed to read events: %w", err)
	}
	return events, nil
}

// MemoryStore keeps events in memory for development and tests.
type MemoryStore struct {
	mu     sync.Mutex
	events []Event
}

// NewMemoryStore creates an empty in-memory audit store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Record appends the event.
func (m *MemoryStore) Record(ctx context.Context, event Event) error {
	event = prepare(ctx, event)
	m.mu.Lock()
	m.events = append(m.events, event)
	m.mu.Unlock()
	return nil
}

// ListBySubject returns the events recorded for subject, newest first.
func (m *MemoryStore) ListBySubject(ctx context.Context, subject string, limit int) ([]Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Event
	for i := len(m.events) - 1; i >= 0; i-- {
		if m.events[i].Subject == subject {
			out = append(out, m.events[i])
		}
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// Events returns a copy of everything recorded so far.
func (m *MemoryStore) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Event(nil), m.events...)
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
