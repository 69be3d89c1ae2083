package appointments

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout is the calendar date format used for scheduled dates and capacity keys.
const DateLayout = "2006-01-02"

// Status is the lifecycle state of an appointment.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// ParseStatus accepts the three lifecycle values case-insensitively.
// The legacy "confirmed" value is treated as pending.
func ParseStatus(raw string) (Status, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "pending", "confirmed":
		return StatusPending, nil
	case "completed":
		return StatusCompleted, nil
	case "cancelled", "canceled":
		return StatusCancelled, nil
	default:
		return "", fmt.Errorf("%w: unknown status %q", ErrInvalidRequest, raw)
	}
}

// Appointment is a single scheduled patient visit.
type Appointment struct {
	ID             string    `json:"id"`
	TicketNumber   int64     `json:"ticket_number"`
	Name           string    `json:"name"`
	Phone          string    `json:"phone"`
	NationalID     string    `json:"national_id,omitempty"`
	ScheduledDate  string    `json:"scheduled_date"`
	Status         Status    `json:"status"`
	CompletionHour string    `json:"completion_hour,omitempty"`
	Symptoms       string    `json:"symptoms"`
	ProceduresDone []string  `json:"procedures_done,omitempty"`
	ImagePaths     []string  `json:"image_paths,omitempty"`
	VoiceNotePath  string    `json:"voice_note_path,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
	Version        int       `json:"version"`
}

// Clone returns a deep copy so callers never share slices with the store.
func (a *Appointment) Clone() *Appointment {
	if a == nil {
		return nil
	}
	out := *a
	if a.ProceduresDone != nil {
		out.ProceduresDone = append([]string(nil), a.ProceduresDone...)
	}
	if a.ImagePaths != nil {
		out.ImagePaths = append([]string(nil), a.ImagePaths...)
	}
	return &out
}

// IsActive reports whether the appointment counts against capacity.
func (a *Appointment) IsActive() bool {
	return a.Status != StatusCancelled
}

// TicketLast4 returns the last four digits of the ticket number.
func (a *Appointment) TicketLast4() int64 {
	return a.TicketNumber % 10000
}
