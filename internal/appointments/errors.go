package appointments

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when no appointment matches the lookup.
	ErrNotFound = errors.New("appointment not found")

	// ErrInvalidRequest is returned for malformed or incomplete input.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrInvalidTimeFormat is returned when a manual completion time is not HH:MM.
	ErrInvalidTimeFormat = errors.New("completion time must be HH:MM")

	// ErrCapacityExceeded is returned when a date has no room left.
	ErrCapacityExceeded = errors.New("capacity exceeded")

	// ErrInvalidTransition is returned for status changes the lifecycle does not allow.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrConflict is returned when a concurrent writer changed the record first.
	ErrConflict = errors.New("appointment was modified concurrently")

	// ErrDuplicatePending is returned when the patient already holds an upcoming pending appointment.
	ErrDuplicatePending = errors.New("patient already has a pending appointment")

	// ErrPersistence marks failures of the underlying store.
	ErrPersistence = errors.New("persistence failure")
)

// PersistenceError wraps a store failure with the operation that failed.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("appointments: %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrPersistence) match any PersistenceError.
func (e *PersistenceError) Is(target error) bool { return target == ErrPersistence }

func persistenceErr(op string, err error) error {
	return &PersistenceError{Op: op, Err: err}
}

// CapacityExceededError reports the date and limit that rejected a booking.
type CapacityExceededError struct {
	Date     string
	Capacity int
	Booked   int
}

func (e *CapacityExceededError) Error() string {
	return fmt.Sprintf("capacity exceeded for %s: %d of %d booked", e.Date, e.Booked, e.Capacity)
}

func (e *CapacityExceededError) Is(target error) bool { return target == ErrCapacityExceeded }
