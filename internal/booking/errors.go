package booking

import (
	"errors"
	"fmt"
)

var (
	// ErrSlotUnavailable means the requested interval conflicts with a
	// confirmed booking, or the slot is no longer on the offered grid.
	ErrSlotUnavailable = errors.New("slot is no longer available")

	// ErrBookingCancelled means the booking exists but was cancelled, so
	// it can no longer be rescheduled.
	ErrBookingCancelled = errors.New("booking has been cancelled")

	ErrNotFound = errors.New("not found")
)

// ValidationError reports a bad field in a customer request. Handlers map
// it to a 422 instead of a 500.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}
