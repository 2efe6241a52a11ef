package service

import (
	"errors"
	"fmt"
)

// ErrInvalidRequest is returned when a booking request misses a class id,
// name or contact.
var ErrInvalidRequest = errors.New("invalid booking request")

// InconsistentStateError reports a failed compensation: a seat was reserved
// for a booking that was not persisted, and releasing it failed too, or the
// booking could not be re-read to tell whether the release was safe.  The
// seat stays held until reconciliation trues up the ledger.  It wraps the
// original failure so callers still see why the booking failed.
type InconsistentStateError struct {
	BookingID       string
	ClassID         string
	Cause           error
	CompensationErr error
}

func (e *InconsistentStateError) Error() string {
	return fmt.Sprintf("booking %s for class %s failed (%v) and releasing its seat failed (%v): seat may remain held",
		e.BookingID, e.ClassID, e.Cause, e.CompensationErr)
}

func (e *InconsistentStateError) Unwrap() error { return e.Cause }
