package service

import (
	"context"

	"github.com/iliyamo/class-seat-booking/internal/model"
	"github.com/iliyamo/class-seat-booking/internal/queue"
)

// SeatLedger is the part of the seat ledger the coordinator needs.  Both
// operations are keyed by booking id so that retried and redelivered calls
// neither double-reserve nor double-release.
type SeatLedger interface {
	ReserveFor(ctx context.Context, classID, bookingID string, seats int) (int, error)
	ReleaseFor(ctx context.Context, classID, bookingID string) (int, error)
}

// BookingStore persists booking records.
type BookingStore interface {
	CreatePending(ctx context.Context, nb model.NewBooking) (string, error)
	CreateTerminal(ctx context.Context, nb model.NewBooking, status model.BookingStatus, errorDetail string) (string, error)
	Transition(ctx context.Context, id string, status model.BookingStatus, errorDetail string) error
	Get(ctx context.Context, id string) (*model.Booking, error)
	List(ctx context.Context, classID string) ([]model.Booking, error)
}

// IntentPublisher enqueues reservation intents for the settlement workers.
type IntentPublisher interface {
	Publish(ctx context.Context, in queue.ReservationIntent) error
}
