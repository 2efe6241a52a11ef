package model

import "time"

// BookingStatus is the lifecycle state of a booking.  A booking starts in
// StatusPending (asynchronous path) or directly in a terminal state
// (synchronous path) and moves at most once from pending to a terminal
// state.
type BookingStatus string

const (
	StatusPending   BookingStatus = "pending"
	StatusConfirmed BookingStatus = "confirmed"
	StatusFailed    BookingStatus = "failed"
)

// IsTerminal reports whether no further transition is allowed.
func (s BookingStatus) IsTerminal() bool {
	return s == StatusConfirmed || s == StatusFailed
}

// Valid reports whether s is one of the known statuses.
func (s BookingStatus) Valid() bool {
	return s == StatusPending || s.IsTerminal()
}

// Booking is a request by one person for one seat in a class.
//
// Fields:
//
//	ID          – opaque unique identifier assigned at creation.
//	ClassID     – the class the seat is requested in (referenced, not owned).
//	Name        – requester name.
//	Contact     – requester contact (e-mail).
//	Status      – pending, confirmed or failed.
//	ErrorDetail – human readable reason; set iff Status is failed.
//	CreatedAt   – creation timestamp, immutable.
type Booking struct {
	ID          string        `db:"id" json:"id"`
	ClassID     string        `db:"class_id" json:"class_id"`
	Name        string        `db:"name" json:"name"`
	Contact     string        `db:"contact" json:"email"`
	Status      BookingStatus `db:"status" json:"status"`
	ErrorDetail *string       `db:"error_detail" json:"error,omitempty"`
	CreatedAt   time.Time     `db:"created_at" json:"created_at"`
}

// NewBooking carries the immutable fields of a booking being created.  When
// ID is empty the store assigns a fresh one.
type NewBooking struct {
	ID      string
	ClassID string
	Name    string
	Contact string
}
