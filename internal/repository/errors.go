// Package repository defines the error taxonomy shared by every seat ledger
// and booking store implementation, together with the MySQL-backed
// implementations themselves.  These sentinel values allow higher layers
// such as the booking service and the HTTP handlers to distinguish between
// the failure scenarios of a reservation without inspecting driver errors.
package repository

import "errors"

// ErrClassNotFound is returned when the referenced class does not exist.
// Handlers should translate this into an HTTP 404 response.
var ErrClassNotFound = errors.New("class not found")

// ErrBookingNotFound is returned when the referenced booking does not exist.
var ErrBookingNotFound = errors.New("booking not found")

// ErrInsufficientCapacity is returned by Reserve when fewer seats are
// available than requested.  It is a normal negative outcome, not a fault:
// no seats were consumed.  Handlers should translate this into HTTP 409.
var ErrInsufficientCapacity = errors.New("not enough seats")

// ErrAlreadyTerminal is returned when a booking that already reached
// confirmed or failed is asked to transition again.
var ErrAlreadyTerminal = errors.New("booking already settled")

// ErrInvalidSeats is returned when a seat count below one is requested.
var ErrInvalidSeats = errors.New("seats must be >= 1")

// ErrInvalidCapacity is returned when a class is created with fewer than one
// seat.
var ErrInvalidCapacity = errors.New("capacity must be >= 1")

// ErrInvalidStatus is returned when a transition targets a non-terminal
// status.
var ErrInvalidStatus = errors.New("invalid booking status")

// ErrStorageFailure marks an error of the backing store itself (connection
// loss, constraint violation, driver error).  It may be transient.
var ErrStorageFailure = errors.New("storage failure")

// ErrUpstreamUnavailable marks a collaborator that could not be reached or
// did not answer within its deadline.  The outcome of the call is unknown.
var ErrUpstreamUnavailable = errors.New("upstream unavailable")
