package handler

import (
	"errors"
	"net/http"

	"github.com/iliyamo/class-seat-booking/internal/repository"
	"github.com/iliyamo/class-seat-booking/internal/service"
)

// statusFor maps the error taxonomy onto HTTP status codes.  Anything not
// recognised is an internal error.
func statusFor(err error) int {
	var inconsistent *service.InconsistentStateError
	switch {
	case errors.As(err, &inconsistent):
		return http.StatusInternalServerError
	case errors.Is(err, service.ErrInvalidRequest),
		errors.Is(err, repository.ErrInvalidSeats),
		errors.Is(err, repository.ErrInvalidCapacity):
		return http.StatusBadRequest
	case errors.Is(err, repository.ErrClassNotFound),
		errors.Is(err, repository.ErrBookingNotFound):
		return http.StatusNotFound
	case errors.Is(err, repository.ErrInsufficientCapacity):
		return http.StatusConflict
	case errors.Is(err, repository.ErrUpstreamUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// publicMessage is the error text shown to clients.  Storage and internal
// failures are not described beyond their category.
func publicMessage(err error) string {
	switch statusFor(err) {
	case http.StatusInternalServerError:
		return "internal error"
	case http.StatusBadGateway:
		return "upstream unavailable"
	default:
		return err.Error()
	}
}
