package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/class-seat-booking/internal/model"
	"github.com/iliyamo/class-seat-booking/internal/service"
)

// Bookings is the part of service.BookingService the HTTP layer uses.
type Bookings interface {
	Book(ctx context.Context, classID, name, contact string) (service.BookingResult, error)
	Submit(ctx context.Context, classID, name, contact string) (service.BookingResult, error)
	GetBookingStatus(ctx context.Context, id string) (*model.Booking, error)
	ListBookings(ctx context.Context, classID string) ([]model.Booking, error)
}

// BookingHandler exposes the synchronous and asynchronous booking paths and
// the status reads clients poll.
type BookingHandler struct {
	Bookings Bookings
	Logger   *zap.Logger
}

// NewBookingHandler constructs a BookingHandler and panics on a nil service.
func NewBookingHandler(b Bookings, logger *zap.Logger) *BookingHandler {
	if b == nil {
		panic("nil booking service passed to NewBookingHandler")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BookingHandler{Bookings: b, Logger: logger}
}

type bookingRequest struct {
	ClassID string `json:"class_id"`
	Name    string `json:"name"`
	Email   string `json:"email"`
}

// bookingView is the client-facing shape of a booking.
type bookingView struct {
	BookingID string              `json:"booking_id"`
	ClassID   string              `json:"class_id"`
	Name      string              `json:"name"`
	Email     string              `json:"email"`
	Status    model.BookingStatus `json:"status"`
	Error     string              `json:"error,omitempty"`
	CreatedAt time.Time           `json:"created_at"`
}

func viewOf(b model.Booking) bookingView {
	v := bookingView{
		BookingID: b.ID,
		ClassID:   b.ClassID,
		Name:      b.Name,
		Email:     b.Contact,
		Status:    b.Status,
		CreatedAt: b.CreatedAt,
	}
	if b.ErrorDetail != nil {
		v.Error = *b.ErrorDetail
	}
	return v
}

// Book handles POST /v1/bookings.  The seat is reserved and the booking
// recorded before the response is written: 201 means confirmed.  A full
// class answers 409, an unknown class 404 and an unreachable ledger 502.
func (h *BookingHandler) Book(c echo.Context) error {
	var req bookingRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	res, err := h.Bookings.Book(c.Request().Context(), req.ClassID, req.Name, req.Email)
	if err != nil {
		return h.fail(c, res, err)
	}
	return c.JSON(http.StatusCreated, res)
}

// BookAsync handles POST /v1/bookings/async.  The booking is recorded as
// pending and settled by a worker; clients poll GET /v1/bookings/:id.
func (h *BookingHandler) BookAsync(c echo.Context) error {
	var req bookingRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	res, err := h.Bookings.Submit(c.Request().Context(), req.ClassID, req.Name, req.Email)
	if err != nil {
		return h.fail(c, res, err)
	}
	c.Response().Header().Set(echo.HeaderLocation, "/v1/bookings/"+res.BookingID)
	return c.JSON(http.StatusAccepted, res)
}

// GetBooking handles GET /v1/bookings/:id.
func (h *BookingHandler) GetBooking(c echo.Context) error {
	b, err := h.Bookings.GetBookingStatus(c.Request().Context(), c.Param("id"))
	if err != nil {
		status := statusFor(err)
		if status >= http.StatusInternalServerError {
			h.Logger.Error("get booking failed", zap.Error(err))
		}
		return c.JSON(status, echo.Map{"error": publicMessage(err)})
	}
	return c.JSON(http.StatusOK, viewOf(*b))
}

// ListBookings handles GET /v1/bookings?class_id=.  Newest first.
func (h *BookingHandler) ListBookings(c echo.Context) error {
	list, err := h.Bookings.ListBookings(c.Request().Context(), c.QueryParam("class_id"))
	if err != nil {
		h.Logger.Error("list bookings failed", zap.Error(err))
		return c.JSON(statusFor(err), echo.Map{"error": publicMessage(err)})
	}
	out := make([]bookingView, 0, len(list))
	for _, b := range list {
		out = append(out, viewOf(b))
	}
	return c.JSON(http.StatusOK, echo.Map{"bookings": out})
}

// fail writes a failed booking result.  The result carries the class id,
// the booking id when a record exists, and a reason safe to show.
func (h *BookingHandler) fail(c echo.Context, res service.BookingResult, err error) error {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.Logger.Error("booking request failed", zap.Error(err))
	}
	res.Status = model.StatusFailed
	if res.Error == "" || status == http.StatusBadRequest {
		res.Error = publicMessage(err)
	}
	return c.JSON(status, res)
}
