package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/class-seat-booking/internal/model"
)

// ClassLedger is the seat ledger together with the class lifecycle
// operations.  It is satisfied by repository.ClassRepo and memstore.Ledger.
type ClassLedger interface {
	Create(ctx context.Context, c *model.Class) error
	Get(ctx context.Context, id string) (*model.Class, error)
	List(ctx context.Context) ([]model.Class, error)
	Reserve(ctx context.Context, classID string, seats int) (int, error)
	Release(ctx context.Context, classID string, seats int) (int, error)
	ReserveFor(ctx context.Context, classID, bookingID string, seats int) (int, error)
	ReleaseFor(ctx context.Context, classID, bookingID string) (int, error)
}

// ClassHandler serves the class catalogue and the seat ledger endpoints.
// The reserve and release endpoints are what a remote ledgerclient.Client
// talks to.
type ClassHandler struct {
	Ledger ClassLedger
	Logger *zap.Logger
}

// NewClassHandler constructs a ClassHandler and panics on a nil ledger.
func NewClassHandler(ledger ClassLedger, logger *zap.Logger) *ClassHandler {
	if ledger == nil {
		panic("nil ledger passed to NewClassHandler")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ClassHandler{Ledger: ledger, Logger: logger}
}

// ListClasses handles GET /v1/classes.  Classes are ordered by start time.
func (h *ClassHandler) ListClasses(c echo.Context) error {
	classes, err := h.Ledger.List(c.Request().Context())
	if err != nil {
		return h.fail(c, "list classes", err)
	}
	if classes == nil {
		classes = []model.Class{}
	}
	return c.JSON(http.StatusOK, echo.Map{"classes": classes})
}

// GetClass handles GET /v1/classes/:id.
func (h *ClassHandler) GetClass(c echo.Context) error {
	class, err := h.Ledger.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return h.fail(c, "get class", err)
	}
	return c.JSON(http.StatusOK, class)
}

type createClassRequest struct {
	Title      string    `json:"title"`
	Instructor string    `json:"instructor"`
	StartsAt   time.Time `json:"start_time"`
	Capacity   int       `json:"capacity"`
}

// CreateClass handles POST /v1/classes (ADMIN only).  Every seat of a new
// class is available.
func (h *ClassHandler) CreateClass(c echo.Context) error {
	var req createClassRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	req.Title = strings.TrimSpace(req.Title)
	req.Instructor = strings.TrimSpace(req.Instructor)
	switch {
	case req.Title == "":
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "title is required"})
	case req.Instructor == "":
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "instructor is required"})
	case req.StartsAt.IsZero():
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "start_time is required (RFC 3339)"})
	case req.Capacity < 1:
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "capacity must be >= 1"})
	}

	class := &model.Class{
		Title:      req.Title,
		Instructor: req.Instructor,
		StartsAt:   req.StartsAt,
		Capacity:   req.Capacity,
	}
	if err := h.Ledger.Create(c.Request().Context(), class); err != nil {
		return h.fail(c, "create class", err)
	}
	h.Logger.Info("class created", zap.String("class_id", class.ID), zap.Int("capacity", class.Capacity))
	return c.JSON(http.StatusCreated, class)
}

type seatsRequest struct {
	Seats     int    `json:"seats"`
	BookingID string `json:"booking_id"`
}

type seatsResponse struct {
	ClassID        string `json:"class_id"`
	AvailableSeats int    `json:"available_seats"`
}

// Reserve handles POST /v1/classes/:id/reserve (SERVICE or ADMIN).  With a
// booking_id the reservation is keyed and repeating it is a no-op.  It
// answers 409 when too few seats are left and 404 for an unknown class.
func (h *ClassHandler) Reserve(c echo.Context) error {
	var req seatsRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	classID := c.Param("id")
	ctx := c.Request().Context()

	var available int
	var err error
	if req.BookingID != "" {
		available, err = h.Ledger.ReserveFor(ctx, classID, req.BookingID, req.Seats)
	} else {
		available, err = h.Ledger.Reserve(ctx, classID, req.Seats)
	}
	if err != nil {
		return h.fail(c, "reserve seats", err)
	}
	return c.JSON(http.StatusOK, seatsResponse{ClassID: classID, AvailableSeats: available})
}

// Release handles POST /v1/classes/:id/release (SERVICE or ADMIN).  With a
// booking_id it returns exactly the seats that booking holds, if any, and
// seats is ignored.  Without one it returns seats, capped at capacity.
func (h *ClassHandler) Release(c echo.Context) error {
	var req seatsRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	classID := c.Param("id")
	ctx := c.Request().Context()

	var available int
	var err error
	if req.BookingID != "" {
		available, err = h.Ledger.ReleaseFor(ctx, classID, req.BookingID)
	} else {
		available, err = h.Ledger.Release(ctx, classID, req.Seats)
	}
	if err != nil {
		return h.fail(c, "release seats", err)
	}
	return c.JSON(http.StatusOK, seatsResponse{ClassID: classID, AvailableSeats: available})
}

func (h *ClassHandler) fail(c echo.Context, op string, err error) error {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.Logger.Error(op+" failed", zap.Error(err))
	}
	return c.JSON(status, echo.Map{"error": publicMessage(err)})
}
