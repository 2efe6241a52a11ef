// Package service coordinates a seat booking across the seat ledger and the
// booking store.  The synchronous path (Book) reserves a seat and persists
// a confirmed booking, releasing the seat again if persistence fails.  The
// asynchronous path (Submit, Settle) persists a pending booking, hands a
// reservation intent to the queue and lets a worker settle it later.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/iliyamo/class-seat-booking/internal/model"
	"github.com/iliyamo/class-seat-booking/internal/queue"
	"github.com/iliyamo/class-seat-booking/internal/repository"
)

// DefaultCallTimeout bounds every ledger, store and queue call.
const DefaultCallTimeout = 5 * time.Second

// Deps are the collaborators of a BookingService.
type Deps struct {
	Ledger    SeatLedger
	Store     BookingStore
	Publisher IntentPublisher
	Logger    *zap.Logger
	Tracer    trace.Tracer
	// Timeout applies to each collaborator call separately.
	Timeout time.Duration
	// SeatsChanged, if set, is called after a settlement confirmed a
	// booking, so cached availability can be dropped.
	SeatsChanged func(ctx context.Context, classID string)
}

// BookingService is the reservation coordinator.
type BookingService struct {
	ledger    SeatLedger
	store     BookingStore
	publisher IntentPublisher
	logger    *zap.Logger
	tracer    trace.Tracer
	timeout   time.Duration
	changed   func(ctx context.Context, classID string)
	newID     func() string
	now       func() time.Time
}

// New constructs a BookingService.  Ledger, Store and Publisher must be
// non-nil.
func New(d Deps) *BookingService {
	if d.Ledger == nil || d.Store == nil || d.Publisher == nil {
		panic("nil dependency passed to service.New")
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Tracer == nil {
		d.Tracer = otel.Tracer("github.com/iliyamo/class-seat-booking/internal/service")
	}
	if d.Timeout <= 0 {
		d.Timeout = DefaultCallTimeout
	}
	return &BookingService{
		ledger:    d.Ledger,
		store:     d.Store,
		publisher: d.Publisher,
		logger:    d.Logger,
		tracer:    d.Tracer,
		timeout:   d.Timeout,
		changed:   d.SeatsChanged,
		newID:     uuid.NewString,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// BookingResult is what a client learns about its booking request.
// BookingID is empty when no booking record exists.
type BookingResult struct {
	BookingID      string              `json:"booking_id,omitempty"`
	ClassID        string              `json:"class_id"`
	Status         model.BookingStatus `json:"status"`
	Error          string              `json:"error,omitempty"`
	AvailableSeats *int                `json:"available_seats,omitempty"`
}

// Book reserves a seat and records a confirmed booking.  A confirmed result
// is returned only after both the seat and the record are durable.  When
// the record cannot be written the seat is released again, unless a re-read
// shows the record landed after all; if the release or the re-read fails an
// *InconsistentStateError is returned.  Once started the
// booking is carried through regardless of ctx cancellation, so a departed
// client never leaves an uncompensated seat behind.
func (s *BookingService) Book(ctx context.Context, classID, name, contact string) (BookingResult, error) {
	nb, err := s.newBooking(classID, name, contact)
	if err != nil {
		return BookingResult{ClassID: classID, Status: model.StatusFailed, Error: err.Error()}, err
	}

	ctx, span := s.tracer.Start(ctx, "booking.book", trace.WithAttributes(
		attribute.String("class.id", nb.ClassID),
		attribute.String("booking.id", nb.ID)))
	defer span.End()
	ctx = context.WithoutCancel(ctx)

	logger := s.logger.With(zap.String("class_id", nb.ClassID), zap.String("booking_id", nb.ID))
	res := BookingResult{ClassID: nb.ClassID, Status: model.StatusFailed}

	var available int
	err = s.call(ctx, func(ctx context.Context) error {
		var err error
		available, err = s.ledger.ReserveFor(ctx, nb.ClassID, nb.ID, 1)
		return err
	})
	if err != nil {
		res.Error = reason(err)
		if unknownOutcome(err) {
			// The reservation may have landed; the keyed release undoes it
			// if so and is a no-op otherwise.
			if cerr := s.compensate(ctx, logger, nb.ClassID, nb.ID); cerr != nil {
				err = s.inconsistent(logger, nb, err, cerr)
			}
		}
		recordErr(span, err)
		logger.Info("booking rejected at seat reservation", zap.Error(err))
		return res, fmt.Errorf("reserve seat in class %s: %w", nb.ClassID, err)
	}

	err = s.call(ctx, func(ctx context.Context) error {
		_, err := s.store.CreateTerminal(ctx, nb, model.StatusConfirmed, "")
		return err
	})
	if err != nil {
		err = asStorage(err)
		res.Error = "booking could not be saved"

		// The insert may have committed before the error surfaced.  The seat
		// is released only once the record is known to be absent.
		var stored *model.Booking
		gerr := s.call(ctx, func(ctx context.Context) error {
			var err error
			stored, err = s.store.Get(ctx, nb.ID)
			return err
		})
		switch {
		case gerr == nil && stored.Status == model.StatusConfirmed:
			logger.Warn("booking persisted despite store error", zap.NamedError("store_error", err))
			res.BookingID = nb.ID
			res.Status = model.StatusConfirmed
			res.Error = ""
			res.AvailableSeats = &available
			return res, nil
		case gerr != nil && !errors.Is(gerr, repository.ErrBookingNotFound):
			ierr := s.inconsistent(logger, nb, err, fmt.Errorf("verify booking before release: %w", gerr))
			recordErr(span, ierr)
			return res, ierr
		}

		logger.Warn("persisting booking failed; releasing seat", zap.Error(err))
		if cerr := s.compensate(ctx, logger, nb.ClassID, nb.ID); cerr != nil {
			ierr := s.inconsistent(logger, nb, err, cerr)
			recordErr(span, ierr)
			return res, ierr
		}
		recordErr(span, err)
		return res, fmt.Errorf("persist booking %s: %w", nb.ID, err)
	}

	res.BookingID = nb.ID
	res.Status = model.StatusConfirmed
	res.AvailableSeats = &available
	logger.Info("booking confirmed", zap.Int("available_seats", available))
	return res, nil
}

// Submit records a pending booking and enqueues a reservation intent for
// it.  It fails only when the booking cannot be stored or the intent cannot
// be enqueued; in the latter case the booking is marked failed so that it
// does not stay pending forever.
func (s *BookingService) Submit(ctx context.Context, classID, name, contact string) (BookingResult, error) {
	nb, err := s.newBooking(classID, name, contact)
	if err != nil {
		return BookingResult{ClassID: classID, Status: model.StatusFailed, Error: err.Error()}, err
	}

	ctx, span := s.tracer.Start(ctx, "booking.submit", trace.WithAttributes(
		attribute.String("class.id", nb.ClassID),
		attribute.String("booking.id", nb.ID)))
	defer span.End()

	logger := s.logger.With(zap.String("class_id", nb.ClassID), zap.String("booking_id", nb.ID))

	err = s.call(ctx, func(ctx context.Context) error {
		_, err := s.store.CreatePending(ctx, nb)
		return err
	})
	if err != nil {
		err = asStorage(err)
		recordErr(span, err)
		return BookingResult{ClassID: nb.ClassID, Status: model.StatusFailed, Error: "booking could not be saved"},
			fmt.Errorf("create pending booking: %w", err)
	}

	intent := queue.ReservationIntent{BookingID: nb.ID, ClassID: nb.ClassID, RequestedAt: s.now()}
	err = s.call(ctx, func(ctx context.Context) error {
		return s.publisher.Publish(ctx, intent)
	})
	if err != nil {
		detail := "enqueue failed: " + err.Error()
		logger.Error("enqueueing reservation intent failed", zap.Error(err))
		ctx := context.WithoutCancel(ctx)
		if terr := s.call(ctx, func(ctx context.Context) error {
			return s.store.Transition(ctx, nb.ID, model.StatusFailed, detail)
		}); terr != nil {
			logger.Error("booking left pending after enqueue failure", zap.Error(terr))
		}
		err = fmt.Errorf("enqueue reservation intent: %w: %w", repository.ErrUpstreamUnavailable, err)
		recordErr(span, err)
		return BookingResult{BookingID: nb.ID, ClassID: nb.ClassID, Status: model.StatusFailed, Error: "booking could not be queued"}, err
	}

	logger.Info("booking submitted")
	return BookingResult{BookingID: nb.ID, ClassID: nb.ClassID, Status: model.StatusPending}, nil
}

// Settle processes one reservation intent.  It is safe to call any number
// of times for the same intent: a settled booking is left alone, the seat
// reservation is keyed by booking id, and the store accepts only one
// transition out of pending.  The returned error is informational; the
// intent is finished either way and must be acknowledged.
func (s *BookingService) Settle(ctx context.Context, in queue.ReservationIntent) (err error) {
	ctx, span := s.tracer.Start(ctx, "booking.settle", trace.WithAttributes(
		attribute.String("class.id", in.ClassID),
		attribute.String("booking.id", in.BookingID)))
	defer span.End()

	logger := s.logger.With(zap.String("class_id", in.ClassID), zap.String("booking_id", in.BookingID))
	classID := in.ClassID

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("settlement panic: %v", r)
			logger.Error("settlement panicked; failing booking", zap.Any("panic", r))
			cerr := s.compensate(ctx, logger, classID, in.BookingID)
			s.fail(ctx, logger, classID, in.BookingID, "worker error: "+err.Error(), cerr == nil)
		}
		recordErr(span, err)
	}()

	var (
		b          *model.Booking
		unverified bool
	)
	err = s.call(ctx, func(ctx context.Context) error {
		var err error
		b, err = s.store.Get(ctx, in.BookingID)
		return err
	})
	switch {
	case errors.Is(err, repository.ErrBookingNotFound):
		logger.Warn("reservation intent for unknown booking; dropping")
		return err
	case err != nil:
		// The keyed reservation and the guarded transition keep the steps
		// below correct without a fresh read.  The booking may already be
		// confirmed, so its seat is never released on a confirm failure.
		logger.Warn("loading booking failed; settling anyway", zap.Error(err))
		unverified = true
	case b.Status.IsTerminal():
		logger.Info("booking already settled; ignoring redelivery", zap.String("status", string(b.Status)))
		return nil
	default:
		classID = b.ClassID
	}

	var available int
	err = s.call(ctx, func(ctx context.Context) error {
		var err error
		available, err = s.ledger.ReserveFor(ctx, classID, in.BookingID, 1)
		return err
	})
	if err != nil {
		released := true
		if !isRejection(err) {
			if cerr := s.compensate(ctx, logger, classID, in.BookingID); cerr != nil {
				released = false
			}
		}
		logger.Info("seat reservation failed", zap.Error(err))
		s.fail(ctx, logger, classID, in.BookingID, "reserve failed: "+reason(err), released)
		return fmt.Errorf("reserve seat: %w", err)
	}

	err = s.call(ctx, func(ctx context.Context) error {
		return s.store.Transition(ctx, in.BookingID, model.StatusConfirmed, "")
	})
	if err == nil {
		logger.Info("booking confirmed", zap.Int("available_seats", available))
		if s.changed != nil {
			s.changed(ctx, classID)
		}
		return nil
	}
	if s.isConfirmed(ctx, in.BookingID) {
		// Either a concurrent delivery confirmed it or the write landed
		// despite the error; the seat belongs to the booking.
		logger.Info("booking already confirmed", zap.NamedError("transition_error", err))
		return nil
	}
	if errors.Is(err, repository.ErrAlreadyTerminal) {
		logger.Info("booking failed concurrently; releasing seat")
		if cerr := s.compensate(ctx, logger, classID, in.BookingID); cerr != nil {
			return s.inconsistent(logger, model.NewBooking{ID: in.BookingID, ClassID: classID}, err, cerr)
		}
		return nil
	}

	if unverified {
		logger.Error("confirming unverified booking failed; seat left held for reconciliation",
			zap.Bool("inconsistent_state", true), zap.Error(err))
		return fmt.Errorf("confirm booking: %w", err)
	}

	logger.Warn("confirming booking failed; releasing seat", zap.Error(err))
	cerr := s.compensate(ctx, logger, classID, in.BookingID)
	s.fail(ctx, logger, classID, in.BookingID, "confirm failed: "+err.Error(), cerr == nil)
	if cerr != nil {
		return s.inconsistent(logger, model.NewBooking{ID: in.BookingID, ClassID: classID}, err, cerr)
	}
	return fmt.Errorf("confirm booking: %w", err)
}

// GetBookingStatus returns the booking for polling.
func (s *BookingService) GetBookingStatus(ctx context.Context, id string) (*model.Booking, error) {
	var b *model.Booking
	err := s.call(ctx, func(ctx context.Context) error {
		var err error
		b, err = s.store.Get(ctx, id)
		return err
	})
	return b, err
}

// ListBookings returns bookings newest first, optionally for one class.
func (s *BookingService) ListBookings(ctx context.Context, classID string) ([]model.Booking, error) {
	var out []model.Booking
	err := s.call(ctx, func(ctx context.Context) error {
		var err error
		out, err = s.store.List(ctx, classID)
		return err
	})
	return out, err
}

// fail records a failed settlement.  When the store reports the booking as
// already confirmed and its seat was just released, the seat is taken back
// so the confirmed booking keeps it.
func (s *BookingService) fail(ctx context.Context, logger *zap.Logger, classID, bookingID, detail string, released bool) {
	err := s.call(ctx, func(ctx context.Context) error {
		return s.store.Transition(ctx, bookingID, model.StatusFailed, detail)
	})
	switch {
	case err == nil:
		logger.Info("booking failed", zap.String("error_detail", detail))
	case errors.Is(err, repository.ErrAlreadyTerminal):
		if released && s.isConfirmed(ctx, bookingID) {
			if rerr := s.call(ctx, func(ctx context.Context) error {
				_, err := s.ledger.ReserveFor(ctx, classID, bookingID, 1)
				return err
			}); rerr != nil {
				logger.Error("confirmed booking lost its seat",
					zap.Bool("inconsistent_state", true), zap.Error(rerr))
			}
		}
	default:
		logger.Error("recording failed booking failed; booking stays pending", zap.Error(err))
	}
}

// compensate releases the seat held for bookingID.  It is best effort: the
// failure is logged and returned, never retried here.
func (s *BookingService) compensate(ctx context.Context, logger *zap.Logger, classID, bookingID string) error {
	var available int
	err := s.call(ctx, func(ctx context.Context) error {
		var err error
		available, err = s.ledger.ReleaseFor(ctx, classID, bookingID)
		return err
	})
	if err != nil {
		logger.Error("releasing seat failed", zap.Error(err))
		return err
	}
	logger.Info("seat released", zap.Int("available_seats", available))
	return nil
}

func (s *BookingService) inconsistent(logger *zap.Logger, nb model.NewBooking, cause, cerr error) error {
	logger.Error("compensation failed; seat may remain held",
		zap.Bool("inconsistent_state", true),
		zap.NamedError("cause", cause),
		zap.NamedError("compensation_error", cerr))
	return &InconsistentStateError{BookingID: nb.ID, ClassID: nb.ClassID, Cause: cause, CompensationErr: cerr}
}

func (s *BookingService) isConfirmed(ctx context.Context, bookingID string) bool {
	b, err := s.GetBookingStatus(ctx, bookingID)
	return err == nil && b.Status == model.StatusConfirmed
}

// call runs fn under the per-call timeout.  A missed deadline is reported
// as ErrUpstreamUnavailable: the collaborator's outcome is unknown.
func (s *BookingService) call(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	err := fn(ctx)
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, repository.ErrUpstreamUnavailable) {
		return fmt.Errorf("%w: %w", repository.ErrUpstreamUnavailable, err)
	}
	return err
}

func (s *BookingService) newBooking(classID, name, contact string) (model.NewBooking, error) {
	nb := model.NewBooking{
		ID:      s.newID(),
		ClassID: strings.TrimSpace(classID),
		Name:    strings.TrimSpace(name),
		Contact: strings.TrimSpace(contact),
	}
	switch {
	case nb.ClassID == "":
		return nb, fmt.Errorf("%w: class_id is required", ErrInvalidRequest)
	case nb.Name == "" || len(nb.Name) > 200:
		return nb, fmt.Errorf("%w: name must be 1-200 characters", ErrInvalidRequest)
	case len(nb.Contact) < 3 || len(nb.Contact) > 320:
		return nb, fmt.Errorf("%w: email must be 3-320 characters", ErrInvalidRequest)
	}
	return nb, nil
}

// isRejection reports a definite negative answer from the ledger: nothing
// was reserved.
func isRejection(err error) bool {
	return errors.Is(err, repository.ErrInsufficientCapacity) ||
		errors.Is(err, repository.ErrClassNotFound) ||
		errors.Is(err, repository.ErrInvalidSeats)
}

func unknownOutcome(err error) bool {
	return !isRejection(err)
}

func asStorage(err error) error {
	if errors.Is(err, repository.ErrStorageFailure) || errors.Is(err, repository.ErrUpstreamUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %w", repository.ErrStorageFailure, err)
}

func reason(err error) string {
	switch {
	case errors.Is(err, repository.ErrInsufficientCapacity):
		return "not enough seats"
	case errors.Is(err, repository.ErrClassNotFound):
		return "class not found"
	case errors.Is(err, repository.ErrUpstreamUnavailable):
		return "seat ledger unavailable"
	default:
		return err.Error()
	}
}

func recordErr(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
