package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/iliyamo/class-seat-booking/internal/model"
)

// BookingRepo is the MySQL booking store.  A booking row is inserted once
// and updated at most once, from pending to a terminal status; the update is
// guarded by the current status so a redelivered settlement can never
// overwrite an earlier outcome.
type BookingRepo struct {
	db *sqlx.DB
}

// NewBookingRepo returns a BookingRepo bound to the given database.
func NewBookingRepo(db *sqlx.DB) *BookingRepo { return &BookingRepo{db: db} }

const bookingColumns = `id, class_id, name, contact, status, error_detail, created_at`

// CreatePending inserts a booking in the pending state and returns its id.
func (r *BookingRepo) CreatePending(ctx context.Context, nb model.NewBooking) (string, error) {
	return r.insert(ctx, nb, model.StatusPending, nil)
}

// CreateTerminal inserts a booking that is already confirmed or failed.
// errorDetail is stored only for failed bookings.
func (r *BookingRepo) CreateTerminal(ctx context.Context, nb model.NewBooking, status model.BookingStatus, errorDetail string) (string, error) {
	if !status.IsTerminal() {
		return "", ErrInvalidStatus
	}
	return r.insert(ctx, nb, status, detailFor(status, errorDetail))
}

func (r *BookingRepo) insert(ctx context.Context, nb model.NewBooking, status model.BookingStatus, detail *string) (string, error) {
	id := nb.ID
	if id == "" {
		id = uuid.NewString()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO bookings (id, class_id, name, contact, status, error_detail, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, nb.ClassID, nb.Name, nb.Contact, status, detail, time.Now().UTC())
	if err != nil {
		return "", storageErr("insert booking", err)
	}
	return id, nil
}

// Transition moves a pending booking to status.  It returns
// ErrBookingNotFound for an unknown id and ErrAlreadyTerminal when the
// booking has already been settled; the stored outcome is left untouched
// in both cases.
func (r *BookingRepo) Transition(ctx context.Context, id string, status model.BookingStatus, errorDetail string) error {
	if !status.IsTerminal() {
		return ErrInvalidStatus
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE bookings SET status = ?, error_detail = ? WHERE id = ? AND status = ?`,
		status, detailFor(status, errorDetail), id, model.StatusPending)
	if err != nil {
		return storageErr("update booking status", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return storageErr("update booking status", err)
	}
	if n > 0 {
		return nil
	}
	var current model.BookingStatus
	err = r.db.GetContext(ctx, &current, `SELECT status FROM bookings WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrBookingNotFound
	}
	if err != nil {
		return storageErr("select booking status", err)
	}
	return ErrAlreadyTerminal
}

// Get returns a booking by id or ErrBookingNotFound.
func (r *BookingRepo) Get(ctx context.Context, id string) (*model.Booking, error) {
	var b model.Booking
	err := r.db.GetContext(ctx, &b, `SELECT `+bookingColumns+` FROM bookings WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrBookingNotFound
	}
	if err != nil {
		return nil, storageErr("select booking", err)
	}
	return &b, nil
}

// List returns bookings newest first, optionally restricted to one class.
// Each call runs a fresh query; there is no cursor to resume.
func (r *BookingRepo) List(ctx context.Context, classID string) ([]model.Booking, error) {
	bookings := []model.Booking{}
	var err error
	if classID != "" {
		err = r.db.SelectContext(ctx, &bookings,
			`SELECT `+bookingColumns+` FROM bookings WHERE class_id = ? ORDER BY created_at DESC, id DESC`,
			classID)
	} else {
		err = r.db.SelectContext(ctx, &bookings,
			`SELECT `+bookingColumns+` FROM bookings ORDER BY created_at DESC, id DESC`)
	}
	if err != nil {
		return nil, storageErr("select bookings", err)
	}
	return bookings, nil
}

func detailFor(status model.BookingStatus, errorDetail string) *string {
	if status != model.StatusFailed {
		return nil
	}
	if errorDetail == "" {
		errorDetail = "booking failed"
	}
	return &errorDetail
}
