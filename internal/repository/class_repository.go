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

// ClassRepo is the MySQL seat ledger.  It owns the classes table and the
// per-booking seat_reservations table.  Every mutation of available_seats is
// a single conditional UPDATE executed inside a transaction, so concurrent
// callers on the same class observe one linearizable history and no caller
// ever reads a count and writes it back.
type ClassRepo struct {
	db *sqlx.DB
}

// NewClassRepo returns a ClassRepo bound to the given database.
func NewClassRepo(db *sqlx.DB) *ClassRepo { return &ClassRepo{db: db} }

const classColumns = `id, title, instructor, starts_at, capacity, available_seats, created_at`

// Create inserts a new class with all seats available.  A missing ID is
// generated.  The populated record is written back into c.
func (r *ClassRepo) Create(ctx context.Context, c *model.Class) error {
	if c.Capacity < 1 {
		return ErrInvalidCapacity
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	c.AvailableSeats = c.Capacity
	c.StartsAt = c.StartsAt.UTC()
	c.CreatedAt = time.Now().UTC().Truncate(time.Second)
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO classes (id, title, instructor, starts_at, capacity, available_seats, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Title, c.Instructor, c.StartsAt, c.Capacity, c.AvailableSeats, c.CreatedAt)
	if err != nil {
		return storageErr("insert class", err)
	}
	return nil
}

// Get returns a class by id or ErrClassNotFound.
func (r *ClassRepo) Get(ctx context.Context, id string) (*model.Class, error) {
	var c model.Class
	err := r.db.GetContext(ctx, &c, `SELECT `+classColumns+` FROM classes WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrClassNotFound
	}
	if err != nil {
		return nil, storageErr("select class", err)
	}
	return &c, nil
}

// List returns all classes ordered by start time.
func (r *ClassRepo) List(ctx context.Context) ([]model.Class, error) {
	classes := []model.Class{}
	if err := r.db.SelectContext(ctx, &classes,
		`SELECT `+classColumns+` FROM classes ORDER BY starts_at, id`); err != nil {
		return nil, storageErr("select classes", err)
	}
	return classes, nil
}

// Reserve atomically takes seats from the class and returns the new
// available count.  The check and the decrement are one UPDATE statement;
// when it matches no row the class is either unknown or full, and nothing
// has been consumed.
func (r *ClassRepo) Reserve(ctx context.Context, classID string, seats int) (int, error) {
	if seats < 1 {
		return 0, ErrInvalidSeats
	}
	var available int
	err := withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		if err := decrement(ctx, tx, classID, seats); err != nil {
			return err
		}
		var err error
		available, err = currentAvailable(ctx, tx, classID)
		return err
	})
	return available, err
}

// Release gives seats back to the class and returns the new available
// count.  The count never exceeds capacity, so a duplicated release cannot
// over-credit the class.
func (r *ClassRepo) Release(ctx context.Context, classID string, seats int) (int, error) {
	if seats < 1 {
		return 0, ErrInvalidSeats
	}
	var available int
	err := withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		if err := increment(ctx, tx, classID, seats); err != nil {
			return err
		}
		var err error
		available, err = currentAvailable(ctx, tx, classID)
		return err
	})
	return available, err
}

// ReserveFor reserves seats on behalf of a booking.  The class row is
// locked first; if a reservation for bookingID already exists the call is
// a no-op that returns the current count, which makes redelivered or
// retried reservations safe.  Otherwise the seats are taken with the same
// conditional UPDATE as Reserve and the reservation is recorded in the same
// transaction.
func (r *ClassRepo) ReserveFor(ctx context.Context, classID, bookingID string, seats int) (int, error) {
	if seats < 1 {
		return 0, ErrInvalidSeats
	}
	var available int
	err := withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		var err error
		available, err = lockClass(ctx, tx, classID)
		if err != nil {
			return err
		}
		var held int
		if err := tx.GetContext(ctx, &held,
			`SELECT COUNT(*) FROM seat_reservations WHERE booking_id = ?`, bookingID); err != nil {
			return storageErr("select seat reservation", err)
		}
		if held > 0 {
			return nil
		}
		if err := decrement(ctx, tx, classID, seats); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO seat_reservations (booking_id, class_id, seats) VALUES (?, ?, ?)`,
			bookingID, classID, seats); err != nil {
			return storageErr("insert seat reservation", err)
		}
		available -= seats
		return nil
	})
	return available, err
}

// ReleaseFor returns exactly the seats held for bookingID and forgets the
// reservation.  When no reservation exists (never made, or already
// released) nothing changes and the current count is returned.
func (r *ClassRepo) ReleaseFor(ctx context.Context, classID, bookingID string) (int, error) {
	var available int
	err := withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		var err error
		available, err = lockClass(ctx, tx, classID)
		if err != nil {
			return err
		}
		var seats int
		err = tx.GetContext(ctx, &seats,
			`SELECT seats FROM seat_reservations WHERE booking_id = ? AND class_id = ? FOR UPDATE`,
			bookingID, classID)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return storageErr("select seat reservation", err)
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM seat_reservations WHERE booking_id = ?`, bookingID); err != nil {
			return storageErr("delete seat reservation", err)
		}
		if err := increment(ctx, tx, classID, seats); err != nil {
			return err
		}
		available, err = currentAvailable(ctx, tx, classID)
		return err
	})
	return available, err
}

func decrement(ctx context.Context, tx *sqlx.Tx, classID string, seats int) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE classes SET available_seats = available_seats - ? WHERE id = ? AND available_seats >= ?`,
		seats, classID, seats)
	if err != nil {
		return storageErr("decrement seats", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return storageErr("decrement seats", err)
	}
	if n > 0 {
		return nil
	}
	var exists int
	if err := tx.GetContext(ctx, &exists, `SELECT COUNT(*) FROM classes WHERE id = ?`, classID); err != nil {
		return storageErr("select class", err)
	}
	if exists == 0 {
		return ErrClassNotFound
	}
	return ErrInsufficientCapacity
}

func increment(ctx context.Context, tx *sqlx.Tx, classID string, seats int) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE classes SET available_seats = LEAST(capacity, available_seats + ?) WHERE id = ?`,
		seats, classID)
	if err != nil {
		return storageErr("increment seats", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return storageErr("increment seats", err)
	}
	if n == 0 {
		return ErrClassNotFound
	}
	return nil
}

func lockClass(ctx context.Context, tx *sqlx.Tx, classID string) (int, error) {
	var available int
	err := tx.GetContext(ctx, &available,
		`SELECT available_seats FROM classes WHERE id = ? FOR UPDATE`, classID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrClassNotFound
	}
	if err != nil {
		return 0, storageErr("lock class", err)
	}
	return available, nil
}

func currentAvailable(ctx context.Context, tx *sqlx.Tx, classID string) (int, error) {
	var available int
	if err := tx.GetContext(ctx, &available,
		`SELECT available_seats FROM classes WHERE id = ?`, classID); err != nil {
		return 0, storageErr("select available seats", err)
	}
	return available, nil
}
