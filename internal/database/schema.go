package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// statements are applied in order and are idempotent.
var statements = []string{
	`CREATE TABLE IF NOT EXISTS classes (
		id CHAR(36) NOT NULL PRIMARY KEY,
		title VARCHAR(200) NOT NULL,
		instructor VARCHAR(200) NOT NULL,
		starts_at DATETIME NOT NULL,
		capacity INT NOT NULL,
		available_seats INT NOT NULL,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		CONSTRAINT chk_classes_capacity CHECK (capacity >= 1),
		CONSTRAINT chk_classes_available CHECK (available_seats >= 0 AND available_seats <= capacity)
	) ENGINE=InnoDB`,
	`CREATE TABLE IF NOT EXISTS seat_reservations (
		booking_id CHAR(36) NOT NULL PRIMARY KEY,
		class_id CHAR(36) NOT NULL,
		seats INT NOT NULL,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		KEY idx_seat_reservations_class (class_id),
		CONSTRAINT fk_seat_reservations_class FOREIGN KEY (class_id) REFERENCES classes(id)
	) ENGINE=InnoDB`,
	`CREATE TABLE IF NOT EXISTS bookings (
		id CHAR(36) NOT NULL PRIMARY KEY,
		class_id CHAR(36) NOT NULL,
		name VARCHAR(200) NOT NULL,
		contact VARCHAR(320) NOT NULL,
		status ENUM('pending','confirmed','failed') NOT NULL,
		error_detail TEXT NULL,
		created_at DATETIME(6) NOT NULL,
		KEY idx_bookings_class_created (class_id, created_at)
	) ENGINE=InnoDB`,
}

// EnsureSchema creates the classes, seat_reservations and bookings tables
// when they do not exist yet.
func EnsureSchema(ctx context.Context, db *sqlx.DB) error {
	for i, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("applying schema statement %d: %w", i, err)
		}
	}
	return nil
}
