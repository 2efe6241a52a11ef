package model

import "time"

// Class is a scheduled session with a fixed number of seats.  It combines
// the class metadata owned by the class collaborator (title, instructor,
// start time) with the seat ledger columns.
//
// Fields:
//
//	ID             – opaque unique identifier (UUID string).
//	Title          – display title of the class.
//	Instructor     – name of the instructor leading the class.
//	StartsAt       – UTC start time.
//	Capacity       – total seats; positive and immutable after creation.
//	AvailableSeats – seats still free; always within [0, Capacity].
//	CreatedAt      – timestamp when the class was created.
type Class struct {
	ID             string    `db:"id" json:"id"`                           // classes.id
	Title          string    `db:"title" json:"title"`                     // classes.title
	Instructor     string    `db:"instructor" json:"instructor"`           // classes.instructor
	StartsAt       time.Time `db:"starts_at" json:"start_time"`            // classes.starts_at
	Capacity       int       `db:"capacity" json:"capacity"`               // classes.capacity
	AvailableSeats int       `db:"available_seats" json:"available_seats"` // classes.available_seats
	CreatedAt      time.Time `db:"created_at" json:"created_at"`           // classes.created_at
}
