// Package memstore provides in-process implementations of the seat ledger
// and the booking store.  They honour the same contracts and sentinel
// errors as the MySQL repositories and back the server when
// STORAGE_DRIVER=memory.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/class-seat-booking/internal/model"
	"github.com/iliyamo/class-seat-booking/internal/repository"
)

type hold struct {
	classID string
	seats   int
}

// Ledger keeps classes and per-booking seat reservations behind one mutex,
// which makes every reserve and release linearizable.
type Ledger struct {
	mu      sync.Mutex
	classes map[string]*model.Class
	holds   map[string]hold // key: booking id
}

// NewLedger returns an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{
		classes: make(map[string]*model.Class),
		holds:   make(map[string]hold),
	}
}

// Create adds a class with every seat available.
func (l *Ledger) Create(_ context.Context, c *model.Class) error {
	if c.Capacity < 1 {
		return repository.ErrInvalidCapacity
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	c.AvailableSeats = c.Capacity
	c.StartsAt = c.StartsAt.UTC()
	c.CreatedAt = time.Now().UTC()

	l.mu.Lock()
	defer l.mu.Unlock()
	stored := *c
	l.classes[c.ID] = &stored
	return nil
}

// Get returns a copy of the class.
func (l *Ledger) Get(_ context.Context, id string) (*model.Class, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	c, ok := l.classes[id]
	if !ok {
		return nil, repository.ErrClassNotFound
	}
	out := *c
	return &out, nil
}

// List returns copies of all classes ordered by start time.
func (l *Ledger) List(_ context.Context) ([]model.Class, error) {
	l.mu.Lock()
	out := make([]model.Class, 0, len(l.classes))
	for _, c := range l.classes {
		out = append(out, *c)
	}
	l.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartsAt.Equal(out[j].StartsAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].StartsAt.Before(out[j].StartsAt)
	})
	return out, nil
}

// Reserve takes seats if at least that many are available.
func (l *Ledger) Reserve(_ context.Context, classID string, seats int) (int, error) {
	if seats < 1 {
		return 0, repository.ErrInvalidSeats
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.take(classID, seats)
}

// Release gives seats back, capped at capacity.
func (l *Ledger) Release(_ context.Context, classID string, seats int) (int, error) {
	if seats < 1 {
		return 0, repository.ErrInvalidSeats
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.give(classID, seats)
}

// ReserveFor takes seats on behalf of bookingID unless that booking already
// holds a reservation, in which case the current count is returned.
func (l *Ledger) ReserveFor(_ context.Context, classID, bookingID string, seats int) (int, error) {
	if seats < 1 {
		return 0, repository.ErrInvalidSeats
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	c, ok := l.classes[classID]
	if !ok {
		return 0, repository.ErrClassNotFound
	}
	if _, held := l.holds[bookingID]; held {
		return c.AvailableSeats, nil
	}
	available, err := l.take(classID, seats)
	if err != nil {
		return 0, err
	}
	l.holds[bookingID] = hold{classID: classID, seats: seats}
	return available, nil
}

// ReleaseFor returns the seats held for bookingID, if any.
func (l *Ledger) ReleaseFor(_ context.Context, classID, bookingID string) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	c, ok := l.classes[classID]
	if !ok {
		return 0, repository.ErrClassNotFound
	}
	h, held := l.holds[bookingID]
	if !held || h.classID != classID {
		return c.AvailableSeats, nil
	}
	delete(l.holds, bookingID)
	return l.give(classID, h.seats)
}

// take and give must be called with l.mu held.
func (l *Ledger) take(classID string, seats int) (int, error) {
	c, ok := l.classes[classID]
	if !ok {
		return 0, repository.ErrClassNotFound
	}
	if c.AvailableSeats < seats {
		return 0, repository.ErrInsufficientCapacity
	}
	c.AvailableSeats -= seats
	return c.AvailableSeats, nil
}

func (l *Ledger) give(classID string, seats int) (int, error) {
	c, ok := l.classes[classID]
	if !ok {
		return 0, repository.ErrClassNotFound
	}
	c.AvailableSeats = min(c.Capacity, c.AvailableSeats+seats)
	return c.AvailableSeats, nil
}
