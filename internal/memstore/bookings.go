package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/class-seat-booking/internal/model"
	"github.com/iliyamo/class-seat-booking/internal/repository"
)

// BookingStore keeps bookings in insertion order.
type BookingStore struct {
	mu    sync.Mutex
	byID  map[string]*model.Booking
	order []string
	now   func() time.Time
}

// NewBookingStore returns an empty store.
func NewBookingStore() *BookingStore {
	return &BookingStore{
		byID: make(map[string]*model.Booking),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// CreatePending stores a pending booking.
func (s *BookingStore) CreatePending(_ context.Context, nb model.NewBooking) (string, error) {
	return s.insert(nb, model.StatusPending, nil)
}

// CreateTerminal stores a booking that is already confirmed or failed.
func (s *BookingStore) CreateTerminal(_ context.Context, nb model.NewBooking, status model.BookingStatus, errorDetail string) (string, error) {
	if !status.IsTerminal() {
		return "", repository.ErrInvalidStatus
	}
	return s.insert(nb, status, detail(status, errorDetail))
}

func (s *BookingStore) insert(nb model.NewBooking, status model.BookingStatus, errDetail *string) (string, error) {
	id := nb.ID
	if id == "" {
		id = uuid.NewString()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.byID[id]; dup {
		return "", repository.ErrStorageFailure
	}
	s.byID[id] = &model.Booking{
		ID:          id,
		ClassID:     nb.ClassID,
		Name:        nb.Name,
		Contact:     nb.Contact,
		Status:      status,
		ErrorDetail: errDetail,
		CreatedAt:   s.now(),
	}
	s.order = append(s.order, id)
	return id, nil
}

// Transition moves a pending booking to a terminal status exactly once.
func (s *BookingStore) Transition(_ context.Context, id string, status model.BookingStatus, errorDetail string) error {
	if !status.IsTerminal() {
		return repository.ErrInvalidStatus
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.byID[id]
	if !ok {
		return repository.ErrBookingNotFound
	}
	if b.Status.IsTerminal() {
		return repository.ErrAlreadyTerminal
	}
	b.Status = status
	b.ErrorDetail = detail(status, errorDetail)
	return nil
}

// Get returns a copy of the booking.
func (s *BookingStore) Get(_ context.Context, id string) (*model.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.byID[id]
	if !ok {
		return nil, repository.ErrBookingNotFound
	}
	out := *b
	return &out, nil
}

// List returns copies newest first, optionally filtered by class.
func (s *BookingStore) List(_ context.Context, classID string) ([]model.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []model.Booking{}
	for i := len(s.order) - 1; i >= 0; i-- {
		b := s.byID[s.order[i]]
		if classID != "" && b.ClassID != classID {
			continue
		}
		out = append(out, *b)
	}
	return out, nil
}

func detail(status model.BookingStatus, errorDetail string) *string {
	if status != model.StatusFailed {
		return nil
	}
	if errorDetail == "" {
		errorDetail = "booking failed"
	}
	return &errorDetail
}
