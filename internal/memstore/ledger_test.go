package memstore_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/class-seat-booking/internal/memstore"
	"github.com/iliyamo/class-seat-booking/internal/model"
	"github.com/iliyamo/class-seat-booking/internal/repository"
)

func newClass(t *testing.T, l *memstore.Ledger, capacity int) *model.Class {
	t.Helper()
	c := &model.Class{
		Title:      "Vinyasa Flow",
		Instructor: "Sam",
		StartsAt:   time.Now().Add(24 * time.Hour),
		Capacity:   capacity,
	}
	require.NoError(t, l.Create(context.Background(), c))
	return c
}

func TestLedger_ConcurrentReserveNeverOversells(t *testing.T) {
	ctx := context.Background()
	l := memstore.NewLedger()
	c := newClass(t, l, 7)

	var successes atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := l.Reserve(ctx, c.ID, 1); err == nil {
				successes.Add(1)
			} else {
				assert.ErrorIs(t, err, repository.ErrInsufficientCapacity)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 7, successes.Load())
	got, err := l.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.AvailableSeats)
}

func TestLedger_ConcurrentReserveForNeverOversells(t *testing.T) {
	ctx := context.Background()
	l := memstore.NewLedger()
	c := newClass(t, l, 3)

	var successes atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := l.ReserveFor(ctx, c.ID, uuid.NewString(), 1); err == nil {
				successes.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 3, successes.Load())
}

func TestLedger_ReserveThenReleaseRestoresCount(t *testing.T) {
	ctx := context.Background()
	l := memstore.NewLedger()
	c := newClass(t, l, 10)

	_, err := l.Reserve(ctx, c.ID, 4)
	require.NoError(t, err)

	before, err := l.Get(ctx, c.ID)
	require.NoError(t, err)

	after, err := l.Reserve(ctx, c.ID, 3)
	require.NoError(t, err)
	assert.Equal(t, before.AvailableSeats-3, after)

	restored, err := l.Release(ctx, c.ID, 3)
	require.NoError(t, err)
	assert.Equal(t, before.AvailableSeats, restored)
}

func TestLedger_ReserveErrors(t *testing.T) {
	ctx := context.Background()
	l := memstore.NewLedger()
	c := newClass(t, l, 2)

	_, err := l.Reserve(ctx, c.ID, 3)
	assert.ErrorIs(t, err, repository.ErrInsufficientCapacity)

	_, err = l.Reserve(ctx, "missing", 1)
	assert.ErrorIs(t, err, repository.ErrClassNotFound)

	_, err = l.Reserve(ctx, c.ID, 0)
	assert.ErrorIs(t, err, repository.ErrInvalidSeats)

	_, err = l.Release(ctx, "missing", 1)
	assert.ErrorIs(t, err, repository.ErrClassNotFound)

	got, err := l.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.AvailableSeats, "failed reservations must not consume seats")
}

func TestLedger_ReleaseIsCappedAtCapacity(t *testing.T) {
	ctx := context.Background()
	l := memstore.NewLedger()
	c := newClass(t, l, 2)

	available, err := l.Release(ctx, c.ID, 5)
	require.NoError(t, err)
	assert.Equal(t, 2, available)
}

func TestLedger_KeyedReservationIsIdempotent(t *testing.T) {
	ctx := context.Background()
	l := memstore.NewLedger()
	c := newClass(t, l, 5)
	bookingID := uuid.NewString()

	available, err := l.ReserveFor(ctx, c.ID, bookingID, 1)
	require.NoError(t, err)
	assert.Equal(t, 4, available)

	available, err = l.ReserveFor(ctx, c.ID, bookingID, 1)
	require.NoError(t, err)
	assert.Equal(t, 4, available, "second reservation for the same booking must not decrement")

	available, err = l.ReleaseFor(ctx, c.ID, bookingID)
	require.NoError(t, err)
	assert.Equal(t, 5, available)

	_, err = l.Reserve(ctx, c.ID, 1)
	require.NoError(t, err)

	available, err = l.ReleaseFor(ctx, c.ID, bookingID)
	require.NoError(t, err)
	assert.Equal(t, 4, available, "second release for the same booking must not credit seats")
}

func TestLedger_ListOrderedByStart(t *testing.T) {
	ctx := context.Background()
	l := memstore.NewLedger()
	later := &model.Class{Title: "later", StartsAt: time.Now().Add(2 * time.Hour), Capacity: 1}
	sooner := &model.Class{Title: "sooner", StartsAt: time.Now().Add(time.Hour), Capacity: 1}
	require.NoError(t, l.Create(ctx, later))
	require.NoError(t, l.Create(ctx, sooner))

	classes, err := l.List(ctx)
	require.NoError(t, err)
	require.Len(t, classes, 2)
	assert.Equal(t, "sooner", classes[0].Title)
	assert.Equal(t, "later", classes[1].Title)

	assert.ErrorIs(t, l.Create(ctx, &model.Class{Capacity: 0}), repository.ErrInvalidCapacity)
}
