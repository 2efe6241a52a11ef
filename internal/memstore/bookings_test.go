package memstore_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/class-seat-booking/internal/memstore"
	"github.com/iliyamo/class-seat-booking/internal/model"
	"github.com/iliyamo/class-seat-booking/internal/repository"
)

func TestBookingStore_TransitionsOnce(t *testing.T) {
	ctx := context.Background()
	s := memstore.NewBookingStore()

	id, err := s.CreatePending(ctx, model.NewBooking{ClassID: "c1", Name: "Ada", Contact: "ada@example.com"})
	require.NoError(t, err)

	b, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, b.Status)
	assert.Nil(t, b.ErrorDetail)

	require.NoError(t, s.Transition(ctx, id, model.StatusConfirmed, ""))

	err = s.Transition(ctx, id, model.StatusFailed, "late failure")
	assert.ErrorIs(t, err, repository.ErrAlreadyTerminal)

	b, err = s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.StatusConfirmed, b.Status)
	assert.Nil(t, b.ErrorDetail)
}

func TestBookingStore_FailedCarriesDetail(t *testing.T) {
	ctx := context.Background()
	s := memstore.NewBookingStore()

	id, err := s.CreatePending(ctx, model.NewBooking{ClassID: "c1"})
	require.NoError(t, err)
	require.NoError(t, s.Transition(ctx, id, model.StatusFailed, "not enough seats"))

	b, err := s.Get(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, b.ErrorDetail)
	assert.Equal(t, "not enough seats", *b.ErrorDetail)
}

func TestBookingStore_Errors(t *testing.T) {
	ctx := context.Background()
	s := memstore.NewBookingStore()

	_, err := s.Get(ctx, "missing")
	assert.ErrorIs(t, err, repository.ErrBookingNotFound)

	assert.ErrorIs(t, s.Transition(ctx, "missing", model.StatusConfirmed, ""), repository.ErrBookingNotFound)

	id, err := s.CreatePending(ctx, model.NewBooking{ClassID: "c1"})
	require.NoError(t, err)
	assert.ErrorIs(t, s.Transition(ctx, id, model.StatusPending, ""), repository.ErrInvalidStatus)

	_, err = s.CreateTerminal(ctx, model.NewBooking{ClassID: "c1"}, model.StatusPending, "")
	assert.ErrorIs(t, err, repository.ErrInvalidStatus)
}

func TestBookingStore_CreateTerminalKeepsGivenID(t *testing.T) {
	ctx := context.Background()
	s := memstore.NewBookingStore()

	id, err := s.CreateTerminal(ctx, model.NewBooking{ID: "b-1", ClassID: "c1"}, model.StatusConfirmed, "ignored")
	require.NoError(t, err)
	assert.Equal(t, "b-1", id)

	b, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.StatusConfirmed, b.Status)
	assert.Nil(t, b.ErrorDetail)

	_, err = s.CreateTerminal(ctx, model.NewBooking{ID: "b-1", ClassID: "c1"}, model.StatusConfirmed, "")
	assert.ErrorIs(t, err, repository.ErrStorageFailure)
}

func TestBookingStore_ListNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := memstore.NewBookingStore()

	first, err := s.CreatePending(ctx, model.NewBooking{ClassID: "a"})
	require.NoError(t, err)
	second, err := s.CreatePending(ctx, model.NewBooking{ClassID: "b"})
	require.NoError(t, err)
	third, err := s.CreatePending(ctx, model.NewBooking{ClassID: "a"})
	require.NoError(t, err)

	all, err := s.List(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{third, second, first}, []string{all[0].ID, all[1].ID, all[2].ID})

	onlyA, err := s.List(ctx, "a")
	require.NoError(t, err)
	require.Len(t, onlyA, 2)
	assert.Equal(t, third, onlyA[0].ID)
	assert.Equal(t, first, onlyA[1].ID)

	none, err := s.List(ctx, "zzz")
	require.NoError(t, err)
	assert.Empty(t, none)
}
