package ledgerclient_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/class-seat-booking/internal/ledgerclient"
	"github.com/iliyamo/class-seat-booking/internal/repository"
)

func TestClient_ReserveForSendsKeyAndToken(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/classes/c1/reserve", r.URL.Path)
		assert.Equal(t, "Bearer s3cret", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"class_id":"c1","available_seats":4}`))
	}))
	defer srv.Close()

	c := ledgerclient.New(ledgerclient.Config{BaseURL: srv.URL + "/", Token: "s3cret"})
	n, err := c.ReserveFor(context.Background(), "c1", "b1", 1)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, "b1", got["booking_id"])
	assert.EqualValues(t, 1, got["seats"])
}

func TestClient_MapsStatusCodes(t *testing.T) {
	cases := []struct {
		status int
		want   error
	}{
		{http.StatusConflict, repository.ErrInsufficientCapacity},
		{http.StatusNotFound, repository.ErrClassNotFound},
		{http.StatusBadRequest, repository.ErrInvalidSeats},
		{http.StatusBadGateway, repository.ErrUpstreamUnavailable},
		{http.StatusInternalServerError, repository.ErrUpstreamUnavailable},
	}
	for _, tc := range cases {
		t.Run(http.StatusText(tc.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(`{"error":"nope"}`))
			}))
			defer srv.Close()

			c := ledgerclient.New(ledgerclient.Config{BaseURL: srv.URL})
			_, err := c.Reserve(context.Background(), "c1", 1)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestClient_TimeoutIsUpstreamUnavailable(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c := ledgerclient.New(ledgerclient.Config{BaseURL: srv.URL, Timeout: 30 * time.Millisecond})
	_, err := c.ReleaseFor(context.Background(), "c1", "b1")
	assert.ErrorIs(t, err, repository.ErrUpstreamUnavailable)
}

func TestClient_UnreachableIsUpstreamUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := ledgerclient.New(ledgerclient.Config{BaseURL: url})
	_, err := c.Release(context.Background(), "c1", 1)
	assert.ErrorIs(t, err, repository.ErrUpstreamUnavailable)
}

func TestClient_RejectsBadSeatCountLocally(t *testing.T) {
	c := ledgerclient.New(ledgerclient.Config{BaseURL: "http://unused.invalid"})
	_, err := c.Reserve(context.Background(), "c1", 0)
	assert.ErrorIs(t, err, repository.ErrInvalidSeats)
	_, err = c.ReserveFor(context.Background(), "c1", "b1", -1)
	assert.ErrorIs(t, err, repository.ErrInvalidSeats)
}
