// Package ledgerclient talks to a seat ledger owned by another instance of
// this service over its class endpoints.  It satisfies the same contract as
// the local ledgers and maps HTTP outcomes onto the repository sentinels.
package ledgerclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/iliyamo/class-seat-booking/internal/repository"
)

// DefaultTimeout is the per-request timeout when Config.Timeout is unset.
const DefaultTimeout = 5 * time.Second

// Config locates the remote ledger.
type Config struct {
	BaseURL string        // e.g. http://classes:8080
	Token   string        // bearer token with SERVICE or ADMIN role
	Timeout time.Duration // per request
}

// Client is a remote seat ledger.
type Client struct {
	base  string
	token string
	http  *http.Client
}

// New returns a Client.  The http.Client carries the timeout so that a
// hung ledger never blocks a caller indefinitely.
func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Client{
		base:  strings.TrimRight(cfg.BaseURL, "/"),
		token: cfg.Token,
		http:  &http.Client{Timeout: cfg.Timeout},
	}
}

type seatsRequest struct {
	Seats     int    `json:"seats,omitempty"`
	BookingID string `json:"booking_id,omitempty"`
}

type seatsResponse struct {
	AvailableSeats int    `json:"available_seats"`
	Error          string `json:"error"`
}

// Reserve takes seats without a booking key.
func (c *Client) Reserve(ctx context.Context, classID string, seats int) (int, error) {
	if seats < 1 {
		return 0, repository.ErrInvalidSeats
	}
	return c.post(ctx, classID, "reserve", seatsRequest{Seats: seats})
}

// Release gives seats back without a booking key.
func (c *Client) Release(ctx context.Context, classID string, seats int) (int, error) {
	if seats < 1 {
		return 0, repository.ErrInvalidSeats
	}
	return c.post(ctx, classID, "release", seatsRequest{Seats: seats})
}

// ReserveFor takes seats on behalf of bookingID; repeating it is a no-op.
func (c *Client) ReserveFor(ctx context.Context, classID, bookingID string, seats int) (int, error) {
	if seats < 1 {
		return 0, repository.ErrInvalidSeats
	}
	return c.post(ctx, classID, "reserve", seatsRequest{Seats: seats, BookingID: bookingID})
}

// ReleaseFor returns whatever bookingID holds; repeating it is a no-op.
func (c *Client) ReleaseFor(ctx context.Context, classID, bookingID string) (int, error) {
	return c.post(ctx, classID, "release", seatsRequest{BookingID: bookingID})
}

func (c *Client) post(ctx context.Context, classID, action string, body seatsRequest) (int, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return 0, err
	}
	endpoint := fmt.Sprintf("%s/v1/classes/%s/%s", c.base, url.PathEscape(classID), action)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.http.Do(req)
	if err != nil {
		// Timeouts and refused connections alike: the outcome is unknown.
		return 0, fmt.Errorf("%w: %s %s: %w", repository.ErrUpstreamUnavailable, action, classID, err)
	}
	defer resp.Body.Close()

	var out seatsResponse
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return 0, fmt.Errorf("%w: read %s response: %w", repository.ErrUpstreamUnavailable, action, err)
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &out); err != nil && resp.StatusCode < 300 {
			return 0, fmt.Errorf("%w: decode %s response: %w", repository.ErrUpstreamUnavailable, action, err)
		}
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return out.AvailableSeats, nil
	case resp.StatusCode == http.StatusConflict:
		return 0, repository.ErrInsufficientCapacity
	case resp.StatusCode == http.StatusNotFound:
		return 0, repository.ErrClassNotFound
	case resp.StatusCode == http.StatusBadRequest:
		return 0, fmt.Errorf("%w: %s", repository.ErrInvalidSeats, out.Error)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return 0, errors.New("ledger rejected credentials: " + resp.Status)
	default:
		return 0, fmt.Errorf("%w: ledger answered %s", repository.ErrUpstreamUnavailable, resp.Status)
	}
}
