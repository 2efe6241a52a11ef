// Package queue carries reservation intents from the submission path to the
// settlement workers over RabbitMQ.
package queue

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// DefaultQueueName is the durable queue reservation intents are sent to.
const DefaultQueueName = "booking_requests"

// ReservationIntent asks a settlement worker to reserve one seat in ClassID
// for the pending booking BookingID.  It may be delivered more than once.
type ReservationIntent struct {
	BookingID   string    `json:"booking_id"`
	ClassID     string    `json:"class_id"`
	RequestedAt time.Time `json:"requested_at"`
}

var errMalformedIntent = errors.New("malformed reservation intent")

// DecodeIntent parses a message body and rejects intents without ids.
func DecodeIntent(body []byte) (ReservationIntent, error) {
	var in ReservationIntent
	if err := json.Unmarshal(body, &in); err != nil {
		return ReservationIntent{}, fmt.Errorf("%w: %v", errMalformedIntent, err)
	}
	if in.BookingID == "" || in.ClassID == "" {
		return ReservationIntent{}, fmt.Errorf("%w: booking_id and class_id are required", errMalformedIntent)
	}
	return in, nil
}
