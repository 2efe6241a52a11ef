package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// ErrNotConfirmed is returned when the broker negatively acknowledges a
// published intent.  The intent must be treated as not enqueued.
var ErrNotConfirmed = errors.New("broker did not confirm reservation intent")

// Publisher sends reservation intents to a durable queue.  The channel runs
// in confirm mode and Publish returns only once the broker has taken
// responsibility for the message, so an acknowledged intent survives a
// broker restart.  The connection is dialled lazily and re-dialled after
// any failure.
type Publisher struct {
	url    string
	queue  string
	logger *zap.Logger

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

// NewPublisher returns a Publisher for queueName on the broker at url.  No
// connection is made until the first Publish.
func NewPublisher(url, queueName string, logger *zap.Logger) *Publisher {
	if queueName == "" {
		queueName = DefaultQueueName
	}
	return &Publisher{url: url, queue: queueName, logger: logger}
}

// Publish enqueues the intent as a persistent JSON message and waits for
// the broker confirmation or for ctx to expire.
func (p *Publisher) Publish(ctx context.Context, in ReservationIntent) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal reservation intent: %w", err)
	}

	headers := amqp.Table{}
	injectTrace(ctx, headers)

	p.mu.Lock()
	defer p.mu.Unlock()

	ch, err := p.channel()
	if err != nil {
		return err
	}

	dc, err := ch.PublishWithDeferredConfirmWithContext(ctx,
		"",      // default exchange
		p.queue, // routing key = queue name
		false,   // mandatory
		false,   // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent, // store on disk
			MessageId:    in.BookingID,
			Timestamp:    time.Now().UTC(),
			Headers:      headers,
			Body:         body,
		})
	if err != nil {
		p.reset()
		return fmt.Errorf("publish reservation intent: %w", err)
	}
	acked, err := dc.WaitContext(ctx)
	if err != nil {
		p.reset()
		return fmt.Errorf("await publish confirmation: %w", err)
	}
	if !acked {
		return ErrNotConfirmed
	}
	return nil
}

// Close releases the channel and connection.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var err error
	if p.ch != nil {
		err = errors.Join(err, p.ch.Close())
	}
	if p.conn != nil {
		err = errors.Join(err, p.conn.Close())
	}
	p.ch, p.conn = nil, nil
	return err
}

// channel must be called with p.mu held.
func (p *Publisher) channel() (*amqp.Channel, error) {
	if p.ch != nil && !p.ch.IsClosed() {
		return p.ch, nil
	}
	p.reset()

	conn, err := amqp.Dial(p.url)
	if err != nil {
		return nil, fmt.Errorf("dial broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.Confirm(false); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("enable publisher confirms: %w", err)
	}
	if err := declareQueue(ch, p.queue); err != nil {
		_ = conn.Close()
		return nil, err
	}
	p.conn, p.ch = conn, ch
	p.logger.Info("rabbitmq publisher connected", zap.String("queue", p.queue))
	return ch, nil
}

func (p *Publisher) reset() {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
	p.ch, p.conn = nil, nil
}

// declareQueue ensures the queue exists (idempotent).  Durable so messages
// survive broker restarts.
func declareQueue(ch *amqp.Channel, name string) error {
	if _, err := ch.QueueDeclare(
		name,  // name
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		nil,   // args
	); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	return nil
}
