package queue

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Handler settles one reservation intent.  The returned error is logged
// only: every decoded intent is acknowledged after Handler returns, so a
// failing intent can never block the queue.
type Handler func(ctx context.Context, in ReservationIntent) error

// ConsumerConfig controls how many intents are in flight.  Prefetch bounds
// the unacknowledged deliveries the broker pushes to this consumer; Workers
// is the number of goroutines settling them.
type ConsumerConfig struct {
	URL      string
	Queue    string
	Prefetch int
	Workers  int
}

// Consumer pulls reservation intents from the queue and hands them to a
// Handler.  Several consumers, in one or many processes, may compete for the
// same queue; the broker delivers each message to one of them at a time and
// redelivers it if the consumer disappears before acknowledging.
type Consumer struct {
	cfg     ConsumerConfig
	handler Handler
	logger  *zap.Logger
}

// NewConsumer applies defaults to cfg and returns a Consumer.
func NewConsumer(cfg ConsumerConfig, handler Handler, logger *zap.Logger) *Consumer {
	if cfg.Queue == "" {
		cfg.Queue = DefaultQueueName
	}
	if cfg.Prefetch <= 0 {
		cfg.Prefetch = 10
	}
	if cfg.Workers <= 0 || cfg.Workers > cfg.Prefetch {
		cfg.Workers = cfg.Prefetch
	}
	return &Consumer{cfg: cfg, handler: handler, logger: logger}
}

// Run connects to the broker and consumes until ctx is cancelled.  Lost
// connections are re-established with exponential backoff.  In-flight
// intents are allowed to finish on shutdown.
func (c *Consumer) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return nil
		}
		conn, err := amqp.Dial(c.cfg.URL)
		if err != nil {
			c.logger.Warn("settlement consumer: failed to dial broker",
				zap.Error(err), zap.Duration("retry_in", backoff))
			if !sleep(ctx, backoff) {
				return nil
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second // reset after successful connect

		err = c.consume(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return nil
		}
		c.logger.Warn("settlement consumer: consume loop ended; reconnecting", zap.Error(err))
		if !sleep(ctx, 2*time.Second) {
			return nil
		}
	}
}

func (c *Consumer) consume(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(c.cfg.Prefetch, 0, false); err != nil {
		return fmt.Errorf("set qos: %w", err)
	}
	if err := declareQueue(ch, c.cfg.Queue); err != nil {
		return err
	}

	tag := fmt.Sprintf("settle-%d-%d", os.Getpid(), time.Now().UnixNano())
	deliveries, err := ch.Consume(c.cfg.Queue, tag, false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}
	closed := ch.NotifyClose(make(chan *amqp.Error, 1))

	c.logger.Info("settlement consumer ready",
		zap.String("queue", c.cfg.Queue),
		zap.Int("prefetch", c.cfg.Prefetch),
		zap.Int("workers", c.cfg.Workers))

	// Settlements already dispatched run to completion even when ctx is
	// cancelled; only new deliveries stop.
	work := context.WithoutCancel(ctx)
	var wg sync.WaitGroup
	for i := 0; i < c.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for d := range deliveries {
				c.handle(work, d)
			}
		}()
	}

	var result error
	select {
	case <-ctx.Done():
		_ = ch.Cancel(tag, false)
	case amqpErr := <-closed:
		if amqpErr != nil {
			result = amqpErr
		} else {
			result = errors.New("channel closed")
		}
	}
	wg.Wait()
	return result
}

// handle settles one delivery and acknowledges it.  Bodies that cannot be
// decoded are rejected without requeue so they never loop.
func (c *Consumer) handle(ctx context.Context, d amqp.Delivery) {
	in, err := DecodeIntent(d.Body)
	if err != nil {
		c.logger.Error("settlement consumer: dropping malformed message",
			zap.Error(err), zap.Uint64("delivery_tag", d.DeliveryTag))
		_ = d.Nack(false, false)
		return
	}

	logger := c.logger.With(
		zap.String("booking_id", in.BookingID),
		zap.String("class_id", in.ClassID),
		zap.Bool("redelivered", d.Redelivered))

	if err := c.settle(extractTrace(ctx, d.Headers), in); err != nil {
		logger.Warn("settlement finished with error", zap.Error(err))
	}
	if err := d.Ack(false); err != nil {
		logger.Error("settlement consumer: ack failed", zap.Error(err))
	}
}

func (c *Consumer) settle(ctx context.Context, in ReservationIntent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("settlement panic: %v", r)
		}
	}()
	return c.handler(ctx, in)
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
