package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/iliyamo/clinic-appointments/internal/model"
	"github.com/iliyamo/clinic-appointments/internal/notify"
)

// UserLookup resolves the recipient of a notification.
type UserLookup interface {
	GetByID(ctx context.Context, id uint64) (model.User, error)
}

// Dispatcher turns a queued notification into a delivered message.
type Dispatcher struct {
	Users  UserLookup
	Sender notify.Sender
}

// Handle decodes body, looks up the recipient and sends.  Every error
// is final; the consumer drops the message.
func (d Dispatcher) Handle(ctx context.Context, body []byte) error {
	n, err := decode(body)
	if err != nil {
		return err
	}
	u, err := d.Users.GetByID(ctx, n.ToUserID)
	if err != nil {
		return fmt.Errorf("lookup user %d: %w", n.ToUserID, err)
	}
	to := notify.Recipient{UserID: u.ID, Email: u.Email, FullName: u.FullName}
	return d.Sender.Send(ctx, notify.Render(n, to))
}

// Handler processes one message body.
type Handler interface {
	Handle(ctx context.Context, body []byte) error
}

// Consumer reads the notification queue until its context ends,
// reconnecting with exponential backoff when the broker goes away.
type Consumer struct {
	URL      string
	Queue    string
	Prefetch int
	Handler  Handler
	Log      zerolog.Logger
	Timeout  time.Duration
}

const maxBackoff = 30 * time.Second

// Run blocks until ctx is cancelled, then returns ctx.Err().
func (c *Consumer) Run(ctx context.Context) error {
	if c.Queue == "" {
		c.Queue = DefaultQueue
	}
	if c.Prefetch <= 0 {
		c.Prefetch = 50
	}
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	backoff := time.Second
	for {
		conn, err := amqp.Dial(c.URL)
		if err != nil {
			c.Log.Warn().Err(err).Dur("retry_in", backoff).Msg("dial broker failed")
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			backoff = min(backoff*2, maxBackoff)
			continue
		}
		backoff = time.Second
		c.Log.Info().Str("queue", c.Queue).Msg("consumer connected")

		err = c.consume(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.Log.Warn().Err(err).Msg("consume loop ended, reconnecting")
		if !sleep(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func (c *Consumer) consume(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(c.Prefetch, 0, false); err != nil {
		c.Log.Warn().Err(err).Msg("set qos failed")
	}
	if _, err := declare(ch, c.Queue); err != nil {
		return err
	}
	msgs, err := ch.Consume(c.Queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", c.Queue, err)
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			c.deliver(ctx, d)
		}
	}
}

// acknowledger is the part of amqp.Delivery deliver needs.
type acknowledger interface {
	Ack(multiple bool) error
	Nack(multiple, requeue bool) error
}

func (c *Consumer) deliver(ctx context.Context, d amqp.Delivery) {
	c.process(ctx, d.MessageId, d.Body, d)
}

func (c *Consumer) process(ctx context.Context, id string, body []byte, ack acknowledger) {
	hctx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()
	if err := c.Handler.Handle(hctx, body); err != nil {
		// Rejected without requeue so a poison message cannot spin.
		c.Log.Error().Err(err).Str("message_id", id).Msg("notification rejected")
		_ = ack.Nack(false, false)
		return
	}
	_ = ack.Ack(false)
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
