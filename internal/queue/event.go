// Package queue carries appointment notifications over RabbitMQ.  The
// API server publishes them and the worker consumes and delivers them.
package queue

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/iliyamo/clinic-appointments/internal/notify"
)

// DefaultQueue is used when no queue name is configured.
const DefaultQueue = "appointment.events"

// encode wraps n as a persistent JSON message.
func encode(n notify.Notification) (amqp.Publishing, error) {
	body, err := json.Marshal(n)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("marshal notification: %w", err)
	}
	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    n.ID,
		Type:         string(n.Kind),
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}, nil
}

var errMalformed = errors.New("malformed notification")

// decode parses a message body.  Messages without a kind or a recipient
// are rejected.
func decode(body []byte) (notify.Notification, error) {
	var n notify.Notification
	if err := json.Unmarshal(body, &n); err != nil {
		return n, fmt.Errorf("%w: %v", errMalformed, err)
	}
	if n.Kind == "" || n.ToUserID == 0 {
		return n, fmt.Errorf("%w: kind %q, to_user_id %d", errMalformed, n.Kind, n.ToUserID)
	}
	return n, nil
}
