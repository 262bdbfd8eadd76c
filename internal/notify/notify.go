// Package notify carries appointment notifications from the lifecycle
// manager to a delivery backend.  Delivery is best effort: the request
// that triggered a notification never waits for it and never fails
// because of it.
package notify

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Kind names the appointment event that produced a notification.
type Kind string

const (
	KindBooked        Kind = "appointment.booked"
	KindStatusChanged Kind = "appointment.status_changed"
	KindCancelled     Kind = "appointment.cancelled"
	KindCompleted     Kind = "appointment.completed"
)

// Payload keys set by the lifecycle manager.
const (
	KeyDoctorName  = "doctor_name"
	KeyPatientName = "patient_name"
	KeyDate        = "date"
	KeyTime        = "time"
	KeyStatus      = "status"
	KeyReason      = "reason"
	KeyDiagnosis   = "diagnosis"
)

// Notification is addressed to a single user.
type Notification struct {
	ID            string            `json:"id"`
	Kind          Kind              `json:"kind"`
	ToUserID      uint64            `json:"to_user_id"`
	AppointmentID uint64            `json:"appointment_id"`
	Payload       map[string]string `json:"payload,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
}

// Notifier accepts notifications without blocking the caller.
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

// Publisher hands a notification to a transport, usually the broker.
type Publisher interface {
	Publish(ctx context.Context, n Notification) error
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, n Notification) error

func (f PublisherFunc) Publish(ctx context.Context, n Notification) error { return f(ctx, n) }

// Nop drops every notification.
type Nop struct{}

func (Nop) Notify(context.Context, Notification) {}

// Async publishes each notification on its own goroutine with a detached
// context bounded by Timeout.  Failures are logged and dropped.
type Async struct {
	pub     Publisher
	log     zerolog.Logger
	timeout time.Duration
	now     func() time.Time
	wg      sync.WaitGroup
}

// NewAsync returns an Async notifier.  A non-positive timeout means 5s.
func NewAsync(pub Publisher, log zerolog.Logger, timeout time.Duration) *Async {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Async{pub: pub, log: log, timeout: timeout, now: time.Now}
}

// Notify fills in ID and CreatedAt and publishes n in the background.
// The caller's context is only used for its values; cancelling it does
// not cancel delivery.
func (a *Async) Notify(ctx context.Context, n Notification) {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = a.now().UTC()
	}
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.timeout)
		defer cancel()
		if err := a.pub.Publish(pctx, n); err != nil {
			a.log.Warn().Err(err).
				Str("notification_id", n.ID).
				Str("kind", string(n.Kind)).
				Uint64("appointment_id", n.AppointmentID).
				Uint64("to_user_id", n.ToUserID).
				Msg("notification dropped")
		}
	}()
}

// Wait blocks until every in-flight notification has finished.  It is
// called during shutdown.
func (a *Async) Wait() { a.wg.Wait() }
