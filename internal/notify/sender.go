package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Recipient is the resolved addressee of a notification.
type Recipient struct {
	UserID   uint64
	Email    string
	FullName string
}

// Message is a rendered notification ready for delivery.
type Message struct {
	To      Recipient
	Subject string
	Body    string
	Source  Notification
}

// Sender delivers a rendered message.
type Sender interface {
	Send(ctx context.Context, m Message) error
}

// Render turns a notification into a message for to.
func Render(n Notification, to Recipient) Message {
	p := n.Payload
	when := strings.TrimSpace(p[KeyDate] + " " + p[KeyTime])
	var subject, body string
	switch n.Kind {
	case KindBooked:
		subject = "Appointment booked"
		body = fmt.Sprintf("Your appointment with Dr. %s on %s is booked and pending confirmation.", p[KeyDoctorName], when)
	case KindStatusChanged:
		subject = "Appointment updated"
		body = fmt.Sprintf("Your appointment on %s is now %s.", when, p[KeyStatus])
	case KindCancelled:
		subject = "Appointment cancelled"
		body = fmt.Sprintf("Your appointment on %s has been cancelled.", when)
		if r := p[KeyReason]; r != "" {
			body += " Reason: " + r
		}
	case KindCompleted:
		subject = "Consultation completed"
		body = fmt.Sprintf("Your consultation on %s is complete. Diagnosis: %s", when, p[KeyDiagnosis])
	default:
		subject = "Appointment notification"
		body = fmt.Sprintf("There is an update to appointment #%d.", n.AppointmentID)
	}
	if to.FullName != "" {
		body = "Hello " + to.FullName + ",\n\n" + body
	}
	return Message{To: to, Subject: subject, Body: body, Source: n}
}

// LogSender appends one line per message to a file.
type LogSender struct {
	path string
	mu   sync.Mutex
}

// NewLogSender writes to path, creating its directory on first use.
func NewLogSender(path string) *LogSender {
	if path == "" {
		path = filepath.Join("logs", "notifications.log")
	}
	return &LogSender{path: path}
}

func (s *LogSender) Send(_ context.Context, m Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("mkdir notification log: %w", err)
	}
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open notification log: %w", err)
	}
	defer f.Close()

	line := fmt.Sprintf("[%s] %s | id=%s | appointment_id=%d | to_user_id=%d | to=%q | subject=%q\n",
		m.Source.CreatedAt.UTC().Format(time.RFC3339), m.Source.Kind, m.Source.ID,
		m.Source.AppointmentID, m.To.UserID, m.To.Email, m.Subject)
	if _, err := f.WriteString(line); err != nil {
		return fmt.Errorf("write notification log: %w", err)
	}
	return nil
}

// SMTPConfig addresses an SMTP relay.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTPSender delivers messages as plain-text email.
type SMTPSender struct {
	cfg  SMTPConfig
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewSMTPSender(cfg SMTPConfig) *SMTPSender {
	return &SMTPSender{cfg: cfg, send: smtp.SendMail}
}

func (s *SMTPSender) Send(_ context.Context, m Message) error {
	if m.To.Email == "" {
		return fmt.Errorf("smtp: user %d has no email", m.To.UserID)
	}
	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", s.cfg.From)
	fmt.Fprintf(&b, "To: %s\r\n", m.To.Email)
	fmt.Fprintf(&b, "Subject: %s\r\n", m.Subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
	b.WriteString(strings.ReplaceAll(m.Body, "\n", "\r\n"))
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	if err := s.send(addr, auth, s.cfg.From, []string{m.To.Email}, []byte(b.String())); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

// LoggingSender wraps a Sender and records every delivery.
type LoggingSender struct {
	Next Sender
	Log  zerolog.Logger
}

func (s LoggingSender) Send(ctx context.Context, m Message) error {
	err := s.Next.Send(ctx, m)
	ev, msg := s.Log.Info(), "notification delivered"
	if err != nil {
		ev, msg = s.Log.Error().Err(err), "notification delivery failed"
	}
	ev.Str("notification_id", m.Source.ID).
		Str("kind", string(m.Source.Kind)).
		Uint64("to_user_id", m.To.UserID).
		Msg(msg)
	return err
}
