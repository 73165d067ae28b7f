// Package outbound delivers agent emails to leads.
package outbound

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"gopkg.in/gomail.v2"
)

var ErrNoRecipient = errors.New("outbound: recipient address is required")

type Email struct {
	To      string
	Subject string
	Body    string
}

// Dispatcher sends one email.
type Dispatcher interface {
	Send(ctx context.Context, e Email) error
	Channel() string
}

type SMTPConfig struct {
	Host string
	Port int
	User string
	Pass string
	From string
}

// SMTPSender sends plain-text mail through an SMTP relay.
type SMTPSender struct {
	cfg  SMTPConfig
	dial func(m *gomail.Message) error
}

func NewSMTPSender(cfg SMTPConfig) *SMTPSender {
	if cfg.From == "" {
		cfg.From = cfg.User
	}
	d := gomail.NewDialer(cfg.Host, cfg.Port, cfg.User, cfg.Pass)
	return &SMTPSender{cfg: cfg, dial: func(m *gomail.Message) error { return d.DialAndSend(m) }}
}

func (s *SMTPSender) Channel() string { return "smtp" }

func (s *SMTPSender) Send(ctx context.Context, e Email) error {
	if strings.TrimSpace(e.To) == "" {
		return ErrNoRecipient
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.cfg.From)
	m.SetHeader("To", e.To)
	m.SetHeader("Subject", e.Subject)
	m.SetBody("text/plain", e.Body)

	if err := s.dial(m); err != nil {
		return fmt.Errorf("outbound: smtp send to %s: %w", e.To, err)
	}
	return nil
}

// LogSender writes emails to the log instead of sending them. It keeps the
// sent emails for inspection.
type LogSender struct {
	log *slog.Logger

	mu   sync.Mutex
	sent []Email
}

func NewLogSender(log *slog.Logger) *LogSender {
	if log == nil {
		log = slog.Default()
	}
	return &LogSender{log: log}
}

func (s *LogSender) Channel() string { return "log" }

func (s *LogSender) Send(ctx context.Context, e Email) error {
	if strings.TrimSpace(e.To) == "" {
		return ErrNoRecipient
	}
	s.mu.Lock()
	s.sent = append(s.sent, e)
	s.mu.Unlock()
	s.log.InfoContext(ctx, "email not sent, smtp disabled", "to", e.To, "subject", e.Subject, "body_len", len(e.Body))
	return nil
}

func (s *LogSender) Sent() []Email {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Email(nil), s.sent...)
}

// New returns an SMTP sender when a host is configured, a log sender otherwise.
func New(cfg SMTPConfig, log *slog.Logger) Dispatcher {
	if strings.TrimSpace(cfg.Host) == "" {
		return NewLogSender(log)
	}
	return NewSMTPSender(cfg)
}
