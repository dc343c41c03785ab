// Package notify delivers best-effort emails to readers. Delivery never
// reports failure to the caller.
package notify

import (
	"context"
	"sync"
	"time"

	"mediabib-service/pkg/config"

	"github.com/go-mail/mail/v2"
	"go.uber.org/zap"
)

// Message is a plain-text email
type Message struct {
	To      string
	Subject string
	Body    string
}

// Notifier sends messages fire-and-forget
type Notifier interface {
	Notify(ctx context.Context, msg Message)
}

// New returns an SMTP notifier when mail is enabled, a log-only one otherwise
func New(cfg config.MailConfig, log *zap.Logger) Notifier {
	if !cfg.Enabled || cfg.Host == "" {
		return NewLogNotifier(log)
	}
	return NewSMTPNotifier(cfg, log)
}

// SMTPNotifier delivers through an SMTP relay on a background goroutine
type SMTPNotifier struct {
	dialer *mail.Dialer
	from   string
	log    *zap.Logger
}

// NewSMTPNotifier creates a notifier for the configured relay
func NewSMTPNotifier(cfg config.MailConfig, log *zap.Logger) *SMTPNotifier {
	d := mail.NewDialer(cfg.Host, cfg.Port, cfg.User, cfg.Password)
	d.Timeout = 10 * time.Second
	if cfg.UseTLS {
		d.StartTLSPolicy = mail.MandatoryStartTLS
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &SMTPNotifier{dialer: d, from: cfg.From, log: log}
}

func (n *SMTPNotifier) Notify(ctx context.Context, msg Message) {
	if msg.To == "" {
		return
	}
	go func() {
		m := mail.NewMessage()
		m.SetHeader("From", n.from)
		m.SetHeader("To", msg.To)
		m.SetHeader("Subject", msg.Subject)
		m.SetBody("text/plain", msg.Body)

		if err := n.dialer.DialAndSend(m); err != nil {
			n.log.Warn("Email delivery failed",
				zap.String("to", msg.To),
				zap.String("subject", msg.Subject),
				zap.Error(err))
			return
		}
		n.log.Info("Email sent", zap.String("to", msg.To), zap.String("subject", msg.Subject))
	}()
}

// LogNotifier only records that a message would have been sent. The body is
// never logged because it may carry a credential.
type LogNotifier struct {
	log *zap.Logger
}

// NewLogNotifier creates a log-only notifier; a nil logger discards everything
func NewLogNotifier(log *zap.Logger) *LogNotifier {
	if log == nil {
		log = zap.NewNop()
	}
	return &LogNotifier{log: log}
}

func (n *LogNotifier) Notify(ctx context.Context, msg Message) {
	if msg.To == "" {
		return
	}
	n.log.Info("Email delivery disabled, message dropped",
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject))
}

// Recorder keeps messages in memory; used by tests and dry runs
type Recorder struct {
	mu       sync.Mutex
	messages []Message
}

func (r *Recorder) Notify(ctx context.Context, msg Message) {
	if msg.To == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, msg)
}

// Messages returns a copy of the recorded messages
func (r *Recorder) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Message, len(r.messages))
	copy(out, r.messages)
	return out
}
