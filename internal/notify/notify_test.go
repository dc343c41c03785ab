package notify

import (
	"context"
	"strings"
	"testing"

	"mediabib-service/pkg/config"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewFallsBackToLogNotifier(t *testing.T) {
	if _, ok := New(config.MailConfig{Enabled: false, Host: "smtp.example.org"}, nil).(*LogNotifier); !ok {
		t.Fatalf("disabled mail should log only")
	}
	if _, ok := New(config.MailConfig{Enabled: true}, nil).(*LogNotifier); !ok {
		t.Fatalf("mail without host should log only")
	}
	if _, ok := New(config.MailConfig{Enabled: true, Host: "smtp.example.org", Port: 587}, nil).(*SMTPNotifier); !ok {
		t.Fatalf("enabled mail with host should use SMTP")
	}
}

func TestLogNotifierNeverLogsBody(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	n := NewLogNotifier(zap.New(core))

	n.Notify(context.Background(), PasswordReset("ada@example.org", "Ada", "hunter2-secret"))
	n.Notify(context.Background(), Message{Subject: "nobody"})

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("want 1 entry, got %d", len(entries))
	}
	for _, f := range entries[0].Context {
		if strings.Contains(f.String, "hunter2-secret") {
			t.Fatalf("field %s leaks the password", f.Key)
		}
	}
	if entries[0].ContextMap()["to"] != "ada@example.org" {
		t.Fatalf("recipient not logged: %v", entries[0].ContextMap())
	}
}

func TestRecorder(t *testing.T) {
	var r Recorder
	r.Notify(context.Background(), Welcome("ada@example.org", "Ada", "CENTRAL-123456", "Central"))
	r.Notify(context.Background(), Message{})

	msgs := r.Messages()
	if len(msgs) != 1 {
		t.Fatalf("want 1 message, got %d", len(msgs))
	}
	if !strings.Contains(msgs[0].Body, "CENTRAL-123456") || !strings.Contains(msgs[0].Body, "Central") {
		t.Fatalf("welcome body missing card or library: %q", msgs[0].Body)
	}
}
