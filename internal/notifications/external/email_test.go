package external

import (
	"strings"
	"testing"
	"time"

	"github.com/marcus-ai/marcus/internal/eventlog"
)

func TestEmailNotifier_ShouldNotify(t *testing.T) {
	cases := []struct {
		name   string
		config EmailConfig
		event  eventlog.Event
		want   bool
	}{
		{
			name:   "no filters allows everything",
			config: EmailConfig{},
			event:  eventlog.Event{Type: eventlog.EventBlocker, Priority: eventlog.PriorityNormal},
			want:   true,
		},
		{
			name:   "min priority blocks lower-priority events",
			config: EmailConfig{MinPriority: eventlog.PriorityHigh},
			event:  eventlog.Event{Type: eventlog.EventBlocker, Priority: eventlog.PriorityNormal},
			want:   false,
		},
		{
			name:   "event type filter blocks unlisted types",
			config: EmailConfig{EventTypes: []eventlog.EventType{eventlog.EventTransition}},
			event:  eventlog.Event{Type: eventlog.EventBlocker, Priority: eventlog.PriorityNormal},
			want:   false,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			n := NewEmailNotifier(tc.config)
			if got := n.ShouldNotify(tc.event); got != tc.want {
				t.Errorf("ShouldNotify() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestEmailNotifier_SendValidatesConfig(t *testing.T) {
	event := eventlog.Event{ID: "e1", CreatedAt: time.Now()}

	if err := NewEmailNotifier(EmailConfig{}).Send(event); err == nil {
		t.Fatal("expected error when SMTP host is unset")
	}
	if err := NewEmailNotifier(EmailConfig{SMTPHost: "smtp.example.com"}).Send(event); err == nil {
		t.Fatal("expected error when From is unset")
	}
	if err := NewEmailNotifier(EmailConfig{SMTPHost: "smtp.example.com", From: "marcus@example.com"}).Send(event); err == nil {
		t.Fatal("expected error when To is empty")
	}
}

func TestEmailNotifier_BuildSubjectPrefixesByPriority(t *testing.T) {
	n := NewEmailNotifier(EmailConfig{})
	critical := n.buildSubject(eventlog.Event{ID: "e1", Type: eventlog.EventBlocker, Priority: eventlog.PriorityCritical})
	if !strings.HasPrefix(critical, "[CRITICAL] ") {
		t.Errorf("expected critical prefix, got %q", critical)
	}
	normal := n.buildSubject(eventlog.Event{ID: "e2", Type: eventlog.EventBlocker, Priority: eventlog.PriorityNormal})
	if strings.HasPrefix(normal, "[CRITICAL] ") || strings.HasPrefix(normal, "[HIGH] ") {
		t.Errorf("expected no severity prefix for normal priority, got %q", normal)
	}
}

func TestEmailNotifier_BuildBodyIncludesMessage(t *testing.T) {
	n := NewEmailNotifier(EmailConfig{})
	body := n.buildBody(eventlog.Event{
		ID:        "e1",
		Type:      eventlog.EventBlocker,
		TaskID:    "task-1",
		AgentID:   "agent-1",
		Priority:  eventlog.PriorityHigh,
		Message:   "agent reported a blocker",
		CreatedAt: time.Now(),
	})
	if !strings.Contains(body, "agent reported a blocker") {
		t.Errorf("expected body to contain the event message, got %q", body)
	}
	if !strings.Contains(body, "task-1") {
		t.Errorf("expected body to contain the task id, got %q", body)
	}
}

func TestEmailNotifier_BuildMessageIncludesHeaders(t *testing.T) {
	n := NewEmailNotifier(EmailConfig{From: "marcus@example.com", To: []string{"ops@example.com"}})
	msg := n.buildMessage("subject line", "body text")
	if !strings.Contains(msg, "From: marcus@example.com") {
		t.Error("expected From header")
	}
	if !strings.Contains(msg, "To: ops@example.com") {
		t.Error("expected To header")
	}
	if !strings.Contains(msg, "Subject: subject line") {
		t.Error("expected Subject header")
	}
}
