package external

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/marcus-ai/marcus/internal/eventlog"
)

func TestDiscordNotifier_ShouldNotify(t *testing.T) {
	cases := []struct {
		name   string
		config DiscordConfig
		event  eventlog.Event
		want   bool
	}{
		{
			name:   "no filters allows everything",
			config: DiscordConfig{},
			event:  eventlog.Event{Type: eventlog.EventBlocker, Priority: eventlog.PriorityNormal},
			want:   true,
		},
		{
			name:   "min priority blocks lower-priority events",
			config: DiscordConfig{MinPriority: eventlog.PriorityHigh},
			event:  eventlog.Event{Type: eventlog.EventBlocker, Priority: eventlog.PriorityNormal},
			want:   false,
		},
		{
			name:   "event type filter blocks unlisted types",
			config: DiscordConfig{EventTypes: []eventlog.EventType{eventlog.EventTransition}},
			event:  eventlog.Event{Type: eventlog.EventBlocker, Priority: eventlog.PriorityNormal},
			want:   false,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			n := NewDiscordNotifier(tc.config)
			if got := n.ShouldNotify(tc.event); got != tc.want {
				t.Errorf("ShouldNotify() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestDiscordNotifier_SendRequiresWebhookURL(t *testing.T) {
	n := NewDiscordNotifier(DiscordConfig{})
	if err := n.Send(eventlog.Event{ID: "e1", CreatedAt: time.Now()}); err == nil {
		t.Fatal("expected an error when no webhook URL is configured")
	}
}

func TestDiscordNotifier_SendPostsEmbed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	n := NewDiscordNotifier(DiscordConfig{WebhookURL: server.URL, Username: "marcus"})
	event := eventlog.Event{
		ID:        "evt-1",
		Type:      eventlog.EventBlocker,
		TaskID:    "task-1",
		AgentID:   "agent-1",
		Priority:  eventlog.PriorityHigh,
		Message:   "agent reported a blocker",
		CreatedAt: time.Now(),
	}
	if err := n.Send(event); err != nil {
		t.Fatalf("Send returned error: %v", err)
	}
}

func TestDiscordNotifier_SendSurfacesBadStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	n := NewDiscordNotifier(DiscordConfig{WebhookURL: server.URL})
	if err := n.Send(eventlog.Event{ID: "e1", CreatedAt: time.Now()}); err == nil {
		t.Fatal("expected error on 403 response")
	}
}
