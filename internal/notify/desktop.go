// Package notify adapts internal/notifications/toast.go's Windows toast
// wrapper into a notifications.NotificationChannel, so a HIGH severity
// blocker (spec.md §4.5, SPEC_FULL.md §6.5) can fan out to a local
// desktop notification the same way it fans out to Slack/Discord/email.
package notify

import (
	"fmt"
	"runtime"

	"github.com/go-toast/toast"

	"github.com/marcus-ai/marcus/internal/eventlog"
)

// DesktopConfig configures the desktop toast channel.
type DesktopConfig struct {
	AppID        string
	DashboardURL string
	EventTypes   []eventlog.EventType
	MinPriority  int
}

// DesktopNotifier fires a go-toast/toast notification for blocker events.
// Send only succeeds on Windows; elsewhere it logs nothing and
// returns an error the Router already treats as fire-and-forget.
type DesktopNotifier struct {
	config DesktopConfig
}

// NewDesktopNotifier constructs a DesktopNotifier, defaulting AppID and
// DashboardURL the same way internal/notifications/toast.go did.
func NewDesktopNotifier(config DesktopConfig) *DesktopNotifier {
	if config.AppID == "" {
		config.AppID = "marcus"
	}
	if config.DashboardURL == "" {
		config.DashboardURL = "http://localhost:8080"
	}
	return &DesktopNotifier{config: config}
}

// Name satisfies notifications.NotificationChannel.
func (d *DesktopNotifier) Name() string { return "desktop" }

// IsSupported reports whether this platform can actually display the
// toast; go-toast/toast only has a working backend on Windows.
func (d *DesktopNotifier) IsSupported() bool { return runtime.GOOS == "windows" }

// ShouldNotify satisfies notifications.NotificationChannel: honors the
// same MinPriority/EventTypes filtering the external/ channels use.
func (d *DesktopNotifier) ShouldNotify(event eventlog.Event) bool {
	if d.config.MinPriority > 0 && event.Priority > d.config.MinPriority {
		return false
	}
	if len(d.config.EventTypes) > 0 {
		found := false
		for _, et := range d.config.EventTypes {
			if event.Type == et {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// Send displays the toast. Off Windows it returns an error; Router.Route
// logs and drops it without surfacing anywhere else (spec.md §4.5:
// notification fan-out never gates the state transition).
func (d *DesktopNotifier) Send(event eventlog.Event) error {
	if !d.IsSupported() {
		return fmt.Errorf("notify: desktop toast not supported on %s", runtime.GOOS)
	}

	notification := toast.Notification{
		AppID:   d.config.AppID,
		Title:   "Blocker: " + string(event.Type),
		Message: event.Message,
		Audio:   toast.IM,
		Actions: []toast.Action{
			{Type: "protocol", Label: "Open Dashboard", Arguments: d.config.DashboardURL},
		},
	}
	return notification.Push()
}
