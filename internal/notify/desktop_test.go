package notify

import (
	"runtime"
	"testing"

	"github.com/marcus-ai/marcus/internal/eventlog"
)

func TestDesktopNotifier_Name(t *testing.T) {
	d := NewDesktopNotifier(DesktopConfig{})
	if d.Name() != "desktop" {
		t.Errorf("expected name 'desktop', got %q", d.Name())
	}
}

func TestDesktopNotifier_DefaultsAppIDAndURL(t *testing.T) {
	d := NewDesktopNotifier(DesktopConfig{})
	if d.config.AppID != "marcus" {
		t.Errorf("expected default AppID 'marcus', got %q", d.config.AppID)
	}
	if d.config.DashboardURL != "http://localhost:8080" {
		t.Errorf("expected default dashboard URL, got %q", d.config.DashboardURL)
	}
}

func TestDesktopNotifier_ShouldNotify_MinPriority(t *testing.T) {
	d := NewDesktopNotifier(DesktopConfig{MinPriority: eventlog.PriorityHigh})
	if d.ShouldNotify(eventlog.Event{Priority: eventlog.PriorityLow}) {
		t.Error("expected low priority event to be filtered out")
	}
	if !d.ShouldNotify(eventlog.Event{Priority: eventlog.PriorityCritical}) {
		t.Error("expected critical priority event to pass")
	}
}

func TestDesktopNotifier_ShouldNotify_EventTypes(t *testing.T) {
	d := NewDesktopNotifier(DesktopConfig{EventTypes: []eventlog.EventType{eventlog.EventBlocker}})
	if !d.ShouldNotify(eventlog.Event{Type: eventlog.EventBlocker}) {
		t.Error("expected matching event type to pass")
	}
	if d.ShouldNotify(eventlog.Event{Type: eventlog.EventDispatch}) {
		t.Error("expected non-matching event type to be filtered out")
	}
}

func TestDesktopNotifier_IsSupported(t *testing.T) {
	d := NewDesktopNotifier(DesktopConfig{})
	if d.IsSupported() != (runtime.GOOS == "windows") {
		t.Errorf("IsSupported() should mirror GOOS == windows")
	}
}

func TestDesktopNotifier_Send_UnsupportedPlatform(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("only exercises the non-Windows error path")
	}
	d := NewDesktopNotifier(DesktopConfig{})
	if err := d.Send(eventlog.Event{Type: eventlog.EventBlocker, Message: "blocked"}); err == nil {
		t.Error("expected Send to fail on a non-Windows platform")
	}
}
