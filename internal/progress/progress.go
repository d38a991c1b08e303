// Package progress implements the Progress & Blocker Handler (spec.md
// §4.5): report_progress, report_blocker, resolve_blocker. State changes
// always go through the Lifecycle State Machine; this package only
// validates the calling agent still holds the task and decides whether
// a transition is warranted.
package progress

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/marcus-ai/marcus/internal/advisor"
	"github.com/marcus-ai/marcus/internal/eventlog"
	"github.com/marcus-ai/marcus/internal/lifecycle"
	"github.com/marcus-ai/marcus/internal/store"
)

// ErrNotAssigned is returned when the calling agent does not hold the
// task it is reporting against (spec.md §4.5).
var ErrNotAssigned = fmt.Errorf("progress: task not assigned to this agent")

// Severity buckets for report_blocker; HIGH additionally fans out
// through the notifier (SPEC_FULL.md §6.5).
const (
	SeverityLow    = "low"
	SeverityMedium = "medium"
	SeverityHigh   = "high"
)

// Notifier is the narrow side-effect surface a HIGH severity blocker
// drives; internal/notifications.Router satisfies this via its
// Route(eventlog.Event) method, kept as an interface here so progress
// never imports notifications directly (no fan-out on blocker severity
// below HIGH is ever wired through this path).
type Notifier interface {
	Route(event eventlog.Event)
}

// Handler implements the C5 operations.
type Handler struct {
	store    *store.Store
	machine  *lifecycle.Machine
	events   *eventlog.Log
	advisor  advisor.Advisor
	notifier Notifier
	deadline time.Duration
}

// New constructs a Handler. notifier may be nil; HIGH severity blockers
// are then only logged, never fanned out externally.
func New(s *store.Store, m *lifecycle.Machine, events *eventlog.Log, adv advisor.Advisor, notifier Notifier) *Handler {
	return &Handler{store: s, machine: m, events: events, advisor: adv, notifier: notifier, deadline: 5 * time.Second}
}

func (h *Handler) checkAssigned(taskID, agentID string) (*store.Task, error) {
	t, err := h.store.GetTask(taskID)
	if err != nil {
		return nil, err
	}
	if t.AssignedTo != agentID {
		return nil, ErrNotAssigned
	}
	return t, nil
}

// ReportProgress implements report_progress (spec.md §4.5). The task
// transitions IN_PROGRESS -> DONE when status=="completed" or
// percent==100; otherwise it records a comment and, if actualHours is
// non-nil, updates the task's actual_hours, with no status change.
func (h *Handler) ReportProgress(ctx context.Context, agentID, taskID, status string, percent float64, message string, actualHours *float64) error {
	if existing, err := h.store.GetTask(taskID); err == nil && existing.Status == store.StatusDone {
		return nil
	}

	t, err := h.checkAssigned(taskID, agentID)
	if err != nil {
		return err
	}
	_ = h.store.Heartbeat(agentID)

	if actualHours != nil {
		t.ActualHours = *actualHours
		if err := h.store.UpsertTask(t); err != nil {
			return err
		}
	}

	if status == "completed" || percent >= 100 {
		if err := h.machine.Transition(ctx, taskID, store.StatusDone, fmt.Sprintf("completed: %s", message)); err != nil {
			return err
		}
		if err := h.store.ClearAssignment(taskID); err != nil && err != store.ErrNotFound {
			return err
		}
		return h.store.IncrementCompleted(agentID)
	}

	comment := fmt.Sprintf("%.0f%% — %s", percent, message)
	h.events.Emit(eventlog.Event{
		Type:    eventlog.EventDispatch,
		TaskID:  taskID,
		AgentID: agentID,
		Message: comment,
	})
	return nil
}

// ReportBlocker implements report_blocker (spec.md §4.5): transitions the
// task to BLOCKED, asks the Advisor for resolution suggestions under a
// deadline, records a Blocker, and — for HIGH severity — fans the event
// out through the Notifier.
func (h *Handler) ReportBlocker(ctx context.Context, agentID, taskID, description, severity string) (*store.Blocker, error) {
	t, err := h.checkAssigned(taskID, agentID)
	if err != nil {
		return nil, err
	}

	if err := h.machine.Transition(ctx, taskID, store.StatusBlocked, fmt.Sprintf("blocked: %s", description)); err != nil {
		return nil, err
	}

	suggestions := h.suggestResolutions(ctx, t, description, severity)

	blocker := &store.Blocker{
		ID:          uuid.New().String(),
		TaskID:      taskID,
		AgentID:     agentID,
		Description: description,
		Severity:    severity,
		OpenedAt:    time.Now(),
		Suggestions: suggestions,
	}
	if err := h.store.AddBlocker(blocker); err != nil {
		return nil, err
	}

	evt := eventlog.Event{
		Type:    eventlog.EventBlocker,
		TaskID:  taskID,
		AgentID: agentID,
		Message: description,
	}
	if severity == SeverityHigh {
		evt.Priority = eventlog.PriorityHigh
		if h.notifier != nil {
			h.notifier.Route(evt)
		}
	}
	h.events.Emit(evt)

	return blocker, nil
}

// suggestResolutions calls the Advisor bounded by Handler.deadline,
// falling back to a static suggestion list keyed on severity if the
// advisor is unavailable or times out (spec.md §4.5).
func (h *Handler) suggestResolutions(ctx context.Context, t *store.Task, description, severity string) []string {
	ctx, cancel := context.WithTimeout(ctx, h.deadline)
	defer cancel()
	suggestions, err := h.advisor.SuggestBlockerResolutions(ctx, advisor.BlockerContext{
		Task:    t,
		Blocker: &store.Blocker{TaskID: t.ID, Description: description, Severity: severity},
	})
	if err == nil && len(suggestions) > 0 {
		return suggestions
	}
	return staticSuggestions(severity)
}

func staticSuggestions(severity string) []string {
	switch severity {
	case SeverityHigh:
		return []string{"ask PM", "escalate to a human reviewer immediately"}
	case SeverityMedium:
		return []string{"check docs", "ask PM"}
	default:
		return []string{"attempt workaround", "check docs"}
	}
}

// ResolveBlocker implements resolve_blocker (spec.md §4.5): BLOCKED ->
// IN_PROGRESS, marks the latest open Blocker resolved.
func (h *Handler) ResolveBlocker(ctx context.Context, taskID string) (*store.Blocker, error) {
	b, err := h.store.ResolveBlocker(taskID)
	if err != nil {
		return nil, err
	}
	if err := h.machine.Transition(ctx, taskID, store.StatusInProgress, "blocker resolved"); err != nil {
		return nil, err
	}
	return b, nil
}
