// Package lifecycle implements the Lifecycle State Machine (spec.md §4.4):
// the only component that moves a task between TODO, IN_PROGRESS, BLOCKED,
// and DONE and mirrors that move to the external board. It generalizes the
// teacher's Task.TransitionTo validity-table pattern (internal/tasks/types.go)
// from eight states down to the spec's four.
package lifecycle

import (
	"context"
	"fmt"

	"github.com/marcus-ai/marcus/internal/board"
	"github.com/marcus-ai/marcus/internal/eventlog"
	"github.com/marcus-ai/marcus/internal/store"
)

// Machine applies validated transitions to the Task Store, mirrors them
// to the Board Provider, and emits an event to the log — in that order,
// per spec.md §4.4.
type Machine struct {
	store    *store.Store
	provider board.Provider
	events   *eventlog.Log
}

// New constructs a Machine. provider may be nil only in tests; production
// wiring always supplies a real adapter.
func New(s *store.Store, provider board.Provider, events *eventlog.Log) *Machine {
	return &Machine{store: s, provider: provider, events: events}
}

// Transition moves a task to newStatus, mirrors the move to the board
// with an explanatory comment, and logs the event. Mirror failures do not
// roll back the internal transition (spec.md §4.10): they are logged and
// queued for the board provider's own retry path.
func (m *Machine) Transition(ctx context.Context, taskID string, newStatus store.TaskStatus, reason string) error {
	if err := m.store.SetStatus(taskID, newStatus); err != nil {
		return err
	}

	if m.provider != nil {
		if err := m.provider.UpdateStatus(ctx, taskID, newStatus); err != nil {
			m.events.Emit(eventlog.Event{
				Type:    eventlog.EventMirrorFailed,
				TaskID:  taskID,
				Message: fmt.Sprintf("update_status to %s failed, queued for retry: %v", newStatus, err),
			})
			board.QueuePushRetry(taskID, newStatus)
		} else if reason != "" {
			_ = m.provider.AddComment(ctx, taskID, reason)
		}
	}

	m.events.Emit(eventlog.Event{
		Type:    eventlog.EventTransition,
		TaskID:  taskID,
		Message: fmt.Sprintf("-> %s: %s", newStatus, reason),
	})
	return nil
}

// ReclaimTransition mirrors and logs a task's forced IN_PROGRESS/BLOCKED ->
// TODO move after the stale-agent sweeper has already mutated the Task
// Store directly (store.ForceClearAgentTasks); unlike Transition it does
// not call store.SetStatus itself, since the store is already consistent.
func (m *Machine) ReclaimTransition(ctx context.Context, taskID, reason string) {
	if m.provider != nil {
		if err := m.provider.UpdateStatus(ctx, taskID, store.StatusTODO); err != nil {
			m.events.Emit(eventlog.Event{
				Type:    eventlog.EventMirrorFailed,
				TaskID:  taskID,
				Message: fmt.Sprintf("update_status to todo failed, queued for retry: %v", err),
			})
			board.QueuePushRetry(taskID, store.StatusTODO)
		} else {
			_ = m.provider.AddComment(ctx, taskID, reason)
		}
	}
	m.events.Emit(eventlog.Event{
		Type:    eventlog.EventTransition,
		TaskID:  taskID,
		Message: fmt.Sprintf("-> todo: %s", reason),
	})
}

// AssignTransition is the TODO -> IN_PROGRESS move driven by a successful
// Assignment Engine claim (store.Assign already performed the index
// update; this only mirrors and logs).
func (m *Machine) AssignTransition(ctx context.Context, taskID, agentID string) {
	if m.provider != nil {
		if err := m.provider.UpdateStatus(ctx, taskID, store.StatusInProgress); err != nil {
			m.events.Emit(eventlog.Event{
				Type:    eventlog.EventMirrorFailed,
				TaskID:  taskID,
				Message: fmt.Sprintf("update_status to in_progress failed, queued for retry: %v", err),
			})
			board.QueuePushRetry(taskID, store.StatusInProgress)
		}
		if err := m.provider.SetAssignee(ctx, taskID, agentID); err != nil {
			m.events.Emit(eventlog.Event{
				Type:    eventlog.EventMirrorFailed,
				TaskID:  taskID,
				Message: fmt.Sprintf("set_assignee failed, queued for retry: %v", err),
			})
		}
		_ = m.provider.AddComment(ctx, taskID, fmt.Sprintf("assigned to %s", agentID))
	}
	m.events.Emit(eventlog.Event{
		Type:    eventlog.EventTransition,
		TaskID:  taskID,
		Message: fmt.Sprintf("-> in_progress: assigned to %s", agentID),
	})
}
