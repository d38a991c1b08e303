// Package eventlog is marcus's append-only audit trail: one Event per
// tool dispatch, assignment, transition, blocker, and advisor call
// (spec.md §6 "optional event log file", wired end to end per
// SPEC_FULL.md §7). It is adapted from the teacher's internal/events
// package, generalized from the agent-fleet event domain (agent_signal,
// recon, stop_approval) to marcus's coordination domain.
package eventlog

import (
	"time"

	"github.com/google/uuid"
)

// EventType identifies what kind of thing happened.
type EventType string

const (
	EventAssignment     EventType = "assignment"
	EventTransition     EventType = "transition"
	EventBlocker        EventType = "blocker"
	EventReconciliation EventType = "reconciliation"
	EventMirrorFailed   EventType = "mirror_failed"
	EventAdvisorCall    EventType = "advisor_call"
	EventDispatch       EventType = "dispatch"
	EventTaskCreated    EventType = "task_created"
)

// Priority mirrors the teacher's severity buckets for backpressure
// ordering in GetPending.
const (
	PriorityCritical = 1
	PriorityHigh     = 2
	PriorityNormal   = 3
	PriorityLow      = 4
)

// Event is a single entry in the audit trail.
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	TaskID    string    `json:"task_id,omitempty"`
	AgentID   string    `json:"agent_id,omitempty"`
	Priority  int       `json:"priority"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

func newEvent(e Event) Event {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.Priority == 0 {
		e.Priority = PriorityNormal
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	return e
}
