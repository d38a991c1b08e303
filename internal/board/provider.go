// Package board implements the Board Provider (spec.md §4.1): the
// capability-set interface over an external kanban service, with
// adapters for Planka, GitHub Projects, and Linear. It is grounded on
// the teacher's internal/nats client (reconnect/backoff shape) and on
// other_examples' kanban.go (Task/TaskState/lease modeling) and
// linear/github-project reference files.
package board

import (
	"context"
	"time"

	"github.com/marcus-ai/marcus/internal/store"
)

// TaskDraft is the input to CreateTask: everything the external
// generator (create_project_from_description/add_feature) knows about a
// task before the provider assigns it an id.
type TaskDraft struct {
	Name           string
	Description    string
	Labels         []string
	Priority       store.Priority
	EstimatedHours float64
	// Dependencies are resolved after creation for batches: callers pass
	// the draft's own batch-local index, not a provider id, and the
	// batch creator rewrites them into Dependencies ids once every draft
	// in the batch has been created.
	Dependencies []string
}

// BoardSummary is the provider's own aggregate view, distinct from the
// Task Store's ProjectView.
type BoardSummary struct {
	Counts map[string]int
	Stats  map[string]interface{}
}

// Provider is the polymorphic capability set every board adapter
// implements (spec.md §4.1). All methods are idempotent where the
// underlying API allows and return a normalized result or a typed
// failure from errors.go.
type Provider interface {
	ListAvailableTasks(ctx context.Context) ([]*store.Task, error)
	// ListAllTasks returns every task on the board regardless of column,
	// used by the pull half of reconciliation (spec.md §4.7) which needs
	// to see Done/Blocked/In-Progress cards too, not just the TODO queue.
	ListAllTasks(ctx context.Context) ([]*store.Task, error)
	CreateTask(ctx context.Context, draft TaskDraft) (*store.Task, error)
	UpdateStatus(ctx context.Context, taskID string, status store.TaskStatus) error
	AddComment(ctx context.Context, taskID, text string) error
	SetAssignee(ctx context.Context, taskID, agentID string) error
	GetBoardSummary(ctx context.Context) (BoardSummary, error)
}

// pushRetryItem is one queued mirror-failure retry, keyed so repeated
// identical moves coalesce (spec.md §4.7).
type pushRetryItem struct {
	taskID   string
	status   store.TaskStatus
	attempts int
	nextTry  time.Time
}
