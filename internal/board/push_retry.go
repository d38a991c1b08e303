package board

import (
	"context"
	"sync"
	"time"

	"github.com/marcus-ai/marcus/internal/store"
)

// PushRetryQueue is the asynchronous half of reconciliation (spec.md
// §4.7): any mirror call that failed is queued here and retried with
// capped exponential backoff by a background worker. Idempotent key is
// (task_id, target_status) — subsequent identical moves coalesce instead
// of piling up duplicate retries.
type PushRetryQueue struct {
	mu       sync.Mutex
	items    map[string]*pushRetryItem // key: taskID + ":" + status
	provider Provider
	cfg      RetryConfig
}

// defaultQueue is a package-level queue so lifecycle.Transition (which
// has no reference to a running worker) can enqueue failures without
// threading a queue handle through every call site; cmd/marcus starts
// exactly one worker against it per provider.
var defaultQueue = NewPushRetryQueue(RetryConfig{MaxAttempts: 20, BaseDelay: time.Second, MaxDelay: 2 * time.Minute})

// NewPushRetryQueue creates an empty queue. Call Attach once a Provider
// is available, then Run in a background goroutine.
func NewPushRetryQueue(cfg RetryConfig) *PushRetryQueue {
	return &PushRetryQueue{items: make(map[string]*pushRetryItem), cfg: cfg}
}

// Attach binds the provider the queue drains against.
func (q *PushRetryQueue) Attach(p Provider) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.provider = p
}

func key(taskID string, status store.TaskStatus) string {
	return taskID + ":" + string(status)
}

// Enqueue schedules (or coalesces with an existing) retry for taskID's
// move to status.
func (q *PushRetryQueue) Enqueue(taskID string, status store.TaskStatus) {
	q.mu.Lock()
	defer q.mu.Unlock()
	k := key(taskID, status)
	if _, exists := q.items[k]; exists {
		return
	}
	q.items[k] = &pushRetryItem{taskID: taskID, status: status, nextTry: time.Now().Add(q.cfg.BaseDelay)}
}

// Run drains due items every tick until ctx is done.
func (q *PushRetryQueue) Run(ctx context.Context, tick time.Duration) {
	ticker := time.NewTicker(tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			q.drainDue(ctx)
		}
	}
}

func (q *PushRetryQueue) drainDue(ctx context.Context) {
	q.mu.Lock()
	provider := q.provider
	now := time.Now()
	var due []*pushRetryItem
	for k, item := range q.items {
		if provider != nil && !item.nextTry.After(now) {
			due = append(due, item)
			delete(q.items, k)
		}
	}
	q.mu.Unlock()

	for _, item := range due {
		err := provider.UpdateStatus(ctx, item.taskID, item.status)
		if err == nil {
			continue
		}
		item.attempts++
		if item.attempts >= q.cfg.MaxAttempts {
			continue // give up; next refresh_from_board pull will reconcile
		}
		delay := q.cfg.BaseDelay * time.Duration(1<<uint(item.attempts))
		if delay > q.cfg.MaxDelay {
			delay = q.cfg.MaxDelay
		}
		item.nextTry = time.Now().Add(delay)
		q.mu.Lock()
		q.items[key(item.taskID, item.status)] = item
		q.mu.Unlock()
	}
}

// Len reports the number of retries currently queued, used by the
// Project Monitor's metrics.
func (q *PushRetryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// QueuePushRetry enqueues a failed mirror move on the default queue;
// lifecycle.Transition calls this so it doesn't need a queue reference.
func QueuePushRetry(taskID string, status store.TaskStatus) {
	defaultQueue.Enqueue(taskID, status)
}

// DefaultQueue exposes the package-level queue for cmd/marcus wiring
// (Attach + Run) and internal/monitor metrics.
func DefaultQueue() *PushRetryQueue { return defaultQueue }
