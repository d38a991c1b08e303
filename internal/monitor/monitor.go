package monitor

import (
	"context"
	"time"

	"github.com/marcus-ai/marcus/internal/board"
	"github.com/marcus-ai/marcus/internal/eventlog"
	"github.com/marcus-ai/marcus/internal/store"
)

// Monitor is the Project Monitor (C7): a pure read model plus the pull
// half of reconciliation, wired to Prometheus and a websocket dashboard
// hub.
type Monitor struct {
	store    *store.Store
	provider board.Provider // nil when running without a board (pull disabled)
	queue    *board.PushRetryQueue
	events   *eventlog.Log
	metrics  *Metrics
	hub      *Hub
	staleTTL time.Duration
}

// Config is the Project Monitor's tunable: how old a heartbeat/due date
// has to be before a task is reported stale in GetProjectStatus.
type Config struct {
	StaleTTL time.Duration
}

// DefaultConfig mirrors the Assignment Engine's default stale window
// (internal/assignment.DefaultConfig.StaleTTL) so a task an agent still
// owns is reported stale at the same moment it becomes eligible for
// reassignment.
var DefaultConfig = Config{StaleTTL: 5 * time.Minute}

// New builds a Monitor. provider may be nil (no board configured, pull
// reconciliation disabled); queue may be nil (no push-retry metrics).
func New(s *store.Store, provider board.Provider, queue *board.PushRetryQueue, events *eventlog.Log, metrics *Metrics, cfg Config) *Monitor {
	if cfg.StaleTTL <= 0 {
		cfg = DefaultConfig
	}
	return &Monitor{
		store:    s,
		provider: provider,
		queue:    queue,
		events:   events,
		metrics:  metrics,
		hub:      NewHub(),
		staleTTL: cfg.StaleTTL,
	}
}

// Hub exposes the websocket hub for cmd/marcus's HTTP mux to register
// the upgrade endpoint against.
func (m *Monitor) Hub() *Hub { return m.hub }

// GetProjectStatus is the pure function over store.Snapshot() named in
// spec.md §4.8: no provider calls, recomputed on demand. It updates the
// Prometheus gauges and mirrors the view to any connected dashboard as a
// side effect of every call, matching SPEC_FULL.md §6.7.
func (m *Monitor) GetProjectStatus(_ context.Context) *store.ProjectView {
	snap := m.store.Snapshot()
	view := BuildProjectView(snap, m.staleTTL)

	pending := 0
	if m.queue != nil {
		pending = m.queue.Len()
	}
	if m.metrics != nil {
		m.metrics.Observe(view, pending)
	}
	if m.hub != nil {
		m.hub.BroadcastView(view)
	}
	return view
}
