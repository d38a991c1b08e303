package assignment

import (
	"context"
	"fmt"
	"time"

	"github.com/marcus-ai/marcus/internal/eventlog"
)

// Sweeper periodically reclaims tasks held by agents that have stopped
// heartbeating, the only mechanism by which a task leaves IN_PROGRESS
// without an agent-driven transition (spec.md §4.3).
type Sweeper struct {
	engine *Engine
}

// NewSweeper binds a Sweeper to the Engine whose store and config it
// reuses.
func NewSweeper(e *Engine) *Sweeper {
	return &Sweeper{engine: e}
}

// Run ticks every StaleCheckInterval until ctx is canceled, sweeping
// stale agents on each tick.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.engine.cfg.StaleCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	stale := s.engine.store.StaleAgents(s.engine.cfg.StaleTTL)
	for _, agent := range stale {
		cleared, err := s.engine.store.ForceClearAgentTasks(agent.ID)
		if err != nil {
			continue
		}
		for _, taskID := range cleared {
			if s.engine.machine != nil {
				s.engine.machine.ReclaimTransition(ctx, taskID, "reassigned due to agent timeout")
			}
			s.engine.events.Emit(eventlog.Event{
				Type:    eventlog.EventReconciliation,
				TaskID:  taskID,
				AgentID: agent.ID,
				Message: fmt.Sprintf("reclaimed from stale agent %s (last heartbeat %s)", agent.ID, agent.LastHeartbeat.Format(time.RFC3339)),
			})
		}
	}
}
