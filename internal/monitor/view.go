// Package monitor implements the Project Monitor (spec.md §4.8): a pure
// read model over the Task Store's snapshot, the pull half of
// reconciliation (spec.md §4.7), Prometheus gauges, and a
// gorilla/websocket hub mirroring the view to connected dashboards,
// adapted from the teacher's internal/server.Hub.
package monitor

import (
	"time"

	"github.com/marcus-ai/marcus/internal/store"
)

// BuildProjectView recomputes store.ProjectView from a point-in-time
// snapshot; it never calls the provider. A task is reported stale when
// it is assigned to an agent whose last heartbeat is older than staleTTL,
// or when it is not DONE and past its own due date, whatever its status
// (spec.md §4.8 "stale/overdue tasks").
func BuildProjectView(snap *store.Snapshot, staleTTL time.Duration) *store.ProjectView {
	v := &store.ProjectView{
		CountsByStatus: make(map[store.TaskStatus]int),
		AgentWorkload:  make(map[string]int),
	}

	now := time.Now()
	for _, t := range snap.Tasks {
		v.CountsByStatus[t.Status]++
		v.TotalTasks++

		if t.Status == store.StatusBlocked {
			v.BlockedTasks = append(v.BlockedTasks, t.ID)
		}

		stale := false
		if t.DueDate != nil && t.DueDate.Before(now) && t.Status != store.StatusDone {
			stale = true
		}
		if t.AssignedTo != "" {
			if agent, ok := snap.Agents[t.AssignedTo]; ok && now.Sub(agent.LastHeartbeat) > staleTTL {
				stale = true
			}
		}
		if stale {
			v.StaleTasks = append(v.StaleTasks, t.ID)
		}
	}

	if v.TotalTasks > 0 {
		v.CompletionPct = float64(v.CountsByStatus[store.StatusDone]) / float64(v.TotalTasks) * 100
	}

	for id, agent := range snap.Agents {
		v.AgentWorkload[id] = len(agent.CurrentTasks)
	}

	return v
}
