// Package assignment implements the Assignment Engine (spec.md §4.3): the
// scoring algorithm behind request_next_task, its contention retry, and
// the background stale-agent sweeper. The at-most-once guarantee rests
// entirely on store.Store.Assign; every scoring and retry step here only
// reads.
package assignment

import (
	"context"
	"fmt"
	"log"
	"math"
	"sort"
	"time"

	"github.com/marcus-ai/marcus/internal/advisor"
	"github.com/marcus-ai/marcus/internal/eventlog"
	"github.com/marcus-ai/marcus/internal/lifecycle"
	"github.com/marcus-ai/marcus/internal/store"
)

// ErrNoTaskAvailable is returned with a reason describing why no
// assignment could be made ("at_capacity", "contention", "no_candidates").
type ErrNoTaskAvailable struct {
	Reason string
}

func (e *ErrNoTaskAvailable) Error() string {
	return fmt.Sprintf("assignment: no task available: %s", e.Reason)
}

// Config bounds the engine's retry and sweep behavior (spec.md §6
// assignment_retry_limit / stale_check_interval / stale_ttl).
type Config struct {
	RetryLimit         int
	StaleCheckInterval time.Duration
	StaleTTL           time.Duration
	AdvisorDeadline    time.Duration
}

// DefaultConfig matches spec.md §4.3's "up to 3 times" retry rule.
var DefaultConfig = Config{
	RetryLimit:         3,
	StaleCheckInterval: 30 * time.Second,
	StaleTTL:           5 * time.Minute,
	AdvisorDeadline:    3 * time.Second,
}

// Engine is the Assignment Engine (C3).
type Engine struct {
	store   *store.Store
	machine *lifecycle.Machine
	events  *eventlog.Log
	advisor advisor.Advisor
	cfg     Config
}

// New constructs an Engine. advisorImpl may be advisor.NewNullAdvisor()
// when ai.enabled=false.
func New(s *store.Store, m *lifecycle.Machine, events *eventlog.Log, adv advisor.Advisor, cfg Config) *Engine {
	if cfg.RetryLimit <= 0 {
		cfg = DefaultConfig
	}
	return &Engine{store: s, machine: m, events: events, advisor: adv, cfg: cfg}
}

// scored pairs a candidate task with its computed total score.
type scored struct {
	task  *store.Task
	total float64
}

// priorityScore maps a Priority to the 1-4 bucket of spec.md §4.3 step 3.
func priorityScore(p store.Priority) float64 {
	return p.Weight()
}

// skillScore is the fraction of t.Labels intersecting agent.Skills; tasks
// with no skill-indicating labels score a neutral 0.5.
func skillScore(t *store.Task, a *store.Agent) float64 {
	if len(t.Labels) == 0 {
		return 0.5
	}
	skillSet := make(map[string]struct{}, len(a.Skills))
	for _, s := range a.Skills {
		skillSet[s] = struct{}{}
	}
	hit := 0
	for label := range t.Labels {
		if _, ok := skillSet[label]; ok {
			hit++
		}
	}
	if hit == 0 {
		// No intersection still counts as a scored label set, not "no
		// skill-indicating labels" — spec.md §4.3 distinguishes the two.
		return 0
	}
	return float64(hit) / float64(len(t.Labels))
}

// ageScore grows linearly with task age, capped at 1 after 14 days.
func ageScore(t *store.Task) float64 {
	days := time.Since(t.CreatedAt).Hours() / 24
	return math.Min(1, days/14)
}

// dependencyUnblockScore is the count of tasks depending on t, clamped to
// 5 and normalized to [0,1].
func dependencyUnblockScore(s *store.Store, t *store.Task) float64 {
	n := len(s.DependentsOf(t.ID))
	if n > 5 {
		n = 5
	}
	return float64(n) / 5
}

func (e *Engine) score(t *store.Task, a *store.Agent) scored {
	total := 10*priorityScore(t.Priority) +
		5*skillScore(t, a) +
		2*ageScore(t) +
		3*dependencyUnblockScore(e.store, t)
	return scored{task: t, total: total}
}

// rank scores every candidate and sorts descending by total, tie-broken
// by created_at then lexicographic id (spec.md §4.3 step 4).
func (e *Engine) rank(candidates []*store.Task, a *store.Agent) []scored {
	out := make([]scored, 0, len(candidates))
	for _, t := range candidates {
		out = append(out, e.score(t, a))
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].total != out[j].total {
			return out[i].total > out[j].total
		}
		if !out[i].task.CreatedAt.Equal(out[j].task.CreatedAt) {
			return out[i].task.CreatedAt.Before(out[j].task.CreatedAt)
		}
		return out[i].task.ID < out[j].task.ID
	})
	return out
}

// RequestNextTask runs the full spec.md §4.3 algorithm: capacity check,
// candidate scoring, contention-retry assignment, board mirror, and a
// best-effort advisor call made strictly outside the store's lock.
func (e *Engine) RequestNextTask(ctx context.Context, agentID string) (*store.Assignment, error) {
	agent, err := e.store.GetAgent(agentID)
	if err != nil {
		return nil, err
	}
	if len(agent.CurrentTasks) >= agent.Capacity {
		return nil, &ErrNoTaskAvailable{Reason: "at_capacity"}
	}

	candidates := e.store.CandidateTasks()
	if len(candidates) == 0 {
		return nil, &ErrNoTaskAvailable{Reason: "no_candidates"}
	}
	ranked := e.rank(candidates, agent)

	limit := e.cfg.RetryLimit
	if limit > len(ranked) {
		limit = len(ranked)
	}
	var assigned *store.Assignment
	var assignedTask *store.Task
	var assignedScore float64
	for i := 0; i < limit; i++ {
		candidate := ranked[i].task
		a, err := e.store.Assign(candidate.ID, agentID, "")
		if err == nil {
			assigned = a
			assignedTask = candidate
			assignedScore = ranked[i].total
			break
		}
		if err != store.ErrAlreadyAssigned && err != store.ErrUnavailable {
			return nil, err
		}
	}
	if assigned == nil {
		return nil, &ErrNoTaskAvailable{Reason: "contention"}
	}

	e.machine.AssignTransition(ctx, assignedTask.ID, agentID)
	e.events.Emit(eventlog.Event{
		Type:    eventlog.EventAssignment,
		TaskID:  assignedTask.ID,
		AgentID: agentID,
		Message: fmt.Sprintf("assigned with score %.2f", assignedScore),
	})

	instructions := e.generateInstructions(ctx, assignedTask, agent)
	assigned.Instructions = instructions
	return assigned, nil
}

// generateInstructions calls the Advisor with data already copied out of
// the store (TaskContext holds clones), bounded to AdvisorDeadline, and
// never blocks the store's critical section (spec.md §4.3 step 7,
// SPEC_FULL.md §6.3).
func (e *Engine) generateInstructions(ctx context.Context, t *store.Task, a *store.Agent) string {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.AdvisorDeadline)
	defer cancel()
	text, err := e.advisor.GenerateTaskInstructions(ctx, advisor.TaskContext{Task: t, Agent: a})
	if err != nil {
		log.Printf("[ASSIGNMENT] advisor call failed for task %s: %v", t.ID, err)
		return fmt.Sprintf("Task: %s\n%s", t.Name, t.Description)
	}
	e.events.Emit(eventlog.Event{
		Type:    eventlog.EventAdvisorCall,
		TaskID:  t.ID,
		AgentID: a.ID,
		Message: "generated assignment instructions",
	})
	return text
}
