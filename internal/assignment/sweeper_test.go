package assignment

import (
	"context"
	"testing"
	"time"

	"github.com/marcus-ai/marcus/internal/advisor"
	"github.com/marcus-ai/marcus/internal/eventlog"
	"github.com/marcus-ai/marcus/internal/lifecycle"
	"github.com/marcus-ai/marcus/internal/store"
)

func TestSweeper_ReclaimsStaleAgentTasks(t *testing.T) {
	s := store.New()
	events := eventlog.New("TEST", nil, nil)
	m := lifecycle.New(s, nil, events)
	cfg := Config{RetryLimit: 3, StaleCheckInterval: time.Millisecond, StaleTTL: time.Millisecond, AdvisorDeadline: time.Second}
	e := New(s, m, events, advisor.NewNullAdvisor(), cfg)
	sweeper := NewSweeper(e)

	if err := s.UpsertAgent(&store.Agent{ID: "a1", Capacity: 1}); err != nil {
		t.Fatalf("seed agent: %v", err)
	}
	if err := s.UpsertTask(&store.Task{ID: "t1"}); err != nil {
		t.Fatalf("seed task: %v", err)
	}
	if _, err := s.Assign("t1", "a1", ""); err != nil {
		t.Fatalf("seed assignment: %v", err)
	}

	time.Sleep(5 * time.Millisecond)
	sweeper.sweep(context.Background())

	task, err := s.GetTask("t1")
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if task.Status != store.StatusTODO {
		t.Errorf("expected task reclaimed to TODO, got %s", task.Status)
	}
	if task.AssignedTo != "" {
		t.Errorf("expected assignment cleared, got %s", task.AssignedTo)
	}

	agent, err := s.GetAgent("a1")
	if err != nil {
		t.Fatalf("GetAgent: %v", err)
	}
	if len(agent.CurrentTasks) != 0 {
		t.Errorf("expected agent to hold no tasks after sweep")
	}
}

func TestSweeper_SkipsRecentlyHeardAgents(t *testing.T) {
	s := store.New()
	events := eventlog.New("TEST", nil, nil)
	m := lifecycle.New(s, nil, events)
	cfg := Config{RetryLimit: 3, StaleCheckInterval: time.Millisecond, StaleTTL: time.Hour, AdvisorDeadline: time.Second}
	e := New(s, m, events, advisor.NewNullAdvisor(), cfg)
	sweeper := NewSweeper(e)

	if err := s.UpsertAgent(&store.Agent{ID: "a1", Capacity: 1}); err != nil {
		t.Fatalf("seed agent: %v", err)
	}
	if err := s.UpsertTask(&store.Task{ID: "t1"}); err != nil {
		t.Fatalf("seed task: %v", err)
	}
	if _, err := s.Assign("t1", "a1", ""); err != nil {
		t.Fatalf("seed assignment: %v", err)
	}

	sweeper.sweep(context.Background())

	task, err := s.GetTask("t1")
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if task.Status != store.StatusInProgress {
		t.Errorf("expected task to remain IN_PROGRESS, got %s", task.Status)
	}
}
