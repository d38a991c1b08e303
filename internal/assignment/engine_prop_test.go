package assignment

import (
	"context"
	"strconv"
	"sync"
	"testing"

	"pgregory.net/rapid"

	"github.com/marcus-ai/marcus/internal/advisor"
	"github.com/marcus-ai/marcus/internal/eventlog"
	"github.com/marcus-ai/marcus/internal/lifecycle"
	"github.com/marcus-ai/marcus/internal/store"
)

// freshEngine builds an Engine/Store pair with no *testing.T dependency,
// for use inside a rapid.Check callback (which only has a *rapid.T).
func freshEngine() (*Engine, *store.Store) {
	s := store.New()
	events := eventlog.New("TEST", nil, nil)
	m := lifecycle.New(s, nil, events)
	return New(s, m, events, advisor.NewNullAdvisor(), DefaultConfig), s
}

// TestPropertyRequestNextTaskAtMostOneWinner is spec.md §8 scenario 3
// ("Race"): N concurrent RequestNextTask calls across N agents against a
// single TODO task resolve to exactly one winner.
func TestPropertyRequestNextTaskAtMostOneWinner(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		e, s := freshEngine()
		if err := s.UpsertTask(&store.Task{ID: "t1", Name: "t1", Priority: store.PriorityMedium}); err != nil {
			t.Fatalf("seed task: %v", err)
		}

		n := rapid.IntRange(2, 50).Draw(t, "numAgents")
		agentIDs := make([]string, n)
		for i := range agentIDs {
			id := "race-agent-" + strconv.Itoa(i)
			agentIDs[i] = id
			if err := s.UpsertAgent(&store.Agent{ID: id, Name: id, Capacity: 1}); err != nil {
				t.Fatalf("seed agent %s: %v", id, err)
			}
		}

		var wg sync.WaitGroup
		wins := make(chan string, n)
		for _, id := range agentIDs {
			wg.Add(1)
			go func(agentID string) {
				defer wg.Done()
				if _, err := e.RequestNextTask(context.Background(), agentID); err == nil {
					wins <- agentID
				}
			}(id)
		}
		wg.Wait()
		close(wins)

		count := 0
		for range wins {
			count++
		}
		if count != 1 {
			t.Fatalf("expected exactly one winner, got %d", count)
		}

		task, err := s.GetTask("t1")
		if err != nil {
			t.Fatalf("get task: %v", err)
		}
		if task.Status != store.StatusInProgress || task.AssignedTo == "" {
			t.Fatalf("expected t1 assigned and in_progress, got status=%s assigned_to=%q", task.Status, task.AssignedTo)
		}
	})
}

// TestPropertyRetryLimitBoundsContentionLoss is a regression guard on
// RequestNextTask when every task is already taken: the candidate set is
// empty, so the caller loses cleanly with reason "no_candidates" before
// the contention-retry loop runs, rather than panicking.
func TestPropertyRetryLimitBoundsContentionLoss(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		e, s := freshEngine()
		numTasks := rapid.IntRange(1, 5).Draw(t, "numTasks")
		for i := 0; i < numTasks; i++ {
			id := "t" + strconv.Itoa(i)
			if err := s.UpsertTask(&store.Task{ID: id, Name: id}); err != nil {
				t.Fatalf("seed task %s: %v", id, err)
			}
		}
		if err := s.UpsertAgent(&store.Agent{ID: "holder", Capacity: numTasks}); err != nil {
			t.Fatalf("seed holder: %v", err)
		}
		for i := 0; i < numTasks; i++ {
			id := "t" + strconv.Itoa(i)
			if _, err := s.Assign(id, "holder", ""); err != nil {
				t.Fatalf("seed assignment %s: %v", id, err)
			}
		}

		if err := s.UpsertAgent(&store.Agent{ID: "latecomer", Capacity: 1}); err != nil {
			t.Fatalf("seed latecomer: %v", err)
		}
		_, err := e.RequestNextTask(context.Background(), "latecomer")
		var nta *ErrNoTaskAvailable
		if !asNoTaskAvailable(err, &nta) || nta.Reason != "no_candidates" {
			t.Fatalf("expected ErrNoTaskAvailable{no_candidates}, got %v", err)
		}
	})
}
