package store

import (
	"strconv"
	"sync"
	"testing"

	"pgregory.net/rapid"
)

// TestPropertyAtMostOneAssignment is spec.md §8 invariant 1: across any
// interleaving of concurrent Assign calls for the same task, at most one
// succeeds.
func TestPropertyAtMostOneAssignment(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		s := New()
		if err := s.UpsertTask(&Task{ID: "t1", Name: "t1"}); err != nil {
			t.Fatalf("seed task: %v", err)
		}

		n := rapid.IntRange(2, 50).Draw(t, "numAgents")
		for i := 0; i < n; i++ {
			id := agentID(i)
			if err := s.UpsertAgent(&Agent{ID: id, Name: id, Capacity: 1}); err != nil {
				t.Fatalf("seed agent %s: %v", id, err)
			}
		}

		var wg sync.WaitGroup
		successes := make(chan string, n)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(id string) {
				defer wg.Done()
				if _, err := s.Assign("t1", id, ""); err == nil {
					successes <- id
				}
			}(agentID(i))
		}
		wg.Wait()
		close(successes)

		count := 0
		for range successes {
			count++
		}
		if count > 1 {
			t.Fatalf("expected at most one winning assignment, got %d", count)
		}
	})
}

// TestPropertyCapacityRespected is spec.md §8 invariant 2.
func TestPropertyCapacityRespected(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		s := New()
		capacity := rapid.IntRange(1, 4).Draw(t, "capacity")
		if err := s.UpsertAgent(&Agent{ID: "a1", Name: "a1", Capacity: capacity}); err != nil {
			t.Fatalf("seed agent: %v", err)
		}

		numTasks := rapid.IntRange(1, 10).Draw(t, "numTasks")
		for i := 0; i < numTasks; i++ {
			if err := s.UpsertTask(&Task{ID: taskID(i), Name: taskID(i)}); err != nil {
				t.Fatalf("seed task %d: %v", i, err)
			}
		}

		for i := 0; i < numTasks; i++ {
			s.Assign(taskID(i), "a1", "")
			a, err := s.GetAgent("a1")
			if err != nil {
				t.Fatalf("get agent: %v", err)
			}
			if len(a.CurrentTasks) > a.Capacity {
				t.Fatalf("agent holds %d tasks, over capacity %d", len(a.CurrentTasks), a.Capacity)
			}
		}
	})
}

// TestPropertyDAGPreserved is spec.md §8 invariant 3: UpsertTask never
// commits a dependency edge set that contains a cycle.
func TestPropertyDAGPreserved(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		s := New()
		numTasks := rapid.IntRange(2, 8).Draw(t, "numTasks")
		for i := 0; i < numTasks; i++ {
			if err := s.UpsertTask(&Task{ID: taskID(i), Name: taskID(i)}); err != nil {
				t.Fatalf("seed task %d: %v", i, err)
			}
		}

		numOps := rapid.IntRange(5, 30).Draw(t, "numOps")
		for op := 0; op < numOps; op++ {
			from := rapid.IntRange(0, numTasks-1).Draw(t, "from")
			to := rapid.IntRange(0, numTasks-1).Draw(t, "to")
			if from == to {
				continue
			}
			existing, err := s.GetTask(taskID(from))
			if err != nil {
				t.Fatalf("get task %d: %v", from, err)
			}
			deps := cloneSet(existing.Dependencies)
			if deps == nil {
				deps = make(map[string]struct{})
			}
			deps[taskID(to)] = struct{}{}
			existing.Dependencies = deps
			_ = s.UpsertTask(existing) // may legally reject a would-be cycle

			snap := s.Snapshot()
			for id, task := range snap.Tasks {
				visited := make(map[string]bool)
				if dependsOn(snap, id, id, visited) {
					t.Fatalf("cycle reachable from %s via %v", id, task.Dependencies)
				}
			}
		}
	})
}

func dependsOn(snap *Snapshot, start, target string, visited map[string]bool) bool {
	t, ok := snap.Tasks[start]
	if !ok {
		return false
	}
	for dep := range t.Dependencies {
		if dep == target && start != target {
			return true
		}
		if visited[dep] {
			continue
		}
		visited[dep] = true
		if dependsOn(snap, dep, target, visited) {
			return true
		}
	}
	return false
}

// TestPropertyNoAssignmentOfUnavailableTasks is spec.md §8 invariant 4.
func TestPropertyNoAssignmentOfUnavailableTasks(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		s := New()
		if err := s.UpsertTask(&Task{ID: "dep", Name: "dep"}); err != nil {
			t.Fatalf("seed dep: %v", err)
		}
		if err := s.UpsertTask(&Task{ID: "t1", Name: "t1", Dependencies: map[string]struct{}{"dep": {}}}); err != nil {
			t.Fatalf("seed t1: %v", err)
		}
		if err := s.UpsertAgent(&Agent{ID: "a1", Name: "a1", Capacity: 1}); err != nil {
			t.Fatalf("seed agent: %v", err)
		}

		depDone := rapid.Bool().Draw(t, "depDone")
		if depDone {
			if err := s.SetStatus("dep", StatusInProgress); err != nil {
				t.Fatalf("dep -> in_progress: %v", err)
			}
			if err := s.SetStatus("dep", StatusDone); err != nil {
				t.Fatalf("dep -> done: %v", err)
			}
		}

		_, err := s.Assign("t1", "a1", "")
		switch {
		case depDone && err != nil:
			t.Fatalf("expected assignment to succeed once dependency is done, got %v", err)
		case !depDone && err != ErrUnavailable:
			t.Fatalf("expected ErrUnavailable with an undone dependency, got %v", err)
		}
	})
}

// TestPropertyTransitionLegality is spec.md §8 invariant 5: SetStatus
// only ever moves a task to a status in validTransitions[current].
func TestPropertyTransitionLegality(t *testing.T) {
	statuses := []TaskStatus{StatusTODO, StatusInProgress, StatusBlocked, StatusDone}
	rapid.Check(t, func(t *rapid.T) {
		s := New()
		if err := s.UpsertTask(&Task{ID: "t1", Name: "t1"}); err != nil {
			t.Fatalf("seed task: %v", err)
		}

		numMoves := rapid.IntRange(1, 20).Draw(t, "numMoves")
		for i := 0; i < numMoves; i++ {
			before, err := s.GetTask("t1")
			if err != nil {
				t.Fatalf("get before: %v", err)
			}
			target := statuses[rapid.IntRange(0, len(statuses)-1).Draw(t, "target")]
			transitionErr := s.SetStatus("t1", target)

			after, err := s.GetTask("t1")
			if err != nil {
				t.Fatalf("get after: %v", err)
			}

			allowed := false
			for _, st := range validTransitions[before.Status] {
				if st == target {
					allowed = true
				}
			}
			switch {
			case allowed && transitionErr != nil:
				t.Fatalf("legal transition %s -> %s rejected: %v", before.Status, target, transitionErr)
			case allowed && after.Status != target:
				t.Fatalf("legal transition %s -> %s did not apply, got %s", before.Status, target, after.Status)
			case !allowed && transitionErr == nil:
				t.Fatalf("illegal transition %s -> %s was accepted", before.Status, target)
			case !allowed && after.Status != before.Status:
				t.Fatalf("illegal transition %s -> %s changed status to %s", before.Status, target, after.Status)
			}
		}
	})
}

// TestPropertyCompletionIdempotent is spec.md §8 invariant 6.
func TestPropertyCompletionIdempotent(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		s := New()
		if err := s.UpsertTask(&Task{ID: "t1", Name: "t1"}); err != nil {
			t.Fatalf("seed task: %v", err)
		}
		if err := s.UpsertAgent(&Agent{ID: "a1", Name: "a1", Capacity: 1}); err != nil {
			t.Fatalf("seed agent: %v", err)
		}
		if _, err := s.Assign("t1", "a1", ""); err != nil {
			t.Fatalf("seed assignment: %v", err)
		}

		if err := s.SetStatus("t1", StatusDone); err != nil {
			t.Fatalf("t1 -> done: %v", err)
		}
		if err := s.IncrementCompleted("a1"); err != nil {
			t.Fatalf("increment completed: %v", err)
		}

		attempts := rapid.IntRange(1, 5).Draw(t, "extraAttempts")
		for i := 0; i < attempts; i++ {
			// A second completion report on an already-DONE task is
			// rejected by SetStatus (DONE has no outgoing transitions);
			// the caller never re-increments on a rejected transition.
			if err := s.SetStatus("t1", StatusDone); err == nil {
				t.Fatalf("expected DONE -> DONE to be rejected")
			}
		}

		final, err := s.GetTask("t1")
		if err != nil {
			t.Fatalf("get final: %v", err)
		}
		if final.Status != StatusDone {
			t.Fatalf("expected final status done, got %s", final.Status)
		}

		agent, err := s.GetAgent("a1")
		if err != nil {
			t.Fatalf("get agent: %v", err)
		}
		if agent.CompletedCount != 1 {
			t.Fatalf("expected completed_count 1, got %d", agent.CompletedCount)
		}
	})
}

func agentID(i int) string { return "agent-" + strconv.Itoa(i) }
func taskID(i int) string  { return "task-" + strconv.Itoa(i) }
