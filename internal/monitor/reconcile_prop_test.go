package monitor

import (
	"context"
	"strconv"
	"testing"

	"pgregory.net/rapid"

	"github.com/marcus-ai/marcus/internal/eventlog"
	"github.com/marcus-ai/marcus/internal/store"
)

var allStatuses = []store.TaskStatus{
	store.StatusTODO, store.StatusInProgress, store.StatusBlocked, store.StatusDone,
}

// TestPropertyRefreshFromBoardConverges is spec.md §8 invariant 7: from
// any Task Store state and any provider state sharing the same task ids,
// refresh_from_board produces a state where internal status equals
// provider status for every task.
func TestPropertyRefreshFromBoardConverges(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		s := store.New()
		numTasks := rapid.IntRange(1, 12).Draw(t, "numTasks")

		var external []*store.Task
		for i := 0; i < numTasks; i++ {
			id := "t" + strconv.Itoa(i)
			internalStatus := allStatuses[rapid.IntRange(0, len(allStatuses)-1).Draw(t, "internalStatus")]
			externalStatus := allStatuses[rapid.IntRange(0, len(allStatuses)-1).Draw(t, "externalStatus")]

			if err := s.UpsertTask(&store.Task{ID: id, Name: id}); err != nil {
				t.Fatalf("seed task %s: %v", id, err)
			}
			driveToStatus(t, s, id, internalStatus)
			external = append(external, &store.Task{ID: id, Name: id, Status: externalStatus})
		}

		provider := &fakeProvider{all: external}
		events := eventlog.New("TEST", nil, nil)
		m := New(s, provider, nil, events, nil, DefaultConfig)

		if err := m.RefreshFromBoard(context.Background()); err != nil {
			t.Fatalf("RefreshFromBoard: %v", err)
		}

		for _, ext := range external {
			got, err := s.GetTask(ext.ID)
			if err != nil {
				t.Fatalf("get task %s: %v", ext.ID, err)
			}
			if got.Status != ext.Status {
				t.Fatalf("task %s did not converge: internal=%s provider=%s", ext.ID, got.Status, ext.Status)
			}
		}
	})
}

// driveToStatus walks a freshly created TODO task through the fewest
// legal store.SetStatus transitions needed to reach target.
func driveToStatus(t *rapid.T, s *store.Store, id string, target store.TaskStatus) {
	switch target {
	case store.StatusTODO:
		return
	case store.StatusInProgress:
		mustTransition(t, s, id, store.StatusInProgress)
	case store.StatusBlocked:
		mustTransition(t, s, id, store.StatusInProgress)
		mustTransition(t, s, id, store.StatusBlocked)
	case store.StatusDone:
		mustTransition(t, s, id, store.StatusInProgress)
		mustTransition(t, s, id, store.StatusDone)
	}
}

func mustTransition(t *rapid.T, s *store.Store, id string, target store.TaskStatus) {
	if err := s.SetStatus(id, target); err != nil {
		t.Fatalf("%s -> %s: %v", id, target, err)
	}
}
