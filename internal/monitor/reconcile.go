package monitor

import (
	"context"
	"fmt"

	"github.com/marcus-ai/marcus/internal/board"
	"github.com/marcus-ai/marcus/internal/eventlog"
	"github.com/marcus-ai/marcus/internal/store"
)

// RefreshFromBoard implements the pull half of reconciliation (spec.md
// §4.7): fetch the provider's full view and reconcile against the Task
// Store. The push half (queued, backoff-retried mirror calls) runs
// independently via board.DefaultQueue; this method only reports its
// current depth through Metrics.Observe.
func (m *Monitor) RefreshFromBoard(ctx context.Context) error {
	if m.provider == nil {
		return fmt.Errorf("monitor: no board provider configured")
	}

	external, err := m.provider.ListAllTasks(ctx)
	if err != nil {
		return err
	}

	for _, ext := range external {
		internal, err := m.store.GetTask(ext.ID)
		if err == store.ErrNotFound {
			if uerr := m.store.UpsertTask(ext); uerr != nil {
				m.events.Emit(eventlog.Event{
					Type:    eventlog.EventReconciliation,
					TaskID:  ext.ID,
					Message: fmt.Sprintf("pull: insert failed: %v", uerr),
				})
			} else {
				m.events.Emit(eventlog.Event{
					Type:    eventlog.EventReconciliation,
					TaskID:  ext.ID,
					Message: "pull: inserted task missing from internal store",
				})
			}
			continue
		}
		if err != nil {
			continue
		}

		m.reconcileExisting(internal, ext)
	}
	return nil
}

// reconcileExisting applies spec.md §4.7's two existing-task rules:
// re-push every internal assignment to the board (without first checking
// whether the board already shows it), and let the
// external column win whenever it disagrees with the internal status —
// the board is ground truth, so every disagreement converges to it
// rather than only the two cases ("done" and "todo wins over
// in_progress") the original rule set special-cased. This is what makes
// refresh_from_board satisfy spec.md §8 invariant 7 (reconciliation
// convergence) for every task, not just those two transitions.
func (m *Monitor) reconcileExisting(internal, ext *store.Task) {
	if internal.AssignedTo != "" {
		if err := m.provider.SetAssignee(context.Background(), internal.ID, internal.AssignedTo); err != nil {
			board.QueuePushRetry(internal.ID, internal.Status)
		}
	}

	if internal.Status == ext.Status {
		return
	}
	if err := m.store.ReconcileStatus(internal.ID, ext.Status); err == nil {
		m.events.Emit(eventlog.Event{
			Type:    eventlog.EventReconciliation,
			TaskID:  internal.ID,
			Message: fmt.Sprintf("pull: external board status %s overrides internal %s", ext.Status, internal.Status),
		})
	}
}
