package monitor

import (
	"testing"
	"time"

	"github.com/marcus-ai/marcus/internal/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_ObserveSetsGaugesFromView(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsWithRegisterer(reg)

	view := &store.ProjectView{
		CountsByStatus: map[store.TaskStatus]int{store.StatusTODO: 2, store.StatusDone: 1},
		AgentWorkload:  map[string]int{"a1": 3},
	}
	m.Observe(view, 5)

	if got := testutil.ToFloat64(m.tasksByStatus.WithLabelValues(string(store.StatusTODO))); got != 2 {
		t.Errorf("expected 2 todo tasks, got %v", got)
	}
	if got := testutil.ToFloat64(m.tasksByStatus.WithLabelValues(string(store.StatusDone))); got != 1 {
		t.Errorf("expected 1 done task, got %v", got)
	}
	if got := testutil.ToFloat64(m.agentWorkload.WithLabelValues("a1")); got != 3 {
		t.Errorf("expected a1 workload 3, got %v", got)
	}
	if got := testutil.ToFloat64(m.pendingRetries); got != 5 {
		t.Errorf("expected 5 pending retries, got %v", got)
	}
}

func TestMetrics_RecordAssignmentLatency(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsWithRegisterer(reg)
	m.RecordAssignmentLatency(250 * time.Millisecond)

	if got := testutil.CollectAndCount(m.assignmentLatency); got != 1 {
		t.Errorf("expected one observation recorded, got %d", got)
	}
}
