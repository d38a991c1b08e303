package monitor

import (
	"time"

	"github.com/marcus-ai/marcus/internal/store"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics is the Project Monitor's Prometheus surface (SPEC_FULL.md §6.7),
// grounded on the pack's observability.ContextMetrics shape: a *_WithRegisterer
// constructor so tests can pass a throwaway registry instead of touching
// the global default one.
type Metrics struct {
	tasksByStatus     *prometheus.GaugeVec
	assignmentLatency prometheus.Histogram
	agentWorkload     *prometheus.GaugeVec
	pendingRetries    prometheus.Gauge
}

// NewMetrics registers the gauges against the default Prometheus registerer.
func NewMetrics() *Metrics {
	return NewMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewMetricsWithRegisterer registers against reg, used by tests and by
// cmd/marcus when a non-default registry is wired.
func NewMetricsWithRegisterer(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		tasksByStatus: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "marcus_tasks_by_status",
			Help: "Number of tasks currently in each lifecycle status.",
		}, []string{"status"}),
		assignmentLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "marcus_assignment_latency_seconds",
			Help:    "Time spent in RequestNextTask, from call to a claimed task or ErrNoTaskAvailable.",
			Buckets: prometheus.DefBuckets,
		}),
		agentWorkload: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "marcus_agent_workload",
			Help: "Number of tasks currently assigned to each agent.",
		}, []string{"agent_id"}),
		pendingRetries: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "marcus_pending_push_retries",
			Help: "Number of board mirror calls queued for retry.",
		}),
	}
	reg.MustRegister(m.tasksByStatus, m.assignmentLatency, m.agentWorkload, m.pendingRetries)
	return m
}

// Observe updates every gauge from a freshly built ProjectView; called on
// every GetProjectStatus (SPEC_FULL.md §6.7: "updated on every snapshot").
func (m *Metrics) Observe(v *store.ProjectView, pendingRetries int) {
	for _, status := range []store.TaskStatus{store.StatusTODO, store.StatusInProgress, store.StatusBlocked, store.StatusDone} {
		m.tasksByStatus.WithLabelValues(string(status)).Set(float64(v.CountsByStatus[status]))
	}
	for agentID, count := range v.AgentWorkload {
		m.agentWorkload.WithLabelValues(agentID).Set(float64(count))
	}
	m.pendingRetries.Set(float64(pendingRetries))
}

// RecordAssignmentLatency records how long a RequestNextTask call took.
func (m *Metrics) RecordAssignmentLatency(d time.Duration) {
	m.assignmentLatency.Observe(d.Seconds())
}
