package sinks

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/optiview/optiview/internal/events"
)

// PrometheusSink exports orchestration metrics. It owns all collectors for
// task lifecycle counts, task runtime, and decision cycles.
type PrometheusSink struct {
	tasksStarted   *prometheus.CounterVec
	tasksCompleted *prometheus.CounterVec
	tasksRunning   prometheus.Gauge
	taskRuntime    *prometheus.HistogramVec
	decisions      prometheus.Counter
	stateUpdates   *prometheus.CounterVec
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		tasksStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "optiview_tasks_started_total",
			Help: "Tasks dispatched, partitioned by task type.",
		}, []string{"type"}),
		tasksCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "optiview_tasks_completed_total",
			Help: "Tasks finished, partitioned by task type and result.",
		}, []string{"type", "result"}),
		tasksRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "optiview_tasks_running",
			Help: "Tasks currently executing across all instances.",
		}),
		taskRuntime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "optiview_task_runtime_seconds",
			Help:    "Wall time per finished task.",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
		}, []string{"type", "result"}),
		decisions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "optiview_decision_cycles_total",
			Help: "Decision cycles that proposed at least one task.",
		}),
		stateUpdates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "optiview_state_updates_total",
			Help: "Site state patches applied, partitioned by task type.",
		}, []string{"type"}),
	}
	for _, collector := range []prometheus.Collector{
		s.tasksStarted,
		s.tasksCompleted,
		s.tasksRunning,
		s.taskRuntime,
		s.decisions,
		s.stateUpdates,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register event collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors from the batch. Safe for concurrent use.
func (s *PrometheusSink) Consume(_ context.Context, batch []events.Event) error {
	for _, evt := range batch {
		s.consumeEvent(evt)
	}
	return nil
}

func (s *PrometheusSink) consumeEvent(evt events.Event) {
	switch evt.Type {
	case events.TypeTaskStarted:
		s.tasksStarted.WithLabelValues(evt.TaskType).Inc()
		s.tasksRunning.Inc()
	case events.TypeTaskCompleted:
		s.observeFinish(evt, "success")
	case events.TypeTaskFailed:
		s.observeFinish(evt, "error")
	case events.TypeDecisionMade:
		s.decisions.Inc()
	case events.TypeStateUpdated:
		s.stateUpdates.WithLabelValues(evt.TaskType).Inc()
	}
}

func (s *PrometheusSink) observeFinish(evt events.Event, result string) {
	s.tasksCompleted.WithLabelValues(evt.TaskType, result).Inc()
	s.tasksRunning.Dec()
	if evt.Dur > 0 {
		s.taskRuntime.WithLabelValues(evt.TaskType, result).Observe(evt.Dur.Seconds())
	}
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}
