// Package sinks provides Sink implementations for the orchestration event
// hub: structured logs, an in-memory ring buffer, Prometheus collectors,
// Postgres persistence, and Pub/Sub fan-out.
package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/optiview/optiview/internal/events"
)

// LogSink writes each event as a structured log line. Useful during
// development or audits where no durable sink is configured.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each event in the batch using structured fields.
func (s *LogSink) Consume(_ context.Context, batch []events.Event) error {
	for _, evt := range batch {
		s.logger.Info("orchestration event",
			zap.String("type", string(evt.Type)),
			zap.String("org_id", evt.OrgID),
			zap.String("site_id", evt.SiteID),
			zap.String("task_id", evt.TaskID),
			zap.String("task_type", evt.TaskType),
			zap.Duration("dur", evt.Dur),
			zap.String("note", evt.Note),
		)
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
