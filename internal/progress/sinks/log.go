// Package sinks contains the built-in progress sink implementations.
package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/jobkontakt/crawler/internal/progress"
)

// LogSink writes every event to the structured log at debug level, milestone
// failures at warn.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink builds a LogSink.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs the batch.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		fields := []zap.Field{
			zap.String("worker_id", evt.WorkerID),
			zap.String("kind", string(evt.Kind)),
		}
		if evt.Employer != "" {
			fields = append(fields, zap.String("employer", evt.Employer))
		}
		if evt.Reference != "" {
			fields = append(fields, zap.String("reference", evt.Reference))
		}
		if evt.Outcome != "" {
			fields = append(fields, zap.String("outcome", evt.Outcome))
		}
		if evt.Dur > 0 {
			fields = append(fields, zap.Duration("duration", evt.Dur))
		}
		if evt.Note != "" {
			fields = append(fields, zap.String("note", evt.Note))
		}
		if evt.Outcome == "error" || evt.Outcome == "failed" {
			s.logger.Warn("progress", fields...)
			continue
		}
		s.logger.Debug("progress", fields...)
	}
	return nil
}

// Close is a no-op; the logger outlives the sink.
func (s *LogSink) Close(_ context.Context) error {
	return nil
}
