package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/ai-scrapy-dashboard/internal/activity"
)

// LogSink mirrors activity events into the service log.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a Zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each event at the matching level.
func (s *LogSink) Consume(_ context.Context, batch []activity.Event) error {
	for _, evt := range batch {
		fields := []zap.Field{
			zap.String("kind", string(evt.Kind)),
			zap.String("project_id", evt.ProjectID),
			zap.String("operation", evt.Operation),
			zap.Duration("dur", evt.Dur),
		}
		switch evt.Level {
		case activity.LevelError:
			s.logger.Error(evt.Message, fields...)
		case activity.LevelWarn:
			s.logger.Warn(evt.Message, fields...)
		default:
			s.logger.Info(evt.Message, fields...)
		}
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
