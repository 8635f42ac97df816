package notify

import (
	"context"

	"go.uber.org/zap"
)

// LogSink writes events to the structured log.
type LogSink struct {
	logger *zap.SugaredLogger
}

func NewLogSink(logger *zap.SugaredLogger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Emit(_ context.Context, ev Event) error {
	s.logger.Infow("domain event", "event", ev.Name, "event_id", ev.ID, "payload", ev.Payload)
	return nil
}
