package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/clmercier/urlcollector/internal/progress"
)

// LogSink emits structured logs for crawl progress. It is useful during
// development or when a metrics backend is unavailable.
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

// Consume logs each event in the batch using structured fields.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		fields := []zap.Field{
			zap.String("stage", string(evt.Stage)),
			zap.Int("worker_id", evt.WorkerID),
			zap.String("url", evt.URL),
			zap.Int("depth", evt.Depth),
		}
		switch evt.Stage {
		case progress.StagePageCrawled:
			fields = append(fields,
				zap.Int("http_status", evt.HTTPStatus),
				zap.Int64("bytes", evt.Bytes),
				zap.Duration("dur", evt.Dur),
			)
		case progress.StagePageFailed:
			fields = append(fields, zap.String("error", evt.Note))
		}
		s.logger.Info("crawl progress", fields...)
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
