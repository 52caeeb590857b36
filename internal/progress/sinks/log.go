package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/movie-plot-crawler/internal/progress"
)

// LogSink writes run milestones to a zap logger. Per-title PLOT_DONE events
// go to Debug; everything else is Info.
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

// Consume logs each event in the batch.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		fields := []zap.Field{
			zap.String("run_id", evt.RunID),
			zap.String("stage", string(evt.Stage)),
		}
		switch evt.Stage {
		case progress.StageRunStart, progress.StageLookupStart:
			fields = append(fields, zap.Int("total", evt.Total))
		case progress.StagePageDone:
			fields = append(fields,
				zap.String("genre", evt.Genre),
				zap.Int("start", evt.Start),
				zap.Int("records", evt.Records),
				zap.Duration("dur", evt.Dur),
			)
		case progress.StagePlotDone:
			s.logger.Debug("progress event", append(fields,
				zap.String("title", evt.Title),
				zap.String("reason", string(evt.Reason)),
			)...)
			continue
		case progress.StageWriteDone:
			fields = append(fields, zap.Int("rows", evt.Records), zap.String("uri", evt.Note))
		case progress.StageRunDone:
			fields = append(fields, zap.Duration("dur", evt.Dur))
		case progress.StageRunError:
			fields = append(fields, zap.String("error", evt.Note))
		}
		s.logger.Info("progress event", fields...)
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
