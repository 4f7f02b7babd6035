package events

import (
	"log/slog"

	"subforge/internal/logging"
)

// LogSink writes lifecycle transitions to the application log. task:log and
// polling events are logged at debug level.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink wraps logger.
func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logging.NewComponentLogger(logger, "events")}
}

func (s *LogSink) Publish(evt Event) {
	attrs := []logging.Attr{
		logging.String(logging.FieldEventType, string(evt.Type)),
	}
	if evt.TaskID != "" {
		attrs = append(attrs, logging.String(logging.FieldTaskID, evt.TaskID))
	}
	if evt.BatchID != "" {
		attrs = append(attrs, logging.String(logging.FieldBatchID, evt.BatchID))
	}
	if evt.Task != nil && evt.Task.Stage != "" {
		attrs = append(attrs, logging.String(logging.FieldStage, evt.Task.Stage))
	}

	switch evt.Type {
	case TaskLog:
		attrs = append(attrs, logging.String("category", evt.Category))
		s.logger.Debug(evt.Message, logging.Args(attrs...)...)
	case TaskProgress:
		attrs = append(attrs, logging.Any("percent", evt.Percent))
		s.logger.Debug("extraction progress", logging.Args(attrs...)...)
	case TranscriptionPolling:
		attrs = append(attrs, logging.String("status", evt.Status))
		s.logger.Debug("transcription polled", logging.Args(attrs...)...)
	case TaskStarted:
		if evt.Task != nil {
			attrs = append(attrs, logging.String("input", evt.Task.InputPath))
		}
		s.logger.Info("task started", logging.Args(attrs...)...)
	case TranscriptionStarted:
		attrs = append(attrs, logging.String("job_id", evt.JobID))
		s.logger.Info("transcription started", logging.Args(attrs...)...)
	case TranscriptionComplete:
		attrs = append(attrs, logging.String("transcript", evt.TempTranscriptPath))
		s.logger.Info("transcription complete", logging.Args(attrs...)...)
	case TranslationStarted:
		s.logger.Info("translation started", logging.Args(attrs...)...)
	case TranslationComplete:
		attrs = append(attrs, logging.String("output", evt.OutputPath))
		s.logger.Info("translation complete", logging.Args(attrs...)...)
	case TaskCompleted:
		attrs = append(attrs, logging.String("output", evt.OutputPath))
		if evt.Task != nil {
			attrs = append(attrs, logging.Duration("elapsed", evt.Task.Duration()))
		}
		s.logger.Info("task completed", logging.Args(attrs...)...)
	case TaskFailed:
		attrs = append(attrs,
			logging.String("error", evt.Error),
			logging.String(logging.FieldErrorHint, "inspect the task log for the failing stage"),
		)
		if evt.Task != nil {
			attrs = append(attrs, logging.String(logging.FieldErrorKind, evt.Task.ErrorKind))
		}
		s.logger.Error("task failed", logging.Args(attrs...)...)
	case BatchComplete:
		if evt.Summary != nil {
			attrs = append(attrs,
				logging.Int("total", evt.Summary.Total),
				logging.Int("completed", evt.Summary.Completed),
				logging.Int("failed", evt.Summary.Failed),
			)
		}
		s.logger.Info("batch complete", logging.Args(attrs...)...)
	default:
		s.logger.Debug("event", logging.Args(attrs...)...)
	}
}
