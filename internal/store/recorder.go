package store

import (
	"context"
	"log/slog"
	"time"

	"subforge/internal/events"
	"subforge/internal/logging"
)

const writeTimeout = 5 * time.Second

// Recorder is an events.Sink that persists task snapshots and batch summaries.
type Recorder struct {
	store  *Store
	logger *slog.Logger
}

// NewRecorder returns a sink writing to store.
func NewRecorder(store *Store, logger *slog.Logger) *Recorder {
	return &Recorder{store: store, logger: logging.NewComponentLogger(logger, "store")}
}

// Publish persists events that carry task state. Write failures are logged and
// never reach the pipeline.
func (r *Recorder) Publish(evt events.Event) {
	if r == nil || r.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	var err error
	switch {
	case evt.Type == events.BatchComplete && evt.Summary != nil:
		err = r.store.RecordBatch(ctx, evt.BatchID, *evt.Summary, evt.Time)
	case evt.Task != nil:
		err = r.store.Upsert(ctx, *evt.Task)
	default:
		return
	}
	if err != nil {
		logging.WarnWithContext(r.logger, "task history write failed", "store_write_failed",
			logging.String(logging.FieldTaskID, evt.TaskID),
			logging.String(logging.FieldBatchID, evt.BatchID),
			logging.String("event", string(evt.Type)),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check that "+r.store.Path()+" is writable"),
			logging.String(logging.FieldImpact, "task history may be stale"),
		)
	}
}
