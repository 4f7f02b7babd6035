package pipeline

import (
	"context"

	"subforge/internal/events"
	"subforge/internal/services/transcription"
	"subforge/internal/tasklog"
)

// transcriptionObserver forwards client progress into the task journal and
// event stream.
type transcriptionObserver struct {
	pipeline *Pipeline
	ctx      context.Context
	task     *Task
}

func (o *transcriptionObserver) Started(jobID string) {
	o.pipeline.emit(events.Event{
		Type:    events.TranscriptionStarted,
		BatchID: o.task.BatchID,
		TaskID:  o.task.ID,
		JobID:   jobID,
	})
}

func (o *transcriptionObserver) Polling(status transcription.RemoteStatus) {
	o.pipeline.emit(events.Event{
		Type:    events.TranscriptionPolling,
		BatchID: o.task.BatchID,
		TaskID:  o.task.ID,
		Status:  status.String(),
		Percent: float64(status.Progress),
	})
}

func (o *transcriptionObserver) Log(category, message string) {
	o.pipeline.record(o.ctx, o.task, tasklog.ParseCategory(category), message)
}

type translationObserver struct {
	pipeline *Pipeline
	ctx      context.Context
	task     *Task
}

func (o *translationObserver) Log(category, message string) {
	o.pipeline.record(o.ctx, o.task, tasklog.ParseCategory(category), message)
}
