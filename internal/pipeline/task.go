package pipeline

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"subforge/internal/events"
	"subforge/internal/services"
)

// Workflow selects the stage sequence for a task.
type Workflow string

const (
	// WorkflowVideo extracts audio, transcribes it, and optionally translates
	// the transcript.
	WorkflowVideo Workflow = "video"
	// WorkflowSubtitle translates an existing subtitle file.
	WorkflowSubtitle Workflow = "subtitle"
)

// ParseWorkflow validates a workflow name. Empty input selects the video
// workflow.
func ParseWorkflow(value string) (Workflow, error) {
	switch wf := Workflow(strings.ToLower(strings.TrimSpace(value))); wf {
	case "":
		return WorkflowVideo, nil
	case WorkflowVideo, WorkflowSubtitle:
		return wf, nil
	default:
		return "", services.Wrap(services.ErrValidation, "", "parse workflow", fmt.Sprintf("unknown workflow %q (want video or subtitle)", value), nil)
	}
}

// ErrInvalidTransition reports an attempt to move a task backwards or out of
// a terminal stage.
var ErrInvalidTransition = errors.New("invalid stage transition")

// Task is one file's journey through the pipeline. A Task is owned by the
// goroutine running it; everyone else observes it through Snapshot.
type Task struct {
	ID             string
	BatchID        string
	Workflow       Workflow
	InputPath      string
	TargetLanguage string

	Stage              Stage
	TempAudioPath      string
	TempTranscriptPath string
	OutputPath         string
	Fallback           bool

	// Err is the fatal error, set only on Failed. FailedStage is the stage
	// the task was in when it failed.
	Err         error
	FailedStage Stage

	StartedAt time.Time
	EndedAt   time.Time

	// produced holds the written output until the task is Completed.
	produced string
}

// NewTask returns a Pending task.
func NewTask(id, batchID string, workflow Workflow, inputPath, targetLanguage string) *Task {
	if workflow == "" {
		workflow = WorkflowVideo
	}
	return &Task{
		ID:             id,
		BatchID:        batchID,
		Workflow:       workflow,
		InputPath:      inputPath,
		TargetLanguage: strings.TrimSpace(targetLanguage),
		Stage:          StagePending,
	}
}

// Translates reports whether the task ends with a translation step.
func (t *Task) Translates() bool {
	return t.TargetLanguage != ""
}

func (t *Task) advance(next Stage) error {
	if t.Stage.IsTerminal() || next.Rank() <= t.Stage.Rank() {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, t.Stage, next)
	}
	t.Stage = next
	return nil
}

// ErrorMessage renders the failure for display.
func (t *Task) ErrorMessage() string {
	if t.Err == nil {
		return ""
	}
	if errors.Is(t.Err, services.ErrCanceled) {
		return "Task canceled"
	}
	switch t.FailedStage {
	case StageExtracting:
		return "Audio extraction failed: " + t.Err.Error()
	case StageTranscribing:
		return "Transcription failed: " + t.Err.Error()
	case StageTranslating:
		return "Translation failed: " + t.Err.Error()
	default:
		return t.Err.Error()
	}
}

// Snapshot returns a read-only copy for observers.
func (t *Task) Snapshot() events.Snapshot {
	snap := events.Snapshot{
		ID:                 t.ID,
		BatchID:            t.BatchID,
		Workflow:           string(t.Workflow),
		InputPath:          t.InputPath,
		TargetLanguage:     t.TargetLanguage,
		Stage:              string(t.Stage),
		TempAudioPath:      t.TempAudioPath,
		TempTranscriptPath: t.TempTranscriptPath,
		OutputPath:         t.OutputPath,
		Fallback:           t.Fallback,
	}
	if t.Err != nil {
		snap.Error = t.ErrorMessage()
		snap.ErrorKind = services.Kind(t.Err)
	}
	if !t.StartedAt.IsZero() {
		started := t.StartedAt
		snap.StartedAt = &started
	}
	if !t.EndedAt.IsZero() {
		ended := t.EndedAt
		snap.EndedAt = &ended
	}
	return snap
}
