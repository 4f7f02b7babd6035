package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"subforge/internal/events"
	"subforge/internal/ffmpeg"
	"subforge/internal/logging"
	"subforge/internal/services"
	"subforge/internal/services/transcription"
	"subforge/internal/services/translation"
	"subforge/internal/tasklog"
)

// Extractor turns a media file into a WAV file.
type Extractor interface {
	Extract(ctx context.Context, req ffmpeg.ExtractRequest) (string, error)
}

// Transcriber produces an SRT transcript for an audio file.
type Transcriber interface {
	Transcribe(ctx context.Context, req transcription.Request) (transcription.Result, error)
}

// Translator translates SRT content, falling back to the input when the
// service stays unavailable.
type Translator interface {
	Translate(ctx context.Context, req translation.Request) (translation.Result, error)
}

// Journal is the durable per-task log.
type Journal interface {
	Append(taskID string, category tasklog.Category, message string) (tasklog.Entry, error)
}

// Cleaner reconciles temp artifacts once a task is terminal.
type Cleaner interface {
	Reconcile(ctx context.Context, snap events.Snapshot) error
}

// Dependencies are the collaborators a Pipeline drives. Journal, Cleaner,
// Events, and Logger are optional.
type Dependencies struct {
	Extractor   Extractor
	Transcriber Transcriber
	Translator  Translator
	Journal     Journal
	Cleaner     Cleaner
	Events      events.Sink
	Logger      *slog.Logger
}

// Layout locates a batch's output and scratch space. Each task gets its own
// {ScratchDir}/{taskID} directory.
type Layout struct {
	OutputDir  string
	ScratchDir string
}

// Pipeline runs tasks through their stages. A Pipeline is safe for concurrent
// use by tasks that do not share an ID.
type Pipeline struct {
	deps   Dependencies
	layout Layout
	logger *slog.Logger
	now    func() time.Time
}

// New returns a Pipeline writing into layout.
func New(deps Dependencies, layout Layout) *Pipeline {
	if deps.Events == nil {
		deps.Events = events.Discard
	}
	return &Pipeline{
		deps:   deps,
		layout: layout,
		logger: logging.NewComponentLogger(deps.Logger, "pipeline"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Layout returns the directories the pipeline writes into.
func (p *Pipeline) Layout() Layout { return p.layout }

// TaskDir returns the scratch directory for a task.
func (p *Pipeline) TaskDir(taskID string) string {
	return filepath.Join(p.layout.ScratchDir, taskID)
}

// Run drives task to a terminal stage and returns its final snapshot. Run
// never returns an error: failures are recorded on the task, journaled, and
// published as task:failed.
func (p *Pipeline) Run(ctx context.Context, task *Task) events.Snapshot {
	ctx = services.WithTaskID(ctx, task.ID)
	if task.BatchID != "" {
		ctx = services.WithBatchID(ctx, task.BatchID)
	}
	logger := logging.WithContext(ctx, p.logger)

	task.StartedAt = p.now()
	snap := task.Snapshot()
	p.emit(events.Event{Type: events.TaskStarted, BatchID: task.BatchID, TaskID: task.ID, Task: &snap})
	p.record(ctx, task, tasklog.CategoryMetadata, fmt.Sprintf("Task started: %s (%s workflow)", task.InputPath, task.Workflow))
	logger.Info("task started",
		logging.String(logging.FieldEventType, "task_start"),
		logging.String("input", task.InputPath),
		logging.String("workflow", string(task.Workflow)),
		logging.String("target_language", task.TargetLanguage),
	)

	if err := p.execute(ctx, task); err != nil {
		return p.fail(ctx, task, err)
	}
	return p.complete(ctx, task)
}

func (p *Pipeline) execute(ctx context.Context, task *Task) error {
	switch task.Workflow {
	case WorkflowSubtitle:
		return p.runStage(ctx, task, StageTranslating, p.translateInput)
	case WorkflowVideo:
		if err := p.runStage(ctx, task, StageExtracting, p.extract); err != nil {
			return err
		}
		if err := p.runStage(ctx, task, StageTranscribing, p.transcribe); err != nil {
			return err
		}
		if !task.Translates() {
			return nil
		}
		return p.runStage(ctx, task, StageTranslating, p.translateTranscript)
	default:
		return services.Wrap(services.ErrValidation, "", "run task", fmt.Sprintf("unknown workflow %q", task.Workflow), nil)
	}
}

type stageFunc func(ctx context.Context, task *Task) error

// runStage advances the task into stage, runs fn, and logs the boundary.
func (p *Pipeline) runStage(ctx context.Context, task *Task, stage Stage, fn stageFunc) error {
	if err := ctx.Err(); err != nil {
		return services.Canceled(string(stage), err)
	}
	previous := task.Stage
	if err := task.advance(stage); err != nil {
		return err
	}
	stageCtx := services.WithStage(ctx, string(stage))
	logger := logging.WithContext(stageCtx, p.logger)
	snap := task.Snapshot()
	p.recordSnapshot(ctx, task, tasklog.CategoryProcess, fmt.Sprintf("Stage: %s -> %s", previous.Label(), stage.Label()), &snap)
	logger.Info("stage started",
		logging.String(logging.FieldEventType, "stage_start"),
		logging.String("previous_stage", string(previous)),
	)

	started := time.Now()
	if err := fn(stageCtx, task); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return services.Canceled(string(stage), ctxErr)
		}
		return services.Canceled(string(stage), err)
	}

	logger.Info("stage completed",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.Duration("elapsed", time.Since(started).Round(time.Millisecond)),
	)
	return nil
}

func (p *Pipeline) extract(ctx context.Context, task *Task) error {
	if p.deps.Extractor == nil {
		return services.Wrap(services.ErrConfiguration, string(StageExtracting), "extract audio", "no audio extractor configured", nil)
	}
	audioPath := filepath.Join(p.TaskDir(task.ID), AudioName(task.InputPath))
	p.record(ctx, task, tasklog.CategoryProcess, fmt.Sprintf("Extracting audio: %s", task.InputPath))

	_, err := p.deps.Extractor.Extract(ctx, ffmpeg.ExtractRequest{
		Input:  task.InputPath,
		Output: audioPath,
		Progress: func(percent float64) {
			p.emit(events.Event{Type: events.TaskProgress, BatchID: task.BatchID, TaskID: task.ID, Percent: percent})
		},
	})
	if err != nil {
		return err
	}
	task.TempAudioPath = audioPath
	p.record(ctx, task, tasklog.CategoryProcess, fmt.Sprintf("Audio extracted to temp: %s", audioPath))
	return nil
}

func (p *Pipeline) transcribe(ctx context.Context, task *Task) error {
	if p.deps.Transcriber == nil {
		return services.Wrap(services.ErrConfiguration, string(StageTranscribing), "transcribe", "no transcription client configured", nil)
	}
	transcriptPath := filepath.Join(p.TaskDir(task.ID), TranscriptName(task.InputPath))

	result, err := p.deps.Transcriber.Transcribe(ctx, transcription.Request{
		TaskID:         task.ID,
		AudioPath:      task.TempAudioPath,
		TranscriptPath: transcriptPath,
		Observer:       &transcriptionObserver{pipeline: p, ctx: ctx, task: task},
	})
	if err != nil {
		return err
	}
	task.TempTranscriptPath = transcriptPath
	p.emit(events.Event{
		Type:               events.TranscriptionComplete,
		BatchID:            task.BatchID,
		TaskID:             task.ID,
		JobID:              result.JobID,
		TempAudioPath:      task.TempAudioPath,
		TempTranscriptPath: task.TempTranscriptPath,
	})

	if task.Translates() {
		return nil
	}
	content, err := readSubtitle(string(StageTranscribing), transcriptPath)
	if err != nil {
		return err
	}
	output := filepath.Join(p.layout.OutputDir, OutputName(task.InputPath, ""))
	if err := writeOutput(string(StageTranscribing), output, content); err != nil {
		return err
	}
	task.produced = output
	p.record(ctx, task, tasklog.CategoryMetadata, fmt.Sprintf("Original SRT saved to: %s", output))
	return nil
}

func (p *Pipeline) translateTranscript(ctx context.Context, task *Task) error {
	return p.translate(ctx, task, task.TempTranscriptPath)
}

func (p *Pipeline) translateInput(ctx context.Context, task *Task) error {
	return p.translate(ctx, task, task.InputPath)
}

// translate never fails the task on a translation error; it writes the
// original content instead. Only cancellation and output write failures are
// fatal.
func (p *Pipeline) translate(ctx context.Context, task *Task, sourcePath string) error {
	if p.deps.Translator == nil {
		return services.Wrap(services.ErrConfiguration, string(StageTranslating), "translate", "no translation client configured", nil)
	}
	content, err := readSubtitle(string(StageTranslating), sourcePath)
	if err != nil {
		return err
	}
	output := filepath.Join(p.layout.OutputDir, OutputName(task.InputPath, task.TargetLanguage))

	p.record(ctx, task, tasklog.CategoryMetadata, fmt.Sprintf("Starting translation to %s...", task.TargetLanguage))
	p.emit(events.Event{Type: events.TranslationStarted, BatchID: task.BatchID, TaskID: task.ID, TempTranscriptPath: task.TempTranscriptPath})

	result, err := p.deps.Translator.Translate(ctx, translation.Request{
		TaskID:         task.ID,
		Content:        content,
		TargetLanguage: task.TargetLanguage,
		Observer:       &translationObserver{pipeline: p, ctx: ctx, task: task},
	})
	if err != nil {
		if errors.Is(err, services.ErrCanceled) || ctx.Err() != nil {
			return err
		}
		p.record(ctx, task, tasklog.CategoryError, fmt.Sprintf("Translation failed: %v. Falling back to original SRT.", err))
		logging.WarnWithContext(logging.WithContext(ctx, p.logger), "translation rejected; using original subtitles", "translation_fallback",
			logging.Error(err),
			logging.String(logging.FieldErrorKind, services.Kind(err)),
			logging.String(logging.FieldErrorHint, "check translation.base_url and the target language"),
			logging.String(logging.FieldImpact, "output subtitles are untranslated"),
		)
		result = translation.Result{Content: content, EntryCount: translation.CountCues(content), Fallback: true}
	}

	if err := writeOutput(string(StageTranslating), output, result.Content); err != nil {
		return err
	}
	task.Fallback = result.Fallback
	task.produced = output
	if result.Fallback {
		p.record(ctx, task, tasklog.CategoryMetadata, fmt.Sprintf("Original SRT saved to: %s", output))
	} else {
		p.record(ctx, task, tasklog.CategoryMetadata, fmt.Sprintf("Translated SRT saved to: %s", output))
	}
	p.emit(events.Event{Type: events.TranslationComplete, BatchID: task.BatchID, TaskID: task.ID, OutputPath: output})
	return nil
}

func (p *Pipeline) complete(ctx context.Context, task *Task) events.Snapshot {
	logger := logging.WithContext(ctx, p.logger)
	if err := task.advance(StageCompleted); err != nil {
		return p.fail(ctx, task, err)
	}
	task.OutputPath = task.produced
	task.EndedAt = p.now()

	p.record(ctx, task, tasklog.CategoryProcess, fmt.Sprintf("Task completed: %s", task.OutputPath))
	snap := task.Snapshot()
	p.reconcile(ctx, snap)
	logger.Info("task completed",
		logging.String(logging.FieldEventType, "task_complete"),
		logging.String("output", task.OutputPath),
		logging.Bool("fallback", task.Fallback),
		logging.Duration("elapsed", snap.Duration().Round(time.Millisecond)),
	)
	p.emit(events.Event{Type: events.TaskCompleted, BatchID: task.BatchID, TaskID: task.ID, OutputPath: task.OutputPath, Task: &snap})
	return snap
}

func (p *Pipeline) fail(ctx context.Context, task *Task, err error) events.Snapshot {
	failedIn := task.Stage
	if failedIn.IsTerminal() {
		failedIn = StagePending
	}
	task.Stage = StageFailed
	task.FailedStage = failedIn
	task.Err = err
	task.OutputPath = ""
	task.EndedAt = p.now()

	message := task.ErrorMessage()
	p.record(ctx, task, tasklog.CategoryError, message)
	snap := task.Snapshot()
	p.reconcile(ctx, snap)

	logger := logging.WithContext(services.WithStage(ctx, string(failedIn)), p.logger)
	logging.ErrorWithContext(logger, "stage failed", "stage_failure",
		logging.String(logging.FieldErrorKind, snap.ErrorKind),
		logging.String(logging.FieldErrorHint, errorHint(err)),
		logging.String("error_message", message),
		logging.Error(err),
	)
	p.emit(events.Event{Type: events.TaskFailed, BatchID: task.BatchID, TaskID: task.ID, Error: message, Task: &snap})
	return snap
}

func (p *Pipeline) reconcile(ctx context.Context, snap events.Snapshot) {
	if p.deps.Cleaner == nil {
		return
	}
	if err := p.deps.Cleaner.Reconcile(ctx, snap); err != nil {
		p.logger.Debug("artifact reconcile reported errors",
			logging.String(logging.FieldTaskID, snap.ID),
			logging.Error(err),
		)
	}
}

// record journals an entry and mirrors it as a task:log event.
func (p *Pipeline) record(ctx context.Context, task *Task, category tasklog.Category, message string) {
	p.recordSnapshot(ctx, task, category, message, nil)
}

// recordSnapshot is record with the task state attached, used for stage
// transitions so observers can track the current stage.
func (p *Pipeline) recordSnapshot(ctx context.Context, task *Task, category tasklog.Category, message string, snap *events.Snapshot) {
	if p.deps.Journal != nil {
		if _, err := p.deps.Journal.Append(task.ID, category, message); err != nil {
			logging.WarnWithContext(logging.WithContext(ctx, p.logger), "task log append failed", "task_log_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check log_dir permissions"),
				logging.String(logging.FieldImpact, "task log is incomplete"),
			)
		}
	}
	p.emit(events.Event{
		Type:     events.TaskLog,
		BatchID:  task.BatchID,
		TaskID:   task.ID,
		Category: string(category),
		Message:  message,
		Task:     snap,
	})
}

func (p *Pipeline) emit(evt events.Event) {
	if evt.Time.IsZero() {
		evt.Time = p.now()
	}
	p.deps.Events.Publish(evt)
}

func readSubtitle(stage, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", services.Wrap(services.ErrFilesystem, stage, "read subtitle", path, err)
	}
	return string(data), nil
}

// writeOutput writes through a temp file in the destination directory so a
// reader never observes a partial subtitle.
func writeOutput(stage, path, content string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return services.Wrap(services.ErrFilesystem, stage, "create output directory", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return services.Wrap(services.ErrFilesystem, stage, "write output", path, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.WriteString(content); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return services.Wrap(services.ErrFilesystem, stage, "write output", path, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return services.Wrap(services.ErrFilesystem, stage, "write output", path, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		_ = os.Remove(tmpName)
		return services.Wrap(services.ErrFilesystem, stage, "write output", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return services.Wrap(services.ErrFilesystem, stage, "write output", path, err)
	}
	return nil
}

func errorHint(err error) string {
	switch services.Kind(err) {
	case "canceled":
		return "task was canceled on request"
	case "process_spawn":
		return "install ffmpeg or set ffmpeg.binary in the config"
	case "process_execution":
		return "inspect the input with ffprobe; the ffmpeg stderr tail is in the task log"
	case "network":
		return "check that the transcription service is reachable"
	case "api":
		return "check API credentials and request parameters"
	case "timeout":
		return "raise transcription.max_poll_attempts or check the transcription backend"
	case "filesystem":
		return "check permissions on output_dir and scratch_dir"
	default:
		return "check the task log for details"
	}
}
