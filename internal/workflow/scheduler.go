package workflow

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"subforge/internal/events"
	"subforge/internal/logging"
	"subforge/internal/pipeline"
	"subforge/internal/services"
	"subforge/internal/staging"
)

// Factory builds the pipeline collaborators for a batch. It is called once per
// batch so clients can honour the batch retry policy.
type Factory func(cfg BatchConfig) pipeline.Dependencies

// Report is the outcome of a finished batch.
type Report struct {
	BatchID   string
	Tasks     []events.Snapshot
	Summary   events.Summary
	StartedAt time.Time
	EndedAt   time.Time
}

// Scheduler runs batches under a concurrency limit.
type Scheduler struct {
	factory Factory
	sink    events.Sink
	logger  *slog.Logger

	mu    sync.Mutex
	tasks map[string]*taskHandle
	wg    sync.WaitGroup
}

type taskHandle struct {
	batchID string
	ctx     context.Context
	cancel  context.CancelFunc
	running bool
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) {
		s.logger = logger
	}
}

// WithSink sets where lifecycle events are published.
func WithSink(sink events.Sink) Option {
	return func(s *Scheduler) {
		if sink != nil {
			s.sink = sink
		}
	}
}

// NewScheduler returns a Scheduler that builds pipelines with factory.
func NewScheduler(factory Factory, opts ...Option) *Scheduler {
	s := &Scheduler{
		factory: factory,
		sink:    events.Discard,
		tasks:   make(map[string]*taskHandle),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	s.logger = logging.NewComponentLogger(s.logger, "scheduler")
	return s
}

// Run executes batch and blocks until every task is terminal.
func (s *Scheduler) Run(ctx context.Context, batch *Batch) (Report, error) {
	if err := s.register(ctx, batch); err != nil {
		return Report{}, err
	}
	return s.execute(ctx, batch), nil
}

// Submit starts batch in the background and returns once its tasks are
// registered, so they can be canceled immediately. Use Wait to block until
// submitted batches finish.
func (s *Scheduler) Submit(ctx context.Context, batch *Batch) error {
	if err := s.register(ctx, batch); err != nil {
		return err
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.execute(ctx, batch)
	}()
	return nil
}

// Wait blocks until every submitted batch has finished.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

// Cancel stops a task that is running or waiting for a slot. The task ends
// Failed with a cancellation error. Unknown and finished tasks return
// services.ErrNotFound.
func (s *Scheduler) Cancel(taskID string) error {
	s.mu.Lock()
	handle, ok := s.tasks[taskID]
	var running bool
	if ok {
		running = handle.running
	}
	s.mu.Unlock()
	if !ok {
		return services.Wrap(services.ErrNotFound, "", "cancel task", taskID+" is not active", nil)
	}
	handle.cancel()
	s.logger.Info("task cancellation requested",
		logging.String(logging.FieldTaskID, taskID),
		logging.String(logging.FieldBatchID, handle.batchID),
		logging.Bool("running", running),
		logging.String(logging.FieldEventType, "task_cancel_requested"),
	)
	return nil
}

// Active returns the identifiers of tasks that have not finished.
func (s *Scheduler) Active() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.tasks))
	for id := range s.tasks {
		ids = append(ids, id)
	}
	return ids
}

func (s *Scheduler) register(ctx context.Context, batch *Batch) error {
	if batch == nil || len(batch.Tasks) == 0 {
		return services.Wrap(services.ErrValidation, "", "run batch", "batch has no tasks", nil)
	}
	if s.factory == nil {
		return services.Wrap(services.ErrConfiguration, "", "run batch", "scheduler has no pipeline factory", nil)
	}
	batchCtx := services.WithBatchID(ctx, batch.ID)

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, task := range batch.Tasks {
		if _, exists := s.tasks[task.ID]; exists {
			return services.Wrap(services.ErrValidation, "", "run batch", "duplicate task id "+task.ID, nil)
		}
	}
	for _, task := range batch.Tasks {
		taskCtx, cancel := context.WithCancel(batchCtx)
		s.tasks[task.ID] = &taskHandle{batchID: batch.ID, ctx: taskCtx, cancel: cancel}
	}
	return nil
}

func (s *Scheduler) execute(ctx context.Context, batch *Batch) Report {
	cfg := batch.Config
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	deps := s.factory(cfg)
	deps.Events = s.sink
	if deps.Logger == nil {
		deps.Logger = s.logger
	}
	if deps.Cleaner == nil {
		deps.Cleaner = staging.NewManager(cfg.ScratchDir, deps.Logger)
	}
	runner := pipeline.New(deps, pipeline.Layout{OutputDir: cfg.OutputDir, ScratchDir: cfg.ScratchDir})

	logger := logging.WithContext(services.WithBatchID(ctx, batch.ID), s.logger)
	report := Report{BatchID: batch.ID, Tasks: make([]events.Snapshot, len(batch.Tasks)), StartedAt: time.Now().UTC()}
	logger.Info("batch started",
		logging.String(logging.FieldEventType, "batch_start"),
		logging.Int("tasks", len(batch.Tasks)),
		logging.Int("concurrency", cfg.Concurrency),
		logging.String("output_dir", cfg.OutputDir),
	)

	sem := semaphore.NewWeighted(int64(cfg.Concurrency))
	slots := make([]*slot, len(batch.Tasks))
	handles := make([]*taskHandle, len(batch.Tasks))
	var wg sync.WaitGroup
	for i, task := range batch.Tasks {
		handle := s.handle(task.ID)
		handles[i] = handle
		slots[i] = &slot{granted: make(chan struct{})}
		wg.Add(1)
		go func(i int, task *pipeline.Task, taskCtx context.Context, sl *slot) {
			defer wg.Done()
			held := sl.wait(taskCtx)
			if held {
				s.markRunning(task.ID)
				defer sem.Release(1)
			}
			// A task canceled while queued fails without entering a stage.
			report.Tasks[i] = runner.Run(taskCtx, task)
			s.release(task.ID)
		}(i, task, handle.ctx, slots[i])
	}
	for i, sl := range slots {
		if sl.abandoned() {
			continue
		}
		if err := sem.Acquire(handles[i].ctx, 1); err != nil {
			sl.abandon()
			continue
		}
		if !sl.grant() {
			sem.Release(1)
		}
	}
	wg.Wait()

	report.EndedAt = time.Now().UTC()
	report.Summary = summarize(report.Tasks)
	summary := report.Summary
	s.sink.Publish(events.Event{
		Type:    events.BatchComplete,
		Time:    report.EndedAt,
		BatchID: batch.ID,
		Summary: &summary,
	})
	logger.Info("batch complete",
		logging.String(logging.FieldEventType, "batch_complete"),
		logging.Int("total", summary.Total),
		logging.Int("completed", summary.Completed),
		logging.Int("failed", summary.Failed),
		logging.Duration("elapsed", report.EndedAt.Sub(report.StartedAt).Round(time.Millisecond)),
	)
	return report
}

const (
	slotQueued int32 = iota
	slotGranted
	slotAbandoned
)

// slot hands one semaphore unit from the dispatcher to a task goroutine.
// Exactly one of grant and abandon wins.
type slot struct {
	state   atomic.Int32
	granted chan struct{}
}

func (sl *slot) grant() bool {
	if !sl.state.CompareAndSwap(slotQueued, slotGranted) {
		return false
	}
	close(sl.granted)
	return true
}

func (sl *slot) abandon() bool {
	return sl.state.CompareAndSwap(slotQueued, slotAbandoned)
}

func (sl *slot) abandoned() bool {
	return sl.state.Load() == slotAbandoned
}

// wait blocks until the dispatcher grants a unit or ctx ends, and reports
// whether the caller holds a unit it must release.
func (sl *slot) wait(ctx context.Context) bool {
	select {
	case <-sl.granted:
		return true
	case <-ctx.Done():
		if sl.abandon() {
			return false
		}
		<-sl.granted
		return true
	}
}

func (s *Scheduler) handle(taskID string) *taskHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tasks[taskID]
}

func (s *Scheduler) markRunning(taskID string) {
	s.mu.Lock()
	if handle, ok := s.tasks[taskID]; ok {
		handle.running = true
	}
	s.mu.Unlock()
}

func (s *Scheduler) release(taskID string) {
	s.mu.Lock()
	handle, ok := s.tasks[taskID]
	delete(s.tasks, taskID)
	s.mu.Unlock()
	if ok {
		handle.cancel()
	}
}

func summarize(tasks []events.Snapshot) events.Summary {
	summary := events.Summary{Total: len(tasks)}
	for _, snap := range tasks {
		switch pipeline.Stage(snap.Stage) {
		case pipeline.StageCompleted:
			summary.Completed++
		case pipeline.StageFailed:
			summary.Failed++
		}
	}
	return summary
}

// Failed reports whether any task in the batch failed.
func (r Report) Failed() bool {
	return r.Summary.Failed > 0
}
