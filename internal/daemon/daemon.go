package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"

	"github.com/gofrs/flock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"subforge/internal/api"
	"subforge/internal/config"
	"subforge/internal/events"
	"subforge/internal/logging"
	"subforge/internal/metrics"
	"subforge/internal/preflight"
	"subforge/internal/staging"
	"subforge/internal/store"
	"subforge/internal/tasklog"
	"subforge/internal/workflow"
)

const interruptedReason = "Task interrupted: the daemon stopped before it finished"

// Daemon owns the scheduler, its event sinks, and the API server.
type Daemon struct {
	cfg    *config.Config
	logger *slog.Logger

	store       *store.Store
	logs        *tasklog.Logger
	hub         *events.Hub
	broadcaster *api.Broadcaster
	registry    *prometheus.Registry
	scheduler   *workflow.Scheduler
	api         *api.Server

	lockPath string
	lock     *flock.Flock

	mu      sync.Mutex
	running atomic.Bool
	cancel  context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool     `json:"running"`
	PID          int      `json:"pid"`
	APIAddress   string   `json:"apiAddress,omitempty"`
	DatabasePath string   `json:"databasePath"`
	LockFilePath string   `json:"lockFilePath"`
	ActiveTasks  []string `json:"activeTasks"`
}

// Option customizes daemon construction.
type Option func(*options)

type options struct {
	factory workflow.Factory
}

// WithFactory replaces the config-driven pipeline wiring.
func WithFactory(factory workflow.Factory) Option {
	return func(o *options) {
		o.factory = factory
	}
}

// New opens the task store and wires every event sink.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) (*Daemon, error) {
	if cfg == nil {
		return nil, errors.New("daemon requires config")
	}
	logger = logging.NewComponentLogger(logger, "daemon")
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}
	st, err := store.Open(cfg)
	if err != nil {
		return nil, err
	}
	logs, err := tasklog.New(cfg.TaskLogDir())
	if err != nil {
		st.Close()
		return nil, err
	}
	factory := o.factory
	if factory == nil {
		factory, err = workflow.NewFactory(cfg, logs, logger)
		if err != nil {
			st.Close()
			return nil, fmt.Errorf("configure pipeline: %w", err)
		}
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	hub := events.NewHub(0)
	broadcaster := api.NewBroadcaster(logger)
	sink := events.NewFanout(
		hub.Forward(broadcaster),
		store.NewRecorder(st, logger),
		metrics.NewCollector(registry),
		events.NewLogSink(logger),
	)

	d := &Daemon{
		cfg:         cfg,
		logger:      logger,
		store:       st,
		logs:        logs,
		hub:         hub,
		broadcaster: broadcaster,
		registry:    registry,
		scheduler:   workflow.NewScheduler(factory, workflow.WithLogger(logger), workflow.WithSink(sink)),
		lockPath:    cfg.LockPath(),
		lock:        flock.New(cfg.LockPath()),
	}
	return d, nil
}

// Start acquires the instance lock, reconciles leftover state, and begins
// serving the API.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another subforge daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.reconcile(runCtx)

	server := api.New(runCtx, api.Options{
		Scheduler:       d.scheduler,
		History:         d.store,
		Logs:            d.logs,
		Hub:             d.hub,
		Broadcaster:     d.broadcaster,
		Gatherer:        d.registry,
		Defaults:        workflow.BatchDefaults(d.cfg),
		DefaultLanguage: d.cfg.Workflow.TargetLanguage,
		Logger:          d.logger,
	})
	if err := server.Start(runCtx, d.cfg.Paths.APIBind); err != nil {
		cancel()
		_ = d.lock.Unlock()
		return err
	}
	d.api = server
	d.cancel = cancel
	d.running.Store(true)
	d.logger.Info("subforge daemon started",
		logging.String("lock", d.lockPath),
		logging.String("api", server.Addr()),
		logging.String(logging.FieldEventType, "daemon_start"),
	)
	return nil
}

func (d *Daemon) reconcile(ctx context.Context) {
	interrupted, err := d.store.MarkInterrupted(ctx, interruptedReason)
	if err != nil {
		logging.WarnWithContext(d.logger, "failed to mark interrupted tasks", "interrupted_reconcile_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "tasks from a previous run may show a stale stage"),
		)
	} else if len(interrupted) > 0 {
		d.logger.Warn("marked interrupted tasks failed",
			logging.Int("count", len(interrupted)),
			logging.String(logging.FieldEventType, "tasks_interrupted"),
			logging.String(logging.FieldErrorHint, "resubmit the affected inputs"),
			logging.String(logging.FieldImpact, "previous run did not finish these tasks"),
		)
	}

	staging.CleanStale(ctx, d.cfg.Paths.ScratchDir, d.cfg.ScratchRetention(), d.logger)
	d.logs.Prune(d.logger, d.cfg.Logging.RetentionDays)

	for _, result := range preflight.Failed(preflight.RunAll(ctx, d.cfg)) {
		logging.WarnWithContext(d.logger, "preflight check failed", "preflight_failed",
			logging.String("check", result.Name),
			logging.String("detail", result.Detail),
			logging.String(logging.FieldImpact, "tasks depending on this check will fail"),
		)
	}
}

// Stop cancels running batches, waits for them to record their terminal
// state, and releases the lock.
func (d *Daemon) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running.Load() {
		return
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.scheduler.Wait()
	if d.api != nil {
		d.api.Stop()
		d.api = nil
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("subforge daemon stopped", logging.String(logging.FieldEventType, "daemon_stop"))
}

// Close stops the daemon and releases the store.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Status returns the current daemon status.
func (d *Daemon) Status() Status {
	status := Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		DatabasePath: d.store.Path(),
		LockFilePath: d.lockPath,
		ActiveTasks:  d.scheduler.Active(),
	}
	d.mu.Lock()
	if d.api != nil {
		status.APIAddress = d.api.Addr()
	}
	d.mu.Unlock()
	return status
}

// Scheduler exposes the daemon scheduler.
func (d *Daemon) Scheduler() *workflow.Scheduler {
	return d.scheduler
}
