package daemonrun

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"subforge/internal/config"
	"subforge/internal/daemon"
	"subforge/internal/deps"
	"subforge/internal/logging"
	"subforge/internal/workflow"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel string
	Logger   *slog.Logger
	Factory  workflow.Factory
}

// Runtime is written to config.RuntimePath while the daemon serves so control
// commands can find it.
type Runtime struct {
	PID        int       `json:"pid"`
	APIAddress string    `json:"apiAddress"`
	StartedAt  time.Time `json:"startedAt"`
}

// Run starts the daemon and blocks until ctx is canceled or the process
// receives SIGINT or SIGTERM.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := opts.Logger
	if logger == nil {
		logCfg := *cfg
		if opts.LogLevel != "" {
			logCfg.Logging.Level = opts.LogLevel
		}
		var err error
		logger, err = logging.NewFromConfig(&logCfg)
		if err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
	}
	logDependencySnapshot(logger, cfg)

	var daemonOpts []daemon.Option
	if opts.Factory != nil {
		daemonOpts = append(daemonOpts, daemon.WithFactory(opts.Factory))
	}
	d, err := daemon.New(cfg, logger, daemonOpts...)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	if err := d.Start(signalCtx); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}

	status := d.Status()
	runtimePath := cfg.RuntimePath()
	if err := WriteRuntime(runtimePath, Runtime{PID: status.PID, APIAddress: status.APIAddress, StartedAt: time.Now().UTC()}); err != nil {
		return fmt.Errorf("write runtime file: %w", err)
	}
	defer os.Remove(runtimePath)

	logger.Info("subforge daemon listening",
		logging.String(logging.FieldEventType, "daemon_listening"),
		logging.String("api_address", status.APIAddress),
		logging.Int("pid", status.PID),
	)

	<-signalCtx.Done()
	logger.Info("subforge daemon shutting down",
		logging.String(logging.FieldEventType, "daemon_shutdown"),
	)
	return nil
}

// WriteRuntime records rt at path.
func WriteRuntime(path string, rt Runtime) error {
	if path == "" {
		return nil
	}
	data, err := json.Marshal(rt)
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

// ReadRuntime loads the runtime file. A missing file returns os.ErrNotExist.
func ReadRuntime(path string) (Runtime, error) {
	var rt Runtime
	data, err := os.ReadFile(path)
	if err != nil {
		return rt, err
	}
	if err := json.Unmarshal(data, &rt); err != nil {
		return rt, fmt.Errorf("decode runtime file %q: %w", path, err)
	}
	if rt.PID <= 0 {
		return rt, errors.New("runtime file has no pid")
	}
	return rt, nil
}

func logDependencySnapshot(logger *slog.Logger, cfg *config.Config) {
	if logger == nil || cfg == nil {
		return
	}
	attrs := []logging.Attr{
		logging.String(logging.FieldEventType, "dependency_snapshot"),
		logging.String("transcription_provider", cfg.Transcription.Provider),
		logging.Bool("transcription_key_present", cfg.Transcription.APIKey != ""),
		logging.Bool("translation_enabled", cfg.Workflow.TargetLanguage != ""),
	}
	for _, status := range deps.CheckBinaries(deps.Requirements(cfg)) {
		key := strings.ToLower(status.Name)
		attrs = append(attrs,
			logging.Bool(key+"_available", status.Available),
			logging.String(key+"_binary", status.Command),
		)
	}
	logger.Info("dependency snapshot", logging.Args(attrs...)...)
}
