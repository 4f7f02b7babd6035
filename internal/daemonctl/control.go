package daemonctl

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"subforge/internal/api"
	"subforge/internal/config"
	"subforge/internal/daemonrun"
	"subforge/internal/deps"
	"subforge/internal/preflight"
)

// ErrDaemonNotRunning indicates no serving daemon could be found.
var ErrDaemonNotRunning = errors.New("daemon not running")

// LaunchOptions controls daemon process launch behavior.
type LaunchOptions struct {
	ConfigPath string
	LogLevel   string
}

type StartState string

const (
	StartStateStarted        StartState = "started"
	StartStateAlreadyRunning StartState = "already_running"
)

// StartResult captures daemon start orchestration state.
type StartResult struct {
	State      StartState
	Launched   bool
	APIAddress string
}

// StopResult captures daemon stop/termination outcome.
type StopResult struct {
	ForcedKill bool
	PID        int
}

// RestartResult captures stop/start outcomes for daemon restart.
type RestartResult struct {
	WasRunning bool
	Stop       StopResult
	Start      StartResult
}

// Address returns the API address of the serving daemon, preferring the
// runtime file over the configured bind.
func Address(cfg *config.Config) string {
	if cfg == nil {
		return ""
	}
	if rt, err := daemonrun.ReadRuntime(cfg.RuntimePath()); err == nil && rt.APIAddress != "" {
		return rt.APIAddress
	}
	return cfg.Paths.APIBind
}

// Client returns an API client for the serving daemon.
func Client(cfg *config.Config) *api.Client {
	return api.NewClient(Address(cfg), nil)
}

// Launch starts a detached `subforge serve` process.
func Launch(executablePath string, opts LaunchOptions) error {
	if strings.TrimSpace(executablePath) == "" {
		return fmt.Errorf("resolve executable: executable path is empty")
	}

	args := []string{"serve"}
	if cfg := strings.TrimSpace(opts.ConfigPath); cfg != "" {
		args = append(args, "--config", cfg)
	}
	if level := strings.TrimSpace(opts.LogLevel); level != "" {
		args = append(args, "--log-level", level)
	}

	proc := exec.Command(executablePath, args...)
	proc.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := proc.Start(); err != nil {
		return fmt.Errorf("launch daemon: %w", err)
	}
	return proc.Process.Release()
}

// WaitForHealthy polls the daemon health endpoint until it answers or timeout
// elapses.
func WaitForHealthy(ctx context.Context, cfg *config.Config, timeout time.Duration) (string, error) {
	deadline := time.Now().Add(timeout)
	var lastErr error
	for time.Now().Before(deadline) {
		addr := Address(cfg)
		_, err := healthCheck(ctx, addr)
		if err == nil {
			return addr, nil
		}
		lastErr = err
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(200 * time.Millisecond):
		}
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("timeout waiting for daemon")
	}
	return "", fmt.Errorf("daemon failed to start: %w", lastErr)
}

// EnsureStarted launches the daemon unless one already answers and waits for
// it to become healthy.
func EnsureStarted(ctx context.Context, cfg *config.Config, executablePath string, opts LaunchOptions, waitTimeout time.Duration) (StartResult, error) {
	if addr := Address(cfg); addr != "" {
		if _, err := healthCheck(ctx, addr); err == nil {
			return StartResult{State: StartStateAlreadyRunning, APIAddress: addr}, nil
		}
	}
	if err := Launch(executablePath, opts); err != nil {
		return StartResult{}, err
	}
	addr, err := WaitForHealthy(ctx, cfg, waitTimeout)
	if err != nil {
		return StartResult{}, err
	}
	return StartResult{State: StartStateStarted, Launched: true, APIAddress: addr}, nil
}

// StopAndTerminate sends SIGTERM to the daemon recorded in the runtime file and
// SIGKILLs it if it is still alive after gracePeriod.
func StopAndTerminate(cfg *config.Config, gracePeriod time.Duration) (StopResult, error) {
	if cfg == nil {
		return StopResult{}, errors.New("configuration not available")
	}
	rt, err := daemonrun.ReadRuntime(cfg.RuntimePath())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return StopResult{}, ErrDaemonNotRunning
		}
		return StopResult{}, err
	}
	if rt.PID == os.Getpid() {
		return StopResult{}, fmt.Errorf("refusing to signal current process (pid %d)", rt.PID)
	}
	result := StopResult{PID: rt.PID}
	if !processAlive(rt.PID) {
		_ = os.Remove(cfg.RuntimePath())
		return result, ErrDaemonNotRunning
	}
	if err := syscall.Kill(rt.PID, syscall.SIGTERM); err != nil {
		return result, fmt.Errorf("signal daemon process %d: %w", rt.PID, err)
	}
	if waitForExit(rt.PID, gracePeriod) {
		return result, nil
	}
	if err := syscall.Kill(rt.PID, syscall.SIGKILL); err != nil && !errors.Is(err, syscall.ESRCH) {
		return result, fmt.Errorf("kill daemon process %d: %w", rt.PID, err)
	}
	_ = os.Remove(cfg.RuntimePath())
	result.ForcedKill = true
	return result, nil
}

// Restart stops the daemon if running, then ensures it is started.
func Restart(ctx context.Context, cfg *config.Config, executablePath string, opts LaunchOptions, stopGracePeriod, startWaitTimeout time.Duration) (RestartResult, error) {
	stopResult, stopErr := StopAndTerminate(cfg, stopGracePeriod)
	if stopErr != nil && !errors.Is(stopErr, ErrDaemonNotRunning) {
		return RestartResult{}, stopErr
	}

	startResult, err := EnsureStarted(ctx, cfg, executablePath, opts, startWaitTimeout)
	if err != nil {
		return RestartResult{}, err
	}

	return RestartResult{
		WasRunning: stopErr == nil,
		Stop:       stopResult,
		Start:      startResult,
	}, nil
}

// StatusSnapshot combines live daemon health with offline checks.
type StatusSnapshot struct {
	Running           bool               `json:"running"`
	PID               int                `json:"pid,omitempty"`
	APIAddress        string             `json:"apiAddress,omitempty"`
	ActiveTasks       int                `json:"activeTasks"`
	StartedAt         string             `json:"startedAt,omitempty"`
	Dependencies      []deps.Status      `json:"dependencies"`
	DependencySummary DependencySummary  `json:"dependencySummary"`
	Checks            []preflight.Result `json:"checks"`
}

// DependencySummary aggregates dependency readiness.
type DependencySummary struct {
	Total           int    `json:"total"`
	Available       int    `json:"available"`
	MissingRequired int    `json:"missingRequired"`
	MissingOptional int    `json:"missingOptional"`
	Severity        string `json:"severity"`
	Detail          string `json:"detail"`
}

// BuildStatusSnapshot queries the daemon when reachable and always runs the
// dependency and preflight checks locally.
func BuildStatusSnapshot(ctx context.Context, cfg *config.Config) (*StatusSnapshot, error) {
	if cfg == nil {
		return nil, errors.New("configuration not available")
	}
	snapshot := &StatusSnapshot{}

	addr := Address(cfg)
	healthCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	health, err := healthCheck(healthCtx, addr)
	cancel()
	if err == nil {
		snapshot.Running = true
		snapshot.APIAddress = addr
		snapshot.ActiveTasks = health.ActiveTasks
		snapshot.StartedAt = health.StartedAt
		if rt, rtErr := daemonrun.ReadRuntime(cfg.RuntimePath()); rtErr == nil {
			snapshot.PID = rt.PID
		}
	}

	snapshot.Dependencies = deps.CheckBinaries(deps.Requirements(cfg))
	snapshot.DependencySummary = BuildDependencySummary(snapshot.Dependencies)
	snapshot.Checks = preflight.RunAll(ctx, cfg)
	return snapshot, nil
}

// BuildDependencySummary computes aggregate dependency readiness.
func BuildDependencySummary(statuses []deps.Status) DependencySummary {
	if len(statuses) == 0 {
		return DependencySummary{
			Severity: "info",
			Detail:   "No dependency checks configured",
		}
	}

	missingRequired := 0
	missingOptional := 0
	for _, dep := range statuses {
		if dep.Available {
			continue
		}
		if dep.Optional {
			missingOptional++
		} else {
			missingRequired++
		}
	}

	missingCount := missingRequired + missingOptional
	available := len(statuses) - missingCount
	severity := "ok"
	if missingRequired > 0 {
		severity = "error"
	} else if missingOptional > 0 {
		severity = "warn"
	}
	detail := fmt.Sprintf("%d/%d available (missing: %d required, %d optional)", available, len(statuses), missingRequired, missingOptional)
	if missingCount == 0 {
		detail = fmt.Sprintf("%d/%d available", available, len(statuses))
	}

	return DependencySummary{
		Total:           len(statuses),
		Available:       available,
		MissingRequired: missingRequired,
		MissingOptional: missingOptional,
		Severity:        severity,
		Detail:          detail,
	}
}

func healthCheck(ctx context.Context, addr string) (api.HealthResponse, error) {
	if strings.TrimSpace(addr) == "" {
		return api.HealthResponse{}, ErrDaemonNotRunning
	}
	return api.NewClient(addr, nil).Health(ctx)
}

func processAlive(pid int) bool {
	err := syscall.Kill(pid, 0)
	return err == nil || errors.Is(err, syscall.EPERM)
}

func waitForExit(pid int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if !processAlive(pid) {
			return true
		}
		time.Sleep(100 * time.Millisecond)
	}
	return !processAlive(pid)
}
