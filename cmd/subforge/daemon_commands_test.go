package main

import (
	"context"
	"strings"
	"testing"

	"subforge/internal/daemon"
	"subforge/internal/daemonctl"
	"subforge/internal/daemonrun"
	"subforge/internal/deps"
	"subforge/internal/pipeline"
	"subforge/internal/workflow"
)

func TestStatusAndStopWithoutDaemon(t *testing.T) {
	env := setupCLITestEnv(t)

	out, err := env.run(t, "status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "Not running")
	requireContains(t, out, "FFmpeg")
	requireContains(t, out, "Output directory")

	out, err = env.run(t, "stop")
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	requireContains(t, out, "Daemon is not running")
}

func TestCancelReachesDaemon(t *testing.T) {
	env := setupCLITestEnv(t)

	d, err := daemon.New(env.cfg, nil, daemon.WithFactory(func(workflow.BatchConfig) pipeline.Dependencies {
		return pipeline.Dependencies{}
	}))
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	status := d.Status()
	if err := daemonrun.WriteRuntime(env.cfg.RuntimePath(), daemonrun.Runtime{PID: status.PID, APIAddress: status.APIAddress}); err != nil {
		t.Fatalf("WriteRuntime: %v", err)
	}

	_, err = env.run(t, "cancel", "missing-task")
	if err == nil || !strings.Contains(err.Error(), "not active") {
		t.Fatalf("expected not active error, got %v", err)
	}

	out, err := env.run(t, "status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "Running (pid")
	requireContains(t, out, status.APIAddress)
}

func TestDepsFailsWhenFFmpegMissing(t *testing.T) {
	env := setupCLITestEnv(t)
	out, err := env.run(t, "deps")
	if err != nil {
		t.Fatalf("deps with stubbed binaries: %v\n%s", err, out)
	}
	requireContains(t, out, "FFprobe")

	env.cfg.FFmpeg.Binary = "subforge-missing-ffmpeg"
	writeTestConfig(t, env.configPath, env.cfg)
	if _, err := env.run(t, "deps"); err == nil || !strings.Contains(err.Error(), "1 required dependencies missing") {
		t.Fatalf("expected missing dependency error, got %v", err)
	}
}

func TestDependencyLines(t *testing.T) {
	statuses := []deps.Status{
		{Name: "FFmpeg", Available: true, Path: "/usr/bin/ffmpeg"},
		{Name: "FFprobe", Optional: true, Detail: `binary "ffprobe" not found`},
	}
	lines := dependencyLines(statuses, daemonctl.BuildDependencySummary(statuses), false)
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d", len(lines))
	}
	if !strings.Contains(lines[0], "[WARN]") || !strings.Contains(lines[0], "Summary") {
		t.Fatalf("expected warn summary first, got %q", lines[0])
	}
	if !strings.Contains(lines[1], "[OK] Ready (/usr/bin/ffmpeg)") {
		t.Fatalf("unexpected ready line %q", lines[1])
	}
	if !strings.Contains(lines[2], "[WARN] binary") {
		t.Fatalf("unexpected optional line %q", lines[2])
	}
}
