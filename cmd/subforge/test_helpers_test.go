package main

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"subforge/internal/config"
	"subforge/internal/ffmpeg"
	"subforge/internal/pipeline"
	"subforge/internal/services/transcription"
	"subforge/internal/services/translation"
	"subforge/internal/testsupport"
	"subforge/internal/workflow"
)

type cliTestEnv struct {
	cfg        *config.Config
	configPath string
	baseDir    string
	extractErr error
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries())
	base := testsupport.BaseDir(cfg)
	t.Setenv("HOME", filepath.Join(base, "home"))

	configPath := filepath.Join(base, "config.toml")
	writeTestConfig(t, configPath, cfg)
	return &cliTestEnv{cfg: cfg, configPath: configPath, baseDir: base}
}

// factory wires stub stages that succeed unless extractErr is set.
func (env *cliTestEnv) factory(_ *config.Config, journal pipeline.Journal, logger *slog.Logger) (workflow.Factory, error) {
	return func(workflow.BatchConfig) pipeline.Dependencies {
		return pipeline.Dependencies{
			Extractor:   stubExtractor{err: env.extractErr},
			Transcriber: stubTranscriber{},
			Translator:  echoTranslator{},
			Journal:     journal,
			Logger:      logger,
		}
	}, nil
}

func (env *cliTestEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	ctx := newCommandContext()
	ctx.buildFactory = env.factory
	cmd := newRootCommandWithContext(ctx)
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append([]string{"--config", env.configPath}, args...))
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), err
}

func (env *cliTestEnv) writeInput(t *testing.T, name string) string {
	t.Helper()
	return testsupport.WriteText(t, filepath.Join(env.baseDir, "media", name), "media")
}

type stubExtractor struct{ err error }

func (s stubExtractor) Extract(_ context.Context, req ffmpeg.ExtractRequest) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	if err := os.MkdirAll(filepath.Dir(req.Output), 0o755); err != nil {
		return "", err
	}
	return req.Output, os.WriteFile(req.Output, []byte("RIFF"), 0o644)
}

type stubTranscriber struct{}

func (stubTranscriber) Transcribe(_ context.Context, req transcription.Request) (transcription.Result, error) {
	req.Observer.Started("job-1")
	if err := os.WriteFile(req.TranscriptPath, []byte(testsupport.SampleSRT), 0o644); err != nil {
		return transcription.Result{}, err
	}
	return transcription.Result{JobID: "job-1", TranscriptPath: req.TranscriptPath}, nil
}

type echoTranslator struct{}

func (echoTranslator) Translate(_ context.Context, req translation.Request) (translation.Result, error) {
	return translation.Result{Content: req.Content, EntryCount: translation.CountCues(req.Content)}, nil
}

var errExtract = errors.New("ffmpeg exited with status 1")

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	data, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
