package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"subforge/internal/config"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantScratch := filepath.Join(tempHome, ".local", "share", "subforge", "scratch")
	if cfg.Paths.ScratchDir != wantScratch {
		t.Fatalf("unexpected scratch dir: got %q want %q", cfg.Paths.ScratchDir, wantScratch)
	}
	if cfg.Paths.OutputDir != filepath.Join(tempHome, "subtitles") {
		t.Fatalf("unexpected output dir: %q", cfg.Paths.OutputDir)
	}
	if cfg.Paths.APIBind != "127.0.0.1:7491" {
		t.Fatalf("unexpected api bind: %q", cfg.Paths.APIBind)
	}
	if cfg.Workflow.Concurrency != 4 {
		t.Fatalf("expected default concurrency 4, got %d", cfg.Workflow.Concurrency)
	}
	if cfg.Workflow.RetryMaxAttempts != 3 || cfg.Workflow.RetryInitialDelayMS != 1000 || cfg.Workflow.RetryBackoffMultiplier != 2 {
		t.Fatalf("unexpected retry defaults: %+v", cfg.Workflow)
	}
	if cfg.PollInterval().Seconds() != 3 || cfg.Transcription.MaxPollAttempts != 600 {
		t.Fatalf("unexpected polling defaults: %s x %d", cfg.PollInterval(), cfg.Transcription.MaxPollAttempts)
	}
	if cfg.Transcription.Provider != "backend" {
		t.Fatalf("unexpected provider %q", cfg.Transcription.Provider)
	}
	if cfg.TaskLogDir() != filepath.Join(cfg.Paths.LogDir, "tasks") {
		t.Fatalf("unexpected task log dir %q", cfg.TaskLogDir())
	}
}

func TestLoadCustomPath(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "subforge.toml")

	type payload struct {
		Paths struct {
			OutputDir string `toml:"output_dir"`
		} `toml:"paths"`
		Transcription struct {
			Provider string `toml:"provider"`
			APIKey   string `toml:"api_key"`
		} `toml:"transcription"`
		Workflow struct {
			Concurrency int `toml:"concurrency"`
		} `toml:"workflow"`
	}
	custom := payload{}
	custom.Paths.OutputDir = filepath.Join(tempDir, "out")
	custom.Transcription.Provider = "AssemblyAI"
	custom.Transcription.APIKey = "abc123"
	custom.Workflow.Concurrency = 2
	data, err := toml.Marshal(custom)
	if err != nil {
		t.Fatalf("marshal custom config: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write custom config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected exists to be true")
	}
	if resolved != configPath {
		t.Fatalf("unexpected resolved path: got %q want %q", resolved, configPath)
	}
	if cfg.Paths.OutputDir != filepath.Join(tempDir, "out") {
		t.Fatalf("unexpected output dir %q", cfg.Paths.OutputDir)
	}
	if cfg.Transcription.Provider != "assemblyai" {
		t.Fatalf("expected provider to be lowercased, got %q", cfg.Transcription.Provider)
	}
	if cfg.Transcription.BaseURL != "https://api.eu.assemblyai.com" {
		t.Fatalf("expected assemblyai base url default, got %q", cfg.Transcription.BaseURL)
	}
	if cfg.Workflow.Concurrency != 2 {
		t.Fatalf("expected concurrency 2, got %d", cfg.Workflow.Concurrency)
	}
}

func TestEnvVarOverridesConfigFileForAPIKey(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "subforge.toml")
	contents := "[transcription]\nprovider = \"assemblyai\"\napi_key = \"file-key\"\n"
	if err := os.WriteFile(configPath, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("ASSEMBLYAI_API_KEY", "env-key")
	t.Setenv("SUBFORGE_TRANSLATION_URL", "http://translator.local:9000/")

	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Transcription.APIKey != "env-key" {
		t.Errorf("expected transcription key from env, got %q", cfg.Transcription.APIKey)
	}
	if cfg.Translation.BaseURL != "http://translator.local:9000" {
		t.Errorf("expected translation url from env, got %q", cfg.Translation.BaseURL)
	}
}

func TestCreateSample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sample.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}

	contents, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	if !strings.Contains(string(contents), "your_transcription_api_key_here") {
		t.Fatalf("sample config missing placeholder key: %s", contents)
	}

	var cfg config.Config
	if err := toml.Unmarshal(contents, &cfg); err != nil {
		t.Fatalf("unmarshal sample: %v", err)
	}
	if !strings.Contains(cfg.Paths.ScratchDir, "subforge") {
		t.Fatalf("expected scratch dir to contain subforge, got %q", cfg.Paths.ScratchDir)
	}
	if cfg.Workflow.Concurrency != 4 {
		t.Fatalf("expected sample concurrency 4, got %d", cfg.Workflow.Concurrency)
	}
}

func TestValidateDetectsInvalidValues(t *testing.T) {
	cfg := config.Default()
	cfg.Workflow.Concurrency = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for zero concurrency")
	}

	cfg = config.Default()
	cfg.Transcription.BaseURL = "http://127.0.0.1:8000"
	cfg.Translation.BaseURL = "http://127.0.0.1:8010"
	cfg.Transcription.Provider = "whisper"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for unknown provider")
	}

	cfg = config.Default()
	cfg.Transcription.BaseURL = "http://127.0.0.1:8000"
	cfg.Translation.BaseURL = "http://127.0.0.1:8010"
	cfg.Transcription.Provider = "assemblyai"
	cfg.Transcription.APIKey = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error when assemblyai has no api key")
	}

	cfg = config.Default()
	cfg.Transcription.BaseURL = "http://127.0.0.1:8000"
	cfg.Translation.BaseURL = "ftp://example.com"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for non-http translation url")
	}

	cfg = config.Default()
	cfg.Transcription.BaseURL = "http://127.0.0.1:8000"
	cfg.Translation.BaseURL = "http://127.0.0.1:8010"
	cfg.Workflow.RetryBackoffMultiplier = 0.5
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for shrinking backoff")
	}

	cfg = config.Default()
	cfg.Transcription.BaseURL = "http://127.0.0.1:8000"
	cfg.Translation.BaseURL = "http://127.0.0.1:8010"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected defaults with urls to validate, got %v", err)
	}
}
