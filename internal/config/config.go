package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	OutputDir  string `toml:"output_dir"`
	ScratchDir string `toml:"scratch_dir"`
	LogDir     string `toml:"log_dir"`
	APIBind    string `toml:"api_bind"`
}

// FFmpeg names the external binaries used for audio extraction.
type FFmpeg struct {
	Binary        string `toml:"binary"`
	FFprobeBinary string `toml:"ffprobe_binary"`
}

// Transcription contains configuration for the speech-to-text service.
type Transcription struct {
	Provider               string `toml:"provider"`
	BaseURL                string `toml:"base_url"`
	APIKey                 string `toml:"api_key"`
	LanguageDetection      bool   `toml:"language_detection"`
	SpeakerLabels          bool   `toml:"speaker_labels"`
	PollIntervalSeconds    int    `toml:"poll_interval_seconds"`
	MaxPollAttempts        int    `toml:"max_poll_attempts"`
	UploadTimeoutSeconds   int    `toml:"upload_timeout_seconds"`
	PollTimeoutSeconds     int    `toml:"poll_timeout_seconds"`
	DownloadTimeoutSeconds int    `toml:"download_timeout_seconds"`
}

// Translation contains configuration for the subtitle translation service.
type Translation struct {
	BaseURL        string `toml:"base_url"`
	SourceLanguage string `toml:"source_language"`
	Country        string `toml:"country"`
	Model          string `toml:"model"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Workflow contains batch scheduling and retry configuration.
type Workflow struct {
	Concurrency            int     `toml:"concurrency"`
	TargetLanguage         string  `toml:"target_language"`
	RetryMaxAttempts       int     `toml:"retry_max_attempts"`
	RetryInitialDelayMS    int     `toml:"retry_initial_delay_ms"`
	RetryBackoffMultiplier float64 `toml:"retry_backoff_multiplier"`
	ScratchRetentionHours  int     `toml:"scratch_retention_hours"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for subforge.
//
// Configuration sections by subsystem:
//   - Paths: output, scratch, and log directories plus the API bind address
//   - FFmpeg: extraction binaries
//   - Transcription: speech-to-text provider, credentials, polling budget
//   - Translation: translation endpoint and request options
//   - Workflow: concurrency limit and retry policy
//   - Logging: log format, level, and retention
type Config struct {
	Paths         Paths         `toml:"paths"`
	FFmpeg        FFmpeg        `toml:"ffmpeg"`
	Transcription Transcription `toml:"transcription"`
	Translation   Translation   `toml:"translation"`
	Workflow      Workflow      `toml:"workflow"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/subforge/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("subforge.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the directories batches write into.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.OutputDir, c.Paths.ScratchDir, c.Paths.LogDir, c.TaskLogDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// TaskLogDir returns the directory holding one JSONL file per task.
func (c *Config) TaskLogDir() string {
	return filepath.Join(c.Paths.LogDir, "tasks")
}

// DatabasePath returns the location of the task history database.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.LogDir, "tasks.db")
}

// LockPath returns the lock file guarding a single serving daemon.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.LogDir, "subforge.lock")
}

// RuntimePath returns the file where a serving daemon records its PID and
// listen address.
func (c *Config) RuntimePath() string {
	return filepath.Join(c.Paths.LogDir, "subforge.runtime.json")
}

// PollInterval returns the delay between transcription status checks.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Transcription.PollIntervalSeconds) * time.Second
}

// UploadTimeout returns the per-call budget for audio uploads.
func (c *Config) UploadTimeout() time.Duration {
	return time.Duration(c.Transcription.UploadTimeoutSeconds) * time.Second
}

// PollTimeout returns the per-call budget for a single status check.
func (c *Config) PollTimeout() time.Duration {
	return time.Duration(c.Transcription.PollTimeoutSeconds) * time.Second
}

// DownloadTimeout returns the per-call budget for transcript downloads.
func (c *Config) DownloadTimeout() time.Duration {
	return time.Duration(c.Transcription.DownloadTimeoutSeconds) * time.Second
}

// TranslationTimeout returns the per-call budget for translation requests.
func (c *Config) TranslationTimeout() time.Duration {
	return time.Duration(c.Translation.TimeoutSeconds) * time.Second
}

// RetryInitialDelay returns the delay before the second attempt of any retried call.
func (c *Config) RetryInitialDelay() time.Duration {
	return time.Duration(c.Workflow.RetryInitialDelayMS) * time.Millisecond
}

// ScratchRetention returns how long preserved scratch directories are kept.
func (c *Config) ScratchRetention() time.Duration {
	return time.Duration(c.Workflow.ScratchRetentionHours) * time.Hour
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
