package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateTranscription(); err != nil {
		return err
	}
	if err := c.validateTranslation(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.OutputDir) == "" {
		return errors.New("paths.output_dir must be set")
	}
	if strings.TrimSpace(c.Paths.ScratchDir) == "" {
		return errors.New("paths.scratch_dir must be set")
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		return errors.New("paths.log_dir must be set")
	}
	return nil
}

func (c *Config) validateTranscription() error {
	switch c.Transcription.Provider {
	case providerBackend:
	case providerAssemblyAI:
		if c.Transcription.APIKey == "" {
			defaultPath, err := DefaultConfigPath()
			if err != nil {
				defaultPath = "~/.config/subforge/config.toml"
			}
			return fmt.Errorf("transcription.api_key is required for the assemblyai provider. Set %s or edit %s (create with 'subforge config init')", assemblyAIAPIKeyEnv, defaultPath)
		}
	default:
		return fmt.Errorf("transcription.provider: unsupported value %q (expected %q or %q)", c.Transcription.Provider, providerBackend, providerAssemblyAI)
	}
	if err := validateURL("transcription.base_url", c.Transcription.BaseURL); err != nil {
		return err
	}
	return ensurePositiveMap(map[string]int{
		"transcription.poll_interval_seconds":    c.Transcription.PollIntervalSeconds,
		"transcription.max_poll_attempts":        c.Transcription.MaxPollAttempts,
		"transcription.upload_timeout_seconds":   c.Transcription.UploadTimeoutSeconds,
		"transcription.poll_timeout_seconds":     c.Transcription.PollTimeoutSeconds,
		"transcription.download_timeout_seconds": c.Transcription.DownloadTimeoutSeconds,
	})
}

func (c *Config) validateTranslation() error {
	if err := validateURL("translation.base_url", c.Translation.BaseURL); err != nil {
		return err
	}
	if c.Translation.TimeoutSeconds <= 0 {
		return errors.New("translation.timeout_seconds must be positive")
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if c.Workflow.Concurrency <= 0 {
		return errors.New("workflow.concurrency must be positive")
	}
	if c.Workflow.Concurrency > maxConcurrency {
		return fmt.Errorf("workflow.concurrency must be at most %d", maxConcurrency)
	}
	if c.Workflow.RetryMaxAttempts <= 0 {
		return errors.New("workflow.retry_max_attempts must be positive")
	}
	if c.Workflow.RetryInitialDelayMS < 0 {
		return errors.New("workflow.retry_initial_delay_ms must not be negative")
	}
	if c.Workflow.RetryBackoffMultiplier < 1 {
		return errors.New("workflow.retry_backoff_multiplier must be at least 1")
	}
	return nil
}

func validateURL(key, value string) error {
	parsed, err := url.Parse(value)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("%s must be an http or https url, got %q", key, value)
	}
	if parsed.Host == "" {
		return fmt.Errorf("%s must include a host, got %q", key, value)
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
