package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeFFmpeg()
	c.normalizeTranscription()
	c.normalizeTranslation()
	c.normalizeWorkflow()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.OutputDir) == "" {
		c.Paths.OutputDir = defaultOutputDir
	}
	if c.Paths.OutputDir, err = expandPath(c.Paths.OutputDir); err != nil {
		return fmt.Errorf("paths.output_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.ScratchDir) == "" {
		c.Paths.ScratchDir = defaultScratchDir
	}
	if c.Paths.ScratchDir, err = expandPath(c.Paths.ScratchDir); err != nil {
		return fmt.Errorf("paths.scratch_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	return nil
}

func (c *Config) normalizeFFmpeg() {
	c.FFmpeg.Binary = strings.TrimSpace(c.FFmpeg.Binary)
	if c.FFmpeg.Binary == "" {
		c.FFmpeg.Binary = defaultFFmpegBinary
	}
	c.FFmpeg.FFprobeBinary = strings.TrimSpace(c.FFmpeg.FFprobeBinary)
	if c.FFmpeg.FFprobeBinary == "" {
		c.FFmpeg.FFprobeBinary = defaultFFprobeBinary
	}
}

func (c *Config) normalizeTranscription() {
	c.Transcription.Provider = strings.ToLower(strings.TrimSpace(c.Transcription.Provider))
	if c.Transcription.Provider == "" {
		c.Transcription.Provider = defaultTranscriptionProvider
	}
	c.Transcription.BaseURL = strings.TrimRight(strings.TrimSpace(c.Transcription.BaseURL), "/")
	if c.Transcription.BaseURL == "" {
		switch c.Transcription.Provider {
		case providerAssemblyAI:
			c.Transcription.BaseURL = defaultAssemblyAIBaseURL
		default:
			c.Transcription.BaseURL = defaultBackendBaseURL
		}
	}
	if value, ok := os.LookupEnv(transcriptionAPIKeyEnv); ok && strings.TrimSpace(value) != "" {
		c.Transcription.APIKey = value
	} else if c.Transcription.Provider == providerAssemblyAI {
		if value, ok := os.LookupEnv(assemblyAIAPIKeyEnv); ok && strings.TrimSpace(value) != "" {
			c.Transcription.APIKey = value
		}
	}
	c.Transcription.APIKey = strings.TrimSpace(c.Transcription.APIKey)
	if c.Transcription.PollIntervalSeconds <= 0 {
		c.Transcription.PollIntervalSeconds = defaultPollIntervalSeconds
	}
	if c.Transcription.MaxPollAttempts <= 0 {
		c.Transcription.MaxPollAttempts = defaultMaxPollAttempts
	}
	if c.Transcription.UploadTimeoutSeconds <= 0 {
		c.Transcription.UploadTimeoutSeconds = defaultUploadTimeoutSeconds
	}
	if c.Transcription.PollTimeoutSeconds <= 0 {
		c.Transcription.PollTimeoutSeconds = defaultPollTimeoutSeconds
	}
	if c.Transcription.DownloadTimeoutSeconds <= 0 {
		c.Transcription.DownloadTimeoutSeconds = defaultDownloadTimeoutSeconds
	}
}

func (c *Config) normalizeTranslation() {
	if value, ok := os.LookupEnv(translationServerEnv); ok && strings.TrimSpace(value) != "" {
		c.Translation.BaseURL = value
	}
	c.Translation.BaseURL = strings.TrimRight(strings.TrimSpace(c.Translation.BaseURL), "/")
	if c.Translation.BaseURL == "" {
		c.Translation.BaseURL = defaultTranslationBaseURL
	}
	c.Translation.SourceLanguage = strings.TrimSpace(c.Translation.SourceLanguage)
	c.Translation.Country = strings.TrimSpace(c.Translation.Country)
	c.Translation.Model = strings.TrimSpace(c.Translation.Model)
	if c.Translation.TimeoutSeconds <= 0 {
		c.Translation.TimeoutSeconds = defaultTranslationTimeout
	}
}

func (c *Config) normalizeWorkflow() {
	if c.Workflow.Concurrency <= 0 {
		c.Workflow.Concurrency = defaultConcurrency
	}
	c.Workflow.TargetLanguage = strings.TrimSpace(c.Workflow.TargetLanguage)
	if c.Workflow.RetryMaxAttempts <= 0 {
		c.Workflow.RetryMaxAttempts = defaultRetryMaxAttempts
	}
	if c.Workflow.RetryInitialDelayMS < 0 {
		c.Workflow.RetryInitialDelayMS = defaultRetryInitialDelayMS
	}
	if c.Workflow.RetryBackoffMultiplier == 0 {
		c.Workflow.RetryBackoffMultiplier = defaultRetryBackoffMultiplier
	}
	if c.Workflow.ScratchRetentionHours < 0 {
		c.Workflow.ScratchRetentionHours = 0
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}
