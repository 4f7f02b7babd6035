package workflow

import (
	"fmt"
	"log/slog"

	"subforge/internal/config"
	"subforge/internal/ffmpeg"
	"subforge/internal/logging"
	"subforge/internal/pipeline"
	"subforge/internal/retry"
	"subforge/internal/services/transcription"
	"subforge/internal/services/translation"
	"subforge/internal/staging"
)

// BatchDefaults derives the batch settings configured in cfg.
func BatchDefaults(cfg *config.Config) BatchConfig {
	return BatchConfig{
		OutputDir:   cfg.Paths.OutputDir,
		ScratchDir:  cfg.Paths.ScratchDir,
		Concurrency: cfg.Workflow.Concurrency,
		Retry: retry.Policy{
			MaxAttempts:  cfg.Workflow.RetryMaxAttempts,
			InitialDelay: cfg.RetryInitialDelay(),
			Multiplier:   cfg.Workflow.RetryBackoffMultiplier,
		},
	}
}

// NewFactory returns a Factory wiring ffmpeg and the configured remote
// services. Clients are rebuilt per batch so each honours its retry policy.
func NewFactory(cfg *config.Config, journal pipeline.Journal, logger *slog.Logger) (Factory, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	provider, err := transcription.NewProvider(cfg.Transcription.Provider, transcription.ProviderOptions{
		BaseURL:           cfg.Transcription.BaseURL,
		APIKey:            cfg.Transcription.APIKey,
		LanguageDetection: cfg.Transcription.LanguageDetection,
		SpeakerLabels:     cfg.Transcription.SpeakerLabels,
	})
	if err != nil {
		return nil, err
	}
	extractor := ffmpeg.NewRunner(cfg.FFmpeg.Binary, cfg.FFmpeg.FFprobeBinary,
		ffmpeg.WithLogger(logging.NewComponentLogger(logger, "ffmpeg")))

	return func(batch BatchConfig) pipeline.Dependencies {
		policy := batch.Retry
		if policy.MaxAttempts <= 0 {
			policy = retry.DefaultPolicy()
		}
		transcriber := transcription.NewClient(transcription.Config{
			PollInterval:    cfg.PollInterval(),
			MaxPollAttempts: cfg.Transcription.MaxPollAttempts,
			UploadTimeout:   cfg.UploadTimeout(),
			PollTimeout:     cfg.PollTimeout(),
			DownloadTimeout: cfg.DownloadTimeout(),
			Retry:           policy,
		}, provider, transcription.WithLogger(logging.NewComponentLogger(logger, "transcription")))
		translator := translation.NewClient(translation.Config{
			BaseURL:        cfg.Translation.BaseURL,
			SourceLanguage: cfg.Translation.SourceLanguage,
			Country:        cfg.Translation.Country,
			Model:          cfg.Translation.Model,
			Timeout:        cfg.TranslationTimeout(),
			Retry:          policy,
		}, translation.WithLogger(logging.NewComponentLogger(logger, "translation")))
		return pipeline.Dependencies{
			Extractor:   extractor,
			Transcriber: transcriber,
			Translator:  translator,
			Journal:     journal,
			Cleaner:     staging.NewManager(batch.ScratchDir, logger),
			Logger:      logger,
		}
	}, nil
}
