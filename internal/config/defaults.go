package config

const (
	defaultOutputDir              = "~/subtitles"
	defaultScratchDir             = "~/.local/share/subforge/scratch"
	defaultLogDir                 = "~/.local/share/subforge/logs"
	defaultAPIBind                = "127.0.0.1:7491"
	defaultFFmpegBinary           = "ffmpeg"
	defaultFFprobeBinary          = "ffprobe"
	defaultTranscriptionProvider  = "backend"
	defaultBackendBaseURL         = "http://127.0.0.1:8000"
	defaultAssemblyAIBaseURL      = "https://api.eu.assemblyai.com"
	defaultPollIntervalSeconds    = 3
	defaultMaxPollAttempts        = 600
	defaultUploadTimeoutSeconds   = 600
	defaultPollTimeoutSeconds     = 30
	defaultDownloadTimeoutSeconds = 120
	defaultTranslationBaseURL     = "http://127.0.0.1:8010"
	defaultTranslationTimeout     = 300
	defaultConcurrency            = 4
	defaultRetryMaxAttempts       = 3
	defaultRetryInitialDelayMS    = 1000
	defaultRetryBackoffMultiplier = 2.0
	defaultScratchRetentionHours  = 168
	defaultLogFormat              = "console"
	defaultLogLevel               = "info"
	defaultLogRetentionDays       = 30
	maxConcurrency                = 64
	providerBackend               = "backend"
	providerAssemblyAI            = "assemblyai"
	transcriptionAPIKeyEnv        = "SUBFORGE_TRANSCRIPTION_API_KEY"
	assemblyAIAPIKeyEnv           = "ASSEMBLYAI_API_KEY"
	translationServerEnv          = "SUBFORGE_TRANSLATION_URL"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			OutputDir:  defaultOutputDir,
			ScratchDir: defaultScratchDir,
			LogDir:     defaultLogDir,
			APIBind:    defaultAPIBind,
		},
		FFmpeg: FFmpeg{
			Binary:        defaultFFmpegBinary,
			FFprobeBinary: defaultFFprobeBinary,
		},
		Transcription: Transcription{
			Provider:               defaultTranscriptionProvider,
			LanguageDetection:      true,
			SpeakerLabels:          true,
			PollIntervalSeconds:    defaultPollIntervalSeconds,
			MaxPollAttempts:        defaultMaxPollAttempts,
			UploadTimeoutSeconds:   defaultUploadTimeoutSeconds,
			PollTimeoutSeconds:     defaultPollTimeoutSeconds,
			DownloadTimeoutSeconds: defaultDownloadTimeoutSeconds,
		},
		Translation: Translation{
			BaseURL:        defaultTranslationBaseURL,
			TimeoutSeconds: defaultTranslationTimeout,
		},
		Workflow: Workflow{
			Concurrency:            defaultConcurrency,
			RetryMaxAttempts:       defaultRetryMaxAttempts,
			RetryInitialDelayMS:    defaultRetryInitialDelayMS,
			RetryBackoffMultiplier: defaultRetryBackoffMultiplier,
			ScratchRetentionHours:  defaultScratchRetentionHours,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
