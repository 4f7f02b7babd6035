package transcription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"subforge/internal/logging"
	"subforge/internal/retry"
	"subforge/internal/services"
)

const (
	defaultPollInterval    = 3 * time.Second
	defaultMaxPollAttempts = 600
	defaultUploadTimeout   = 10 * time.Minute
	defaultPollTimeout     = 30 * time.Second
	defaultDownloadTimeout = 2 * time.Minute
)

// Config controls polling cadence and per-call budgets.
type Config struct {
	PollInterval    time.Duration
	MaxPollAttempts int
	UploadTimeout   time.Duration
	PollTimeout     time.Duration
	DownloadTimeout time.Duration
	Retry           retry.Policy
}

// Observer receives lifecycle callbacks for one transcription. Calls happen on
// the goroutine running Transcribe, in order.
type Observer interface {
	Started(jobID string)
	Polling(status RemoteStatus)
	Log(category, message string)
}

// Request describes one transcription.
type Request struct {
	TaskID         string
	AudioPath      string
	TranscriptPath string
	Observer       Observer
}

// Result reports a finished transcription.
type Result struct {
	JobID          string
	TranscriptPath string
	PollAttempts   int
}

// Client runs transcription jobs against a Provider.
type Client struct {
	cfg      Config
	provider Provider
	sleep    retry.Sleeper
	logger   *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithSleeper overrides how poll and backoff sleeps are performed (useful for tests).
func WithSleeper(sleep retry.Sleeper) Option {
	return func(c *Client) {
		if sleep != nil {
			c.sleep = sleep
		}
	}
}

// WithLogger attaches a logger for diagnostic output.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient constructs a Client. Zero config values fall back to defaults.
func NewClient(cfg Config, provider Provider, opts ...Option) *Client {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.MaxPollAttempts <= 0 {
		cfg.MaxPollAttempts = defaultMaxPollAttempts
	}
	if cfg.UploadTimeout <= 0 {
		cfg.UploadTimeout = defaultUploadTimeout
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = defaultPollTimeout
	}
	if cfg.DownloadTimeout <= 0 {
		cfg.DownloadTimeout = defaultDownloadTimeout
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = retry.DefaultPolicy()
	}
	c := &Client{cfg: cfg, provider: provider, sleep: retry.Sleep}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	c.logger = logging.NewComponentLogger(c.logger, "transcription")
	return c
}

// Provider returns the backing provider.
func (c *Client) Provider() Provider {
	return c.provider
}

// Transcribe uploads the audio, creates the job, polls until the job is
// terminal, and writes the downloaded transcript to req.TranscriptPath.
func (c *Client) Transcribe(ctx context.Context, req Request) (Result, error) {
	obs := req.Observer
	if obs == nil {
		obs = nopObserver{}
	}
	logger := c.logger.With(logging.String(logging.FieldTaskID, req.TaskID))
	result := Result{TranscriptPath: req.TranscriptPath}

	obs.Log(categoryMetadata, fmt.Sprintf("Starting transcription for: %s", req.AudioPath))
	obs.Log(categoryMetadata, fmt.Sprintf("Uploading audio to %s...", c.provider.Name()))
	logger.Debug("transcription phase", logging.String("phase", string(PhaseUploading)))

	asset, err := call(ctx, c, obs, "Upload audio", c.cfg.UploadTimeout, func(ctx context.Context) (Asset, error) {
		return c.provider.Upload(ctx, req.AudioPath)
	})
	if err != nil {
		return result, err
	}

	jobID := asset.JobID
	if jobID != "" {
		obs.Log(categoryTranscription, fmt.Sprintf("Upload complete. Job ID: %s", jobID))
	} else {
		obs.Log(categoryTranscription, fmt.Sprintf("Upload complete: %s", asset.Ref))
		obs.Log(categoryMetadata, "Creating transcription request...")
		job, err := call(ctx, c, obs, "Create transcript", c.cfg.PollTimeout, func(ctx context.Context) (Job, error) {
			return c.provider.Create(ctx, asset)
		})
		if err != nil {
			return result, err
		}
		jobID = job.ID
		obs.Log(categoryTranscription, fmt.Sprintf("Transcript created - ID: %s Status: %s", job.ID, job.Status))
	}
	result.JobID = jobID
	logger.Debug("transcription phase",
		logging.String("phase", string(PhaseCreated)),
		logging.String("job_id", jobID),
	)
	obs.Started(jobID)

	attempts, err := c.poll(ctx, obs, jobID)
	result.PollAttempts = attempts
	if err != nil {
		logger.Debug("transcription phase",
			logging.String("phase", string(PhaseError)),
			logging.Error(err),
		)
		return result, err
	}

	obs.Log(categoryMetadata, "Downloading original SRT subtitle file to temp folder...")
	content, err := call(ctx, c, obs, "Download SRT", c.cfg.DownloadTimeout, func(ctx context.Context) (string, error) {
		return c.provider.Download(ctx, jobID)
	})
	if err != nil {
		return result, err
	}
	if err := writeTranscript(req.TranscriptPath, content); err != nil {
		return result, err
	}
	obs.Log(categoryTranscription, fmt.Sprintf("Original SRT file saved to temp: %s (Job ID: %s)", req.TranscriptPath, jobID))
	logger.Debug("transcription phase",
		logging.String("phase", string(PhaseDone)),
		logging.Int("poll_attempts", attempts),
	)
	return result, nil
}

// poll sleeps the interval before each status query until the job is
// terminal or the attempt budget is spent.
func (c *Client) poll(ctx context.Context, obs Observer, jobID string) (int, error) {
	for attempt := 1; attempt <= c.cfg.MaxPollAttempts; attempt++ {
		if err := c.sleep(ctx, c.cfg.PollInterval); err != nil {
			return attempt - 1, services.Canceled(stage, err)
		}
		status, err := call(ctx, c, obs, "Poll transcription status", c.cfg.PollTimeout, func(ctx context.Context) (RemoteStatus, error) {
			return c.provider.Status(ctx, jobID)
		})
		if err != nil {
			return attempt, err
		}

		progress := ""
		if status.Progress > 0 {
			progress = fmt.Sprintf(" (%d%%)", status.Progress)
		}
		obs.Log(categoryTranscription, fmt.Sprintf("Poll attempt %d: Status = %s%s (Job ID: %s)", attempt, status, progress, jobID))
		obs.Polling(status)

		switch status.Kind {
		case StatusCompleted:
			obs.Log(categoryTranscription, fmt.Sprintf("Transcription completed successfully! (Job ID: %s)", jobID))
			return attempt, nil
		case StatusError:
			msg := status.Message
			if msg == "" {
				msg = "Unknown error"
			}
			return attempt, &services.APIError{
				Service: c.provider.Name(),
				Message: fmt.Sprintf("Transcription failed (Job ID: %s): %s", jobID, msg),
			}
		case StatusUnknown:
			obs.Log(categoryTranscription, fmt.Sprintf("Unknown status: %s (Job ID: %s)", status.Raw, jobID))
		}
	}
	return c.cfg.MaxPollAttempts, services.Wrap(services.ErrTimeout, stage, "poll",
		fmt.Sprintf("exceeded maximum polling attempts (%d) (Job ID: %s)", c.cfg.MaxPollAttempts, jobID), nil)
}

// call runs one provider operation through retry.Do, giving each attempt its
// own deadline. An attempt that hits its deadline while ctx is still live is
// a retryable network failure.
func call[T any](ctx context.Context, c *Client, obs Observer, name string, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	return retry.Do(ctx, c.cfg.Retry, name, func(ctx context.Context) (T, error) {
		callCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		value, err := fn(callCtx)
		if err != nil && ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) && !services.Retryable(err) {
			err = services.Wrap(services.ErrNetwork, stage, name, fmt.Sprintf("timed out after %s", timeout), err)
		}
		return value, err
	}, retry.WithSleeper(c.sleep), retry.OnRetry(func(f retry.Failure) {
		obs.Log(categoryTranscription, f.Message())
	}))
}

func writeTranscript(path, content string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return services.Wrap(services.ErrFilesystem, stage, "create transcript directory", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return services.Wrap(services.ErrFilesystem, stage, "write transcript", path, err)
	}
	return nil
}

type nopObserver struct{}

func (nopObserver) Started(string) {}

func (nopObserver) Polling(RemoteStatus) {}

func (nopObserver) Log(string, string) {}
