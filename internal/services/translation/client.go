package translation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"subforge/internal/logging"
	"subforge/internal/retry"
	"subforge/internal/services"
)

const (
	defaultTimeout = 5 * time.Minute
	stage          = "translating"
	serviceName    = "translation"

	categoryTranslation = "translation"
	categoryError       = "error"
)

// Config describes the translation endpoint and request defaults.
type Config struct {
	BaseURL        string
	SourceLanguage string
	Country        string
	Model          string
	Timeout        time.Duration
	Retry          retry.Policy
	HTTPClient     *http.Client
}

// Observer receives task log lines produced while translating.
type Observer interface {
	Log(category, message string)
}

// Request describes one translation.
type Request struct {
	TaskID         string
	Content        string
	TargetLanguage string
	// SourceLanguage overrides Config.SourceLanguage when set.
	SourceLanguage string
	Observer       Observer
}

// Result is the translated document, or the original when Fallback is set.
type Result struct {
	Content    string
	EntryCount int
	Fallback   bool
}

// Client calls the translation service.
type Client struct {
	cfg    Config
	http   *http.Client
	sleep  retry.Sleeper
	logger *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithSleeper overrides how retry sleeps are performed (useful for tests).
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

// NewClient constructs a translation client.
func NewClient(cfg Config, opts ...Option) *Client {
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = retry.DefaultPolicy()
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	c := &Client{cfg: cfg, http: httpClient, sleep: retry.Sleep}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	c.logger = logging.NewComponentLogger(c.logger, "translation")
	return c
}

// BaseURL returns the configured endpoint.
func (c *Client) BaseURL() string {
	return c.cfg.BaseURL
}

type translateRequest struct {
	SRTContent     string `json:"srt_content"`
	TargetLanguage string `json:"target_language"`
	SourceLanguage string `json:"source_language,omitempty"`
	Country        string `json:"country,omitempty"`
	Model          string `json:"model,omitempty"`
}

type translateResponse struct {
	TranslatedSRT string `json:"translated_srt"`
	EntryCount    int    `json:"entry_count"`
}

// Translate sends req.Content to the service. Retry exhaustion yields the
// original content with Fallback set and a nil error.
func (c *Client) Translate(ctx context.Context, req Request) (Result, error) {
	obs := req.Observer
	if obs == nil {
		obs = nopObserver{}
	}
	target := strings.TrimSpace(req.TargetLanguage)
	if target == "" {
		return Result{}, services.Wrap(services.ErrValidation, stage, "translate", "target language is required", nil)
	}
	source := strings.TrimSpace(req.SourceLanguage)
	if source == "" {
		source = c.cfg.SourceLanguage
	}
	payload, err := json.Marshal(translateRequest{
		SRTContent:     req.Content,
		TargetLanguage: target,
		SourceLanguage: source,
		Country:        c.cfg.Country,
		Model:          c.cfg.Model,
	})
	if err != nil {
		return Result{}, fmt.Errorf("translation request: encode body: %w", err)
	}

	obs.Log(categoryTranslation, fmt.Sprintf("Sending SRT to translation server: %s (target: %s)", c.cfg.BaseURL, target))
	resp, err := retry.Do(ctx, c.cfg.Retry, "Translation", func(ctx context.Context) (translateResponse, error) {
		return c.send(ctx, payload)
	}, retry.WithSleeper(c.sleep), retry.OnRetry(func(f retry.Failure) {
		obs.Log(categoryTranslation, f.Message())
	}))
	if err != nil {
		if !errors.Is(err, retry.ErrExhausted) {
			return Result{}, err
		}
		obs.Log(categoryError, fmt.Sprintf("Translation failed after %d attempts: %v. Falling back to original SRT.", c.cfg.Retry.MaxAttempts, err))
		c.logger.Warn("translation unavailable; using original subtitles",
			logging.String(logging.FieldTaskID, req.TaskID),
			logging.String(logging.FieldEventType, "translation_fallback"),
			logging.String(logging.FieldErrorHint, "check that the translation service at "+c.cfg.BaseURL+" is reachable"),
			logging.String(logging.FieldImpact, "output subtitles are untranslated"),
			logging.Error(err),
		)
		return Result{Content: req.Content, EntryCount: CountCues(req.Content), Fallback: true}, nil
	}

	count := resp.EntryCount
	if count <= 0 {
		count = CountCues(resp.TranslatedSRT)
	}
	obs.Log(categoryTranslation, fmt.Sprintf("Translation complete: %d entries translated", count))
	return Result{Content: resp.TranslatedSRT, EntryCount: count}, nil
}

func (c *Client) send(ctx context.Context, payload []byte) (translateResponse, error) {
	var out translateResponse
	callCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, c.cfg.BaseURL+"/translate", bytes.NewReader(payload))
	if err != nil {
		return out, fmt.Errorf("translation request: new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return out, services.TransportError(stage, "Translation request", err)
	}
	defer resp.Body.Close()
	body, err := services.CheckResponse(serviceName, stage, "Translation failed", resp)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return out, &services.APIError{Service: serviceName, StatusCode: resp.StatusCode, Message: "Translation failed: malformed response: " + err.Error()}
	}
	if strings.TrimSpace(out.TranslatedSRT) == "" {
		return out, &services.APIError{Service: serviceName, StatusCode: resp.StatusCode, Message: "Translation failed: empty translated_srt"}
	}
	return out, nil
}

// CountCues returns the number of timed entries in an SRT document.
func CountCues(content string) int {
	count := 0
	for _, line := range strings.Split(content, "\n") {
		if strings.Contains(line, "-->") {
			count++
		}
	}
	return count
}

type nopObserver struct{}

func (nopObserver) Log(string, string) {}
