package transcription

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"

	"subforge/internal/services"
)

// DefaultAssemblyAIBaseURL is the EU endpoint.
const DefaultAssemblyAIBaseURL = "https://api.eu.assemblyai.com"

// AssemblyAI implements the hosted AssemblyAI v2 API.
type AssemblyAI struct {
	opts ProviderOptions
	http *http.Client
}

// NewAssemblyAI constructs the AssemblyAI provider.
func NewAssemblyAI(opts ProviderOptions) *AssemblyAI {
	opts.BaseURL = strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultAssemblyAIBaseURL
	}
	return &AssemblyAI{opts: opts, http: httpClientOrDefault(opts.HTTPClient)}
}

func (a *AssemblyAI) Name() string { return "AssemblyAI" }

type assemblyUploadResponse struct {
	UploadURL string `json:"upload_url"`
}

type assemblyCreateRequest struct {
	AudioURL          string `json:"audio_url"`
	LanguageDetection bool   `json:"language_detection"`
	SpeakerLabels     bool   `json:"speaker_labels"`
}

type assemblyTranscript struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Error  string `json:"error"`
}

// Upload sends the raw audio bytes and returns the hosted upload URL.
func (a *AssemblyAI) Upload(ctx context.Context, audioPath string) (Asset, error) {
	file, err := os.Open(audioPath)
	if err != nil {
		return Asset{}, services.Wrap(services.ErrFilesystem, stage, "open audio", audioPath, err)
	}
	defer file.Close()
	info, err := file.Stat()
	if err != nil {
		return Asset{}, services.Wrap(services.ErrFilesystem, stage, "stat audio", audioPath, err)
	}

	req, err := a.newRequest(ctx, http.MethodPost, "/v2/upload", file)
	if err != nil {
		return Asset{}, err
	}
	req.ContentLength = info.Size()
	req.Header.Set("Content-Type", "application/octet-stream")

	var uploaded assemblyUploadResponse
	if err := doJSON(a.http, a.Name(), req, "Upload failed", &uploaded); err != nil {
		return Asset{}, err
	}
	if strings.TrimSpace(uploaded.UploadURL) == "" {
		return Asset{}, &services.APIError{Service: a.Name(), Message: "Upload failed: response did not include an upload url"}
	}
	return Asset{Ref: uploaded.UploadURL}, nil
}

// Create submits a transcript request for the uploaded audio.
func (a *AssemblyAI) Create(ctx context.Context, asset Asset) (Job, error) {
	payload, err := json.Marshal(assemblyCreateRequest{
		AudioURL:          asset.Ref,
		LanguageDetection: a.opts.LanguageDetection,
		SpeakerLabels:     a.opts.SpeakerLabels,
	})
	if err != nil {
		return Job{}, fmt.Errorf("assemblyai create: encode body: %w", err)
	}
	req, err := a.newRequest(ctx, http.MethodPost, "/v2/transcript", bytes.NewReader(payload))
	if err != nil {
		return Job{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	var transcript assemblyTranscript
	if err := doJSON(a.http, a.Name(), req, "Transcript creation failed", &transcript); err != nil {
		return Job{}, err
	}
	if strings.TrimSpace(transcript.ID) == "" {
		return Job{}, &services.APIError{Service: a.Name(), Message: "Transcript creation failed: response did not include an id"}
	}
	return Job{ID: transcript.ID, Status: RemoteStatus{Kind: ParseStatus(transcript.Status), Raw: transcript.Status}}, nil
}

// Status queries the transcript once.
func (a *AssemblyAI) Status(ctx context.Context, jobID string) (RemoteStatus, error) {
	req, err := a.newRequest(ctx, http.MethodGet, "/v2/transcript/"+url.PathEscape(jobID), nil)
	if err != nil {
		return RemoteStatus{}, err
	}
	var transcript assemblyTranscript
	if err := doJSON(a.http, a.Name(), req, "Status polling failed", &transcript); err != nil {
		return RemoteStatus{}, err
	}
	return RemoteStatus{Kind: ParseStatus(transcript.Status), Raw: transcript.Status, Message: transcript.Error}, nil
}

// Download fetches the transcript rendered as SRT.
func (a *AssemblyAI) Download(ctx context.Context, jobID string) (string, error) {
	req, err := a.newRequest(ctx, http.MethodGet, "/v2/transcript/"+url.PathEscape(jobID)+"/srt", nil)
	if err != nil {
		return "", err
	}
	return doText(a.http, a.Name(), req, "SRT download failed")
}

func (a *AssemblyAI) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, a.opts.BaseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("assemblyai request: %w", err)
	}
	req.Header.Set("authorization", a.opts.APIKey)
	return req, nil
}
