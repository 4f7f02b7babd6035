package transcription

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"subforge/internal/services"
)

// Backend talks to the self-hosted transcription service. Upload and job
// creation happen in one multipart request.
type Backend struct {
	opts ProviderOptions
	http *http.Client
}

// NewBackend constructs the self-hosted provider.
func NewBackend(opts ProviderOptions) *Backend {
	opts.BaseURL = strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	return &Backend{opts: opts, http: httpClientOrDefault(opts.HTTPClient)}
}

func (b *Backend) Name() string { return "transcription backend" }

type backendCreateResponse struct {
	JobID     string `json:"job_id"`
	Status    string `json:"status"`
	CreatedAt string `json:"created_at"`
}

type backendStatusResponse struct {
	JobID       string `json:"job_id"`
	Status      string `json:"status"`
	Progress    *int   `json:"progress"`
	Error       string `json:"error"`
	CompletedAt string `json:"completed_at"`
}

// Upload streams the audio as multipart form data and returns the created job.
func (b *Backend) Upload(ctx context.Context, audioPath string) (Asset, error) {
	file, err := os.Open(audioPath)
	if err != nil {
		return Asset{}, services.Wrap(services.ErrFilesystem, stage, "open audio", audioPath, err)
	}

	body, writer := io.Pipe()
	form := multipart.NewWriter(writer)
	go func() {
		defer file.Close()
		part, err := form.CreateFormFile("audio_file", filepath.Base(audioPath))
		if err == nil {
			_, err = io.Copy(part, file)
		}
		if err == nil {
			err = form.WriteField("language_detection", strconv.FormatBool(b.opts.LanguageDetection))
		}
		if err == nil {
			err = form.WriteField("speaker_labels", strconv.FormatBool(b.opts.SpeakerLabels))
		}
		if err == nil {
			err = form.Close()
		}
		writer.CloseWithError(err)
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.opts.BaseURL+"/transcriptions", body)
	if err != nil {
		body.Close()
		return Asset{}, fmt.Errorf("backend upload: new request: %w", err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())

	var created backendCreateResponse
	if err := doJSON(b.http, b.Name(), req, "Upload failed", &created); err != nil {
		body.Close()
		return Asset{}, err
	}
	if strings.TrimSpace(created.JobID) == "" {
		return Asset{}, &services.APIError{Service: b.Name(), Message: "Upload failed: response did not include a job id"}
	}
	return Asset{Ref: created.JobID, JobID: created.JobID}, nil
}

// Create is a no-op because Upload already created the job.
func (b *Backend) Create(_ context.Context, asset Asset) (Job, error) {
	return Job{ID: asset.JobID, Status: RemoteStatus{Kind: StatusQueued, Raw: "queued"}}, nil
}

// Status queries the job once.
func (b *Backend) Status(ctx context.Context, jobID string) (RemoteStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.opts.BaseURL+"/transcriptions/"+url.PathEscape(jobID), nil)
	if err != nil {
		return RemoteStatus{}, fmt.Errorf("backend status: new request: %w", err)
	}
	var resp backendStatusResponse
	if err := doJSON(b.http, b.Name(), req, "Status polling failed", &resp); err != nil {
		return RemoteStatus{}, err
	}
	status := RemoteStatus{Kind: ParseStatus(resp.Status), Raw: resp.Status, Message: resp.Error}
	if resp.Progress != nil {
		status.Progress = *resp.Progress
	}
	return status, nil
}

// Download fetches the finished transcript as SRT text.
func (b *Backend) Download(ctx context.Context, jobID string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.opts.BaseURL+"/transcriptions/"+url.PathEscape(jobID)+"/srt", nil)
	if err != nil {
		return "", fmt.Errorf("backend download: new request: %w", err)
	}
	return doText(b.http, b.Name(), req, "SRT download failed")
}
