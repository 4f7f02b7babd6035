package transcription

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"subforge/internal/services"
)

const (
	ProviderBackend    = "backend"
	ProviderAssemblyAI = "assemblyai"

	categoryMetadata      = "metadata"
	categoryTranscription = "transcription"
	stage                 = "transcribing"
)

// Asset references uploaded audio. Providers that create the job as part of
// the upload set JobID, and the client skips the create call.
type Asset struct {
	Ref   string
	JobID string
}

// Job is a created remote transcription job.
type Job struct {
	ID     string
	Status RemoteStatus
}

// Provider speaks one transcription service's wire protocol. Each method is a
// single attempt; retries and timeouts are applied by Client.
type Provider interface {
	Name() string
	Upload(ctx context.Context, audioPath string) (Asset, error)
	Create(ctx context.Context, asset Asset) (Job, error)
	Status(ctx context.Context, jobID string) (RemoteStatus, error)
	Download(ctx context.Context, jobID string) (string, error)
}

// ProviderOptions carries the request flags shared by every provider.
type ProviderOptions struct {
	BaseURL           string
	APIKey            string
	LanguageDetection bool
	SpeakerLabels     bool
	HTTPClient        *http.Client
}

// NewProvider builds the provider named by name.
func NewProvider(name string, opts ProviderOptions) (Provider, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", ProviderBackend:
		return NewBackend(opts), nil
	case ProviderAssemblyAI:
		return NewAssemblyAI(opts), nil
	default:
		return nil, fmt.Errorf("unknown transcription provider %q", name)
	}
}

func httpClientOrDefault(client *http.Client) *http.Client {
	if client != nil {
		return client
	}
	return &http.Client{}
}

func doJSON(client *http.Client, service string, req *http.Request, operation string, target any) error {
	resp, err := client.Do(req)
	if err != nil {
		return services.TransportError(stage, operation, err)
	}
	defer resp.Body.Close()
	body, err := services.CheckResponse(service, stage, operation, resp)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, target); err != nil {
		return &services.APIError{Service: service, StatusCode: resp.StatusCode, Message: operation + ": malformed response: " + err.Error()}
	}
	return nil
}

func doText(client *http.Client, service string, req *http.Request, operation string) (string, error) {
	resp, err := client.Do(req)
	if err != nil {
		return "", services.TransportError(stage, operation, err)
	}
	defer resp.Body.Close()
	body, err := services.CheckResponse(service, stage, operation, resp)
	if err != nil {
		return "", err
	}
	return string(body), nil
}
