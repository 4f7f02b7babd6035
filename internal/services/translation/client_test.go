package translation_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"subforge/internal/retry"
	"subforge/internal/services"
	"subforge/internal/services/translation"
	"subforge/internal/testsupport"
)

type logRecorder struct {
	entries []string
}

func (l *logRecorder) Log(category, message string) {
	l.entries = append(l.entries, category+": "+message)
}

func (l *logRecorder) find(prefix string) string {
	for _, entry := range l.entries {
		if strings.HasPrefix(entry, prefix) {
			return entry
		}
	}
	return ""
}

func noSleep(ctx context.Context, _ time.Duration) error { return ctx.Err() }

func newClient(baseURL string) *translation.Client {
	return translation.NewClient(translation.Config{
		BaseURL: baseURL,
		Country: "Taiwan",
		Retry:   retry.Policy{MaxAttempts: 3, InitialDelay: time.Second, Multiplier: 2},
	}, translation.WithSleeper(noSleep))
}

func TestTranslateSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/translate" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if body["target_language"] != "Traditional Chinese" || body["country"] != "Taiwan" {
			t.Errorf("unexpected body %v", body)
		}
		if _, ok := body["model"]; ok {
			t.Errorf("empty model should be omitted: %v", body)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"translated_srt": "1\n00:00:01,000 --> 00:00:02,000\n你好\n", "entry_count": 1})
	}))
	defer server.Close()

	logs := &logRecorder{}
	result, err := newClient(server.URL+"/").Translate(context.Background(), translation.Request{
		Content:        testsupport.SampleSRT,
		TargetLanguage: "Traditional Chinese",
		Observer:       logs,
	})
	if err != nil {
		t.Fatalf("Translate returned error: %v", err)
	}
	if result.Fallback || result.EntryCount != 1 || !strings.Contains(result.Content, "你好") {
		t.Fatalf("unexpected result %+v", result)
	}
	if logs.find("translation: Translation complete: 1 entries") == "" {
		t.Fatalf("missing completion log: %v", logs.entries)
	}
}

func TestTranslateFallsBackAfterRetryExhaustion(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	logs := &logRecorder{}
	result, err := newClient(server.URL).Translate(context.Background(), translation.Request{
		Content:        testsupport.SampleSRT,
		TargetLanguage: "French",
		Observer:       logs,
	})
	if err != nil {
		t.Fatalf("fallback must not return an error, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
	if !result.Fallback || result.Content != testsupport.SampleSRT || result.EntryCount != 2 {
		t.Fatalf("expected original content as fallback, got %+v", result)
	}
	entry := logs.find("error: Translation failed after 3 attempts")
	if entry == "" || !strings.HasSuffix(entry, "Falling back to original SRT.") {
		t.Fatalf("missing fallback log entry: %v", logs.entries)
	}
	if logs.find("translation: Translation attempt 2/3 failed, retrying in 2000ms") == "" {
		t.Fatalf("missing retry log entry: %v", logs.entries)
	}
}

func TestTranslateAPIErrorPropagates(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"detail":"unsupported target language"}`))
	}))
	defer server.Close()

	_, err := newClient(server.URL).Translate(context.Background(), translation.Request{
		Content:        testsupport.SampleSRT,
		TargetLanguage: "Klingon",
	})
	if !errors.Is(err, services.ErrAPI) {
		t.Fatalf("expected ErrAPI, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected no retries for api errors, got %d calls", calls)
	}
	if !strings.Contains(err.Error(), "unsupported target language") {
		t.Fatalf("expected server detail in %q", err)
	}
}

func TestTranslateCanceledDoesNotFallBack(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cancel()
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	_, err := newClient(server.URL).Translate(ctx, translation.Request{
		Content:        testsupport.SampleSRT,
		TargetLanguage: "German",
	})
	if !errors.Is(err, services.ErrCanceled) {
		t.Fatalf("expected ErrCanceled, got %v", err)
	}
}

func TestTranslateRequiresTargetLanguage(t *testing.T) {
	_, err := newClient("http://127.0.0.1:1").Translate(context.Background(), translation.Request{Content: "x"})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestCountCues(t *testing.T) {
	if got := translation.CountCues(testsupport.SampleSRT); got != 2 {
		t.Fatalf("CountCues = %d, want 2", got)
	}
	if got := translation.CountCues(""); got != 0 {
		t.Fatalf("CountCues(empty) = %d", got)
	}
}
