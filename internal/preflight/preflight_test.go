package preflight

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"subforge/internal/config"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if !strings.Contains(result.Detail, "does not exist") {
		t.Fatalf("unexpected detail %q", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckService_Reachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	result := CheckService(context.Background(), "svc", srv.URL, "")
	if !result.Passed {
		t.Fatalf("expected pass, got: %s", result.Detail)
	}
}

func TestCheckService_AuthRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "good-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	if result := CheckService(context.Background(), "svc", srv.URL, "bad-key"); result.Passed {
		t.Fatal("expected failure for bad key")
	}
	if result := CheckService(context.Background(), "svc", srv.URL, "good-key"); !result.Passed {
		t.Fatalf("expected pass for good key, got: %s", result.Detail)
	}
}

func TestCheckService_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	result := CheckService(context.Background(), "svc", srv.URL, "")
	if result.Passed || !strings.Contains(result.Detail, "503") {
		t.Fatalf("expected server error failure, got %#v", result)
	}
}

func TestCheckService_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	if result := CheckService(context.Background(), "svc", url, ""); result.Passed {
		t.Fatal("expected failure for closed server")
	}
}

func TestCheckTranscription_AssemblyAIRequiresKey(t *testing.T) {
	result := CheckTranscription(context.Background(), config.Transcription{
		Provider: "assemblyai",
		BaseURL:  "http://127.0.0.1:1",
	})
	if result.Passed || result.Detail != "API key missing" {
		t.Fatalf("unexpected result %#v", result)
	}
}

func TestRunAll_NilConfig(t *testing.T) {
	if results := RunAll(context.Background(), nil); results != nil {
		t.Fatal("expected nil results for nil config")
	}
}

func TestRunAll_SkipsTranslationWithoutLanguage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := config.Default()
	cfg.Paths.OutputDir = t.TempDir()
	cfg.Paths.ScratchDir = t.TempDir()
	cfg.Paths.LogDir = t.TempDir()
	cfg.Transcription.Provider = "backend"
	cfg.Transcription.BaseURL = srv.URL
	cfg.Translation.BaseURL = srv.URL
	cfg.Workflow.TargetLanguage = ""

	results := RunAll(context.Background(), &cfg)
	if len(results) != 4 {
		t.Fatalf("expected 4 results, got %d", len(results))
	}
	if failed := Failed(results); len(failed) != 0 {
		t.Fatalf("unexpected failures %#v", failed)
	}

	cfg.Workflow.TargetLanguage = "Spanish"
	results = RunAll(context.Background(), &cfg)
	if len(results) != 5 || results[4].Name != "Translation service" || !results[4].Passed {
		t.Fatalf("expected passing translation check, got %#v", results)
	}
}
