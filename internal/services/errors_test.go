package services_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"

	"subforge/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrNetwork, "transcribing", "upload", "failed", base)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrNetwork) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"transcribing", "upload", "failed"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestRetryableClassification(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"network", services.Wrap(services.ErrNetwork, "", "poll", "http 503", nil), true},
		{"api", &services.APIError{Service: "translation", StatusCode: 400, Message: "bad"}, false},
		{"timeout", services.Wrap(services.ErrTimeout, "", "poll", "budget", nil), false},
		{"canceled network", fmt.Errorf("%w: %w", services.ErrNetwork, context.Canceled), false},
		{"plain", errors.New("plain"), false},
	}
	for _, tc := range cases {
		if got := services.Retryable(tc.err); got != tc.want {
			t.Fatalf("%s: Retryable=%v want %v", tc.name, got, tc.want)
		}
	}
}

func TestExecErrorCarriesTail(t *testing.T) {
	err := error(&services.ExecError{Command: "ffmpeg", ExitCode: 1, StderrTail: "Invalid data found"})
	if !errors.Is(err, services.ErrProcessExecution) {
		t.Fatalf("expected execution marker, got %v", err)
	}
	var execErr *services.ExecError
	if !errors.As(err, &execErr) || execErr.ExitCode != 1 {
		t.Fatalf("expected ExecError with exit code 1, got %#v", execErr)
	}
	if !strings.Contains(err.Error(), "Invalid data found") {
		t.Fatalf("expected stderr tail in message, got %q", err.Error())
	}
	if services.Kind(err) != "process_execution" {
		t.Fatalf("unexpected kind %q", services.Kind(err))
	}
}

func TestCanceledTagsContextErrors(t *testing.T) {
	err := services.Canceled("extracting", context.Canceled)
	if !errors.Is(err, services.ErrCanceled) {
		t.Fatalf("expected cancellation marker, got %v", err)
	}
	if services.Kind(err) != "canceled" {
		t.Fatalf("unexpected kind %q", services.Kind(err))
	}
	other := errors.New("other")
	if services.Canceled("extracting", other) != other {
		t.Fatal("expected non-context error to pass through")
	}
}

func TestCheckResponseClassification(t *testing.T) {
	cases := []struct {
		name      string
		status    int
		body      string
		network   bool
		wantInMsg string
	}{
		{name: "ok", status: 200, body: `{"job_id":"j1"}`},
		{name: "server error", status: 503, body: "upstream down", network: true, wantInMsg: "[HTTP 503] upstream down"},
		{name: "rate limited", status: 429, network: true, wantInMsg: "Rate limit exceeded"},
		{name: "unauthorized", status: 401, body: "nope", wantInMsg: "Unauthorized"},
		{name: "json error", status: 400, body: `{"error":"audio_url is invalid"}`, wantInMsg: "audio_url is invalid"},
		{name: "fastapi detail", status: 422, body: `{"detail":[{"msg":"field required"}]}`, wantInMsg: "field required"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := &http.Response{StatusCode: tc.status, Body: io.NopCloser(strings.NewReader(tc.body))}
			body, err := services.CheckResponse("transcription", "transcribing", "Upload failed", resp)
			if tc.status == 200 {
				if err != nil || string(body) != tc.body {
					t.Fatalf("expected body passthrough, got %q, %v", body, err)
				}
				return
			}
			if err == nil {
				t.Fatal("expected error")
			}
			if services.Retryable(err) != tc.network {
				t.Fatalf("Retryable = %v, want %v (%v)", services.Retryable(err), tc.network, err)
			}
			if !tc.network {
				var apiErr *services.APIError
				if !errors.As(err, &apiErr) || apiErr.StatusCode != tc.status {
					t.Fatalf("expected APIError with status %d, got %v", tc.status, err)
				}
			}
			if !strings.Contains(err.Error(), tc.wantInMsg) {
				t.Fatalf("expected %q in %q", tc.wantInMsg, err.Error())
			}
		})
	}
}
