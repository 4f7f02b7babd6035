package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrProcessSpawn     = errors.New("process spawn error")
	ErrProcessExecution = errors.New("process execution error")
	ErrNetwork          = errors.New("network error")
	ErrAPI              = errors.New("api error")
	ErrTimeout          = errors.New("timeout")
	ErrFilesystem       = errors.New("filesystem error")
	ErrCanceled         = errors.New("canceled")
	ErrValidation       = errors.New("validation error")
	ErrConfiguration    = errors.New("configuration error")
	ErrNotFound         = errors.New("not found")
)

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one of the
// exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrNetwork
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// ExecError describes an external process that ran but exited unsuccessfully.
type ExecError struct {
	Command    string
	ExitCode   int
	StderrTail string
}

func (e *ExecError) Error() string {
	tail := strings.TrimSpace(e.StderrTail)
	if tail == "" {
		return fmt.Sprintf("%s exited with code %d", e.Command, e.ExitCode)
	}
	return fmt.Sprintf("%s exited with code %d: %s", e.Command, e.ExitCode, tail)
}

func (e *ExecError) Unwrap() error { return ErrProcessExecution }

// APIError is a permanent rejection returned by a remote service.
type APIError struct {
	Service    string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	msg := strings.TrimSpace(e.Message)
	if msg == "" {
		msg = "request rejected"
	}
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s api error (%d): %s", e.Service, e.StatusCode, msg)
	}
	return fmt.Sprintf("%s api error: %s", e.Service, msg)
}

func (e *APIError) Unwrap() error { return ErrAPI }

// Retryable reports whether err is a transient failure worth another attempt.
// Cancellation is never retryable, even when the cause was a network call.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrCanceled) || errors.Is(err, context.Canceled) {
		return false
	}
	return errors.Is(err, ErrNetwork)
}

// Kind returns a short label for the failure class, used when persisting and
// rendering failed tasks.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrCanceled), errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, ErrProcessSpawn):
		return "process_spawn"
	case errors.Is(err, ErrProcessExecution):
		return "process_execution"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrAPI):
		return "api"
	case errors.Is(err, ErrNetwork):
		return "network"
	case errors.Is(err, ErrFilesystem):
		return "filesystem"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrConfiguration):
		return "configuration"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	default:
		return "unknown"
	}
}

// Canceled converts a context error into a cancellation-tagged error. Other
// errors are returned unchanged.
func Canceled(stage string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrCanceled) {
		return err
	}
	if errors.Is(err, context.Canceled) {
		return Wrap(ErrCanceled, stage, "", "task canceled", nil)
	}
	return err
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
