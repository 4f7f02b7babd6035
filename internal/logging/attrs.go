package logging

import (
	"context"
	"log/slog"
	"time"

	"subforge/internal/services"
)

type Attr = slog.Attr

func Any(key string, value any) Attr { return slog.Any(key, value) }

func Bool(key string, value bool) Attr { return slog.Bool(key, value) }

func Duration(key string, value time.Duration) Attr { return slog.Duration(key, value) }

func Int(key string, value int) Attr { return slog.Int(key, value) }

func Int64(key string, value int64) Attr { return slog.Int64(key, value) }

func String(key string, value string) Attr { return slog.String(key, value) }

// Error returns the standard "error" attribute. A nil error yields an empty
// attribute, which slog drops.
func Error(err error) Attr {
	if err == nil {
		return Attr{}
	}
	return slog.Any("error", err)
}

func Args(attrs ...Attr) []any {
	return attrsToArgs(attrs)
}

func attrsToArgs(attrs []Attr) []any {
	args := make([]any, 0, len(attrs))
	for _, attr := range attrs {
		args = append(args, attr)
	}
	return args
}

func NewNop() *slog.Logger {
	return slog.New(NoopHandler{})
}

// NewComponentLogger tags logger with a component name. A nil logger becomes
// a no-op logger.
func NewComponentLogger(logger *slog.Logger, component string) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	return logger.With(String(FieldComponent, component))
}

// HintFor returns the operator's next step for a services.Kind value.
func HintFor(kind string) string {
	switch kind {
	case "process_spawn":
		return "install ffmpeg or set ffmpeg.binary"
	case "process_execution":
		return "inspect the ffmpeg stderr tail; the input may be corrupt or have no audio"
	case "network":
		return "check that the transcription and translation services are reachable"
	case "api":
		return "check the API key and request parameters"
	case "timeout":
		return "the remote job did not finish; raise transcription.max_poll_attempts or check the service"
	case "filesystem":
		return "check permissions and free space under output_dir and scratch_dir"
	case "configuration", "validation":
		return "run subforge config validate"
	case "canceled":
		return "task was canceled; resubmit it to retry"
	default:
		return "see the task log with subforge logs TASK_ID"
	}
}

// WarnWithContext logs a warning carrying event_type, error_kind, error_hint,
// and impact. Missing fields are derived from the logged error.
func WarnWithContext(logger *slog.Logger, msg, eventType string, attrs ...Attr) {
	if logger == nil {
		return
	}
	attrs = withFailureFields(eventType, attrs)
	if !hasAttr(attrs, FieldImpact) {
		attrs = append(attrs, String(FieldImpact, "task continues; output may be incomplete"))
	}
	logger.Warn(msg, Args(attrs...)...)
}

// ErrorWithContext logs an error carrying event_type, error_kind and
// error_hint.
func ErrorWithContext(logger *slog.Logger, msg, eventType string, attrs ...Attr) {
	if logger == nil {
		return
	}
	logger.Error(msg, Args(withFailureFields(eventType, attrs)...)...)
}

func withFailureFields(eventType string, attrs []Attr) []Attr {
	if !hasAttr(attrs, FieldEventType) {
		attrs = append(attrs, String(FieldEventType, eventType))
	}
	kind := ""
	if err := errorAttr(attrs); err != nil {
		kind = services.Kind(err)
		if !hasAttr(attrs, FieldErrorKind) {
			attrs = append(attrs, String(FieldErrorKind, kind))
		}
	}
	if !hasAttr(attrs, FieldErrorHint) {
		attrs = append(attrs, String(FieldErrorHint, HintFor(kind)))
	}
	return attrs
}

func hasAttr(attrs []Attr, key string) bool {
	for _, a := range attrs {
		if a.Key == key {
			return true
		}
	}
	return false
}

func errorAttr(attrs []Attr) error {
	for _, a := range attrs {
		if a.Key != "error" {
			continue
		}
		if err, ok := a.Value.Any().(error); ok {
			return err
		}
	}
	return nil
}

// NoopHandler discards all log output.
type NoopHandler struct{}

func (NoopHandler) Enabled(context.Context, slog.Level) bool { return false }

func (NoopHandler) Handle(context.Context, slog.Record) error { return nil }

func (NoopHandler) WithAttrs([]slog.Attr) slog.Handler { return NoopHandler{} }

func (NoopHandler) WithGroup(string) slog.Handler { return NoopHandler{} }
