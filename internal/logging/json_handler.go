package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"subforge/internal/services"
)

const jsonTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// newJSONHandler writes one object per line with ts, level, msg and, for
// records carrying an error, its error_kind.
func newJSONHandler(w io.Writer, lvl *slog.LevelVar, addSource bool) slog.Handler {
	opts := slog.HandlerOptions{
		Level:     lvl,
		AddSource: addSource,
		ReplaceAttr: func(groups []string, attr slog.Attr) slog.Attr {
			if len(groups) > 0 {
				return attr
			}
			switch attr.Key {
			case slog.TimeKey:
				attr.Key = "ts"
				if attr.Value.Kind() == slog.KindTime {
					attr.Value = slog.StringValue(attr.Value.Time().UTC().Format(jsonTimeFormat))
				}
			case slog.LevelKey:
				attr.Value = slog.StringValue(strings.ToLower(attr.Value.String()))
			case slog.SourceKey:
				if src, ok := attr.Value.Any().(*slog.Source); ok && src != nil {
					attr.Value = slog.StringValue(shortSource(src.File, src.Line))
				}
			case "error":
				if err, ok := attr.Value.Any().(error); ok {
					attr.Value = slog.StringValue(err.Error())
				}
			}
			return attr
		},
	}
	return errorKindHandler{Handler: slog.NewJSONHandler(w, &opts)}
}

// shortSource keeps the package directory so pipeline/pipeline.go:42 is
// distinguishable from api/server.go:42.
func shortSource(file string, line int) string {
	return fmt.Sprintf("%s:%d", filepath.Join(filepath.Base(filepath.Dir(file)), filepath.Base(file)), line)
}

// errorKindHandler adds error_kind to records that log an error without one.
type errorKindHandler struct {
	slog.Handler
}

func (h errorKindHandler) Handle(ctx context.Context, record slog.Record) error {
	var (
		failure error
		hasKind bool
	)
	record.Attrs(func(a slog.Attr) bool {
		switch a.Key {
		case FieldErrorKind:
			hasKind = true
		case "error":
			if err, ok := a.Value.Any().(error); ok {
				failure = err
			}
		}
		return true
	})
	if failure != nil && !hasKind {
		record = record.Clone()
		record.AddAttrs(slog.String(FieldErrorKind, services.Kind(failure)))
	}
	return h.Handler.Handle(ctx, record)
}

func (h errorKindHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return errorKindHandler{Handler: h.Handler.WithAttrs(attrs)}
}

func (h errorKindHandler) WithGroup(name string) slog.Handler {
	return errorKindHandler{Handler: h.Handler.WithGroup(name)}
}

