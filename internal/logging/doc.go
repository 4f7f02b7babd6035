// Package logging assembles structured slog loggers and formatting helpers used
// across subforge.
//
// It owns the configurable console/JSON handlers, tees output into a rotating
// application log, and exposes context-aware helpers so pipeline code can tag
// log lines with task IDs, batch IDs, stages, and correlation IDs. The package
// also provides a no-op logger for tests and wiring code that cannot fail.
//
// Per-task user-facing logs are not written here; see internal/tasklog.
package logging
