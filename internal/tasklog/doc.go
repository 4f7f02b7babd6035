// Package tasklog persists the user-facing log of each task.
//
// Every task gets one append-only file, {dir}/{taskID}.log, holding one JSON
// object per line with timestamp, type, and message fields. Files outlive the
// process so a task's log can be read back after a restart. Unparsable lines
// are skipped on read.
package tasklog
