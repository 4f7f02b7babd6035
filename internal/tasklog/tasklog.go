package tasklog

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"subforge/internal/logging"
	"subforge/internal/services"
)

// Category classifies an entry.
type Category string

const (
	CategoryMetadata      Category = "metadata"
	CategoryProcess       Category = "process"
	CategoryTranscription Category = "transcription"
	CategoryTranslation   Category = "translation"
	CategoryError         Category = "error"
)

// ParseCategory maps free-form category strings from collaborators onto a
// Category. Unknown values are recorded as metadata.
func ParseCategory(value string) Category {
	switch c := Category(strings.ToLower(strings.TrimSpace(value))); c {
	case CategoryMetadata, CategoryProcess, CategoryTranscription, CategoryTranslation, CategoryError:
		return c
	default:
		return CategoryMetadata
	}
}

// Entry is one log line.
type Entry struct {
	Timestamp time.Time `json:"timestamp"`
	Category  Category  `json:"type"`
	Message   string    `json:"message"`
}

// Logger appends entries to per-task files under a directory.
type Logger struct {
	dir string
	now func() time.Time
	mu  sync.Mutex
}

// New creates the directory if needed and returns a Logger rooted there.
func New(dir string) (*Logger, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, services.Wrap(services.ErrConfiguration, "", "task log", "directory is required", nil)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, services.Wrap(services.ErrFilesystem, "", "create task log directory", dir, err)
	}
	return &Logger{dir: dir, now: time.Now}, nil
}

// Dir returns the folder holding task logs.
func (l *Logger) Dir() string {
	return l.dir
}

// Path returns the log file for taskID.
func (l *Logger) Path(taskID string) (string, error) {
	id := strings.TrimSpace(taskID)
	if id == "" || id == "." || id == ".." || strings.ContainsAny(id, `/\`) {
		return "", services.Wrap(services.ErrValidation, "", "task log", fmt.Sprintf("invalid task id %q", taskID), nil)
	}
	return filepath.Join(l.dir, id+".log"), nil
}

// Append writes one entry for taskID and returns it.
func (l *Logger) Append(taskID string, category Category, message string) (Entry, error) {
	path, err := l.Path(taskID)
	if err != nil {
		return Entry{}, err
	}
	entry := Entry{Timestamp: l.now().UTC(), Category: category, Message: message}
	line, err := json.Marshal(entry)
	if err != nil {
		return Entry{}, fmt.Errorf("encode task log entry: %w", err)
	}
	line = append(line, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return Entry{}, services.Wrap(services.ErrFilesystem, "", "open task log", path, err)
	}
	if _, err := file.Write(line); err != nil {
		file.Close()
		return Entry{}, services.Wrap(services.ErrFilesystem, "", "write task log", path, err)
	}
	if err := file.Close(); err != nil {
		return Entry{}, services.Wrap(services.ErrFilesystem, "", "close task log", path, err)
	}
	return entry, nil
}

// Read returns every parsable entry for taskID in insertion order. A task
// with no log file yields services.ErrNotFound.
func (l *Logger) Read(taskID string) ([]Entry, error) {
	entries, _, err := l.ReadFrom(taskID, 0)
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// ReadFrom returns complete entries starting at a byte offset along with the
// offset just past the last complete line. A trailing partial line is left
// for the next call.
func (l *Logger) ReadFrom(taskID string, offset int64) ([]Entry, int64, error) {
	path, err := l.Path(taskID)
	if err != nil {
		return nil, offset, err
	}
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, 0, services.Wrap(services.ErrNotFound, "", "task log", taskID, nil)
		}
		return nil, offset, services.Wrap(services.ErrFilesystem, "", "open task log", path, err)
	}
	defer file.Close()

	if offset < 0 {
		offset = 0
	}
	if info, err := file.Stat(); err == nil && offset > info.Size() {
		offset = 0
	}
	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return nil, offset, services.Wrap(services.ErrFilesystem, "", "seek task log", path, err)
	}

	reader := bufio.NewReader(file)
	var entries []Entry
	for {
		line, err := reader.ReadBytes('\n')
		if len(line) > 0 && line[len(line)-1] == '\n' {
			offset += int64(len(line))
			if entry, ok := parseLine(line); ok {
				entries = append(entries, entry)
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return entries, offset, nil
			}
			return entries, offset, services.Wrap(services.ErrFilesystem, "", "read task log", path, err)
		}
	}
}

// Wait polls for entries past offset until some arrive, wait elapses, or ctx
// is done.
func (l *Logger) Wait(ctx context.Context, taskID string, offset int64, wait time.Duration) ([]Entry, int64, error) {
	deadline := time.Now().Add(wait)
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	for {
		entries, next, err := l.ReadFrom(taskID, offset)
		if err != nil && !errors.Is(err, services.ErrNotFound) {
			return nil, offset, err
		}
		if len(entries) > 0 {
			return entries, next, nil
		}
		if err == nil {
			offset = next
		}
		if !time.Now().Before(deadline) {
			return nil, offset, nil
		}
		select {
		case <-ctx.Done():
			return nil, offset, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Prune removes task logs older than retentionDays and returns their paths.
func (l *Logger) Prune(logger *slog.Logger, retentionDays int) []string {
	return logging.CleanupOldLogs(logger, retentionDays, logging.RetentionTarget{Dir: l.dir, Pattern: "*.log"})
}

func parseLine(line []byte) (Entry, bool) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return Entry{}, false
	}
	var entry Entry
	if err := json.Unmarshal(line, &entry); err != nil {
		return Entry{}, false
	}
	if entry.Message == "" && entry.Category == "" {
		return Entry{}, false
	}
	return entry, true
}
