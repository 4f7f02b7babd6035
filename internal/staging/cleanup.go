package staging

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"subforge/internal/logging"
)

// CleanStaleResult contains the outcome of a scratch cleanup operation.
type CleanStaleResult struct {
	Removed []string
	Errors  []CleanupError
}

// CleanupError pairs a directory path with its cleanup error.
type CleanupError struct {
	Path  string
	Error error
}

// CleanStale removes task scratch directories older than maxAge. Failed tasks
// leave their directories behind, so this is what eventually reclaims them.
// A non-positive maxAge disables pruning.
func CleanStale(ctx context.Context, scratchDir string, maxAge time.Duration, logger *slog.Logger) CleanStaleResult {
	if maxAge <= 0 {
		return CleanStaleResult{}
	}
	cutoff := time.Now().Add(-maxAge)
	return sweep(ctx, scratchDir, logger, "stale", func(_ string, info os.FileInfo) bool {
		return info.ModTime().Before(cutoff)
	})
}

// CleanInactive removes every task scratch directory whose name is not in
// active. It backs the manual `scratch clean` command.
func CleanInactive(ctx context.Context, scratchDir string, active map[string]struct{}, logger *slog.Logger) CleanStaleResult {
	return sweep(ctx, scratchDir, logger, "inactive", func(name string, _ os.FileInfo) bool {
		_, keep := active[name]
		return !keep
	})
}

func sweep(ctx context.Context, scratchDir string, logger *slog.Logger, reason string, match func(string, os.FileInfo) bool) CleanStaleResult {
	result := CleanStaleResult{}

	scratchDir = strings.TrimSpace(scratchDir)
	if scratchDir == "" {
		return result
	}

	entries, err := os.ReadDir(scratchDir)
	if err != nil {
		if !os.IsNotExist(err) {
			result.Errors = append(result.Errors, CleanupError{Path: scratchDir, Error: err})
		}
		return result
	}

	for _, entry := range entries {
		if ctx != nil && ctx.Err() != nil {
			break
		}
		if !entry.IsDir() {
			continue
		}

		dirPath := filepath.Join(scratchDir, entry.Name())
		info, err := entry.Info()
		if err != nil {
			result.Errors = append(result.Errors, CleanupError{Path: dirPath, Error: err})
			continue
		}
		if !match(entry.Name(), info) {
			continue
		}

		if err := os.RemoveAll(dirPath); err != nil {
			result.Errors = append(result.Errors, CleanupError{Path: dirPath, Error: err})
			logging.WarnWithContext(logger, "failed to remove scratch directory", "scratch_cleanup_failed",
				logging.String("path", dirPath),
				logging.String("reason", reason),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check scratch_dir permissions"),
				logging.String(logging.FieldImpact, "disk space not reclaimed"),
			)
			continue
		}
		result.Removed = append(result.Removed, dirPath)
		if logger != nil {
			logger.Info("removed scratch directory",
				logging.String("path", dirPath),
				logging.String("reason", reason),
				logging.Duration("age", time.Since(info.ModTime()).Truncate(time.Second)),
				logging.String(logging.FieldEventType, "scratch_cleanup"),
			)
		}
	}

	return result
}

// DirInfo contains metadata about a task scratch directory.
type DirInfo struct {
	TaskID  string    `json:"task_id"`
	Path    string    `json:"path"`
	ModTime time.Time `json:"mod_time"`
	Size    int64     `json:"size_bytes"`
	Files   int       `json:"files"`
}

// ListDirectories returns every task scratch directory with its size.
func ListDirectories(scratchDir string) ([]DirInfo, error) {
	scratchDir = strings.TrimSpace(scratchDir)
	if scratchDir == "" {
		return nil, nil
	}

	entries, err := os.ReadDir(scratchDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var dirs []DirInfo
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		dirPath := filepath.Join(scratchDir, entry.Name())
		size, files := dirUsage(dirPath)
		dirs = append(dirs, DirInfo{
			TaskID:  entry.Name(),
			Path:    dirPath,
			ModTime: info.ModTime(),
			Size:    size,
			Files:   files,
		})
	}
	return dirs, nil
}

func dirUsage(path string) (int64, int) {
	var (
		size  int64
		files int
	)
	_ = filepath.WalkDir(path, func(_ string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if info, err := d.Info(); err == nil {
			size += info.Size()
			files++
		}
		return nil
	})
	return size, files
}
