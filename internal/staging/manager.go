package staging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"subforge/internal/events"
	"subforge/internal/logging"
	"subforge/internal/pipeline"
	"subforge/internal/services"
)

// Manager applies the artifact retention policy to terminal tasks.
type Manager struct {
	scratchDir string
	logger     *slog.Logger
}

// NewManager returns a Manager rooted at scratchDir.
func NewManager(scratchDir string, logger *slog.Logger) *Manager {
	return &Manager{
		scratchDir: filepath.Clean(scratchDir),
		logger:     logging.NewComponentLogger(logger, "staging"),
	}
}

// ScratchDir returns the root scratch directory.
func (m *Manager) ScratchDir() string { return m.scratchDir }

// TaskDir returns the scratch directory reserved for taskID.
func (m *Manager) TaskDir(taskID string) string {
	return filepath.Join(m.scratchDir, taskID)
}

// Reconcile removes temp artifacts of a completed task and preserves those of a
// failed one. Non-terminal snapshots are ignored. Files that are already gone
// are not errors, so calling Reconcile twice is harmless.
func (m *Manager) Reconcile(ctx context.Context, snap events.Snapshot) error {
	logger := logging.WithContext(ctx, m.logger).With(logging.String(logging.FieldTaskID, snap.ID))
	paths := compact(snap.TempAudioPath, snap.TempTranscriptPath)

	switch pipeline.Stage(snap.Stage) {
	case pipeline.StageFailed:
		if len(paths) > 0 {
			logger.Info("keeping temp artifacts for debugging",
				logging.Any("paths", paths),
				logging.String(logging.FieldEventType, "artifacts_preserved"),
			)
		}
		return nil
	case pipeline.StageCompleted:
	default:
		return nil
	}

	var errs []error
	for _, path := range paths {
		if !m.owns(path) {
			logging.WarnWithContext(logger, "temp artifact outside scratch directory; leaving in place", "artifact_cleanup_skipped",
				logging.String("path", path),
				logging.String(logging.FieldErrorHint, "scratch_dir may have changed while the task ran"),
				logging.String(logging.FieldImpact, "file remains on disk"),
			)
			continue
		}
		err := os.Remove(path)
		switch {
		case err == nil:
			logger.Debug("temp artifact removed", logging.String("path", path))
		case errors.Is(err, os.ErrNotExist):
		default:
			errs = append(errs, services.Wrap(services.ErrFilesystem, "cleanup", "remove artifact", path, err))
		}
	}

	if snap.ID != "" {
		dir := m.TaskDir(snap.ID)
		if err := os.Remove(dir); err != nil && !errors.Is(err, os.ErrNotExist) && !isNotEmpty(err) {
			errs = append(errs, services.Wrap(services.ErrFilesystem, "cleanup", "remove scratch dir", dir, err))
		}
	}

	if err := errors.Join(errs...); err != nil {
		logging.WarnWithContext(logger, "temp artifact cleanup incomplete", "artifact_cleanup_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check scratch_dir permissions"),
			logging.String(logging.FieldImpact, "disk space not reclaimed"),
		)
		return fmt.Errorf("reconcile task %s: %w", snap.ID, err)
	}
	return nil
}

func (m *Manager) owns(path string) bool {
	rel, err := filepath.Rel(m.scratchDir, filepath.Clean(path))
	if err != nil {
		return false
	}
	return rel != "." && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func compact(values ...string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			out = append(out, v)
		}
	}
	return out
}

func isNotEmpty(err error) bool {
	return errors.Is(err, syscall.ENOTEMPTY) || errors.Is(err, syscall.EEXIST)
}
