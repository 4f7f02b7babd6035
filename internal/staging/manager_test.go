package staging_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"subforge/internal/events"
	"subforge/internal/logging"
	"subforge/internal/pipeline"
	"subforge/internal/staging"
)

func seedArtifacts(t *testing.T, mgr *staging.Manager, taskID string) (string, string) {
	t.Helper()
	dir := mgr.TaskDir(taskID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	audio := filepath.Join(dir, "movie.wav")
	transcript := filepath.Join(dir, "movie-original.srt")
	for _, path := range []string{audio, transcript} {
		if err := os.WriteFile(path, []byte("data"), 0o644); err != nil {
			t.Fatalf("write %s: %v", path, err)
		}
	}
	return audio, transcript
}

func TestReconcileCompletedRemovesArtifacts(t *testing.T) {
	mgr := staging.NewManager(t.TempDir(), logging.NewNop())
	audio, transcript := seedArtifacts(t, mgr, "task-1")

	snap := events.Snapshot{
		ID:                 "task-1",
		Stage:              string(pipeline.StageCompleted),
		TempAudioPath:      audio,
		TempTranscriptPath: transcript,
	}
	if err := mgr.Reconcile(context.Background(), snap); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	for _, path := range []string{audio, transcript, mgr.TaskDir("task-1")} {
		if _, err := os.Stat(path); !os.IsNotExist(err) {
			t.Fatalf("%s should be gone, stat err %v", path, err)
		}
	}

	if err := mgr.Reconcile(context.Background(), snap); err != nil {
		t.Fatalf("second Reconcile should be a no-op, got %v", err)
	}
}

func TestReconcileFailedPreservesArtifacts(t *testing.T) {
	mgr := staging.NewManager(t.TempDir(), logging.NewNop())
	audio, transcript := seedArtifacts(t, mgr, "task-2")

	snap := events.Snapshot{
		ID:                 "task-2",
		Stage:              string(pipeline.StageFailed),
		TempAudioPath:      audio,
		TempTranscriptPath: transcript,
	}
	if err := mgr.Reconcile(context.Background(), snap); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	for _, path := range []string{audio, transcript} {
		if _, err := os.Stat(path); err != nil {
			t.Fatalf("%s should be preserved: %v", path, err)
		}
	}
}

func TestReconcileKeepsNonEmptyTaskDir(t *testing.T) {
	mgr := staging.NewManager(t.TempDir(), logging.NewNop())
	audio, _ := seedArtifacts(t, mgr, "task-3")

	snap := events.Snapshot{ID: "task-3", Stage: string(pipeline.StageCompleted), TempAudioPath: audio}
	if err := mgr.Reconcile(context.Background(), snap); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if _, err := os.Stat(mgr.TaskDir("task-3")); err != nil {
		t.Fatalf("task dir still holds the transcript and must remain: %v", err)
	}
}

func TestReconcileNeverTouchesFilesOutsideScratch(t *testing.T) {
	mgr := staging.NewManager(t.TempDir(), logging.NewNop())
	input := filepath.Join(t.TempDir(), "episode.srt")
	if err := os.WriteFile(input, []byte("1\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	snap := events.Snapshot{ID: "task-4", Stage: string(pipeline.StageCompleted), TempTranscriptPath: input}
	if err := mgr.Reconcile(context.Background(), snap); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if _, err := os.Stat(input); err != nil {
		t.Fatalf("input outside scratch dir must survive: %v", err)
	}
}

func TestReconcileIgnoresActiveTasks(t *testing.T) {
	mgr := staging.NewManager(t.TempDir(), logging.NewNop())
	audio, _ := seedArtifacts(t, mgr, "task-5")

	snap := events.Snapshot{ID: "task-5", Stage: string(pipeline.StageTranscribing), TempAudioPath: audio}
	if err := mgr.Reconcile(context.Background(), snap); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if _, err := os.Stat(audio); err != nil {
		t.Fatalf("running task artifacts must remain: %v", err)
	}
}
