package store_test

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"subforge/internal/events"
	"subforge/internal/logging"
	"subforge/internal/services"
	"subforge/internal/store"
	"subforge/internal/testsupport"
)

func TestUpsertKeepsTerminalStage(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	started := time.Now().UTC().Add(-time.Minute)
	snap := events.Snapshot{ID: "t1", BatchID: "b1", Workflow: "video", InputPath: "/in.mkv", TargetLanguage: "fr", Stage: "extracting", StartedAt: &started}
	if err := st.Upsert(ctx, snap); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	ended := time.Now().UTC()
	snap.Stage = "completed"
	snap.TempAudioPath = "/scratch/t1/in.wav"
	snap.OutputPath = "/out/in_fr.srt"
	snap.Fallback = true
	snap.EndedAt = &ended
	if err := st.Upsert(ctx, snap); err != nil {
		t.Fatalf("Upsert completed: %v", err)
	}

	late := events.Snapshot{ID: "t1", Workflow: "video", InputPath: "/in.mkv", Stage: "translating"}
	if err := st.Upsert(ctx, late); err != nil {
		t.Fatalf("Upsert late: %v", err)
	}

	record, err := st.Get(ctx, "t1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if record.Stage != "completed" || record.OutputPath != "/out/in_fr.srt" || !record.Fallback {
		t.Fatalf("unexpected record %+v", record)
	}
	if record.StartedAt == nil || !record.StartedAt.Equal(started) {
		t.Fatalf("started_at = %v, want %v", record.StartedAt, started)
	}
	if record.Snapshot.Duration() <= 0 {
		t.Fatal("duration should be derivable from stored timestamps")
	}
}

func TestGetUnknownTaskIsNotFound(t *testing.T) {
	st := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	if _, err := st.Get(context.Background(), "missing"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListFiltersAndLimits(t *testing.T) {
	st := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	for i, stage := range []string{"completed", "failed", "transcribing"} {
		snap := events.Snapshot{ID: string(rune('a' + i)), BatchID: "b1", Workflow: "video", InputPath: "/in", Stage: stage}
		if err := st.Upsert(ctx, snap); err != nil {
			t.Fatalf("Upsert: %v", err)
		}
	}

	all, err := st.List(ctx, store.ListOptions{})
	if err != nil || len(all) != 3 {
		t.Fatalf("List all = %d records, %v", len(all), err)
	}
	limited, err := st.List(ctx, store.ListOptions{Limit: 2})
	if err != nil || len(limited) != 2 {
		t.Fatalf("List limited = %d records, %v", len(limited), err)
	}
	failed, err := st.List(ctx, store.ListOptions{Stages: []string{"failed"}})
	if err != nil || len(failed) != 1 || failed[0].ID != "b" {
		t.Fatalf("List failed = %+v, %v", failed, err)
	}
	other, err := st.List(ctx, store.ListOptions{BatchID: "b2"})
	if err != nil || len(other) != 0 {
		t.Fatalf("List other batch = %+v, %v", other, err)
	}

	ids, err := st.MarkInterrupted(ctx, "interrupted by restart")
	if err != nil || len(ids) != 1 || ids[0] != "c" {
		t.Fatalf("MarkInterrupted = %v, %v", ids, err)
	}
	record, err := st.Get(ctx, "c")
	if err != nil || record.Stage != "failed" || record.Error != "interrupted by restart" || record.EndedAt == nil {
		t.Fatalf("interrupted record = %+v, %v", record, err)
	}
}

func TestRecorderPersistsTaskAndBatchEvents(t *testing.T) {
	st := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	rec := store.NewRecorder(st, logging.NewNop())

	snap := events.Snapshot{ID: "t9", BatchID: "b9", Workflow: "subtitle", InputPath: "/in.srt", Stage: "failed", Error: "Task canceled", ErrorKind: "canceled"}
	rec.Publish(events.Event{Type: events.TaskLog, TaskID: "t9", Message: "no snapshot"})
	rec.Publish(events.Event{Type: events.TaskFailed, TaskID: "t9", Task: &snap})
	rec.Publish(events.Event{Type: events.BatchComplete, BatchID: "b9", Time: time.Now(), Summary: &events.Summary{Total: 1, Failed: 1}})

	record, err := st.Get(context.Background(), "t9")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if record.ErrorKind != "canceled" || record.Workflow != "subtitle" {
		t.Fatalf("unexpected record %+v", record)
	}
	batch, err := st.Batch(context.Background(), "b9")
	if err != nil || batch.Total != 1 || batch.Failed != 1 {
		t.Fatalf("batch = %+v, %v", batch, err)
	}
}

func TestOpenPathRejectsSchemaMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tasks.db")
	st, err := store.OpenPath(path)
	if err != nil {
		t.Fatalf("OpenPath: %v", err)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := store.OpenPath(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	_ = reopened.Close()

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open raw db: %v", err)
	}
	if _, err := db.Exec("UPDATE schema_version SET version = 99"); err != nil {
		t.Fatalf("bump version: %v", err)
	}
	_ = db.Close()
	if _, err := store.OpenPath(path); !errors.Is(err, store.ErrSchemaMismatch) {
		t.Fatalf("expected schema mismatch, got %v", err)
	}
}
