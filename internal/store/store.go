package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"subforge/internal/config"
	"subforge/internal/events"
	"subforge/internal/services"
)

// Store manages task history backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Record is a persisted task snapshot.
type Record struct {
	events.Snapshot
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// BatchRecord is a persisted batch summary.
type BatchRecord struct {
	ID          string    `json:"id"`
	Total       int       `json:"total"`
	Completed   int       `json:"completed"`
	Failed      int       `json:"failed"`
	CompletedAt time.Time `json:"completedAt"`
}

// ListOptions filters List.
type ListOptions struct {
	Limit   int
	BatchID string
	Stages  []string
}

// Open initializes or connects to the task database in the configured log
// directory.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	return OpenPath(cfg.DatabasePath())
}

// OpenPath opens the database at path, creating the schema when needed.
func OpenPath(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: path}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string { return s.path }

// Upsert writes snap, replacing any earlier state of the same task. A stage
// never moves backwards in the stored row: late snapshots of an earlier stage
// only refresh paths.
func (s *Store) Upsert(ctx context.Context, snap events.Snapshot) error {
	if strings.TrimSpace(snap.ID) == "" {
		return services.Wrap(services.ErrValidation, "", "store task", "task id is required", nil)
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(ctx, `
INSERT INTO tasks (
    id, batch_id, workflow, input_path, target_language, stage,
    temp_audio_path, temp_transcript_path, output_path, error_message, error_kind,
    fallback, started_at, ended_at, created_at, updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    stage = CASE WHEN tasks.stage IN ('completed', 'failed') THEN tasks.stage ELSE excluded.stage END,
    temp_audio_path = COALESCE(excluded.temp_audio_path, tasks.temp_audio_path),
    temp_transcript_path = COALESCE(excluded.temp_transcript_path, tasks.temp_transcript_path),
    output_path = COALESCE(excluded.output_path, tasks.output_path),
    error_message = COALESCE(excluded.error_message, tasks.error_message),
    error_kind = COALESCE(excluded.error_kind, tasks.error_kind),
    fallback = MAX(excluded.fallback, tasks.fallback),
    started_at = COALESCE(tasks.started_at, excluded.started_at),
    ended_at = COALESCE(excluded.ended_at, tasks.ended_at),
    updated_at = excluded.updated_at`,
		snap.ID,
		nullableString(snap.BatchID),
		snap.Workflow,
		snap.InputPath,
		nullableString(snap.TargetLanguage),
		snap.Stage,
		nullableString(snap.TempAudioPath),
		nullableString(snap.TempTranscriptPath),
		nullableString(snap.OutputPath),
		nullableString(snap.Error),
		nullableString(snap.ErrorKind),
		boolToInt(snap.Fallback),
		nullableTime(snap.StartedAt),
		nullableTime(snap.EndedAt),
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("upsert task %s: %w", snap.ID, err)
	}
	return nil
}

// RecordBatch stores a batch summary.
func (s *Store) RecordBatch(ctx context.Context, batchID string, summary events.Summary, completedAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO batches (id, total, completed, failed, completed_at) VALUES (?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    total = excluded.total,
    completed = excluded.completed,
    failed = excluded.failed,
    completed_at = excluded.completed_at`,
		batchID, summary.Total, summary.Completed, summary.Failed, completedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("record batch %s: %w", batchID, err)
	}
	return nil
}

// Get fetches one task. Unknown ids return services.ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+taskColumns+" FROM tasks WHERE id = ?", id)
	record, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, services.Wrap(services.ErrNotFound, "", "get task", id, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("get task %s: %w", id, err)
	}
	return record, nil
}

// Batch fetches one batch summary.
func (s *Store) Batch(ctx context.Context, id string) (*BatchRecord, error) {
	var (
		record      BatchRecord
		completedAt string
	)
	err := s.db.QueryRowContext(ctx, "SELECT id, total, completed, failed, completed_at FROM batches WHERE id = ?", id).
		Scan(&record.ID, &record.Total, &record.Completed, &record.Failed, &completedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, services.Wrap(services.ErrNotFound, "", "get batch", id, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("get batch %s: %w", id, err)
	}
	if ts, err := parseTimeString(completedAt); err == nil {
		record.CompletedAt = ts
	}
	return &record, nil
}

// List returns tasks newest first.
func (s *Store) List(ctx context.Context, opts ListOptions) ([]Record, error) {
	var (
		clauses []string
		args    []any
	)
	if opts.BatchID != "" {
		clauses = append(clauses, "batch_id = ?")
		args = append(args, opts.BatchID)
	}
	if len(opts.Stages) > 0 {
		clauses = append(clauses, "stage IN ("+makePlaceholders(len(opts.Stages))+")")
		for _, stage := range opts.Stages {
			args = append(args, stage)
		}
	}
	query := "SELECT " + taskColumns + " FROM tasks"
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY created_at DESC, id"
	if opts.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, opts.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		records = append(records, *record)
	}
	return records, rows.Err()
}

// MarkInterrupted fails every task left in a non-terminal stage, which
// happens when the process exits mid-batch. It returns the affected ids.
func (s *Store) MarkInterrupted(ctx context.Context, reason string) ([]string, error) {
	active, err := s.List(ctx, ListOptions{Stages: []string{"pending", "extracting", "transcribing", "translating"}})
	if err != nil {
		return nil, err
	}
	if len(active) == 0 {
		return nil, nil
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	ids := make([]string, 0, len(active))
	for _, record := range active {
		if _, err := s.db.ExecContext(ctx,
			`UPDATE tasks SET stage = 'failed', error_message = ?, error_kind = 'canceled', ended_at = ?, updated_at = ? WHERE id = ?`,
			reason, now, now, record.ID,
		); err != nil {
			return ids, fmt.Errorf("mark task %s interrupted: %w", record.ID, err)
		}
		ids = append(ids, record.ID)
	}
	return ids, nil
}
