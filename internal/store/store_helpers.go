package store

import (
	"database/sql"
	"errors"
	"strings"
	"time"
)

const taskColumns = "id, batch_id, workflow, input_path, target_language, stage, temp_audio_path, temp_transcript_path, output_path, error_message, error_kind, fallback, started_at, ended_at, created_at, updated_at"

func scanRecord(scanner interface{ Scan(dest ...any) error }) (*Record, error) {
	var (
		id             string
		batchID        sql.NullString
		workflow       string
		inputPath      string
		targetLanguage sql.NullString
		stage          string
		tempAudio      sql.NullString
		tempTranscript sql.NullString
		outputPath     sql.NullString
		errorMessage   sql.NullString
		errorKind      sql.NullString
		fallback       sql.NullInt64
		startedRaw     sql.NullString
		endedRaw       sql.NullString
		createdRaw     sql.NullString
		updatedRaw     sql.NullString
	)
	if err := scanner.Scan(
		&id,
		&batchID,
		&workflow,
		&inputPath,
		&targetLanguage,
		&stage,
		&tempAudio,
		&tempTranscript,
		&outputPath,
		&errorMessage,
		&errorKind,
		&fallback,
		&startedRaw,
		&endedRaw,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	record := &Record{}
	record.ID = id
	record.BatchID = batchID.String
	record.Workflow = workflow
	record.InputPath = inputPath
	record.TargetLanguage = targetLanguage.String
	record.Stage = stage
	record.TempAudioPath = tempAudio.String
	record.TempTranscriptPath = tempTranscript.String
	record.OutputPath = outputPath.String
	record.Error = errorMessage.String
	record.ErrorKind = errorKind.String
	record.Fallback = fallback.Valid && fallback.Int64 != 0
	record.StartedAt = parseOptionalTime(startedRaw)
	record.EndedAt = parseOptionalTime(endedRaw)
	if created, err := parseTimeString(createdRaw.String); err == nil {
		record.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		record.UpdatedAt = updated
	}
	return record, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableTime(value *time.Time) any {
	if value == nil || value.IsZero() {
		return nil
	}
	return value.UTC().Format(time.RFC3339Nano)
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func parseOptionalTime(raw sql.NullString) *time.Time {
	if !raw.Valid {
		return nil
	}
	ts, err := parseTimeString(raw.String)
	if err != nil {
		return nil
	}
	return &ts
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", count), ",")
}
