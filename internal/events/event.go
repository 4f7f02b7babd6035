package events

import "time"

// Type names a lifecycle event.
type Type string

const (
	TaskStarted           Type = "task:started"
	TaskLog               Type = "task:log"
	TaskProgress          Type = "task:progress"
	TranscriptionStarted  Type = "transcription:started"
	TranscriptionPolling  Type = "transcription:polling"
	TranscriptionComplete Type = "transcription:complete"
	TranslationStarted    Type = "translation:started"
	TranslationComplete   Type = "translation:complete"
	TaskCompleted         Type = "task:completed"
	TaskFailed            Type = "task:failed"
	BatchComplete         Type = "batch:complete"
)

// Terminal reports whether the event ends a task.
func (t Type) Terminal() bool {
	return t == TaskCompleted || t == TaskFailed
}

// Snapshot is a read-only copy of a task at the moment an event was emitted.
type Snapshot struct {
	ID                 string     `json:"id"`
	BatchID            string     `json:"batchId"`
	Workflow           string     `json:"workflow"`
	InputPath          string     `json:"inputPath"`
	TargetLanguage     string     `json:"targetLanguage,omitempty"`
	Stage              string     `json:"stage"`
	TempAudioPath      string     `json:"tempAudioPath,omitempty"`
	TempTranscriptPath string     `json:"tempTranscriptPath,omitempty"`
	OutputPath         string     `json:"outputPath,omitempty"`
	Error              string     `json:"error,omitempty"`
	ErrorKind          string     `json:"errorKind,omitempty"`
	Fallback           bool       `json:"fallback,omitempty"`
	StartedAt          *time.Time `json:"startedAt,omitempty"`
	EndedAt            *time.Time `json:"endedAt,omitempty"`
}

// Duration returns the elapsed time between start and end, or zero.
func (s Snapshot) Duration() time.Duration {
	if s.StartedAt == nil || s.EndedAt == nil {
		return 0
	}
	return s.EndedAt.Sub(*s.StartedAt)
}

// Summary reports batch totals on batch:complete.
type Summary struct {
	Total     int `json:"total"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}

// Event is one observer-facing lifecycle notification. Only the fields
// relevant to Type are populated.
type Event struct {
	Sequence           uint64    `json:"seq,omitempty"`
	Type               Type      `json:"type"`
	Time               time.Time `json:"ts"`
	BatchID            string    `json:"batchId,omitempty"`
	TaskID             string    `json:"taskId,omitempty"`
	Category           string    `json:"category,omitempty"`
	Message            string    `json:"message,omitempty"`
	Status             string    `json:"status,omitempty"`
	JobID              string    `json:"jobId,omitempty"`
	Percent            float64   `json:"percent,omitempty"`
	TempAudioPath      string    `json:"tempAudioPath,omitempty"`
	TempTranscriptPath string    `json:"tempTranscriptPath,omitempty"`
	OutputPath         string    `json:"outputPath,omitempty"`
	Error              string    `json:"error,omitempty"`
	Task               *Snapshot `json:"task,omitempty"`
	Summary            *Summary  `json:"summary,omitempty"`
}
