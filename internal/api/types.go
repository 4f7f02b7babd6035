package api

import (
	"subforge/internal/events"
	"subforge/internal/pipeline"
	"subforge/internal/store"
	"subforge/internal/tasklog"
	"subforge/internal/workflow"
)

// SubmitRequest describes a batch submitted over HTTP. Files and Tasks may be
// combined; Files inherit the batch-wide Workflow and TargetLanguage. A nil
// TargetLanguage selects the daemon default; an empty string requests
// transcription only.
type SubmitRequest struct {
	Files          []string            `json:"files,omitempty"`
	Tasks          []workflow.TaskSpec `json:"tasks,omitempty"`
	Workflow       pipeline.Workflow   `json:"workflow,omitempty"`
	TargetLanguage *string             `json:"targetLanguage,omitempty"`
	OutputDir      string              `json:"outputDir,omitempty"`
	Concurrency    int                 `json:"concurrency,omitempty"`
}

// SubmitResponse identifies an accepted batch.
type SubmitResponse struct {
	BatchID string   `json:"batchId"`
	TaskIDs []string `json:"taskIds"`
}

// TaskListResponse wraps task history.
type TaskListResponse struct {
	Tasks  []store.Record `json:"tasks"`
	Active []string       `json:"active"`
}

// TaskResponse wraps one task.
type TaskResponse struct {
	Task   store.Record `json:"task"`
	Active bool         `json:"active"`
}

// LogsResponse wraps per-task log entries.
type LogsResponse struct {
	TaskID  string          `json:"taskId"`
	Entries []tasklog.Entry `json:"entries"`
}

// EventsResponse carries buffered events and the cursor for the next poll.
type EventsResponse struct {
	Events []events.Event `json:"events"`
	Next   uint64         `json:"next"`
}

// CancelResponse acknowledges a cancellation request.
type CancelResponse struct {
	TaskID string `json:"taskId"`
	Status string `json:"status"`
}

// HealthResponse reports daemon liveness.
type HealthResponse struct {
	Status      string `json:"status"`
	ActiveTasks int    `json:"activeTasks"`
	Clients     int    `json:"websocketClients"`
	StartedAt   string `json:"startedAt"`
}

// ErrorResponse is returned for every non-2xx status.
type ErrorResponse struct {
	Error string `json:"error"`
}
