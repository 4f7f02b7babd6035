package transcription

import "strings"

// Phase is the client-side position in the transcription state machine.
type Phase string

const (
	PhaseUploading Phase = "uploading"
	PhaseCreated   Phase = "created"
	PhasePolling   Phase = "polling"
	PhaseDone      Phase = "done"
	PhaseError     Phase = "error"
)

// StatusKind is the normalized remote job status.
type StatusKind string

const (
	StatusQueued     StatusKind = "queued"
	StatusProcessing StatusKind = "processing"
	StatusCompleted  StatusKind = "completed"
	StatusError      StatusKind = "error"
	StatusUnknown    StatusKind = "unknown"
)

// RemoteStatus is one status report from the provider. Raw keeps the string
// the service sent so unknown values can be logged verbatim.
type RemoteStatus struct {
	Kind     StatusKind
	Raw      string
	Message  string
	Progress int
}

// ParseStatus maps a provider status string onto a StatusKind.
func ParseStatus(raw string) StatusKind {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "queued", "pending", "submitted":
		return StatusQueued
	case "processing", "running", "in_progress":
		return StatusProcessing
	case "completed", "complete", "done":
		return StatusCompleted
	case "error", "failed":
		return StatusError
	default:
		return StatusUnknown
	}
}

// Terminal reports whether polling should stop.
func (s RemoteStatus) Terminal() bool {
	return s.Kind == StatusCompleted || s.Kind == StatusError
}

func (s RemoteStatus) String() string {
	if s.Raw != "" {
		return s.Raw
	}
	return string(s.Kind)
}
