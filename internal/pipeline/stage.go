package pipeline

import "strings"

// Stage is a task's position in the state machine.
type Stage string

const (
	StagePending      Stage = "pending"
	StageExtracting   Stage = "extracting"
	StageTranscribing Stage = "transcribing"
	StageTranslating  Stage = "translating"
	StageCompleted    Stage = "completed"
	StageFailed       Stage = "failed"
)

var stageOrder = []Stage{
	StagePending,
	StageExtracting,
	StageTranscribing,
	StageTranslating,
	StageCompleted,
	StageFailed,
}

// Rank orders stages for the forward-only transition rule. Unknown stages
// rank below Pending.
func (s Stage) Rank() int {
	for i, candidate := range stageOrder {
		if candidate == s {
			return i
		}
	}
	return -1
}

// IsTerminal reports whether no further transition is possible.
func (s Stage) IsTerminal() bool {
	return s == StageCompleted || s == StageFailed
}

// IsActive reports whether a task in this stage holds a concurrency slot.
func (s Stage) IsActive() bool {
	return s == StageExtracting || s == StageTranscribing || s == StageTranslating
}

// Label returns the capitalized display name.
func (s Stage) Label() string {
	if s == "" {
		return ""
	}
	return strings.ToUpper(string(s[:1])) + string(s[1:])
}

// ParseStage maps a persisted stage name back to a Stage.
func ParseStage(value string) (Stage, bool) {
	stage := Stage(strings.ToLower(strings.TrimSpace(value)))
	if stage.Rank() < 0 {
		return "", false
	}
	return stage, true
}
