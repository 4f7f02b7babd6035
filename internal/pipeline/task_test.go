package pipeline

import (
	"errors"
	"testing"

	"subforge/internal/services"
)

func TestAdvanceIsForwardOnly(t *testing.T) {
	task := NewTask("t1", "", WorkflowVideo, "/in.mkv", "fr")

	for _, next := range []Stage{StageExtracting, StageTranscribing, StageTranslating, StageCompleted} {
		if err := task.advance(next); err != nil {
			t.Fatalf("advance to %s: %v", next, err)
		}
	}
	for _, next := range []Stage{StageTranslating, StageFailed, StagePending} {
		if err := task.advance(next); !errors.Is(err, ErrInvalidTransition) {
			t.Fatalf("advance from completed to %s should fail, got %v", next, err)
		}
	}

	repeat := NewTask("t2", "", WorkflowVideo, "/in.mkv", "fr")
	if err := repeat.advance(StageTranscribing); err != nil {
		t.Fatalf("skip ahead: %v", err)
	}
	if err := repeat.advance(StageTranscribing); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("re-entering a stage should fail, got %v", err)
	}
	if err := repeat.advance(StageExtracting); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("moving backwards should fail, got %v", err)
	}
	if err := repeat.advance(StageFailed); err != nil {
		t.Fatalf("failed is reachable from any active stage: %v", err)
	}
}

func TestStageHelpers(t *testing.T) {
	if !StageCompleted.IsTerminal() || !StageFailed.IsTerminal() || StageTranslating.IsTerminal() {
		t.Fatal("unexpected terminal classification")
	}
	if StagePending.IsActive() || !StageExtracting.IsActive() || StageCompleted.IsActive() {
		t.Fatal("unexpected active classification")
	}
	if StageTranscribing.Label() != "Transcribing" {
		t.Fatalf("label = %q", StageTranscribing.Label())
	}
	if stage, ok := ParseStage(" Translating "); !ok || stage != StageTranslating {
		t.Fatalf("ParseStage = %q %v", stage, ok)
	}
	if _, ok := ParseStage("rendering"); ok {
		t.Fatal("unknown stage should not parse")
	}
}

func TestSnapshotReportsFailure(t *testing.T) {
	task := NewTask("t3", "b1", WorkflowVideo, "/in.mkv", "fr")
	task.Stage = StageFailed
	task.FailedStage = StageExtracting
	task.Err = &services.ExecError{Command: "ffmpeg", ExitCode: 1, StderrTail: "moov atom not found"}

	snap := task.Snapshot()
	if snap.Error != "Audio extraction failed: ffmpeg exited with code 1: moov atom not found" {
		t.Fatalf("unexpected error message %q", snap.Error)
	}
	if snap.ErrorKind != "process_execution" || snap.Stage != "failed" || snap.BatchID != "b1" {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	if snap.StartedAt != nil || snap.EndedAt != nil {
		t.Fatal("unset timestamps must be omitted")
	}
}

func TestParseWorkflow(t *testing.T) {
	cases := map[string]Workflow{"": WorkflowVideo, "VIDEO": WorkflowVideo, " subtitle ": WorkflowSubtitle}
	for input, want := range cases {
		got, err := ParseWorkflow(input)
		if err != nil || got != want {
			t.Fatalf("ParseWorkflow(%q) = %q, %v", input, got, err)
		}
	}
	if _, err := ParseWorkflow("audio"); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestNaming(t *testing.T) {
	cases := []struct {
		input, lang, want string
	}{
		{"/media/My Movie.mkv", "fr", "My Movie_fr.srt"},
		{"/media/show.s01e01.mp4", "Brazilian Portuguese", "show.s01e01_Brazilian_Portuguese.srt"},
		{"clip.mov", " zh / Hant ", "clip_zh_Hant.srt"},
		{"clip.mov", `pt\BR`, "clip_pt_BR.srt"},
		{"clip.mov", "", "clip.srt"},
	}
	for _, tc := range cases {
		if got := OutputName(tc.input, tc.lang); got != tc.want {
			t.Errorf("OutputName(%q, %q) = %q, want %q", tc.input, tc.lang, got, tc.want)
		}
	}
	if got := AudioName("/media/My Movie.mkv"); got != "My Movie.wav" {
		t.Fatalf("AudioName = %q", got)
	}
	if got := TranscriptName("/media/My Movie.mkv"); got != "My Movie-original.srt" {
		t.Fatalf("TranscriptName = %q", got)
	}
}
