package main

import (
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"time"

	"subforge/internal/events"
	"subforge/internal/language"
	"subforge/internal/workflow"
)

// eventPrinter renders pipeline events as terminal lines for `run`.
type eventPrinter struct {
	out      io.Writer
	colorize bool

	mu     sync.Mutex
	names  map[string]string
	width  int
	polled map[string]string
}

func newEventPrinter(out io.Writer, colorize bool, batch *workflow.Batch) *eventPrinter {
	p := &eventPrinter{
		out:      out,
		colorize: colorize,
		names:    make(map[string]string, len(batch.Tasks)),
		polled:   make(map[string]string),
	}
	for _, task := range batch.Tasks {
		name := filepath.Base(task.InputPath)
		p.names[task.ID] = name
		if len(name) > p.width {
			p.width = len(name)
		}
	}
	return p
}

func (p *eventPrinter) Publish(evt events.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch evt.Type {
	case events.TaskStarted:
		detail := "transcribe only"
		if evt.Task != nil {
			if evt.Task.TargetLanguage != "" {
				detail = fmt.Sprintf("%s -> %s", evt.Task.Workflow, language.Describe(evt.Task.TargetLanguage))
			} else {
				detail = fmt.Sprintf("%s, transcribe only", evt.Task.Workflow)
			}
		}
		p.line(evt.TaskID, "started", statusInfo, detail)
	case events.TranscriptionStarted:
		p.line(evt.TaskID, "transcribing", statusWarn, "job "+evt.JobID)
	case events.TranscriptionPolling:
		// Only status changes are printed; repeated polls stay quiet.
		if p.polled[evt.TaskID] == evt.Status {
			return
		}
		p.polled[evt.TaskID] = evt.Status
		p.line(evt.TaskID, "transcribing", statusWarn, "remote status "+evt.Status)
	case events.TranscriptionComplete:
		p.line(evt.TaskID, "transcribed", statusWarn, "")
	case events.TranslationStarted:
		p.line(evt.TaskID, "translating", statusWarn, "")
	case events.TaskCompleted:
		detail := ""
		if evt.Task != nil {
			detail = evt.Task.OutputPath
			if evt.Task.Fallback {
				detail += " (untranslated fallback)"
			}
			if d := evt.Task.Duration(); d > 0 {
				detail += fmt.Sprintf(" in %s", d.Round(time.Second))
			}
		}
		p.line(evt.TaskID, "completed", statusOK, detail)
	case events.TaskFailed:
		detail := evt.Error
		if detail == "" && evt.Task != nil {
			detail = evt.Task.Error
		}
		p.line(evt.TaskID, "failed", statusError, detail)
	case events.BatchComplete:
		if evt.Summary == nil {
			return
		}
		kind := statusOK
		if evt.Summary.Failed > 0 {
			kind = statusError
		}
		summary := fmt.Sprintf("Batch %s: %d completed, %d failed of %d",
			shortID(evt.BatchID), evt.Summary.Completed, evt.Summary.Failed, evt.Summary.Total)
		fmt.Fprintln(p.out, colorText(summary, kind, p.colorize))
	}
}

func (p *eventPrinter) line(taskID, stage string, kind statusKind, detail string) {
	name, ok := p.names[taskID]
	if !ok {
		name = shortID(taskID)
	}
	label := colorText(fmt.Sprintf("%-12s", stage), kind, p.colorize)
	if detail == "" {
		fmt.Fprintf(p.out, "%-*s  %s\n", p.width, name, label)
		return
	}
	fmt.Fprintf(p.out, "%-*s  %s %s\n", p.width, name, label, detail)
}
