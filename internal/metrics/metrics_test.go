package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"subforge/internal/events"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	metric := &dto.Metric{}
	if err := c.Write(metric); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	return metric.Counter.GetValue()
}

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	metric := &dto.Metric{}
	if err := g.Write(metric); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	return metric.Gauge.GetValue()
}

func TestCollectorTracksTaskLifecycle(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	start := time.Now().Add(-90 * time.Second)
	end := time.Now()
	ok := &events.Snapshot{ID: "t1", Workflow: "video", Fallback: true, StartedAt: &start, EndedAt: &end}
	bad := &events.Snapshot{ID: "t2", Workflow: "video", ErrorKind: "process_execution"}

	c.Publish(events.Event{Type: events.TaskStarted, TaskID: "t1", Task: ok})
	c.Publish(events.Event{Type: events.TaskStarted, TaskID: "t2", Task: bad})
	if got := gaugeValue(t, c.tasksActive); got != 2 {
		t.Fatalf("active = %v, want 2", got)
	}
	c.Publish(events.Event{Type: events.TranscriptionPolling, TaskID: "t1"})
	c.Publish(events.Event{Type: events.TranscriptionPolling, TaskID: "t1"})
	c.Publish(events.Event{Type: events.TaskCompleted, TaskID: "t1", Task: ok})
	c.Publish(events.Event{Type: events.TaskFailed, TaskID: "t2", Task: bad})
	c.Publish(events.Event{Type: events.TaskFailed, TaskID: "t2", Task: bad})
	c.Publish(events.Event{Type: events.BatchComplete, BatchID: "b1"})

	if got := gaugeValue(t, c.tasksActive); got != 0 {
		t.Fatalf("active = %v after terminal events, want 0", got)
	}
	if got := counterValue(t, c.tasksStarted.WithLabelValues("video")); got != 2 {
		t.Fatalf("started = %v", got)
	}
	if got := counterValue(t, c.tasksFinished.WithLabelValues("video", "completed")); got != 1 {
		t.Fatalf("completed = %v", got)
	}
	if got := counterValue(t, c.taskFailures.WithLabelValues("process_execution")); got != 2 {
		t.Fatalf("failures = %v", got)
	}
	if got := counterValue(t, c.transcriptionPolls); got != 2 {
		t.Fatalf("polls = %v", got)
	}
	if got := counterValue(t, c.translationFallback); got != 1 {
		t.Fatalf("fallbacks = %v", got)
	}
	if got := counterValue(t, c.batchesCompleted); got != 1 {
		t.Fatalf("batches = %v", got)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	var sawHistogram bool
	for _, family := range families {
		if family.GetName() == "subforge_task_duration_seconds" {
			sawHistogram = family.GetMetric()[0].GetHistogram().GetSampleCount() == 1
		}
	}
	if !sawHistogram {
		t.Fatal("expected one duration observation")
	}
}
