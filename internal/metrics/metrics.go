// Package metrics exposes Prometheus collectors fed by the event stream.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"subforge/internal/events"
)

// Collector is an events.Sink that turns lifecycle events into metrics.
type Collector struct {
	tasksStarted        *prometheus.CounterVec
	tasksFinished       *prometheus.CounterVec
	taskFailures        *prometheus.CounterVec
	tasksActive         prometheus.Gauge
	taskDuration        *prometheus.HistogramVec
	transcriptionPolls  prometheus.Counter
	translationFallback prometheus.Counter
	batchesCompleted    prometheus.Counter

	mu      sync.Mutex
	running map[string]struct{}
}

// NewCollector registers the subforge collectors with reg. A nil reg uses the
// default Prometheus registerer.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Collector{
		tasksStarted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "subforge_tasks_started_total",
				Help: "Tasks that began running, by workflow",
			},
			[]string{"workflow"},
		),
		tasksFinished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "subforge_tasks_finished_total",
				Help: "Tasks that reached a terminal stage, by workflow and outcome",
			},
			[]string{"workflow", "outcome"},
		),
		taskFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "subforge_task_failures_total",
				Help: "Failed tasks by error kind",
			},
			[]string{"kind"},
		),
		tasksActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "subforge_tasks_active",
				Help: "Tasks currently between task:started and a terminal event",
			},
		),
		taskDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "subforge_task_duration_seconds",
				Help:    "Wall-clock task duration in seconds, by workflow",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200, 1800, 3600},
			},
			[]string{"workflow"},
		),
		transcriptionPolls: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "subforge_transcription_polls_total",
				Help: "Transcription status queries issued",
			},
		),
		translationFallback: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "subforge_translation_fallbacks_total",
				Help: "Completed tasks whose output is the untranslated original",
			},
		),
		batchesCompleted: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "subforge_batches_completed_total",
				Help: "Batches whose tasks all reached a terminal stage",
			},
		),
		running: make(map[string]struct{}),
	}
}

// Publish updates the collectors for evt.
func (c *Collector) Publish(evt events.Event) {
	switch evt.Type {
	case events.TaskStarted:
		c.tasksStarted.WithLabelValues(workflowOf(evt)).Inc()
		c.mu.Lock()
		if _, seen := c.running[evt.TaskID]; !seen {
			c.running[evt.TaskID] = struct{}{}
			c.tasksActive.Inc()
		}
		c.mu.Unlock()
	case events.TranscriptionPolling:
		c.transcriptionPolls.Inc()
	case events.TaskCompleted, events.TaskFailed:
		workflow := workflowOf(evt)
		outcome := "completed"
		if evt.Type == events.TaskFailed {
			outcome = "failed"
			kind := "unknown"
			if evt.Task != nil && evt.Task.ErrorKind != "" {
				kind = evt.Task.ErrorKind
			}
			c.taskFailures.WithLabelValues(kind).Inc()
		}
		c.tasksFinished.WithLabelValues(workflow, outcome).Inc()
		if evt.Task != nil {
			if evt.Task.Fallback && evt.Type == events.TaskCompleted {
				c.translationFallback.Inc()
			}
			if d := evt.Task.Duration(); d > 0 {
				c.taskDuration.WithLabelValues(workflow).Observe(d.Seconds())
			}
		}
		c.mu.Lock()
		if _, seen := c.running[evt.TaskID]; seen {
			delete(c.running, evt.TaskID)
			c.tasksActive.Dec()
		}
		c.mu.Unlock()
	case events.BatchComplete:
		c.batchesCompleted.Inc()
	}
}

func workflowOf(evt events.Event) string {
	if evt.Task != nil && evt.Task.Workflow != "" {
		return evt.Task.Workflow
	}
	return "unknown"
}
