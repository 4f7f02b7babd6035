package events

import "sync"

// Sink receives lifecycle events. Publish must not block for long; it is
// called on the goroutine running the task.
type Sink interface {
	Publish(Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Event)

func (f SinkFunc) Publish(evt Event) { f(evt) }

// Discard drops every event.
var Discard Sink = SinkFunc(func(Event) {})

// Fanout publishes each event to every sink in registration order.
type Fanout struct {
	mu    sync.RWMutex
	sinks []Sink
}

// NewFanout returns a Fanout over the non-nil sinks.
func NewFanout(sinks ...Sink) *Fanout {
	f := &Fanout{}
	for _, sink := range sinks {
		f.Add(sink)
	}
	return f
}

// Add registers another sink.
func (f *Fanout) Add(sink Sink) {
	if sink == nil {
		return
	}
	f.mu.Lock()
	f.sinks = append(f.sinks, sink)
	f.mu.Unlock()
}

func (f *Fanout) Publish(evt Event) {
	f.mu.RLock()
	sinks := f.sinks
	f.mu.RUnlock()
	for _, sink := range sinks {
		sink.Publish(evt)
	}
}

// Recorder keeps every published event in memory. Tests use it to assert
// ordering.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(evt Event) {
	r.mu.Lock()
	r.events = append(r.events, evt)
	r.mu.Unlock()
}

// Events returns a copy of everything recorded so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// ForTask returns the recorded events for one task, in order.
func (r *Recorder) ForTask(taskID string) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, evt := range r.events {
		if evt.TaskID == taskID {
			out = append(out, evt)
		}
	}
	return out
}
