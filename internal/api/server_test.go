package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"subforge/internal/api"
	"subforge/internal/events"
	"subforge/internal/metrics"
	"subforge/internal/pipeline"
	"subforge/internal/services"
	"subforge/internal/tasklog"
	"subforge/internal/testsupport"
	"subforge/internal/workflow"
)

type fakeScheduler struct {
	mu      sync.Mutex
	batches []*workflow.Batch
	active  map[string]bool
}

func (f *fakeScheduler) Submit(_ context.Context, batch *workflow.Batch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, batch)
	for _, id := range batch.TaskIDs() {
		f.active[id] = true
	}
	return nil
}

func (f *fakeScheduler) Cancel(taskID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.active[taskID] {
		return services.Wrap(services.ErrNotFound, "", "cancel task", taskID+" is not active", nil)
	}
	delete(f.active, taskID)
	return nil
}

func (f *fakeScheduler) submitted() []*workflow.Batch {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*workflow.Batch(nil), f.batches...)
}

func (f *fakeScheduler) Active() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]string, 0, len(f.active))
	for id := range f.active {
		ids = append(ids, id)
	}
	return ids
}

type harness struct {
	server      *httptest.Server
	scheduler   *fakeScheduler
	hub         *events.Hub
	logs        *tasklog.Logger
	broadcaster *api.Broadcaster
	collector   *metrics.Collector
	record      func(events.Snapshot)
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	logs, err := tasklog.New(cfg.TaskLogDir())
	if err != nil {
		t.Fatalf("tasklog.New: %v", err)
	}
	reg := prometheus.NewRegistry()
	h := &harness{
		scheduler:   &fakeScheduler{active: map[string]bool{}},
		hub:         events.NewHub(16),
		logs:        logs,
		broadcaster: api.NewBroadcaster(nil),
		collector:   metrics.NewCollector(reg),
	}
	h.record = func(snap events.Snapshot) {
		t.Helper()
		if err := st.Upsert(context.Background(), snap); err != nil {
			t.Fatalf("Upsert: %v", err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	srv := api.New(ctx, api.Options{
		Scheduler:   h.scheduler,
		History:     st,
		Logs:        logs,
		Hub:         h.hub,
		Broadcaster: h.broadcaster,
		Gatherer:    reg,
		Defaults: workflow.BatchConfig{
			OutputDir:  cfg.Paths.OutputDir,
			ScratchDir: cfg.Paths.ScratchDir,
		},
		DefaultLanguage: "Spanish",
	})
	h.server = httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		h.broadcaster.Close()
		h.server.Close()
	})
	return h
}

func (h *harness) do(t *testing.T, method, path string, body any) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequest(method, h.server.URL+path, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, data
}

func TestSubmitBatchAppliesDefaults(t *testing.T) {
	h := newHarness(t)
	empty := ""
	resp, body := h.do(t, http.MethodPost, "/api/batches", api.SubmitRequest{
		Files: []string{"/media/a.mkv", "/media/b.mkv"},
		Tasks: []workflow.TaskSpec{{InputPath: "/media/c.mkv", TargetLanguage: "fr"}},
	})
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d body=%s", resp.StatusCode, body)
	}
	var submitted api.SubmitResponse
	if err := json.Unmarshal(body, &submitted); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if submitted.BatchID == "" || len(submitted.TaskIDs) != 3 {
		t.Fatalf("unexpected response %+v", submitted)
	}
	batch := h.scheduler.submitted()[0]
	if batch.Tasks[0].TargetLanguage != "Spanish" || batch.Tasks[2].TargetLanguage != "fr" {
		t.Fatalf("languages not applied: %q %q", batch.Tasks[0].TargetLanguage, batch.Tasks[2].TargetLanguage)
	}
	if batch.Config.Concurrency != workflow.DefaultConcurrency {
		t.Fatalf("concurrency = %d", batch.Config.Concurrency)
	}

	resp, body = h.do(t, http.MethodPost, "/api/batches", api.SubmitRequest{
		Files:          []string{"/media/d.mkv"},
		TargetLanguage: &empty,
		Concurrency:    2,
	})
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d body=%s", resp.StatusCode, body)
	}
	second := h.scheduler.submitted()[1]
	if second.Tasks[0].Translates() || second.Config.Concurrency != 2 {
		t.Fatalf("explicit empty language should transcribe only: %+v", second.Tasks[0])
	}
}

func TestSubmitBatchRejectsInvalidRequests(t *testing.T) {
	h := newHarness(t)
	cases := map[string]any{
		"relative":  api.SubmitRequest{Files: []string{"movie.mkv"}},
		"empty":     api.SubmitRequest{},
		"workflow":  api.SubmitRequest{Files: []string{"/m.mkv"}, Workflow: "audio"},
		"output":    api.SubmitRequest{Files: []string{"/m.mkv"}, OutputDir: "out"},
		"malformed": "not an object",
	}
	for name, req := range cases {
		resp, body := h.do(t, http.MethodPost, "/api/batches", req)
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("%s: status = %d body=%s", name, resp.StatusCode, body)
		}
	}
	if len(h.scheduler.submitted()) != 0 {
		t.Fatalf("invalid requests reached the scheduler")
	}
}

func TestTaskHistoryAndLogs(t *testing.T) {
	h := newHarness(t)
	h.record(events.Snapshot{ID: "t1", BatchID: "b1", Workflow: "video", InputPath: "/in.mkv", Stage: "completed", OutputPath: "/out/in_fr.srt"})
	h.record(events.Snapshot{ID: "t2", BatchID: "b1", Workflow: "video", InputPath: "/other.mkv", Stage: "failed", Error: "Task canceled", ErrorKind: "canceled"})
	if _, err := h.logs.Append("t1", tasklog.CategoryProcess, "Task started"); err != nil {
		t.Fatalf("Append: %v", err)
	}

	resp, body := h.do(t, http.MethodGet, "/api/tasks?stage=failed", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var list api.TaskListResponse
	if err := json.Unmarshal(body, &list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(list.Tasks) != 1 || list.Tasks[0].ID != "t2" || list.Tasks[0].ErrorKind != "canceled" {
		t.Fatalf("unexpected list %+v", list.Tasks)
	}

	resp, body = h.do(t, http.MethodGet, "/api/tasks/t1", nil)
	var one api.TaskResponse
	if err := json.Unmarshal(body, &one); err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("get task: %d %v", resp.StatusCode, err)
	}
	if one.Task.OutputPath != "/out/in_fr.srt" {
		t.Fatalf("unexpected task %+v", one.Task)
	}

	resp, body = h.do(t, http.MethodGet, "/api/tasks/t1/logs", nil)
	var logs api.LogsResponse
	if err := json.Unmarshal(body, &logs); err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("get logs: %d %v", resp.StatusCode, err)
	}
	if len(logs.Entries) != 1 || logs.Entries[0].Message != "Task started" || logs.Entries[0].Category != tasklog.CategoryProcess {
		t.Fatalf("unexpected entries %+v", logs.Entries)
	}

	for _, path := range []string{"/api/tasks/missing", "/api/tasks/missing/logs", "/api/nope"} {
		if resp, _ := h.do(t, http.MethodGet, path, nil); resp.StatusCode != http.StatusNotFound {
			t.Errorf("%s: status = %d, want 404", path, resp.StatusCode)
		}
	}
	if resp, _ := h.do(t, http.MethodGet, "/api/tasks?limit=-2", nil); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("negative limit: status = %d", resp.StatusCode)
	}
}

func TestCancelTask(t *testing.T) {
	h := newHarness(t)
	h.scheduler.mu.Lock()
	h.scheduler.active["t1"] = true
	h.scheduler.mu.Unlock()

	resp, body := h.do(t, http.MethodPost, "/api/tasks/t1/cancel", nil)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d body=%s", resp.StatusCode, body)
	}
	resp, _ = h.do(t, http.MethodPost, "/api/tasks/t1/cancel", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("second cancel status = %d, want 404", resp.StatusCode)
	}
}

func TestEventsSinceCursor(t *testing.T) {
	h := newHarness(t)
	h.hub.Publish(events.Event{Type: events.TaskStarted, TaskID: "t1"})
	h.hub.Publish(events.Event{Type: events.TaskLog, TaskID: "t2", Message: "hello"})
	h.hub.Publish(events.Event{Type: events.TaskCompleted, TaskID: "t1"})

	resp, body := h.do(t, http.MethodGet, "/api/events?since=1", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var out api.EventsResponse
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out.Events) != 2 || out.Events[0].Sequence != 2 || out.Next != 3 {
		t.Fatalf("unexpected events %+v next=%d", out.Events, out.Next)
	}

	_, body = h.do(t, http.MethodGet, "/api/events?task=t1", nil)
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out.Events) != 2 || out.Events[1].Type != events.TaskCompleted {
		t.Fatalf("task filter returned %+v", out.Events)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	h := newHarness(t)
	h.collector.Publish(events.Event{Type: events.TaskStarted, TaskID: "t1", Task: &events.Snapshot{Workflow: string(pipeline.WorkflowVideo)}})

	resp, body := h.do(t, http.MethodGet, "/metrics", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	for _, fragment := range []string{"subforge_tasks_active 1", `subforge_tasks_started_total{workflow="video"} 1`} {
		if !strings.Contains(string(body), fragment) {
			t.Fatalf("expected %q in metrics output:\n%s", fragment, body)
		}
	}
}

func TestWebSocketStreamsEvents(t *testing.T) {
	h := newHarness(t)
	wsURL := "ws" + strings.TrimPrefix(h.server.URL, "http") + "/api/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for h.broadcaster.Clients() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	h.broadcaster.Publish(events.Event{Type: events.TranscriptionPolling, TaskID: "t1", Status: "processing"})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var evt events.Event
	if err := conn.ReadJSON(&evt); err != nil {
		t.Fatalf("read: %v", err)
	}
	if evt.Type != events.TranscriptionPolling || evt.Status != "processing" {
		t.Fatalf("unexpected event %+v", evt)
	}

	resp, body := h.do(t, http.MethodGet, "/api/health", nil)
	var health api.HealthResponse
	if err := json.Unmarshal(body, &health); err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("health: %d %v", resp.StatusCode, err)
	}
	if health.Status != "ok" || health.Clients != 1 {
		t.Fatalf("unexpected health %+v", health)
	}
}

func TestClientMapsErrors(t *testing.T) {
	h := newHarness(t)
	client := api.NewClient(strings.TrimPrefix(h.server.URL, "http://"), nil)
	ctx := context.Background()

	if _, err := client.Health(ctx); err != nil {
		t.Fatalf("Health: %v", err)
	}
	submitted, err := client.Submit(ctx, api.SubmitRequest{Files: []string{"/media/a.mkv"}})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if err := client.Cancel(ctx, submitted.TaskIDs[0]); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if err := client.Cancel(ctx, submitted.TaskIDs[0]); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := client.Submit(ctx, api.SubmitRequest{Files: []string{"relative.mkv"}}); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}

	h.hub.Publish(events.Event{Type: events.TaskStarted, TaskID: "t9"})
	out, err := client.Events(ctx, 0, "t9", false)
	if err != nil {
		t.Fatalf("Events: %v", err)
	}
	if len(out.Events) != 1 || out.Next != 1 {
		t.Fatalf("unexpected events %+v", out)
	}
}
