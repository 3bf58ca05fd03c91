package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// recorded — копия последнего запроса к fakeAPI.
type recorded struct {
	Method string
	Path   string
	Query  url.Values
	Body   []byte
}

// fakeAPI — минимальный сервер, отвечающий как API загрузчика.
type fakeAPI struct {
	server *httptest.Server

	mu   sync.Mutex
	last recorded
}

func newFakeAPI(t *testing.T, handler http.HandlerFunc) *fakeAPI {
	t.Helper()

	f := &fakeAPI{}
	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var buf bytes.Buffer
		buf.ReadFrom(r.Body)

		f.mu.Lock()
		f.last = recorded{Method: r.Method, Path: r.URL.Path, Query: r.URL.Query(), Body: buf.Bytes()}
		f.mu.Unlock()

		handler(w, r)
	}))
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeAPI) lastRequest() recorded {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.last
}

func writeData(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{"data": data})
}

func writeSSE(w http.ResponseWriter, events ...string) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.WriteHeader(http.StatusOK)
	for _, e := range events {
		fmt.Fprint(w, e)
	}
	w.(http.Flusher).Flush()
}

func task(id, kind string, written, total int64) TaskResponse {
	t := TaskResponse{
		ID:          id,
		URL:         "https://example.com/" + id,
		Destination: "/tmp/" + id,
		State:       StateResponse{Kind: kind, BytesWritten: written, TotalBytes: total},
	}
	if total > 0 {
		t.Percentage = int(written * 100 / total)
	}
	return t
}

// --- Client Tests ---

func TestClient_Enqueue(t *testing.T) {
	api := newFakeAPI(t, func(w http.ResponseWriter, r *http.Request) {
		writeData(w, http.StatusAccepted, task("generated", "ENQUEUED", 0, 0))
	})

	client := NewClient(api.server.URL + "/")
	got, err := client.Enqueue(EnqueueRequest{URL: "https://example.com/a", Destination: "/tmp/a"})
	if err != nil {
		t.Fatalf("Enqueue() error: %v", err)
	}

	req := api.lastRequest()
	if req.Method != http.MethodPost || req.Path != "/api/v1/downloads" {
		t.Errorf("unexpected request %s %s", req.Method, req.Path)
	}
	if strings.Contains(string(req.Body), `"id"`) {
		t.Errorf("empty id should be omitted, body: %s", req.Body)
	}
	if got.ID != "generated" || got.State.Kind != "ENQUEUED" {
		t.Errorf("unexpected task %+v", got)
	}
}

func TestClient_ListDownloadsWithIDs(t *testing.T) {
	api := newFakeAPI(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"data":  []TaskResponse{task("a", "COMPLETED", 0, 0)},
			"total": 1,
		})
	})

	tasks, err := NewClient(api.server.URL).ListDownloads([]string{"a", "b"})
	if err != nil {
		t.Fatalf("ListDownloads() error: %v", err)
	}
	if got := api.lastRequest().Query.Get("ids"); got != "a,b" {
		t.Errorf("expected ids=a,b, got %q", got)
	}
	if len(tasks) != 1 || tasks[0].ID != "a" {
		t.Errorf("unexpected tasks %+v", tasks)
	}
}

func TestClient_RemoveQuery(t *testing.T) {
	api := newFakeAPI(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	if err := NewClient(api.server.URL).Remove("a b", true); err != nil {
		t.Fatalf("Remove() error: %v", err)
	}
	req := api.lastRequest()
	if req.Method != http.MethodDelete {
		t.Errorf("expected DELETE, got %s", req.Method)
	}
	if req.Path != "/api/v1/downloads/a b" {
		t.Errorf("unexpected path %q", req.Path)
	}
	if got := req.Query.Get("delete_file"); got != "true" {
		t.Errorf("expected delete_file=true, got %q", got)
	}
}

func TestClient_APIError(t *testing.T) {
	api := newFakeAPI(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"error":{"code":"NOT_FOUND","message":"download not found"}}`)
	})

	_, err := NewClient(api.server.URL).GetDownload("missing")

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %v", err)
	}
	if apiErr.Status != http.StatusNotFound || apiErr.Code != "NOT_FOUND" {
		t.Errorf("unexpected error %+v", apiErr)
	}
}

func TestClient_WatchTaskParsesEvents(t *testing.T) {
	api := newFakeAPI(t, func(w http.ResponseWriter, r *http.Request) {
		writeSSE(w,
			": ping\n\n",
			"event: task\ndata: null\n\n",
			"event: task\ndata: {\"id\":\"a\",\"state\":{\"kind\":\"ENQUEUED\"}}\n\n",
		)
	})

	var seen []*TaskResponse
	err := NewClient(api.server.URL).WatchTask(context.Background(), "a", func(t *TaskResponse) error {
		seen = append(seen, t)
		return nil
	})
	if err != nil {
		t.Fatalf("WatchTask() error: %v", err)
	}

	if len(seen) != 2 {
		t.Fatalf("expected 2 events, got %d", len(seen))
	}
	if seen[0] != nil {
		t.Errorf("first event should be absent task, got %+v", seen[0])
	}
	if seen[1] == nil || seen[1].State.Kind != "ENQUEUED" {
		t.Errorf("unexpected second event %+v", seen[1])
	}
	if path := api.lastRequest().Path; path != "/api/v1/downloads/a/events" {
		t.Errorf("unexpected path %q", path)
	}
}

func TestClient_StreamStopsOnRequest(t *testing.T) {
	api := newFakeAPI(t, func(w http.ResponseWriter, r *http.Request) {
		writeSSE(w,
			"event: result\ndata: {\"kind\":\"SUCCESS\",\"request\":{\"id\":\"a\"}}\n\n",
			"event: result\ndata: {\"kind\":\"FAILURE\",\"request\":{\"id\":\"b\"},\"error\":\"boom\"}\n\n",
		)
	})

	var count int
	err := NewClient(api.server.URL).WatchResults(context.Background(), func(res ResultResponse) error {
		count++
		return errStopStream
	})
	if err != nil {
		t.Fatalf("WatchResults() error: %v", err)
	}
	if count != 1 {
		t.Errorf("expected stream to stop after first result, got %d", count)
	}
}

// --- Output Tests ---

func TestOutput_Formats(t *testing.T) {
	data := StatsResponse{Running: 1, Queued: 2, Limit: 3}
	headers := []string{"RUNNING", "QUEUED", "LIMIT"}
	rows := [][]string{{"1", "2", "3"}}

	tests := []struct {
		format Format
		want   string
	}{
		{FormatTable, "RUNNING  QUEUED  LIMIT"},
		{FormatJSON, `"queued": 2`},
		{FormatYAML, "queued: 2"},
	}

	for _, tt := range tests {
		t.Run(string(tt.format), func(t *testing.T) {
			var w, errW bytes.Buffer
			out := newOutput(tt.format, &w, &errW)
			out.Print(headers, rows, data)

			if !strings.Contains(w.String(), tt.want) {
				t.Errorf("expected %q in output:\n%s", tt.want, w.String())
			}
		})
	}
}

func TestFormatProgress(t *testing.T) {
	if got := formatProgress(task("a", "DOWNLOADING", 50, 200)); got != "25% (50/200)" {
		t.Errorf("unexpected progress %q", got)
	}
	if got := formatProgress(task("a", "DOWNLOADING", 10, 0)); got != "10 B" {
		t.Errorf("unexpected progress %q", got)
	}
	if got := formatProgress(task("a", "COMPLETED", 0, 0)); got != "-" {
		t.Errorf("unexpected progress %q", got)
	}
}

// --- Watch Tests ---

func TestWatchPlain_StopsWhenAllTerminal(t *testing.T) {
	snapshots := []map[string]TaskResponse{
		{"a": task("a", "DOWNLOADING", 10, 100)},
		{"a": task("a", "DOWNLOADING", 10, 100), "b": task("b", "ENQUEUED", 0, 0)},
		{"a": task("a", "COMPLETED", 0, 0), "b": task("b", "CANCELLED", 0, 0)},
		{"a": task("a", "COMPLETED", 0, 0), "b": task("b", "CANCELLED", 0, 0)},
	}

	api := newFakeAPI(t, func(w http.ResponseWriter, r *http.Request) {
		var events []string
		for _, s := range snapshots {
			data, _ := json.Marshal(s)
			events = append(events, "event: tasks\ndata: "+string(data)+"\n\n")
		}
		writeSSE(w, events...)
	})

	var w, errW bytes.Buffer
	out := newOutput(FormatTable, &w, &errW)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if err := watchPlain(ctx, NewClient(api.server.URL), []string{"a", "b"}, out); err != nil {
		t.Fatalf("watchPlain() error: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(w.String()), "\n")
	want := []string{
		"a\tDOWNLOADING\t10% (10/100)",
		"b\tENQUEUED\t-",
		"a\tCOMPLETED\t-",
		"b\tCANCELLED\t-",
	}
	if len(lines) != len(want) {
		t.Fatalf("expected %d lines, got %d:\n%s", len(want), len(lines), w.String())
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Errorf("line %d: expected %q, got %q", i, want[i], lines[i])
		}
	}
}

func TestWatchModel_QuitsWhenAllTerminal(t *testing.T) {
	updates := make(chan tea.Msg)
	m := newWatchModel([]string{"a"}, updates)

	next, cmd := m.Update(tasksMsg{"a": task("a", "DOWNLOADING", 5, 10)})
	m = next.(watchModel)
	if m.done || cmd == nil {
		t.Fatal("model should keep waiting while downloading")
	}
	if !strings.Contains(m.View(), "50% (5/10)") {
		t.Errorf("view should show progress:\n%s", m.View())
	}

	next, cmd = m.Update(tasksMsg{"a": task("a", "COMPLETED", 0, 0)})
	m = next.(watchModel)
	if !m.done {
		t.Fatal("model should be done")
	}
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("expected tea.QuitMsg")
	}
}

func TestWatchModel_StreamError(t *testing.T) {
	m := newWatchModel([]string{"a"}, make(chan tea.Msg))

	next, _ := m.Update(streamDoneMsg{err: errors.New("connection reset")})
	m = next.(watchModel)

	if m.err == nil || !m.done {
		t.Fatal("stream error should finish the model")
	}
	if !strings.Contains(m.View(), "connection reset") {
		t.Errorf("view should show the error:\n%s", m.View())
	}
}
