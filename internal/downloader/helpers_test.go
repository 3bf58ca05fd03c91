package downloader

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shaiso/Downloader/internal/bus"
	"github.com/shaiso/Downloader/internal/domain"
	"github.com/shaiso/Downloader/internal/repo"
	"github.com/shaiso/Downloader/internal/transport"
)

const waitTimeout = 3 * time.Second

type harness struct {
	t         *testing.T
	store     *repo.MemoryStore
	transport *transport.Manual
	d         *Downloader
	results   *bus.Subscription[domain.Result]
	dir       string
}

func newHarness(t *testing.T, maxConcurrent int, opts ...func(*Config)) *harness {
	t.Helper()

	h := &harness{
		t:         t,
		store:     repo.NewMemoryStore(),
		transport: transport.NewManual(),
		dir:       t.TempDir(),
	}

	cfg := Config{
		Store:          h.store,
		Transport:      h.transport,
		MaxConcurrent:  maxConcurrent,
		ThrottleWindow: -1,
		Logger:         slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	h.d = New(cfg)
	h.results = h.d.Results()
	if err := h.d.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	t.Cleanup(h.d.Stop)

	return h
}

func (h *harness) request(id string) domain.Request {
	return domain.Request{
		ID:          id,
		URL:         "mem://bucket/" + id,
		Destination: filepath.Join(h.dir, id+".bin"),
	}
}

func (h *harness) enqueue(id string) domain.Request {
	h.t.Helper()

	req := h.request(id)
	if err := h.d.Enqueue(context.Background(), req); err != nil {
		h.t.Fatalf("Enqueue(%s) error: %v", id, err)
	}
	return req
}

// started ждёт n-го запуска транспорта для id.
func (h *harness) started(id string, n int) *transport.ManualTransfer {
	h.t.Helper()

	mt, ok := h.transport.WaitStarted(id, n, waitTimeout)
	if !ok {
		h.t.Fatalf("transfer %s was not started %d time(s)", id, n)
	}
	return mt
}

// waitState ждёт, пока запись id примет состояние kind.
func (h *harness) waitState(id string, kind domain.StateKind) domain.Task {
	h.t.Helper()

	deadline := time.Now().Add(waitTimeout)
	var last *domain.Task
	for time.Now().Before(deadline) {
		task, err := h.store.Get(context.Background(), id)
		if err == nil {
			last = task
			if task.State.Kind == kind {
				return *task
			}
		}
		time.Sleep(2 * time.Millisecond)
	}
	h.t.Fatalf("task %s did not reach %s, last: %+v", id, kind, last)
	return domain.Task{}
}

func (h *harness) state(id string) domain.StateKind {
	h.t.Helper()

	task, err := h.store.Get(context.Background(), id)
	if err != nil {
		h.t.Fatalf("Get(%s) error: %v", id, err)
	}
	return task.State.Kind
}

func (h *harness) nextResult() domain.Result {
	h.t.Helper()

	select {
	case res, ok := <-h.results.C():
		if !ok {
			h.t.Fatal("result stream closed")
		}
		return res
	case <-time.After(waitTimeout):
		h.t.Fatal("no result received")
	}
	return domain.Result{}
}

func (h *harness) noResult(wait time.Duration) {
	h.t.Helper()

	select {
	case res, ok := <-h.results.C():
		if ok {
			h.t.Fatalf("unexpected result: %+v", res)
		}
	case <-time.After(wait):
	}
}

func expectResult(t *testing.T, res domain.Result, kind domain.ResultKind, id string) {
	t.Helper()

	if res.Kind != kind || res.Request.ID != id {
		t.Fatalf("expected %s for %s, got %s for %s (err: %v)", kind, id, res.Kind, res.Request.ID, res.Err)
	}
}

// flakyStore возвращает ошибку на UpdateState с заданным состоянием.
type flakyStore struct {
	*repo.MemoryStore
	failKind domain.StateKind
}

var errFlaky = errors.New("disk full")

func (s *flakyStore) UpdateState(ctx context.Context, id string, state domain.State) (*domain.Task, error) {
	if state.Kind == s.failKind {
		return nil, errFlaky
	}
	return s.MemoryStore.UpdateState(ctx, id, state)
}

// panicTransport паникует при запуске.
type panicTransport struct{}

func (panicTransport) Start(context.Context, domain.Request) (*transport.Transfer, error) {
	panic("boom")
}

// progressWrite — успешная запись DOWNLOADING.
type progressWrite struct {
	at    time.Time
	state domain.State
}

// recordingStore запоминает успешные записи DOWNLOADING.
type recordingStore struct {
	*repo.MemoryStore

	mu     sync.Mutex
	writes []progressWrite
}

func (s *recordingStore) UpdateState(ctx context.Context, id string, state domain.State) (*domain.Task, error) {
	task, err := s.MemoryStore.UpdateState(ctx, id, state)
	if err == nil && state.Kind == domain.StateDownloading {
		s.mu.Lock()
		s.writes = append(s.writes, progressWrite{at: time.Now(), state: state})
		s.mu.Unlock()
	}
	return task, err
}

func (s *recordingStore) progressWrites() []progressWrite {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]progressWrite(nil), s.writes...)
}
