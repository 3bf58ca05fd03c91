package transport

import (
	"context"
	"sync"
	"time"

	"github.com/shaiso/Downloader/internal/domain"
)

// Manual — транспорт, которым управляет тест.
//
// Каждый Start создаёт ManualTransfer, доступный через Transfer(id).
// Передача не завершается, пока тест не вызовет Complete или Fail.
type Manual struct {
	mu        sync.Mutex
	transfers map[string]*ManualTransfer
	starts    map[string]int
	startErr  map[string]error
	started   chan string
}

// NewManual создаёт ручной транспорт.
func NewManual() *Manual {
	return &Manual{
		transfers: make(map[string]*ManualTransfer),
		starts:    make(map[string]int),
		startErr:  make(map[string]error),
		started:   make(chan string, 1024),
	}
}

// FailStart заставляет следующий Start для id вернуть err.
func (m *Manual) FailStart(id string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.startErr[id] = err
}

// Start реализует транспорт.
func (m *Manual) Start(ctx context.Context, req domain.Request) (*Transfer, error) {
	m.mu.Lock()
	if err, ok := m.startErr[req.ID]; ok {
		delete(m.startErr, req.ID)
		m.mu.Unlock()
		return nil, err
	}

	m.mu.Unlock()

	mt := &ManualTransfer{
		progress: make(chan domain.Progress),
		finish:   make(chan error, 1),
		aborted:  make(chan struct{}),
	}
	mt.Transfer = start(ctx, func(ctx context.Context, report reportFunc) error {
		for {
			select {
			case p := <-mt.progress:
				report(p.BytesWritten, p.TotalBytes)
			case err := <-mt.finish:
				return err
			case <-ctx.Done():
				close(mt.aborted)
				return ctx.Err()
			}
		}
	})

	m.mu.Lock()
	m.transfers[req.ID] = mt
	m.starts[req.ID]++
	m.mu.Unlock()

	select {
	case m.started <- req.ID:
	default:
	}
	return mt.Transfer, nil
}

// Started возвращает поток id запущенных передач.
func (m *Manual) Started() <-chan string {
	return m.started
}

// WaitStarted ждёт запуска n-й передачи для id.
func (m *Manual) WaitStarted(id string, n int, timeout time.Duration) (*ManualTransfer, bool) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		m.mu.Lock()
		mt, count := m.transfers[id], m.starts[id]
		m.mu.Unlock()
		if count >= n {
			return mt, true
		}
		time.Sleep(time.Millisecond)
	}
	return nil, false
}

// Transfer возвращает последнюю передачу для id.
func (m *Manual) Transfer(id string) (*ManualTransfer, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mt, ok := m.transfers[id]
	return mt, ok
}

// Starts возвращает, сколько раз запускалась передача для id.
func (m *Manual) Starts(id string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.starts[id]
}

// ManualTransfer — управляемая тестом передача.
type ManualTransfer struct {
	*Transfer

	progress chan domain.Progress
	finish   chan error
	aborted  chan struct{}
}

// Report отправляет событие прогресса. Блокируется до приёма
// или до завершения передачи.
func (mt *ManualTransfer) Report(written, total int64) bool {
	select {
	case mt.progress <- domain.Progress{BytesWritten: written, TotalBytes: total}:
		return true
	case <-mt.Done():
		return false
	}
}

// Complete завершает передачу успешно.
func (mt *ManualTransfer) Complete() {
	mt.Fail(nil)
}

// Fail завершает передачу с ошибкой.
func (mt *ManualTransfer) Fail(err error) {
	select {
	case mt.finish <- err:
	default:
	}
}

// Aborted закрывается, если передачу прервали.
func (mt *ManualTransfer) Aborted() <-chan struct{} {
	return mt.aborted
}
