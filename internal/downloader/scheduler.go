package downloader

import (
	"sync"

	"github.com/shaiso/Downloader/internal/domain"
)

// Stats — снимок состояния планировщика.
type Stats struct {
	Running int `json:"running"`
	Queued  int `json:"queued"`
	Limit   int `json:"limit"`
}

// scheduler — FIFO очередь допуска с фиксированным числом слотов.
//
// Вся работа с очередью и слотами идёт под одним mutex.
// Запрос с id, который уже выполняется, ждёт в очереди освобождения
// этого id: два pipeline для одной задачи одновременно не работают.
type scheduler struct {
	mu      sync.Mutex
	limit   int
	queue   []domain.Request
	running map[string]struct{}
	closed  bool

	run      func(req domain.Request)
	onChange func(Stats)
	wg       sync.WaitGroup
}

func newScheduler(limit int, run func(domain.Request), onChange func(Stats)) *scheduler {
	return &scheduler{
		limit:    limit,
		running:  make(map[string]struct{}),
		run:      run,
		onChange: onChange,
	}
}

// submit ставит запрос в очередь. Всегда принимается.
// Если запрос с тем же id уже ждёт в очереди, он заменяется на месте.
func (s *scheduler) submit(req domain.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}

	replaced := false
	for i := range s.queue {
		if s.queue[i].ID == req.ID {
			s.queue[i] = req
			replaced = true
			break
		}
	}
	if !replaced {
		s.queue = append(s.queue, req)
	}

	s.admitLocked()
}

// admitLocked занимает свободные слоты первыми подходящими запросами.
func (s *scheduler) admitLocked() {
	for !s.closed && len(s.running) < s.limit {
		idx := -1
		for i := range s.queue {
			if _, busy := s.running[s.queue[i].ID]; !busy {
				idx = i
				break
			}
		}
		if idx < 0 {
			break
		}

		req := s.queue[idx]
		s.queue = append(s.queue[:idx], s.queue[idx+1:]...)
		s.running[req.ID] = struct{}{}

		s.wg.Add(1)
		go s.exec(req)
	}

	s.notifyLocked()
}

// exec выполняет pipeline и освобождает слот.
func (s *scheduler) exec(req domain.Request) {
	defer s.wg.Done()
	defer s.release(req.ID)

	s.run(req)
}

func (s *scheduler) release(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.running, id)
	s.admitLocked()
}

func (s *scheduler) notifyLocked() {
	if s.onChange != nil {
		s.onChange(s.statsLocked())
	}
}

func (s *scheduler) stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statsLocked()
}

func (s *scheduler) statsLocked() Stats {
	return Stats{
		Running: len(s.running),
		Queued:  len(s.queue),
		Limit:   s.limit,
	}
}

// close очищает очередь и запрещает новый допуск.
func (s *scheduler) close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	s.queue = nil
	s.notifyLocked()
}

// wait ждёт завершения запущенных pipeline.
func (s *scheduler) wait() {
	s.wg.Wait()
}
