package repo

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shaiso/Downloader/internal/domain"
)

// MemoryStore — хранилище задач в памяти процесса.
//
// Используется в тестах и для запуска без внешней БД.
// Все операции над одной записью атомарны.
type MemoryStore struct {
	mu       sync.RWMutex
	tasks    map[string]domain.Task
	notifier *Notifier
	now      func() time.Time
}

// NewMemoryStore создаёт пустое хранилище.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tasks:    make(map[string]domain.Task),
		notifier: NewNotifier(),
		now:      time.Now,
	}
}

// Get возвращает задачу по ID.
func (s *MemoryStore) Get(_ context.Context, id string) (*domain.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	task, ok := s.tasks[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &task, nil
}

// GetMany возвращает существующие задачи из ids.
func (s *MemoryStore) GetMany(_ context.Context, ids []string) ([]domain.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tasks := make([]domain.Task, 0, len(ids))
	for _, id := range ids {
		if task, ok := s.tasks[id]; ok {
			tasks = append(tasks, task)
		}
	}
	return tasks, nil
}

// List возвращает все задачи, отсортированные по ID.
func (s *MemoryStore) List(_ context.Context) ([]domain.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tasks := make([]domain.Task, 0, len(s.tasks))
	for _, task := range s.tasks {
		tasks = append(tasks, task)
	}
	slices.SortFunc(tasks, func(a, b domain.Task) int {
		return strings.Compare(a.ID, b.ID)
	})
	return tasks, nil
}

// InsertOrUpdate создаёт запись или перезаписывает существующую.
func (s *MemoryStore) InsertOrUpdate(_ context.Context, req domain.Request, state domain.State) (*domain.Task, error) {
	s.mu.Lock()
	current, exists := s.tasks[req.ID]
	if exists && !domain.CanTransition(current.State, state) {
		s.mu.Unlock()
		return nil, fmt.Errorf("upsert task %s %s → %s: %w", req.ID, current.State.Kind, state.Kind, ErrInvalidState)
	}

	task := domain.Task{
		ID:          req.ID,
		URL:         req.URL,
		Destination: req.Destination,
		State:       state,
		UpdatedAt:   s.now(),
	}
	s.tasks[req.ID] = task
	s.mu.Unlock()

	s.notifier.Notify(req.ID)
	return &task, nil
}

// UpdateState меняет состояние задачи, если переход разрешён.
func (s *MemoryStore) UpdateState(_ context.Context, id string, state domain.State) (*domain.Task, error) {
	s.mu.Lock()
	task, ok := s.tasks[id]
	if !ok {
		s.mu.Unlock()
		return nil, ErrNotFound
	}
	if !domain.CanTransition(task.State, state) {
		s.mu.Unlock()
		return nil, fmt.Errorf("update task %s %s → %s: %w", id, task.State.Kind, state.Kind, ErrInvalidState)
	}

	task.State = state
	task.UpdatedAt = s.now()
	s.tasks[id] = task
	s.mu.Unlock()

	s.notifier.Notify(id)
	return &task, nil
}

// MarkAllNonTerminalCancelled переводит все ENQUEUED и DOWNLOADING задачи в CANCELLED.
func (s *MemoryStore) MarkAllNonTerminalCancelled(_ context.Context) ([]domain.Task, error) {
	s.mu.Lock()
	now := s.now()
	var changed []domain.Task
	var ids []string
	for id, task := range s.tasks {
		if !task.State.CanCancel() {
			continue
		}
		task.State = domain.NewState(domain.StateCancelled)
		task.UpdatedAt = now
		s.tasks[id] = task
		changed = append(changed, task)
		ids = append(ids, id)
	}
	s.mu.Unlock()

	if len(ids) > 0 {
		s.notifier.Notify(ids...)
	}
	return changed, nil
}

// Remove удаляет задачу и возвращает удалённую запись.
func (s *MemoryStore) Remove(_ context.Context, id string) (*domain.Task, error) {
	s.mu.Lock()
	task, ok := s.tasks[id]
	if !ok {
		s.mu.Unlock()
		return nil, ErrNotFound
	}
	delete(s.tasks, id)
	s.mu.Unlock()

	s.notifier.Notify(id)
	return &task, nil
}

// RemoveAll удаляет все задачи и возвращает удалённые записи.
func (s *MemoryStore) RemoveAll(_ context.Context) ([]domain.Task, error) {
	s.mu.Lock()
	removed := make([]domain.Task, 0, len(s.tasks))
	ids := make([]string, 0, len(s.tasks))
	for id, task := range s.tasks {
		removed = append(removed, task)
		ids = append(ids, id)
	}
	s.tasks = make(map[string]domain.Task)
	s.mu.Unlock()

	if len(ids) > 0 {
		s.notifier.Notify(ids...)
	}
	return removed, nil
}

// Subscribe возвращает канал уведомлений об изменении задач ids.
func (s *MemoryStore) Subscribe(ctx context.Context, ids []string) (<-chan struct{}, error) {
	return s.notifier.Watch(ctx, ids), nil
}
