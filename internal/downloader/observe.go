package downloader

import (
	"context"
	"errors"
	"maps"

	"github.com/shaiso/Downloader/internal/bus"
	"github.com/shaiso/Downloader/internal/domain"
)

// Observe возвращает живое представление задачи id.
//
// Первое значение (текущая запись или nil, если задачи нет) уже лежит
// в канале к моменту возврата. Дальше значение перечитывается на каждое
// изменение в Store; повторы подряд подавляются. Канал закрывается
// после отмены ctx.
func (d *Downloader) Observe(ctx context.Context, id string) (<-chan *domain.Task, error) {
	changes, err := d.store.Subscribe(ctx, []string{id})
	if err != nil {
		return nil, storeErr("subscribe", err)
	}

	current, err := d.lookup(ctx, id)
	if err != nil {
		return nil, err
	}

	out := make(chan *domain.Task, 1)
	out <- current

	go func() {
		defer close(out)

		last := current
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-changes:
				if !ok {
					return
				}

				task, err := d.lookup(ctx, id)
				if err != nil {
					if ctx.Err() == nil {
						d.logger.Warn("failed to refresh observed task", "task_id", id, "error", err)
					}
					continue
				}
				if sameTask(last, task) {
					continue
				}
				last = task

				select {
				case out <- task:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

// ObserveMany возвращает живое представление набора задач.
// Отсутствующие задачи в map не попадают.
func (d *Downloader) ObserveMany(ctx context.Context, ids []string) (<-chan map[string]domain.Task, error) {
	ids = dedupe(ids)

	changes, err := d.store.Subscribe(ctx, ids)
	if err != nil {
		return nil, storeErr("subscribe", err)
	}

	current, err := d.lookupMany(ctx, ids)
	if err != nil {
		return nil, err
	}

	out := make(chan map[string]domain.Task, 1)
	out <- current

	go func() {
		defer close(out)

		last := current
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-changes:
				if !ok {
					return
				}

				tasks, err := d.lookupMany(ctx, ids)
				if err != nil {
					if ctx.Err() == nil {
						d.logger.Warn("failed to refresh observed tasks", "count", len(ids), "error", err)
					}
					continue
				}
				if sameTasks(last, tasks) {
					continue
				}
				last = tasks

				select {
				case out <- tasks:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

// Results подписывается на поток финальных результатов.
// Подписчик видит только результаты, опубликованные после подписки.
func (d *Downloader) Results() *bus.Subscription[domain.Result] {
	return d.results.Subscribe()
}

// lookup читает задачу; отсутствие — не ошибка.
func (d *Downloader) lookup(ctx context.Context, id string) (*domain.Task, error) {
	task, err := d.store.Get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, storeErr("get", err)
	}
	return task, nil
}

func (d *Downloader) lookupMany(ctx context.Context, ids []string) (map[string]domain.Task, error) {
	tasks, err := d.store.GetMany(ctx, ids)
	if err != nil {
		return nil, storeErr("get many", err)
	}

	out := make(map[string]domain.Task, len(tasks))
	for _, t := range tasks {
		out[t.ID] = t
	}
	return out, nil
}

func sameTask(a, b *domain.Task) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.SameAs(*b)
}

func sameTasks(a, b map[string]domain.Task) bool {
	return maps.EqualFunc(a, b, domain.Task.SameAs)
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
