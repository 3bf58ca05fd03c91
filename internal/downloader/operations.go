package downloader

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/shaiso/Downloader/internal/domain"
)

// DeleteFileFunc решает, удалять ли файл задачи при удалении записи.
type DeleteFileFunc func(task domain.Task) bool

// Always удаляет файл всегда.
func Always(domain.Task) bool { return true }

// Never не удаляет файл.
func Never(domain.Task) bool { return false }

// Enqueue сохраняет задачу в состоянии ENQUEUED и отправляет команду ENQUEUE.
// Повторная постановка того же id перезаписывает запрос.
// До Start возвращает ErrNotStarted: команду некому принять.
func (d *Downloader) Enqueue(ctx context.Context, req domain.Request) error {
	if err := d.checkRunning(); err != nil {
		return err
	}
	if err := req.Validate(); err != nil {
		return err
	}

	if _, err := d.store.InsertOrUpdate(ctx, req, domain.NewState(domain.StateEnqueued)); err != nil {
		return storeErr("insert", err)
	}

	if err := d.commands.Send(ctx, domain.EnqueueCommand(req)); err != nil {
		return fmt.Errorf("send enqueue command: %w", err)
	}

	d.logger.Debug("task enqueued", "task_id", req.ID, "url", req.URL)
	return nil
}

// Cancel помечает задачу CANCELLED и отправляет команду CANCEL.
// Отсутствующая или уже отменённая задача — не ошибка.
func (d *Downloader) Cancel(ctx context.Context, id string) error {
	if err := d.checkStopped(); err != nil {
		return err
	}

	_, err := d.store.UpdateState(ctx, id, domain.NewState(domain.StateCancelled))
	if err != nil && !isRefusal(err) {
		return storeErr("update", err)
	}

	if err := d.commands.Send(ctx, domain.CancelCommand(id)); err != nil {
		return fmt.Errorf("send cancel command: %w", err)
	}

	d.logger.Debug("task cancelled", "task_id", id)
	return nil
}

// CancelAll помечает все незавершённые задачи CANCELLED
// и отправляет команду CANCEL_ALL.
func (d *Downloader) CancelAll(ctx context.Context) error {
	if err := d.checkStopped(); err != nil {
		return err
	}

	tasks, err := d.store.MarkAllNonTerminalCancelled(ctx)
	if err != nil {
		return storeErr("cancel all", err)
	}

	if err := d.commands.Send(ctx, domain.CancelAllCommand()); err != nil {
		return fmt.Errorf("send cancel all command: %w", err)
	}

	d.logger.Debug("all tasks cancelled", "count", len(tasks))
	return nil
}

// Remove отменяет задачу, удаляет запись и, если shouldDeleteFile
// вернул true, файл назначения. Ошибка удаления файла возвращается
// как *FileError уже после удаления записи.
func (d *Downloader) Remove(ctx context.Context, id string, shouldDeleteFile DeleteFileFunc) error {
	if err := d.checkStopped(); err != nil {
		return err
	}

	if err := d.commands.Send(ctx, domain.CancelCommand(id)); err != nil {
		return fmt.Errorf("send cancel command: %w", err)
	}

	task, err := d.store.Remove(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return storeErr("remove", err)
	}

	d.logger.Debug("task removed", "task_id", id)
	return deleteFile(*task, shouldDeleteFile)
}

// RemoveAll отменяет все задачи, удаляет все записи и файлы,
// для которых shouldDeleteFile вернул true.
func (d *Downloader) RemoveAll(ctx context.Context, shouldDeleteFile DeleteFileFunc) error {
	if err := d.checkStopped(); err != nil {
		return err
	}

	if err := d.commands.Send(ctx, domain.CancelAllCommand()); err != nil {
		return fmt.Errorf("send cancel all command: %w", err)
	}

	tasks, err := d.store.RemoveAll(ctx)
	if err != nil {
		return storeErr("remove all", err)
	}

	d.logger.Debug("all tasks removed", "count", len(tasks))

	var errs []error
	for _, task := range tasks {
		if err := deleteFile(task, shouldDeleteFile); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	return &FileError{Err: errors.Join(errs...)}
}

// RemoveAndDeleteFile удаляет задачу вместе с файлом.
func (d *Downloader) RemoveAndDeleteFile(ctx context.Context, id string) error {
	return d.Remove(ctx, id, Always)
}

// RemoveAllAndDeleteFiles удаляет все задачи вместе с файлами.
func (d *Downloader) RemoveAllAndDeleteFiles(ctx context.Context) error {
	return d.RemoveAll(ctx, Always)
}

// Get возвращает задачу. Отсутствие — ErrNotFound.
func (d *Downloader) Get(ctx context.Context, id string) (*domain.Task, error) {
	task, err := d.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, storeErr("get", err)
	}
	return task, nil
}

// GetMany возвращает найденные задачи из ids.
func (d *Downloader) GetMany(ctx context.Context, ids []string) ([]domain.Task, error) {
	tasks, err := d.store.GetMany(ctx, ids)
	if err != nil {
		return nil, storeErr("get many", err)
	}
	return tasks, nil
}

// List возвращает все задачи.
func (d *Downloader) List(ctx context.Context) ([]domain.Task, error) {
	tasks, err := d.store.List(ctx)
	if err != nil {
		return nil, storeErr("list", err)
	}
	return tasks, nil
}

// deleteFile удаляет файл задачи. Отсутствующий файл — не ошибка.
func deleteFile(task domain.Task, shouldDelete DeleteFileFunc) error {
	if shouldDelete == nil || !shouldDelete(task) {
		return nil
	}

	err := os.Remove(task.Destination)
	if err == nil || errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return &FileError{Path: task.Destination, Err: err}
}
