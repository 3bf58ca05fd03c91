package downloader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/shaiso/Downloader/internal/bus"
	"github.com/shaiso/Downloader/internal/domain"
	"github.com/shaiso/Downloader/internal/telemetry"
	"github.com/shaiso/Downloader/internal/transport"
)

// outcome — итог одной загрузки до записи в Store.
type outcome struct {
	result domain.Result

	// state — финальное состояние для записи. Пустое — не записывать:
	// при отмене командой состояние уже записал отправитель.
	state domain.State
}

// execute — pipeline одной задачи. Вызывается планировщиком в слоте.
func (d *Downloader) execute(req domain.Request) {
	ctx := d.context()
	logger := telemetry.WithTaskID(d.logger, req.ID)

	// Подписка до чтения записи: отмена между чтением и запуском
	// транспорта не теряется.
	sub := d.commands.Subscribe()
	defer sub.Close()

	task, ok := d.precondition(ctx, logger, req.ID)
	if !ok {
		return
	}
	req = task.Request()

	out := d.download(ctx, logger, req, sub)
	res := d.finalize(logger, out)

	logger.Info("download finished", "result", res.Kind)
	d.publish(res)
}

// precondition загружает запись. Отсутствующая или отменённая задача
// не выполняется и не даёт Result.
func (d *Downloader) precondition(ctx context.Context, logger *slog.Logger, id string) (task *domain.Task, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("panic before transfer start", "panic", r)
			ok = false
		}
	}()

	task, err := d.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			logger.Debug("task does not exist, skipping")
		} else {
			logger.Error("failed to load task", "error", err)
		}
		return nil, false
	}

	if !task.State.CanDownload() {
		logger.Debug("task is cancelled, skipping")
		return nil, false
	}

	return task, true
}

// download запускает транспорт и ждёт первого из: завершения передачи,
// команды отмены, остановки загрузчика.
func (d *Downloader) download(ctx context.Context, logger *slog.Logger, req domain.Request, sub *bus.Subscription[domain.Command]) (out outcome) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("pipeline panic", "panic", r, "stack", string(debug.Stack()))
			err := fmt.Errorf("%w: %v", ErrInternal, r)
			out = outcome{result: domain.Failed(req, err), state: domain.NewState(domain.StateFailed)}
		}
	}()

	tr, err := d.transport.Start(ctx, req)
	if err != nil {
		logger.Warn("failed to start transfer", "error", err)
		return failure(req, err)
	}
	// Слот освобождается только после остановки транспорта.
	defer func() {
		tr.Abort()
		<-tr.Done()
	}()

	logger.Info("download started", "url", req.URL, "destination", req.Destination)

	th := newThrottler(d.throttleWindow)
	defer th.stop()

	initial := domain.Downloading(0, 0)
	if refused := d.writeProgress(ctx, logger, req.ID, initial); refused {
		return cancelled(req)
	}
	th.seed(initial)

	for {
		select {
		case p := <-tr.Progress():
			if s, ok := th.offer(p.State()); ok {
				if d.writeProgress(ctx, logger, req.ID, s) {
					return cancelled(req)
				}
			}

		case <-th.C():
			if s, ok := th.fire(); ok {
				if d.writeProgress(ctx, logger, req.ID, s) {
					return cancelled(req)
				}
			}

		case <-tr.Done():
			err := tr.Err()
			switch {
			case err == nil:
				return outcome{result: domain.Succeeded(req), state: domain.NewState(domain.StateCompleted)}
			case ctx.Err() != nil && errors.Is(err, transport.ErrAborted):
				logger.Info("download interrupted by shutdown")
				return cancelled(req)
			default:
				logger.Warn("transfer failed", "error", err)
				return failure(req, err)
			}

		case cmd, ok := <-sub.C():
			if !ok {
				logger.Warn("command subscription closed, aborting")
				return cancelled(req)
			}
			if cmd.Cancels(req.ID) {
				logger.Info("cancel command received", "command", cmd.Kind)
				return cancelled(req)
			}

		case <-ctx.Done():
			logger.Info("download interrupted by shutdown")
			return cancelled(req)
		}
	}
}

// writeProgress сохраняет DOWNLOADING. Возвращает true, если Store отверг
// запись: задача отменена или удалена, загрузку нужно прервать.
// Прочие ошибки только логируются.
func (d *Downloader) writeProgress(ctx context.Context, logger *slog.Logger, id string, s domain.State) (refused bool) {
	_, err := d.store.UpdateState(ctx, id, s)
	if err == nil {
		return false
	}
	if isRefusal(err) {
		logger.Info("progress write refused, task was cancelled or removed", "error", err)
		return true
	}
	if ctx.Err() != nil {
		return false
	}

	logger.Warn("failed to persist progress", "state", s.String(), "error", err)
	if d.metrics != nil {
		d.metrics.ProgressWriteErrors.Inc()
	}
	return false
}

// finalize записывает финальное состояние и возвращает Result для публикации.
// Запись идёт в отдельном контексте: остановка не должна её прерывать.
// Если Store отверг запись, задачу отменили раньше, чем закончилась передача.
func (d *Downloader) finalize(logger *slog.Logger, out outcome) domain.Result {
	if out.state.Kind == "" {
		return out.result
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(d.context()), d.finalizeTimeout)
	defer cancel()

	id := out.result.Request.ID
	_, err := d.store.UpdateState(ctx, id, out.state)
	switch {
	case err == nil:
		return out.result
	case isRefusal(err):
		logger.Info("final state refused, reporting cancellation", "state", out.state.Kind)
		return domain.Cancelled(out.result.Request)
	default:
		logger.Error("failed to persist final state", "state", out.state.Kind, "error", err)
		return out.result
	}
}

func failure(req domain.Request, err error) outcome {
	return outcome{
		result: domain.Failed(req, &TransportError{Err: err}),
		state:  domain.NewState(domain.StateFailed),
	}
}

func cancelled(req domain.Request) outcome {
	return outcome{result: domain.Cancelled(req)}
}
