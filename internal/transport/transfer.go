package transport

import (
	"context"
	"errors"
	"sync"

	"github.com/shaiso/Downloader/internal/domain"
)

// Transfer — хэндл активной передачи.
//
// Progress не закрывается; признаком окончания служит Done.
// После закрытия Done метод Err возвращает итог: nil при успехе,
// ErrAborted при прерывании, иначе ошибку передачи.
type Transfer struct {
	progress chan domain.Progress
	done     chan struct{}
	cancel   context.CancelFunc

	mu  sync.Mutex
	err error
}

// Progress возвращает поток событий прогресса.
func (t *Transfer) Progress() <-chan domain.Progress {
	return t.progress
}

// Done закрывается по завершении передачи.
func (t *Transfer) Done() <-chan struct{} {
	return t.done
}

// Err возвращает итог передачи. До закрытия Done возвращает nil.
func (t *Transfer) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// Abort прерывает передачу. Повторные вызовы безопасны.
func (t *Transfer) Abort() {
	t.cancel()
}

func (t *Transfer) finish(err error) {
	t.mu.Lock()
	t.err = err
	t.mu.Unlock()
	close(t.done)
}

// reportFunc сообщает о записанных байтах.
type reportFunc func(written, total int64)

// start запускает fn в горутине и оборачивает её в Transfer.
// Отмена ctx или Abort превращают любой итог fn в ErrAborted.
func start(ctx context.Context, fn func(ctx context.Context, report reportFunc) error) *Transfer {
	ctx, cancel := context.WithCancel(ctx)
	t := &Transfer{
		progress: make(chan domain.Progress),
		done:     make(chan struct{}),
		cancel:   cancel,
	}

	report := func(written, total int64) {
		select {
		case t.progress <- domain.Progress{BytesWritten: written, TotalBytes: total}:
		case <-ctx.Done():
		}
	}

	go func() {
		defer cancel()
		err := fn(ctx, report)
		if ctx.Err() != nil {
			err = ErrAborted
		} else if errors.Is(err, context.Canceled) {
			err = ErrAborted
		}
		t.finish(err)
	}()

	return t
}
