package repo

import (
	"context"
	"sync"
)

// Notifier рассылает уведомления об изменении записей.
//
// Уведомление не несёт данных: подписчик перечитывает записи сам.
// Несколько изменений подряд сливаются в одно, если подписчик не успел
// прочитать предыдущее.
type Notifier struct {
	mu       sync.Mutex
	watchers map[*watcher]struct{}
}

type watcher struct {
	ids map[string]struct{} // nil — все записи
	ch  chan struct{}
}

// NewNotifier создаёт Notifier.
func NewNotifier() *Notifier {
	return &Notifier{watchers: make(map[*watcher]struct{})}
}

// Watch подписывается на изменения записей ids (пустой список — на все).
// Канал закрывается после отмены ctx.
func (n *Notifier) Watch(ctx context.Context, ids []string) <-chan struct{} {
	w := &watcher{ch: make(chan struct{}, 1)}
	if len(ids) > 0 {
		w.ids = make(map[string]struct{}, len(ids))
		for _, id := range ids {
			w.ids[id] = struct{}{}
		}
	}

	n.mu.Lock()
	n.watchers[w] = struct{}{}
	n.mu.Unlock()

	go func() {
		<-ctx.Done()
		n.mu.Lock()
		delete(n.watchers, w)
		close(w.ch)
		n.mu.Unlock()
	}()

	return w.ch
}

// Notify сообщает об изменении записей ids.
func (n *Notifier) Notify(ids ...string) {
	n.mu.Lock()
	defer n.mu.Unlock()

	for w := range n.watchers {
		if w.matches(ids) {
			w.signal()
		}
	}
}

// Broadcast будит всех подписчиков, например после переподключения
// к источнику уведомлений, когда часть событий могла потеряться.
func (n *Notifier) Broadcast() {
	n.mu.Lock()
	defer n.mu.Unlock()

	for w := range n.watchers {
		w.signal()
	}
}

func (w *watcher) matches(ids []string) bool {
	if w.ids == nil {
		return true
	}
	for _, id := range ids {
		if _, ok := w.ids[id]; ok {
			return true
		}
	}
	return false
}

func (w *watcher) signal() {
	select {
	case w.ch <- struct{}{}:
	default:
	}
}
