package downloader

import (
	"time"

	"golang.org/x/time/rate"

	"github.com/shaiso/Downloader/internal/domain"
)

// throttler прореживает прогресс одной задачи.
//
// Пропускает не более одного состояния за окно, из отложенных оставляет
// последнее и выпускает его по закрытию окна. Повтор последнего
// выпущенного состояния подавляется. Не потокобезопасен: им владеет
// один pipeline.
type throttler struct {
	limiter *rate.Limiter
	timer   *time.Timer

	last    domain.State
	hasLast bool
	pending *domain.State
}

// newThrottler создаёт throttler. window < 0 отключает прореживание.
func newThrottler(window time.Duration) *throttler {
	limit := rate.Inf
	if window > 0 {
		limit = rate.Every(window)
	}
	return &throttler{limiter: rate.NewLimiter(limit, 1)}
}

// seed запоминает уже записанное состояние. Запись занимает текущее окно.
func (t *throttler) seed(s domain.State) {
	t.limiter.Allow()
	t.last = s
	t.hasLast = true
}

// offer принимает новое состояние. Возвращает true, если его нужно
// записать сейчас.
func (t *throttler) offer(s domain.State) (domain.State, bool) {
	if t.hasLast && s == t.last {
		t.pending = nil
		return domain.State{}, false
	}

	if t.timer != nil {
		t.pending = &s
		return domain.State{}, false
	}

	now := time.Now()
	r := t.limiter.ReserveN(now, 1)
	if delay := r.DelayFrom(now); delay > 0 {
		t.pending = &s
		t.timer = time.NewTimer(delay)
		return domain.State{}, false
	}

	t.last = s
	t.hasLast = true
	return s, true
}

// C — канал закрытия окна. nil, если ничего не отложено.
func (t *throttler) C() <-chan time.Time {
	if t.timer == nil {
		return nil
	}
	return t.timer.C
}

// fire вызывается по сигналу из C и возвращает отложенное состояние.
func (t *throttler) fire() (domain.State, bool) {
	t.timer = nil
	p := t.pending
	t.pending = nil

	if p == nil || (t.hasLast && *p == t.last) {
		return domain.State{}, false
	}

	t.last = *p
	t.hasLast = true
	return *p, true
}

// stop освобождает таймер. Отложенное значение отбрасывается.
func (t *throttler) stop() {
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.pending = nil
}
