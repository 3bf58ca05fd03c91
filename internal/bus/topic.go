package bus

import (
	"sync"
	"sync/atomic"
)

// DefaultBuffer — размер буфера подписчика по умолчанию.
const DefaultBuffer = 256

// Topic — широковещательный канал с неблокирующей публикацией.
//
// Обычный подписчик при переполнении буфера теряет самые старые значения.
// Подписчик SubscribeLossless получает все значения: то, что не влезло
// в буфер, копится в очереди подписки.
type Topic[T any] struct {
	mu     sync.Mutex
	subs   map[*Subscription[T]]struct{}
	buffer int
	closed bool

	lossless int
}

// NewTopic создаёт Topic с буфером buffer на каждого подписчика.
func NewTopic[T any](buffer int) *Topic[T] {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Topic[T]{
		subs:   make(map[*Subscription[T]]struct{}),
		buffer: buffer,
	}
}

// Publish рассылает значение всем подписчикам.
func (t *Topic[T]) Publish(v T) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return
	}
	for s := range t.subs {
		s.offer(v)
	}
}

// Subscribe регистрирует нового подписчика.
// Подписка на закрытый Topic возвращает уже закрытую подписку.
func (t *Topic[T]) Subscribe() *Subscription[T] {
	s := &Subscription[T]{
		ch:    make(chan T, t.buffer),
		topic: t,
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		close(s.ch)
		s.done = true
		return s
	}
	t.subs[s] = struct{}{}
	return s
}

// SubscribeLossless регистрирует подписчика без потерь.
// Очередь подписки не ограничена, подписчик должен её вычитывать.
func (t *Topic[T]) SubscribeLossless() *Subscription[T] {
	s := &Subscription[T]{
		ch:       make(chan T, t.buffer),
		topic:    t,
		lossless: true,
		wake:     make(chan struct{}, 1),
		quit:     make(chan struct{}),
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		close(s.ch)
		s.done = true
		return s
	}
	t.subs[s] = struct{}{}
	t.lossless++
	go s.pump()
	return s
}

// LosslessSubscribers возвращает количество подписчиков без потерь.
func (t *Topic[T]) LosslessSubscribers() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lossless
}

// Subscribers возвращает количество активных подписчиков.
func (t *Topic[T]) Subscribers() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.subs)
}

// Close закрывает Topic и все подписки.
func (t *Topic[T]) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return
	}
	t.closed = true
	for s := range t.subs {
		s.closeLocked()
	}
	t.subs = nil
	t.lossless = 0
}

// Subscription — подписка на Topic.
type Subscription[T any] struct {
	ch      chan T
	topic   *Topic[T]
	done    bool // под topic.mu
	dropped atomic.Uint64

	// Только для подписки без потерь.
	lossless bool
	mu       sync.Mutex
	backlog  []T
	wake     chan struct{}
	quit     chan struct{}
}

// C возвращает канал значений. Канал закрывается после Close.
func (s *Subscription[T]) C() <-chan T {
	return s.ch
}

// Dropped возвращает количество вытесненных значений.
func (s *Subscription[T]) Dropped() uint64 {
	return s.dropped.Load()
}

// Close отписывается от Topic. Повторный вызов безопасен.
func (s *Subscription[T]) Close() {
	s.topic.mu.Lock()
	defer s.topic.mu.Unlock()

	if s.done {
		return
	}
	delete(s.topic.subs, s)
	if s.lossless {
		s.topic.lossless--
	}
	s.closeLocked()
}

// closeLocked закрывает подписку. Канал подписки без потерь закрывает
// pump: он единственный пишет в него.
func (s *Subscription[T]) closeLocked() {
	s.done = true
	if s.lossless {
		close(s.quit)
		return
	}
	close(s.ch)
}

// offer кладёт значение в буфер, вытесняя самое старое при переполнении.
// Вызывается под topic.mu, поэтому конкурирует только с читателем.
func (s *Subscription[T]) offer(v T) {
	if s.lossless {
		s.enqueue(v)
		return
	}

	for {
		select {
		case s.ch <- v:
			return
		default:
		}

		select {
		case <-s.ch:
			s.dropped.Add(1)
		default:
		}
	}
}

// enqueue добавляет значение в очередь подписки без потерь.
func (s *Subscription[T]) enqueue(v T) {
	s.mu.Lock()
	s.backlog = append(s.backlog, v)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// pump переносит очередь подписки в канал в порядке публикации.
func (s *Subscription[T]) pump() {
	defer close(s.ch)

	for {
		s.mu.Lock()
		if len(s.backlog) == 0 {
			s.backlog = nil
			s.mu.Unlock()

			select {
			case <-s.wake:
				continue
			case <-s.quit:
				return
			}
		}
		v := s.backlog[0]
		var zero T
		s.backlog[0] = zero
		s.backlog = s.backlog[1:]
		s.mu.Unlock()

		select {
		case s.ch <- v:
		case <-s.quit:
			return
		}
	}
}
