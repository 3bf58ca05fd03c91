package downloader

import (
	"context"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/shaiso/Downloader/internal/bus"
	"github.com/shaiso/Downloader/internal/domain"
	"github.com/shaiso/Downloader/internal/telemetry"
	"github.com/shaiso/Downloader/internal/transport"
)

// Default configuration values.
const (
	defaultThrottleWindow  = 200 * time.Millisecond
	defaultFinalizeTimeout = 10 * time.Second
)

// Store — хранилище задач.
//
// Каждая запись состояния проверяется domain.CanTransition атомарно
// и отклоняется с ErrInvalidState.
type Store interface {
	Get(ctx context.Context, id string) (*domain.Task, error)
	GetMany(ctx context.Context, ids []string) ([]domain.Task, error)
	List(ctx context.Context) ([]domain.Task, error)
	InsertOrUpdate(ctx context.Context, req domain.Request, state domain.State) (*domain.Task, error)
	UpdateState(ctx context.Context, id string, state domain.State) (*domain.Task, error)
	MarkAllNonTerminalCancelled(ctx context.Context) ([]domain.Task, error)
	Remove(ctx context.Context, id string) (*domain.Task, error)
	RemoveAll(ctx context.Context) ([]domain.Task, error)

	// Subscribe возвращает канал сигналов об изменении задач ids
	// (nil — всех задач). Канал закрывается после отмены ctx.
	Subscribe(ctx context.Context, ids []string) (<-chan struct{}, error)
}

// Transport запускает передачу файла.
type Transport interface {
	Start(ctx context.Context, req domain.Request) (*transport.Transfer, error)
}

// CommandBus — широковещательная шина команд.
//
// Subscribe может терять старые команды у медленного подписчика,
// SubscribeLossless доставляет все. ENQUEUE без подписчика без потерь
// Send отклоняет.
type CommandBus interface {
	Send(ctx context.Context, cmd domain.Command) error
	Subscribe() *bus.Subscription[domain.Command]
	SubscribeLossless() *bus.Subscription[domain.Command]
}

// Downloader управляет загрузками.
//
// Downloader — центральный компонент системы, который:
//   - Принимает ENQUEUE команды из шины и ставит их в очередь допуска
//   - Запускает не более MaxConcurrent pipeline одновременно
//   - Сохраняет каждый переход состояния в Store
//   - Публикует финальные результаты в поток результатов
type Downloader struct {
	store     Store
	transport Transport
	commands  CommandBus
	results   *bus.Topic[domain.Result]

	sched *scheduler

	// Configuration
	throttleWindow  time.Duration
	finalizeTimeout time.Duration
	cancelOnStop    bool
	resumeOnStart   bool

	metrics *telemetry.Metrics

	// Lifecycle
	logger     *slog.Logger
	runCtx     context.Context
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	started    bool
	stopped    bool
	stoppedMu  sync.RWMutex
}

// Config — конфигурация Downloader.
type Config struct {
	// Collaborators
	Store     Store
	Transport Transport

	// Bus — шина команд (опционально; если nil — bus.NewCommands(BusBuffer)).
	Bus CommandBus

	// MaxConcurrent — число слотов (default: runtime.NumCPU()).
	MaxConcurrent int

	// ThrottleWindow — окно прореживания прогресса.
	// 0 — значение по умолчанию (200ms), < 0 — без прореживания.
	ThrottleWindow time.Duration

	// BusBuffer — буфер подписчика шины и потока результатов (default: 256).
	BusBuffer int

	// FinalizeTimeout — таймаут записи финального состояния (default: 10s).
	FinalizeTimeout time.Duration

	// CancelOnStop — при Stop пометить все незавершённые задачи CANCELLED.
	CancelOnStop bool

	// ResumeOnStart — при Start поставить в очередь задачи ENQUEUED и DOWNLOADING.
	ResumeOnStart bool

	// Metrics (опционально)
	Metrics *telemetry.Metrics

	// Logger
	Logger *slog.Logger
}

// New создаёт новый Downloader.
func New(cfg Config) *Downloader {
	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = runtime.NumCPU()
	}

	window := cfg.ThrottleWindow
	if window == 0 {
		window = defaultThrottleWindow
	}

	buffer := cfg.BusBuffer
	if buffer <= 0 {
		buffer = bus.DefaultBuffer
	}

	finalizeTimeout := cfg.FinalizeTimeout
	if finalizeTimeout <= 0 {
		finalizeTimeout = defaultFinalizeTimeout
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	commands := cfg.Bus
	if commands == nil {
		commands = bus.NewCommands(buffer)
	}

	d := &Downloader{
		store:           cfg.Store,
		transport:       cfg.Transport,
		commands:        commands,
		results:         bus.NewTopic[domain.Result](buffer),
		throttleWindow:  window,
		finalizeTimeout: finalizeTimeout,
		cancelOnStop:    cfg.CancelOnStop,
		resumeOnStart:   cfg.ResumeOnStart,
		metrics:         cfg.Metrics,
		logger:          logger,
	}
	d.sched = newScheduler(maxConcurrent, d.execute, d.reportStats)

	return d
}

// Start запускает Downloader.
//
// Запускает:
//   - Цикл приёма команд ENQUEUE
//   - Восстановление незавершённых задач (если ResumeOnStart)
func (d *Downloader) Start(ctx context.Context) error {
	d.stoppedMu.Lock()
	if d.stopped {
		d.stoppedMu.Unlock()
		return ErrStopped
	}
	if d.started {
		d.stoppedMu.Unlock()
		return nil
	}
	d.started = true
	d.stoppedMu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	d.runCtx = ctx
	d.cancelFunc = cancel

	d.logger.Info("starting downloader",
		"max_concurrent", d.sched.limit,
		"throttle_window", d.throttleWindow,
	)

	// Подписываемся до возврата из Start, чтобы не потерять ENQUEUE.
	sub := d.commands.SubscribeLossless()

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.commandLoop(ctx, sub)
	}()

	if d.resumeOnStart {
		if err := d.resume(ctx); err != nil {
			d.logger.Error("failed to resume tasks", "error", err)
		}
	}

	d.logger.Info("downloader started")
	return nil
}

// Stop останавливает Downloader.
//
// Прерывает активные загрузки, ждёт завершения pipeline
// и закрывает поток результатов.
func (d *Downloader) Stop() {
	d.stoppedMu.Lock()
	if d.stopped {
		d.stoppedMu.Unlock()
		return
	}
	d.stopped = true
	started := d.started
	d.stoppedMu.Unlock()

	d.logger.Info("stopping downloader...")

	d.sched.close()

	if d.cancelOnStop {
		ctx, cancel := context.WithTimeout(context.Background(), d.finalizeTimeout)
		tasks, err := d.store.MarkAllNonTerminalCancelled(ctx)
		cancel()
		if err != nil {
			d.logger.Error("failed to cancel tasks on stop", "error", err)
		} else {
			d.logger.Info("cancelled unfinished tasks", "count", len(tasks))
		}
	}

	if started && d.cancelFunc != nil {
		d.cancelFunc()
	}

	// Ждём завершения горутин
	d.wg.Wait()
	d.sched.wait()

	d.results.Close()

	d.logger.Info("downloader stopped")
}

// IsStopped проверяет, остановлен ли Downloader.
func (d *Downloader) IsStopped() bool {
	d.stoppedMu.RLock()
	defer d.stoppedMu.RUnlock()
	return d.stopped
}

// Stats возвращает состояние слотов и очереди.
func (d *Downloader) Stats() Stats {
	return d.sched.stats()
}

// commandLoop принимает ENQUEUE команды и передаёт их планировщику.
func (d *Downloader) commandLoop(ctx context.Context, sub *bus.Subscription[domain.Command]) {
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case cmd, ok := <-sub.C():
			if !ok {
				return
			}
			if cmd.Kind != domain.CommandEnqueue {
				continue
			}
			d.logger.Debug("enqueue command received", "task_id", cmd.Request.ID)
			d.sched.submit(cmd.Request)
		}
	}
}

// resume ставит в очередь задачи, прерванные прошлым запуском.
func (d *Downloader) resume(ctx context.Context) error {
	tasks, err := d.store.List(ctx)
	if err != nil {
		return storeErr("list", err)
	}

	var resumed int
	for _, task := range tasks {
		if !task.State.CanCancel() {
			continue
		}
		d.sched.submit(task.Request())
		resumed++
	}

	if resumed > 0 {
		d.logger.Info("resumed unfinished tasks", "count", resumed)
	}
	return nil
}

// context возвращает контекст для pipeline.
func (d *Downloader) context() context.Context {
	if d.runCtx == nil {
		return context.Background()
	}
	return d.runCtx
}

func (d *Downloader) reportStats(s Stats) {
	if d.metrics == nil {
		return
	}
	d.metrics.Running.Set(float64(s.Running))
	d.metrics.Queued.Set(float64(s.Queued))
}

func (d *Downloader) publish(res domain.Result) {
	if d.metrics != nil {
		d.metrics.Results.WithLabelValues(string(res.Kind)).Inc()
	}
	d.results.Publish(res)
}

// checkStopped возвращает ErrStopped после Stop.
func (d *Downloader) checkStopped() error {
	if d.IsStopped() {
		return ErrStopped
	}
	return nil
}

// checkRunning возвращает ErrNotStarted до Start и ErrStopped после Stop.
func (d *Downloader) checkRunning() error {
	d.stoppedMu.RLock()
	defer d.stoppedMu.RUnlock()

	switch {
	case d.stopped:
		return ErrStopped
	case !d.started:
		return ErrNotStarted
	}
	return nil
}
