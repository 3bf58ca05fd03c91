package api

import (
	"context"
	"log/slog"
	"time"

	"github.com/shaiso/Downloader/internal/bus"
	"github.com/shaiso/Downloader/internal/domain"
	"github.com/shaiso/Downloader/internal/downloader"
)

// defaultHeartbeat — период комментариев-пингов в SSE потоках.
const defaultHeartbeat = 15 * time.Second

// Downloader — операции загрузчика, доступные через API.
type Downloader interface {
	Enqueue(ctx context.Context, req domain.Request) error
	Cancel(ctx context.Context, id string) error
	CancelAll(ctx context.Context) error
	Remove(ctx context.Context, id string, shouldDeleteFile downloader.DeleteFileFunc) error
	RemoveAll(ctx context.Context, shouldDeleteFile downloader.DeleteFileFunc) error
	Get(ctx context.Context, id string) (*domain.Task, error)
	GetMany(ctx context.Context, ids []string) ([]domain.Task, error)
	List(ctx context.Context) ([]domain.Task, error)
	Observe(ctx context.Context, id string) (<-chan *domain.Task, error)
	ObserveMany(ctx context.Context, ids []string) (<-chan map[string]domain.Task, error)
	Results() *bus.Subscription[domain.Result]
	Stats() downloader.Stats
}

// Handler — главный обработчик API с зависимостями.
type Handler struct {
	downloader Downloader
	heartbeat  time.Duration
	logger     *slog.Logger
}

// Config — конфигурация для создания Handler.
type Config struct {
	Downloader Downloader

	// Heartbeat — период пингов SSE (по умолчанию 15s).
	Heartbeat time.Duration

	Logger *slog.Logger
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	if cfg.Heartbeat <= 0 {
		cfg.Heartbeat = defaultHeartbeat
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Handler{
		downloader: cfg.Downloader,
		heartbeat:  cfg.Heartbeat,
		logger:     cfg.Logger,
	}
}
