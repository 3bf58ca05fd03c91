package mq

import (
	"context"
	"log/slog"

	"github.com/shaiso/Downloader/internal/bus"
	"github.com/shaiso/Downloader/internal/domain"
)

// ResultRelay зеркалирует локальный поток результатов в downloader.results.
type ResultRelay struct {
	publisher *Publisher
	instance  string
	logger    *slog.Logger
}

// NewResultRelay создаёт ResultRelay.
func NewResultRelay(conn *Connection, instance string, logger *slog.Logger) *ResultRelay {
	if logger == nil {
		logger = slog.Default()
	}
	return &ResultRelay{
		publisher: NewPublisher(conn, logger),
		instance:  instance,
		logger:    logger,
	}
}

// Run публикует результаты из sub до отмены ctx или закрытия подписки.
// Ошибки публикации логируются: результат уже доставлен локальным подписчикам.
func (r *ResultRelay) Run(ctx context.Context, sub *bus.Subscription[domain.Result]) error {
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return nil
		case res, ok := <-sub.C():
			if !ok {
				return nil
			}
			msg := EncodeResult(res, r.instance)
			if err := r.publisher.Publish(ctx, ExchangeResults, "", msg); err != nil {
				r.logger.Warn("failed to relay result",
					"task_id", res.Request.ID,
					"kind", res.Kind,
					"error", err,
				)
			}
		}
	}
}
