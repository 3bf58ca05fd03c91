package mq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"
	"golang.org/x/sync/errgroup"

	"github.com/shaiso/Downloader/internal/bus"
	"github.com/shaiso/Downloader/internal/domain"
)

// Default configuration values.
const (
	defaultEnqueuePrefetch = 16
	defaultControlPrefetch = 64
)

// CommandBus — шина команд поверх RabbitMQ для нескольких экземпляров.
//
// Маршрутизация:
//   - ENQUEUE → downloads.enqueue: сообщение получает ровно один экземпляр
//   - CANCEL, CANCEL_ALL → downloader.control (fanout): получают все экземпляры,
//     включая отправителя
//
// Полученные команды публикуются в локальную шину, на которую
// подписываются планировщик (без потерь) и pipeline.
// Consumer'ы нужно запускать после подписки планировщика.
type CommandBus struct {
	conn      *Connection
	publisher *Publisher
	local     *bus.Commands
	instance  string
	logger    *slog.Logger

	enqueueConsumer *Consumer
	controlConsumer *Consumer
}

// CommandBusConfig — конфигурация CommandBus.
type CommandBusConfig struct {
	// Instance — идентификатор экземпляра (имя control очереди).
	Instance string

	// Buffer — буфер подписчика локальной шины.
	Buffer int

	// Logger
	Logger *slog.Logger
}

// NewCommandBus создаёт CommandBus.
func NewCommandBus(conn *Connection, cfg CommandBusConfig) *CommandBus {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	b := &CommandBus{
		conn:      conn,
		publisher: NewPublisher(conn, logger),
		local:     bus.NewCommands(cfg.Buffer),
		instance:  cfg.Instance,
		logger:    logger.With("component", "commandbus", "instance", cfg.Instance),
	}

	b.enqueueConsumer = NewConsumer(conn, b.logger, ConsumerConfig{
		Queue:    string(QueueEnqueue),
		Handler:  b.handle,
		Prefetch: defaultEnqueuePrefetch,
	})

	b.controlConsumer = NewConsumer(conn, b.logger, ConsumerConfig{
		Handler:   b.handle,
		Prefetch:  defaultControlPrefetch,
		Exclusive: true,
		Setup: func(ch *amqp.Channel) (string, error) {
			return DeclareControlQueue(ch, b.instance)
		},
	})

	return b
}

// Send публикует команду в брокер.
func (b *CommandBus) Send(ctx context.Context, cmd domain.Command) error {
	msg, err := EncodeCommand(cmd, b.instance)
	if err != nil {
		return err
	}

	if cmd.Kind == domain.CommandEnqueue {
		return b.publisher.Publish(ctx, ExchangeCommands, RoutingKeyEnqueue, msg)
	}
	return b.publisher.Publish(ctx, ExchangeControl, "", msg)
}

// Subscribe подписывается на команды, полученные этим экземпляром.
func (b *CommandBus) Subscribe() *bus.Subscription[domain.Command] {
	return b.local.Subscribe()
}

// SubscribeLossless подписывается на команды без потерь.
func (b *CommandBus) SubscribeLossless() *bus.Subscription[domain.Command] {
	return b.local.SubscribeLossless()
}

// Start запускает consumer'ы и блокируется до отмены ctx
// или фатальной ошибки одного из них.
func (b *CommandBus) Start(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return b.enqueueConsumer.Start(ctx)
	})
	g.Go(func() error {
		return b.controlConsumer.Start(ctx)
	})

	b.logger.Info("command bus started")

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Close останавливает consumer'ы и закрывает локальную шину.
func (b *CommandBus) Close() {
	b.enqueueConsumer.Stop()
	b.controlConsumer.Stop()
	b.local.Close()
}

// handle переводит сообщение в локальную команду.
// ENQUEUE подтверждается только после передачи подписчику без потерь.
// Без такого подписчика локальная шина возвращает bus.ErrNoReceiver,
// и сообщение возвращается в очередь.
func (b *CommandBus) handle(ctx context.Context, d *Delivery) error {
	cmd, err := DecodeCommand(&d.Message)
	if err != nil {
		return err
	}

	if err := b.local.Send(ctx, cmd); err != nil {
		return fmt.Errorf("dispatch command: %w", err)
	}

	b.logger.Debug("command received",
		"kind", cmd.Kind,
		"task_id", cmd.ID,
		"origin", d.Message.Origin,
	)
	return nil
}
