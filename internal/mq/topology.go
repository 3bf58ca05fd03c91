package mq

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Exchange — тип для имени обменника.
type Exchange string

// Queue — тип для имени очереди.
type Queue string

// RoutingKey — тип для ключа маршрутизации.
type RoutingKey string

// Exchanges — имена обменников.
const (
	ExchangeCommands Exchange = "downloader.commands"
	ExchangeControl  Exchange = "downloader.control"
	ExchangeResults  Exchange = "downloader.results"
	ExchangeDLQ      Exchange = "downloader.dlq"
)

// Queues — имена очередей.
const (
	QueueEnqueue      Queue = "downloads.enqueue"
	QueueDLQDownloads Queue = "dlq.downloads"

	// queueControlPrefix — префикс эксклюзивной очереди экземпляра.
	queueControlPrefix = "downloader.control."
)

// Routing keys.
const (
	RoutingKeyEnqueue      RoutingKey = "enqueue"
	RoutingKeyDLQDownloads RoutingKey = "downloads"
)

// ControlQueue возвращает имя очереди управляющих команд экземпляра.
func ControlQueue(instance string) Queue {
	return Queue(queueControlPrefix + instance)
}

func SetupTopology(ctx context.Context, conn *Connection) error {
	return conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		// 1. Создаём exchanges
		if err := declareExchanges(ch); err != nil {
			return err
		}

		// 2. Создаём queues
		if err := declareQueues(ch); err != nil {
			return err
		}

		// 3. Привязываем queues к exchanges
		if err := bindQueues(ch); err != nil {
			return err
		}

		return nil
	})
}

// declareExchanges создаёт обменники.
func declareExchanges(ch *amqp.Channel) error {
	exchanges := []struct {
		name Exchange
		kind string
	}{
		{ExchangeCommands, amqp.ExchangeDirect},
		{ExchangeControl, amqp.ExchangeFanout},
		{ExchangeResults, amqp.ExchangeFanout},
		{ExchangeDLQ, amqp.ExchangeDirect},
	}

	for _, ex := range exchanges {
		err := ch.ExchangeDeclare(
			string(ex.name), // name
			ex.kind,         // type
			true,            // durable
			false,           // auto-deleted
			false,           // internal
			false,           // no-wait
			nil,             // arguments
		)
		if err != nil {
			return fmt.Errorf("declare exchange %s: %w", ex.name, err)
		}
	}

	return nil
}

// declareQueues создаёт общие очереди.
// Очереди управляющих команд эксклюзивны и объявляются consumer'ом
// каждого экземпляра (DeclareControlQueue).
func declareQueues(ch *amqp.Channel) error {
	dlqArgs := amqp.Table{
		"x-dead-letter-exchange":    string(ExchangeDLQ),
		"x-dead-letter-routing-key": string(RoutingKeyDLQDownloads),
	}

	queues := []struct {
		name Queue
		args amqp.Table
	}{
		// downloads.enqueue — с DLQ (битые сообщения не крутятся вечно)
		{QueueEnqueue, dlqArgs},

		// dlq.downloads — сама DLQ очередь
		{QueueDLQDownloads, nil},
	}

	for _, q := range queues {
		_, err := ch.QueueDeclare(
			string(q.name), // name
			true,           // durable
			false,          // delete when unused
			false,          // exclusive
			false,          // no-wait
			q.args,         // arguments
		)
		if err != nil {
			return fmt.Errorf("declare queue %s: %w", q.name, err)
		}
	}

	return nil
}

// bindQueues привязывает очереди к обменникам.
func bindQueues(ch *amqp.Channel) error {
	bindings := []struct {
		queue      Queue
		routingKey RoutingKey
		exchange   Exchange
	}{
		{QueueEnqueue, RoutingKeyEnqueue, ExchangeCommands},
		{QueueDLQDownloads, RoutingKeyDLQDownloads, ExchangeDLQ},
	}

	for _, b := range bindings {
		err := ch.QueueBind(
			string(b.queue),      // queue name
			string(b.routingKey), // routing key
			string(b.exchange),   // exchange
			false,                // no-wait
			nil,                  // arguments
		)
		if err != nil {
			return fmt.Errorf("bind queue %s to %s: %w", b.queue, b.exchange, err)
		}
	}

	return nil
}

// DeclareControlQueue объявляет эксклюзивную очередь экземпляра и
// привязывает её к fanout обменнику управляющих команд.
// Очередь удаляется брокером вместе с соединением, поэтому после
// переподключения её нужно объявить заново.
func DeclareControlQueue(ch *amqp.Channel, instance string) (string, error) {
	q, err := ch.QueueDeclare(
		string(ControlQueue(instance)), // name
		false,                          // durable
		true,                           // delete when unused
		true,                           // exclusive
		false,                          // no-wait
		nil,                            // arguments
	)
	if err != nil {
		return "", fmt.Errorf("declare control queue: %w", err)
	}

	if err := ch.QueueBind(q.Name, "", string(ExchangeControl), false, nil); err != nil {
		return "", fmt.Errorf("bind control queue: %w", err)
	}

	return q.Name, nil
}

// TopologyInfo возвращает описание топологии для логирования.
func TopologyInfo() string {
	return `
  Downloader RabbitMQ Topology:

    downloader.commands (direct)
    └── downloads.enqueue [routing: enqueue]
            Consumer: один экземпляр downloaderd на сообщение
            DLQ: dlq.downloads

    downloader.control (fanout)
    └── downloader.control.<instance> (exclusive)
            Consumer: каждый экземпляр (CANCEL, CANCEL_ALL)

    downloader.results (fanout)
            Внешние подписчики финальных результатов

    downloader.dlq (direct)
    └── dlq.downloads [routing: downloads]
            Manual processing
  `
}
