// Package mq предоставляет инфраструктуру для работы с RabbitMQ.
//
// Структура:
//   - connection.go — управление соединением с RabbitMQ (reconnect, graceful shutdown)
//   - topology.go   — объявление exchanges, queues, bindings
//   - publisher.go  — публикация сообщений
//   - consumer.go   — потребление сообщений из очередей
//   - codec.go      — команды и результаты в сообщениях
//   - commandbus.go — распределённая шина команд
//   - relay.go      — публикация финальных результатов
//
// Типы сообщений:
//   - download.enqueue    — поставить загрузку в очередь
//   - download.cancel     — отменить загрузку
//   - download.cancel_all — отменить все загрузки
//   - download.result     — финальный результат загрузки
//
// Exchanges:
//   - downloader.commands — ENQUEUE (work queue)
//   - downloader.control  — CANCEL, CANCEL_ALL (fanout)
//   - downloader.results  — результаты (fanout)
//   - downloader.dlq      — dead letter queue
package mq
