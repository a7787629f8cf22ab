// Package mq предоставляет инфраструктуру для работы с RabbitMQ.
//
// Структура:
//   - connection.go — управление соединением с RabbitMQ (reconnect, graceful shutdown)
//   - topology.go   — объявление exchanges, queues, bindings
//   - publisher.go  — публикация сообщений в очереди
//   - consumer.go   — потребление сообщений из очередей
//
// Типы сообщений:
//   - task.submitted   — задача принята
//   - task.completed   — задача успешно завершена
//   - task.failed      — задача провалилась
//   - work.available   — появилась работа (подсказка poll-циклу воркера)
//
// Exchanges:
//   - neuroweave.tasks — событийная лента задач для внешних потребителей
//   - neuroweave.work  — подсказки воркерам
//   - neuroweave.dlq   — dead letter queue
//
// MQ опционален: выдача работы идёт только через HTTP Poll, подсказки
// лишь сокращают задержку между появлением работы и её получением.
package mq
