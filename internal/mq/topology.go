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
	ExchangeTasks Exchange = "neuroweave.tasks"
	ExchangeWork  Exchange = "neuroweave.work"
	ExchangeDLQ   Exchange = "neuroweave.dlq"
)

// Queues — имена очередей.
const (
	QueueTaskEvents    Queue = "task.events"
	QueueWorkAvailable Queue = "work.available"
	QueueDeadLetters   Queue = "neuroweave.dead-letters"
)

// Routing keys.
const (
	RoutingKeyTaskSubmitted RoutingKey = "task.submitted"
	RoutingKeyTaskCompleted RoutingKey = "task.completed"
	RoutingKeyTaskFailed    RoutingKey = "task.failed"
	RoutingKeyWorkAvailable RoutingKey = "available"
	RoutingKeyDeadLetters   RoutingKey = "dead-letters"
)

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
		{ExchangeTasks, "direct"},
		{ExchangeWork, "direct"},
		{ExchangeDLQ, "direct"},
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

// declareQueues создаёт очереди.
func declareQueues(ch *amqp.Channel) error {
	// Аргументы для очередей с DLQ
	dlqArgs := amqp.Table{
		"x-dead-letter-exchange":    string(ExchangeDLQ),
		"x-dead-letter-routing-key": string(RoutingKeyDeadLetters),
	}

	queues := []struct {
		name Queue
		args amqp.Table
	}{
		// task.events — событийная лента для внешних потребителей, без DLQ
		{QueueTaskEvents, nil},

		// work.available — подсказки воркерам, с DLQ
		{QueueWorkAvailable, dlqArgs},

		// neuroweave.dead-letters — сама DLQ очередь
		{QueueDeadLetters, nil},
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
		// Все события жизненного цикла задач идут в одну очередь
		{QueueTaskEvents, RoutingKeyTaskSubmitted, ExchangeTasks},
		{QueueTaskEvents, RoutingKeyTaskCompleted, ExchangeTasks},
		{QueueTaskEvents, RoutingKeyTaskFailed, ExchangeTasks},

		{QueueWorkAvailable, RoutingKeyWorkAvailable, ExchangeWork},

		{QueueDeadLetters, RoutingKeyDeadLetters, ExchangeDLQ},
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

// TopologyInfo возвращает описание топологии для логирования.
func TopologyInfo() string {
	return `
  Neuroweave RabbitMQ Topology:

    neuroweave.tasks (direct)
    └── task.events [routing: task.submitted, task.completed, task.failed]
            Consumer: external integrations

    neuroweave.work (direct)
    └── work.available [routing: available]
            Consumer: Weavers (подсказка poll-циклу)
            DLQ: neuroweave.dead-letters

    neuroweave.dlq (direct)
    └── neuroweave.dead-letters [routing: dead-letters]
            Manual processing
  `
}
