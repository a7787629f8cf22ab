package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Handler обрабатывает одно доставленное сообщение.
// Ненулевая ошибка приводит к nack с requeue (сообщение попробуют доставить снова).
type Handler func(ctx context.Context, msg *Delivery) error

// Delivery — сообщение из очереди вместе с сырой AMQP-доставкой.
type Delivery struct {
	// Message — разобранный конверт сообщения.
	Message Message

	// Raw — исходная AMQP-доставка, нужна для ack/nack.
	Raw amqp.Delivery
}

// Ack подтверждает обработку.
func (d *Delivery) Ack() error {
	return d.Raw.Ack(false)
}

// Nack отклоняет сообщение. При requeue=false оно уходит в dead-letter очередь.
func (d *Delivery) Nack(requeue bool) error {
	return d.Raw.Nack(false, requeue)
}

// Consumer читает сообщения из очереди и передаёт их обработчику.
// Основной потребитель в NeuroWeave — weaver, слушающий подсказки work.available.
type Consumer struct {
	conn     *Connection
	logger   *slog.Logger
	queue    string
	handler  Handler
	prefetch int

	cancelFunc context.CancelFunc
}

// ConsumerConfig — параметры Consumer.
type ConsumerConfig struct {
	// Queue — очередь, из которой читать.
	Queue string

	// Handler вызывается на каждое сообщение.
	Handler Handler

	// Prefetch ограничивает число неподтверждённых сообщений (по умолчанию 1).
	Prefetch int
}

// NewConsumer создаёт Consumer. Чтение начинается после Start.
func NewConsumer(conn *Connection, logger *slog.Logger, cfg ConsumerConfig) *Consumer {
	prefetch := cfg.Prefetch
	if prefetch <= 0 {
		prefetch = 1
	}

	return &Consumer{
		conn:     conn,
		logger:   logger,
		queue:    cfg.Queue,
		handler:  cfg.Handler,
		prefetch: prefetch,
	}
}

// Start блокирует и читает сообщения до отмены контекста или Stop.
// Падение канала AMQP не фатально: ждём переподключения Connection и продолжаем.
func (c *Consumer) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	c.cancelFunc = cancel

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		deliveries, err := c.openStream()
		if err != nil {
			c.logger.Error("failed to open consume stream", "queue", c.queue, "error", err)
			if err := c.awaitReconnect(ctx); err != nil {
				return err
			}
			continue
		}

		c.logger.Info("consumer started", "queue", c.queue)

		if err := c.drain(ctx, deliveries); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Warn("deliveries channel closed, reconnecting", "queue", c.queue)
			if err := c.awaitReconnect(ctx); err != nil {
				return err
			}
		}
	}
}

// Stop прерывает цикл Start.
func (c *Consumer) Stop() {
	if c.cancelFunc != nil {
		c.cancelFunc()
	}
}

// openStream настраивает QoS и подписывается на очередь.
func (c *Consumer) openStream() (<-chan amqp.Delivery, error) {
	ch := c.conn.Channel()
	if ch == nil {
		return nil, fmt.Errorf("no channel available")
	}

	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		return nil, fmt.Errorf("set qos: %w", err)
	}

	// auto-ack выключен: подтверждаем только после успешного handler
	deliveries, err := ch.Consume(
		c.queue,
		"",    // consumer tag назначит сервер
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,   // args
	)
	if err != nil {
		return nil, fmt.Errorf("consume %s: %w", c.queue, err)
	}

	return deliveries, nil
}

// awaitReconnect ждёт восстановления соединения или отмены контекста.
func (c *Consumer) awaitReconnect(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.conn.ReconnectNotify():
		c.logger.Info("reconnected, resuming consumer", "queue", c.queue)
		return nil
	}
}

// drain читает deliveries до закрытия канала или отмены контекста.
func (c *Consumer) drain(ctx context.Context, deliveries <-chan amqp.Delivery) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case raw, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("deliveries channel closed")
			}
			c.dispatch(ctx, raw)
		}
	}
}

// dispatch разбирает конверт и вызывает обработчик.
func (c *Consumer) dispatch(ctx context.Context, raw amqp.Delivery) {
	var msg Message
	if err := json.Unmarshal(raw.Body, &msg); err != nil {
		c.logger.Error("failed to unmarshal message",
			"queue", c.queue,
			"error", err,
			"body", string(raw.Body),
		)
		// Битый конверт нет смысла доставлять повторно — сразу в DLQ
		raw.Nack(false, false)
		return
	}

	c.logger.Debug("received message",
		"queue", c.queue,
		"message_id", msg.ID,
		"type", msg.Type,
	)

	if err := c.handler(ctx, &Delivery{Message: msg, Raw: raw}); err != nil {
		c.logger.Error("handler failed",
			"queue", c.queue,
			"message_id", msg.ID,
			"type", msg.Type,
			"error", err,
		)
		// Вернём в очередь; лимит повторов обеспечивает конфигурация очереди
		raw.Nack(false, true)
		return
	}

	raw.Ack(false)
}

// ParsePayload приводит payload конверта к конкретному типу T.
func ParsePayload[T any](msg *Message) (T, error) {
	var result T

	// Payload после json.Unmarshal — map[string]any; прогоняем через JSON ещё раз
	payloadBytes, err := json.Marshal(msg.Payload)
	if err != nil {
		return result, fmt.Errorf("marshal payload: %w", err)
	}

	if err := json.Unmarshal(payloadBytes, &result); err != nil {
		return result, fmt.Errorf("unmarshal payload: %w", err)
	}

	return result, nil
}
