package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// MessageType — тип сообщения в очереди.
type MessageType string

// Типы сообщений.
const (
	MessageTypeTaskSubmitted MessageType = "task.submitted"
	MessageTypeTaskCompleted MessageType = "task.completed"
	MessageTypeTaskFailed    MessageType = "task.failed"
	MessageTypeWorkAvailable MessageType = "work.available"
)

// Publisher публикует сообщения в RabbitMQ.
type Publisher struct {
	conn   *Connection
	logger *slog.Logger
}

// NewPublisher создаёт новый Publisher.
func NewPublisher(conn *Connection, logger *slog.Logger) *Publisher {
	return &Publisher{
		conn:   conn,
		logger: logger,
	}
}

// Message — сообщение для публикации.
type Message struct {
	// ID — уникальный идентификатор сообщения.
	ID string `json:"id"`

	// Type — тип сообщения.
	Type MessageType `json:"type"`

	// Payload — полезная нагрузка.
	Payload any `json:"payload"`

	// Timestamp — время создания.
	Timestamp time.Time `json:"timestamp"`
}

// TaskSubmittedPayload — payload события о принятой задаче.
type TaskSubmittedPayload struct {
	TaskID uuid.UUID `json:"task_id"`
	Type   string    `json:"type"`
}

// TaskCompletedPayload — payload события об успешно завершённой задаче.
type TaskCompletedPayload struct {
	TaskID uuid.UUID `json:"task_id"`
	Type   string    `json:"type"`
}

// TaskFailedPayload — payload события о провалившейся задаче.
type TaskFailedPayload struct {
	TaskID uuid.UUID `json:"task_id"`
	Reason string    `json:"reason"`
}

// WorkAvailablePayload — подсказка воркерам о появившейся работе.
type WorkAvailablePayload struct {
	TaskID uuid.UUID `json:"task_id"`
	Units  int       `json:"units"`
}

// Publish публикует сообщение в указанный exchange с routing key.
func (p *Publisher) Publish(ctx context.Context, exchange Exchange, routingKey RoutingKey, msg *Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	return p.conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		err := ch.PublishWithContext(
			ctx,
			string(exchange),   // exchange
			string(routingKey), // routing key
			false,
			false,
			amqp.Publishing{
				ContentType:  "application/json",
				DeliveryMode: amqp.Persistent, // сообщение переживёт рестарт RabbitMQ
				MessageId:    msg.ID,
				Timestamp:    msg.Timestamp,
				Body:         body,
			},
		)
		if err != nil {
			return fmt.Errorf("publish to %s/%s: %w", exchange, routingKey, err)
		}

		p.logger.Debug("published message",
			"exchange", exchange,
			"routing_key", routingKey,
			"message_id", msg.ID,
			"type", msg.Type,
		)

		return nil
	})
}

// PublishTaskSubmitted публикует событие о принятой задаче.
// Потребитель: внешние интеграции.
func (p *Publisher) PublishTaskSubmitted(ctx context.Context, taskID uuid.UUID, taskType string) error {
	msg := &Message{
		ID:        uuid.New().String(),
		Type:      MessageTypeTaskSubmitted,
		Payload:   TaskSubmittedPayload{TaskID: taskID, Type: taskType},
		Timestamp: time.Now(),
	}

	return p.Publish(ctx, ExchangeTasks, RoutingKeyTaskSubmitted, msg)
}

// PublishTaskCompleted публикует событие об успешно завершённой задаче.
// Потребитель: внешние интеграции.
func (p *Publisher) PublishTaskCompleted(ctx context.Context, taskID uuid.UUID, taskType string) error {
	msg := &Message{
		ID:        uuid.New().String(),
		Type:      MessageTypeTaskCompleted,
		Payload:   TaskCompletedPayload{TaskID: taskID, Type: taskType},
		Timestamp: time.Now(),
	}

	return p.Publish(ctx, ExchangeTasks, RoutingKeyTaskCompleted, msg)
}

// PublishTaskFailed публикует событие о провалившейся задаче.
// Потребитель: внешние интеграции.
func (p *Publisher) PublishTaskFailed(ctx context.Context, taskID uuid.UUID, reason string) error {
	msg := &Message{
		ID:        uuid.New().String(),
		Type:      MessageTypeTaskFailed,
		Payload:   TaskFailedPayload{TaskID: taskID, Reason: reason},
		Timestamp: time.Now(),
	}

	return p.Publish(ctx, ExchangeTasks, RoutingKeyTaskFailed, msg)
}

// PublishWorkAvailable публикует подсказку о появившейся работе.
// Потребитель: Weaver (будит poll-цикл, сама выдача работы — через Poll).
func (p *Publisher) PublishWorkAvailable(ctx context.Context, taskID uuid.UUID, units int) error {
	msg := &Message{
		ID:        uuid.New().String(),
		Type:      MessageTypeWorkAvailable,
		Payload:   WorkAvailablePayload{TaskID: taskID, Units: units},
		Timestamp: time.Now(),
	}

	return p.Publish(ctx, ExchangeWork, RoutingKeyWorkAvailable, msg)
}

// PublishJSON публикует произвольный JSON payload.
func (p *Publisher) PublishJSON(ctx context.Context, exchange Exchange, routingKey RoutingKey, msgType MessageType, payload any) error {
	msg := &Message{
		ID:        uuid.New().String(),
		Type:      msgType,
		Payload:   payload,
		Timestamp: time.Now(),
	}

	return p.Publish(ctx, exchange, routingKey, msg)
}
