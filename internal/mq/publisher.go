package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/avetta/conveyor/internal/domain"
)

// MessageType — тип сообщения в очереди.
type MessageType string

// Типы сообщений.
const (
	// MessageTypeTaskEnqueued — задача поставлена в lane, потребитель Worker.
	MessageTypeTaskEnqueued MessageType = "task.enqueued"
)

// Message — конверт сообщения.
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

// TaskEnqueuedPayload — payload для сообщения о поставленной задаче.
// Само тело задачи лежит в store; сообщение несёт только координаты.
type TaskEnqueuedPayload struct {
	Kind     domain.TaskKind `json:"kind"`
	TaskID   uuid.UUID       `json:"task_id"`
	TenantID uuid.UUID       `json:"tenant_id"`
}

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

// PublishTask публикует координаты задачи в указанную lane.
// Потребитель: Worker.
func (p *Publisher) PublishTask(ctx context.Context, lane Lane, payload TaskEnqueuedPayload) error {
	msg := &Message{
		ID:        uuid.New().String(),
		Type:      MessageTypeTaskEnqueued,
		Payload:   payload,
		Timestamp: time.Now(),
	}

	return p.publish(ctx, ExchangeTasks, lane.RoutingKey(), msg)
}

// PublishChannel публикует произвольный payload в realtime-канал
// (topic-обменник событий). channel — например "tenant.{id}" или
// "agent.{id}"; внешние подписчики слушают по маске.
func (p *Publisher) PublishChannel(ctx context.Context, channel string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal channel payload: %w", err)
	}

	return p.conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		err := ch.PublishWithContext(
			ctx,
			string(ExchangeEvents), // exchange
			channel,                // routing key = имя канала
			false,
			false,
			amqp.Publishing{
				ContentType: "application/json",
				MessageId:   uuid.New().String(),
				Timestamp:   time.Now(),
				Body:        body,
			},
		)
		if err != nil {
			return fmt.Errorf("publish to channel %s: %w", channel, err)
		}

		p.logger.Debug("published to channel", "channel", channel)
		return nil
	})
}

// publish публикует конверт в указанный exchange с routing key.
func (p *Publisher) publish(ctx context.Context, exchange Exchange, routingKey RoutingKey, msg *Message) error {
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
