package mq

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Exchange — тип для имени обменника.
type Exchange string

// Lane — именованная полоса очереди. Приоритет выражается только
// выбором lane при enqueue, внутри lane порядок FIFO.
type Lane string

// RoutingKey — тип для ключа маршрутизации.
type RoutingKey string

// Exchanges — имена обменников.
const (
	// ExchangeTasks — direct-обменник задач, по lane на очередь.
	ExchangeTasks Exchange = "conveyor.tasks"

	// ExchangeEvents — topic-обменник для realtime-каналов
	// (tenant.{id}, agent.{id}, workflow.{id}, user.{id}).
	ExchangeEvents Exchange = "conveyor.events"

	// ExchangeDLQ — обменник для неразборчивых сообщений.
	ExchangeDLQ Exchange = "conveyor.dlq"
)

// Lanes — полосы задач.
const (
	// LaneHigh — agent executions с priority=high.
	LaneHigh Lane = "high"

	// LaneDefault — agent и workflow executions без приоритета.
	LaneDefault Lane = "default"

	// LaneNotifications — notification tasks.
	LaneNotifications Lane = "notifications"

	// LaneWebhooks — webhook deliveries.
	LaneWebhooks Lane = "webhooks"
)

// AllLanes — все полосы в порядке объявления.
var AllLanes = []Lane{LaneHigh, LaneDefault, LaneNotifications, LaneWebhooks}

// Queue возвращает имя очереди для lane.
func (l Lane) Queue() string {
	return "tasks." + string(l)
}

// RoutingKey возвращает ключ маршрутизации для lane.
func (l Lane) RoutingKey() RoutingKey {
	return RoutingKey(l)
}

const dlqQueue = "dlq.tasks"
const dlqRoutingKey RoutingKey = "tasks"

// SetupTopology создаёт обменники, очереди и привязки.
func SetupTopology(ctx context.Context, conn *Connection) error {
	return conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		if err := declareExchanges(ch); err != nil {
			return err
		}
		if err := declareQueues(ch); err != nil {
			return err
		}
		return bindQueues(ch)
	})
}

// declareExchanges создаёт обменники.
func declareExchanges(ch *amqp.Channel) error {
	exchanges := []struct {
		name Exchange
		kind string
	}{
		{ExchangeTasks, "direct"},
		{ExchangeEvents, "topic"},
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

// declareQueues создаёт очереди: по одной на lane плюс DLQ.
func declareQueues(ch *amqp.Channel) error {
	dlqArgs := amqp.Table{
		"x-dead-letter-exchange":    string(ExchangeDLQ),
		"x-dead-letter-routing-key": string(dlqRoutingKey),
	}

	for _, lane := range AllLanes {
		_, err := ch.QueueDeclare(
			lane.Queue(), // name
			true,         // durable
			false,        // delete when unused
			false,        // exclusive
			false,        // no-wait
			dlqArgs,      // arguments
		)
		if err != nil {
			return fmt.Errorf("declare queue %s: %w", lane.Queue(), err)
		}
	}

	_, err := ch.QueueDeclare(dlqQueue, true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("declare queue %s: %w", dlqQueue, err)
	}

	return nil
}

// bindQueues привязывает очереди lanes к обменнику задач.
func bindQueues(ch *amqp.Channel) error {
	for _, lane := range AllLanes {
		err := ch.QueueBind(
			lane.Queue(),              // queue name
			string(lane.RoutingKey()), // routing key
			string(ExchangeTasks),     // exchange
			false,                     // no-wait
			nil,                       // arguments
		)
		if err != nil {
			return fmt.Errorf("bind queue %s: %w", lane.Queue(), err)
		}
	}

	err := ch.QueueBind(dlqQueue, string(dlqRoutingKey), string(ExchangeDLQ), false, nil)
	if err != nil {
		return fmt.Errorf("bind queue %s: %w", dlqQueue, err)
	}

	return nil
}
