// Package mq — транспорт задач и realtime-каналов поверх RabbitMQ.
//
// # Топология
//
//	conveyor.tasks (direct)
//	├── tasks.high          [routing: high]          — agent executions priority=high
//	├── tasks.default       [routing: default]       — agent и workflow executions
//	├── tasks.notifications [routing: notifications] — notification tasks
//	└── tasks.webhooks      [routing: webhooks]      — webhook deliveries
//	        Consumer: Worker. DLQ: dlq.tasks
//
//	conveyor.events (topic)
//	└── внешние подписчики по маске каналов:
//	    tenant.{tenant_id}, agent.{agent_id},
//	    workflow.{workflow_id}, user.{user_id}
//
//	conveyor.dlq (direct)
//	└── dlq.tasks [routing: tasks] — ручной разбор
//
// Сообщение task.enqueued несёт только координаты задачи (kind, id,
// tenant); само тело задачи — в store. Lane выбирается один раз
// при enqueue и не пересматривается при retry.
package mq
