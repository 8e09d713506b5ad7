// Package router — постановка задач в очередь.
//
// Enqueue синхронный: запись задачи персистится в store (PENDING),
// затем её координаты публикуются в lane. Выбор lane — статическое
// решение, принимаемое один раз здесь и не пересматриваемое при retry.
package router

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/avetta/conveyor/internal/domain"
	"github.com/avetta/conveyor/internal/mq"
)

// ExecutionCreator — создание записей agent executions.
type ExecutionCreator interface {
	Create(ctx context.Context, exec *domain.Execution) error
}

// WorkflowExecutionCreator — создание записей workflow executions.
type WorkflowExecutionCreator interface {
	Create(ctx context.Context, exec *domain.WorkflowExecution) error
}

// DeliveryCreator — создание записей webhook deliveries.
type DeliveryCreator interface {
	Create(ctx context.Context, d *domain.Delivery) error
}

// NotificationCreator — создание записей notifications.
type NotificationCreator interface {
	Create(ctx context.Context, n *domain.Notification) error
}

// AgentReader — чтение конфигураций агентов (для выбора lane).
type AgentReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Agent, error)
}

// TaskPublisher — публикация координат задачи в lane.
// Реализуется mq.Publisher; в тестах подменяется фейком.
type TaskPublisher interface {
	PublishTask(ctx context.Context, lane mq.Lane, payload mq.TaskEnqueuedPayload) error
}

// Router ставит задачи в очередь: персистит запись и публикует координаты.
type Router struct {
	executions         ExecutionCreator
	workflowExecutions WorkflowExecutionCreator
	deliveries         DeliveryCreator
	notifications      NotificationCreator
	agents             AgentReader
	publisher          TaskPublisher
	logger             *slog.Logger
}

// Config — зависимости Router.
type Config struct {
	Executions         ExecutionCreator
	WorkflowExecutions WorkflowExecutionCreator
	Deliveries         DeliveryCreator
	Notifications      NotificationCreator
	Agents             AgentReader
	Publisher          TaskPublisher
	Logger             *slog.Logger
}

// New создаёт Router.
func New(cfg Config) *Router {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		executions:         cfg.Executions,
		workflowExecutions: cfg.WorkflowExecutions,
		deliveries:         cfg.Deliveries,
		notifications:      cfg.Notifications,
		agents:             cfg.Agents,
		publisher:          cfg.Publisher,
		logger:             logger,
	}
}

// EnqueueExecution создаёт agent execution и ставит его в lane.
//
// Lane: high для агентов с priority=high, иначе default.
// Решение принимается здесь один раз; retry lane не меняет.
func (r *Router) EnqueueExecution(ctx context.Context, exec *domain.Execution) (uuid.UUID, error) {
	agent, err := r.agents.GetByID(ctx, exec.AgentID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("load agent for routing: %w", err)
	}

	lane := mq.LaneDefault
	if agent.Priority == domain.PriorityHigh {
		lane = mq.LaneHigh
	}

	r.prepareExecution(exec)
	if err := r.executions.Create(ctx, exec); err != nil {
		return uuid.Nil, fmt.Errorf("create execution: %w", err)
	}

	r.publish(ctx, lane, mq.TaskEnqueuedPayload{
		Kind:     domain.KindAgentExecution,
		TaskID:   exec.ID,
		TenantID: exec.TenantID,
	})

	return exec.ID, nil
}

// EnqueueWorkflow создаёт workflow execution и ставит его в lane default.
func (r *Router) EnqueueWorkflow(ctx context.Context, exec *domain.WorkflowExecution) (uuid.UUID, error) {
	if exec.ID == uuid.Nil {
		exec.ID = uuid.New()
	}
	exec.Status = domain.TaskStatusPending
	exec.Attempt = 0
	if exec.CreatedAt.IsZero() {
		exec.CreatedAt = time.Now()
	}

	if err := r.workflowExecutions.Create(ctx, exec); err != nil {
		return uuid.Nil, fmt.Errorf("create workflow execution: %w", err)
	}

	r.publish(ctx, mq.LaneDefault, mq.TaskEnqueuedPayload{
		Kind:     domain.KindWorkflowExecution,
		TaskID:   exec.ID,
		TenantID: exec.TenantID,
	})

	return exec.ID, nil
}

// EnqueueDelivery создаёт webhook delivery и ставит её в lane webhooks.
func (r *Router) EnqueueDelivery(ctx context.Context, d *domain.Delivery) (uuid.UUID, error) {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	d.Status = domain.TaskStatusPending
	d.Attempt = 0
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now()
	}

	if err := r.deliveries.Create(ctx, d); err != nil {
		return uuid.Nil, fmt.Errorf("create delivery: %w", err)
	}

	r.publish(ctx, mq.LaneWebhooks, mq.TaskEnqueuedPayload{
		Kind:     domain.KindWebhookDelivery,
		TaskID:   d.ID,
		TenantID: d.TenantID,
	})

	return d.ID, nil
}

// EnqueueNotification создаёт notification и ставит его в lane notifications.
func (r *Router) EnqueueNotification(ctx context.Context, n *domain.Notification) (uuid.UUID, error) {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	n.Status = domain.TaskStatusPending
	n.Attempt = 0
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}

	if err := r.notifications.Create(ctx, n); err != nil {
		return uuid.Nil, fmt.Errorf("create notification: %w", err)
	}

	r.publish(ctx, mq.LaneNotifications, mq.TaskEnqueuedPayload{
		Kind:     domain.KindNotification,
		TaskID:   n.ID,
		TenantID: n.TenantID,
	})

	return n.ID, nil
}

func (r *Router) prepareExecution(exec *domain.Execution) {
	if exec.ID == uuid.Nil {
		exec.ID = uuid.New()
	}
	exec.Status = domain.TaskStatusPending
	exec.Attempt = 0
	if exec.CreatedAt.IsZero() {
		exec.CreatedAt = time.Now()
	}
}

// publish публикует координаты задачи. Ошибка публикации не откатывает
// enqueue: запись уже в store, её подхватит polling fallback воркера.
func (r *Router) publish(ctx context.Context, lane mq.Lane, payload mq.TaskEnqueuedPayload) {
	if r.publisher == nil {
		return
	}
	if err := r.publisher.PublishTask(ctx, lane, payload); err != nil {
		r.logger.Warn("failed to publish task, polling will pick it up",
			"kind", payload.Kind,
			"task_id", payload.TaskID,
			"lane", lane,
			"error", err,
		)
	}
}
