package worker

import (
	"context"

	"github.com/avetta/conveyor/internal/domain"
)

// Адаптеры polling fallback: переводят ListPending репозиториев
// в координаты задач для Worker.poll.

// ExecutionPoller — PENDING agent executions.
type ExecutionPoller struct {
	Store interface {
		ListPending(ctx context.Context, limit int) ([]domain.Execution, error)
	}
}

// PendingIDs возвращает координаты PENDING записей.
func (p ExecutionPoller) PendingIDs(ctx context.Context, limit int) ([]PendingTask, error) {
	execs, err := p.Store.ListPending(ctx, limit)
	if err != nil {
		return nil, err
	}
	tasks := make([]PendingTask, 0, len(execs))
	for i := range execs {
		tasks = append(tasks, PendingTask{ID: execs[i].ID, TenantID: execs[i].TenantID})
	}
	return tasks, nil
}

// WorkflowExecutionPoller — PENDING workflow executions.
type WorkflowExecutionPoller struct {
	Store interface {
		ListPending(ctx context.Context, limit int) ([]domain.WorkflowExecution, error)
	}
}

// PendingIDs возвращает координаты PENDING записей.
func (p WorkflowExecutionPoller) PendingIDs(ctx context.Context, limit int) ([]PendingTask, error) {
	execs, err := p.Store.ListPending(ctx, limit)
	if err != nil {
		return nil, err
	}
	tasks := make([]PendingTask, 0, len(execs))
	for i := range execs {
		tasks = append(tasks, PendingTask{ID: execs[i].ID, TenantID: execs[i].TenantID})
	}
	return tasks, nil
}

// DeliveryPoller — PENDING webhook deliveries.
type DeliveryPoller struct {
	Store interface {
		ListPending(ctx context.Context, limit int) ([]domain.Delivery, error)
	}
}

// PendingIDs возвращает координаты PENDING записей.
func (p DeliveryPoller) PendingIDs(ctx context.Context, limit int) ([]PendingTask, error) {
	deliveries, err := p.Store.ListPending(ctx, limit)
	if err != nil {
		return nil, err
	}
	tasks := make([]PendingTask, 0, len(deliveries))
	for i := range deliveries {
		tasks = append(tasks, PendingTask{ID: deliveries[i].ID, TenantID: deliveries[i].TenantID})
	}
	return tasks, nil
}

// NotificationPoller — PENDING notifications.
type NotificationPoller struct {
	Store interface {
		ListPending(ctx context.Context, limit int) ([]domain.Notification, error)
	}
}

// PendingIDs возвращает координаты PENDING записей.
func (p NotificationPoller) PendingIDs(ctx context.Context, limit int) ([]PendingTask, error) {
	notifications, err := p.Store.ListPending(ctx, limit)
	if err != nil {
		return nil, err
	}
	tasks := make([]PendingTask, 0, len(notifications))
	for i := range notifications {
		tasks = append(tasks, PendingTask{ID: notifications[i].ID, TenantID: notifications[i].TenantID})
	}
	return tasks, nil
}
