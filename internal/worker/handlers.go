package worker

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/avetta/conveyor/internal/domain"
	"github.com/avetta/conveyor/internal/engine"
	"github.com/avetta/conveyor/internal/executor"
	"github.com/avetta/conveyor/internal/mq"
)

// ErrUnknownTaskKind — нет executor'а для данного вида задачи.
var ErrUnknownTaskKind = errors.New("unknown task kind")

// handleTaskEnqueued обрабатывает сообщение task.enqueued из lane.
func (w *Worker) handleTaskEnqueued(ctx context.Context, delivery *mq.Delivery) error {
	payload, err := mq.ParsePayload[mq.TaskEnqueuedPayload](&delivery.Message)
	if err != nil {
		w.logger.Error("failed to parse task.enqueued payload", "error", err)
		return err
	}

	w.logger.Debug("received task.enqueued",
		"kind", payload.Kind,
		"task_id", payload.TaskID,
		"tenant_id", payload.TenantID,
	)

	return w.process(ctx, payload.Kind, payload.TaskID)
}

// process прогоняет задачу через retry-цикл её executor'а.
//
// Исчерпание retry и конфигурационные ошибки — завершённая обработка
// (запись доведена до FAILED, событие опубликовано), сообщение ack.
// Ошибку наружу отдают только инфраструктурные сбои: после nack
// сообщение вернётся в очередь.
func (w *Worker) process(ctx context.Context, kind domain.TaskKind, id uuid.UUID) error {
	var err error

	switch kind {
	case domain.KindAgentExecution:
		err = executor.Run(ctx, w.agents, id, w.logger)
	case domain.KindWorkflowExecution:
		err = executor.Run(ctx, w.workflows, id, w.logger)
	case domain.KindWebhookDelivery:
		err = executor.Run(ctx, w.webhooks, id, w.logger)
	case domain.KindNotification:
		err = executor.Run(ctx, w.notifications, id, w.logger)
	default:
		return fmt.Errorf("%w: %s", ErrUnknownTaskKind, kind)
	}

	if err == nil {
		return nil
	}
	if errors.Is(err, executor.ErrRetryExhausted) ||
		errors.Is(err, executor.ErrAgentNotFound) ||
		errors.Is(err, executor.ErrAgentInactive) ||
		errors.Is(err, executor.ErrWorkflowNotFound) ||
		errors.Is(err, executor.ErrWorkflowInactive) ||
		errors.Is(err, executor.ErrWebhookNotFound) ||
		errors.Is(err, executor.ErrUnknownChannel) ||
		errors.Is(err, engine.ErrUnknownNodeType) ||
		errors.Is(err, engine.ErrEmptyWorkflow) {
		return nil
	}

	return err
}
