package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/avetta/conveyor/internal/bus"
	"github.com/avetta/conveyor/internal/domain"
	"github.com/avetta/conveyor/internal/engine"
	"github.com/avetta/conveyor/internal/repo"
)

// WorkflowExecutionStore — операции над записями workflow executions.
type WorkflowExecutionStore interface {
	Claim(ctx context.Context, id uuid.UUID) (*domain.WorkflowExecution, error)
	Update(ctx context.Context, exec *domain.WorkflowExecution) error
	Requeue(ctx context.Context, id uuid.UUID) error
}

// WorkflowStore — чтение определений workflow.
type WorkflowStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Workflow, error)
}

// WorkflowExecutor выполняет workflow execution tasks: прогоняет
// step machine по определению workflow.
//
// Retry перезапускает workflow с начала: Requeue сбрасывает
// current_step и execution_log. Per-node retry нет.
type WorkflowExecutor struct {
	executions WorkflowExecutionStore
	workflows  WorkflowStore
	machine    *engine.Machine
	events     EventPublisher
	logger     *slog.Logger
}

// NewWorkflowExecutor создаёт WorkflowExecutor.
func NewWorkflowExecutor(
	executions WorkflowExecutionStore,
	workflows WorkflowStore,
	machine *engine.Machine,
	events EventPublisher,
	logger *slog.Logger,
) *WorkflowExecutor {
	if logger == nil {
		logger = slog.Default()
	}
	return &WorkflowExecutor{
		executions: executions,
		workflows:  workflows,
		machine:    machine,
		events:     events,
		logger:     logger,
	}
}

// Kind возвращает вид задачи.
func (e *WorkflowExecutor) Kind() domain.TaskKind {
	return domain.KindWorkflowExecution
}

// Claim атомарно берёт workflow execution в работу.
func (e *WorkflowExecutor) Claim(ctx context.Context, id uuid.UUID) (*domain.WorkflowExecution, error) {
	return e.executions.Claim(ctx, id)
}

// Attempt возвращает номер попытки.
func (e *WorkflowExecutor) Attempt(exec *domain.WorkflowExecution) int {
	return exec.Attempt
}

// Execute выполняет одну попытку: загружает определение workflow
// и прогоняет step machine от начала до конца или до первого падения.
func (e *WorkflowExecutor) Execute(ctx context.Context, exec *domain.WorkflowExecution) Outcome {
	wf, err := e.workflows.GetByID(ctx, exec.WorkflowID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return e.fail(ctx, exec, Fatal(fmt.Errorf("%w: %s", ErrWorkflowNotFound, exec.WorkflowID)))
		}
		return e.fail(ctx, exec, Retryable(fmt.Errorf("load workflow: %w", err)))
	}
	if !wf.IsActive {
		return e.fail(ctx, exec, Fatal(fmt.Errorf("%w: %s", ErrWorkflowInactive, wf.ID)))
	}

	output, err := e.machine.Run(ctx, exec, wf)
	if err != nil {
		// Неизвестный тип узла и пустой workflow — конфигурационные
		// ошибки, retry бесполезен. Падение узла — transient fault.
		if errors.Is(err, engine.ErrUnknownNodeType) || errors.Is(err, engine.ErrEmptyWorkflow) {
			return e.fail(ctx, exec, Fatal(err))
		}
		return e.fail(ctx, exec, Retryable(err))
	}

	exec.MarkCompleted(output)
	if err := e.executions.Update(ctx, exec); err != nil {
		return Retryable(fmt.Errorf("persist completed workflow execution: %w", err))
	}

	e.publish(ctx, bus.NewWorkflowCompleted(exec))

	return Completed()
}

// Requeue возвращает workflow execution в PENDING, сбрасывая прогресс.
func (e *WorkflowExecutor) Requeue(ctx context.Context, id uuid.UUID) error {
	return e.executions.Requeue(ctx, id)
}

// Exhausted перезаписывает error_message терминального провала.
func (e *WorkflowExecutor) Exhausted(ctx context.Context, exec *domain.WorkflowExecution, cause error) {
	exec.ErrorMessage = fmt.Sprintf("%s: %v", maxAttemptsMessage, cause)
	if err := e.executions.Update(ctx, exec); err != nil {
		e.logger.Error("failed to persist exhausted workflow execution",
			"workflow_execution_id", exec.ID,
			"error", err,
		)
	}
}

// fail доводит запись до FAILED, публикует workflow.failed
// и возвращает исходный Outcome.
func (e *WorkflowExecutor) fail(ctx context.Context, exec *domain.WorkflowExecution, out Outcome) Outcome {
	ctx = context.WithoutCancel(ctx)

	exec.MarkFailed(out.Err.Error())
	if err := e.executions.Update(ctx, exec); err != nil {
		e.logger.Error("failed to persist failed workflow execution",
			"workflow_execution_id", exec.ID,
			"error", err,
		)
	}

	terminal := out.Disposition == DispositionFatal ||
		domain.PolicyFor(e.Kind()).GiveUp(exec.Attempt)
	e.publish(ctx, bus.NewWorkflowFailed(exec, out.Err.Error(), terminal))

	return out
}

func (e *WorkflowExecutor) publish(ctx context.Context, ev *bus.Event) {
	if e.events == nil {
		return
	}
	if err := e.events.Publish(context.WithoutCancel(ctx), ev); err != nil {
		e.logger.Warn("failed to publish event",
			"event", ev.Name,
			"event_id", ev.ID,
			"error", err,
		)
	}
}
