package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/avetta/conveyor/internal/bus"
	"github.com/avetta/conveyor/internal/domain"
	"github.com/avetta/conveyor/internal/inference"
	"github.com/avetta/conveyor/internal/repo"
)

// ExecutionStore — операции над записями agent executions.
type ExecutionStore interface {
	Claim(ctx context.Context, id uuid.UUID) (*domain.Execution, error)
	Update(ctx context.Context, exec *domain.Execution) error
	Requeue(ctx context.Context, id uuid.UUID) error
}

// AgentStore — чтение конфигураций агентов.
type AgentStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Agent, error)
}

// ActivityStore — запись аудита. Best-effort: ошибки не проваливают задачу.
type ActivityStore interface {
	Insert(ctx context.Context, rec *domain.ActivityRecord) error
}

// AgentExecutor выполняет agent execution tasks: вызывает inference
// backend с конфигурацией агента и входными данными задачи.
type AgentExecutor struct {
	executions ExecutionStore
	agents     AgentStore
	activity   ActivityStore
	backend    inference.Backend
	events     EventPublisher
	logger     *slog.Logger
}

// NewAgentExecutor создаёт AgentExecutor.
func NewAgentExecutor(
	executions ExecutionStore,
	agents AgentStore,
	activity ActivityStore,
	backend inference.Backend,
	events EventPublisher,
	logger *slog.Logger,
) *AgentExecutor {
	if logger == nil {
		logger = slog.Default()
	}
	return &AgentExecutor{
		executions: executions,
		agents:     agents,
		activity:   activity,
		backend:    backend,
		events:     events,
		logger:     logger,
	}
}

// Kind возвращает вид задачи.
func (e *AgentExecutor) Kind() domain.TaskKind {
	return domain.KindAgentExecution
}

// Claim атомарно берёт execution в работу.
func (e *AgentExecutor) Claim(ctx context.Context, id uuid.UUID) (*domain.Execution, error) {
	return e.executions.Claim(ctx, id)
}

// Attempt возвращает номер попытки.
func (e *AgentExecutor) Attempt(exec *domain.Execution) int {
	return exec.Attempt
}

// Execute выполняет одну попытку: загружает агента, вызывает backend,
// доводит запись до терминального статуса и публикует событие.
func (e *AgentExecutor) Execute(ctx context.Context, exec *domain.Execution) Outcome {
	agent, err := e.agents.GetByID(ctx, exec.AgentID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return e.fail(ctx, exec, Fatal(fmt.Errorf("%w: %s", ErrAgentNotFound, exec.AgentID)))
		}
		return e.fail(ctx, exec, Retryable(fmt.Errorf("load agent: %w", err)))
	}
	if !agent.IsActive {
		return e.fail(ctx, exec, Fatal(fmt.Errorf("%w: %s", ErrAgentInactive, agent.ID)))
	}

	resp, err := e.backend.Generate(ctx, inference.Request{
		Model:        agent.Model,
		SystemPrompt: agent.SystemPrompt,
		Input:        exec.InputData,
		MaxTokens:    agent.MaxTokens,
		Temperature:  agent.Temperature,
	})
	if err != nil {
		// Таймаут попытки — такой же transient fault, как ошибка backend'а
		return e.fail(ctx, exec, Retryable(fmt.Errorf("inference: %w", err)))
	}

	exec.MarkCompleted(resp.Output, resp.TokensUsed, resp.Cost)
	if err := e.executions.Update(ctx, exec); err != nil {
		return Retryable(fmt.Errorf("persist completed execution: %w", err))
	}

	e.publish(ctx, bus.NewExecutionCompleted(exec))
	e.recordActivity(ctx, exec, "agent.executed")

	return Completed()
}

// Requeue возвращает execution в PENDING для следующей попытки.
func (e *AgentExecutor) Requeue(ctx context.Context, id uuid.UUID) error {
	return e.executions.Requeue(ctx, id)
}

// Exhausted перезаписывает error_message терминального провала.
// Событие не публикуется: последний agent.failed уже был терминальным.
func (e *AgentExecutor) Exhausted(ctx context.Context, exec *domain.Execution, cause error) {
	exec.ErrorMessage = fmt.Sprintf("%s: %v", maxAttemptsMessage, cause)
	if err := e.executions.Update(ctx, exec); err != nil {
		e.logger.Error("failed to persist exhausted execution",
			"execution_id", exec.ID,
			"error", err,
		)
	}
	e.recordActivity(ctx, exec, "agent.failed")
}

// fail доводит запись до FAILED, публикует agent.failed и возвращает
// исходный Outcome. Персистенция идёт на context.WithoutCancel:
// попытка могла провалиться именно по таймауту ctx.
func (e *AgentExecutor) fail(ctx context.Context, exec *domain.Execution, out Outcome) Outcome {
	ctx = context.WithoutCancel(ctx)

	exec.MarkFailed(out.Err.Error())
	if err := e.executions.Update(ctx, exec); err != nil {
		e.logger.Error("failed to persist failed execution",
			"execution_id", exec.ID,
			"error", err,
		)
	}

	terminal := out.Disposition == DispositionFatal ||
		domain.PolicyFor(e.Kind()).GiveUp(exec.Attempt)
	e.publish(ctx, bus.NewExecutionFailed(exec, out.Err.Error(), terminal))

	return out
}

// publish публикует событие. Ошибка публикации не проваливает задачу:
// запись уже durable в store.
func (e *AgentExecutor) publish(ctx context.Context, ev *bus.Event) {
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

// recordActivity пишет запись аудита best-effort.
func (e *AgentExecutor) recordActivity(ctx context.Context, exec *domain.Execution, action string) {
	if e.activity == nil {
		return
	}

	rec := &domain.ActivityRecord{
		ID:          uuid.New(),
		TenantID:    exec.TenantID,
		UserID:      exec.TriggeredByUserID,
		Action:      action,
		SubjectKind: domain.KindAgentExecution,
		SubjectID:   exec.ID,
		Detail: map[string]any{
			"agent_id":          exec.AgentID.String(),
			"attempt":           exec.Attempt,
			"execution_time_ms": exec.ExecutionTimeMS,
		},
		CreatedAt: time.Now(),
	}

	if err := e.activity.Insert(context.WithoutCancel(ctx), rec); err != nil {
		e.logger.Warn("failed to record activity",
			"execution_id", exec.ID,
			"error", err,
		)
	}
}
