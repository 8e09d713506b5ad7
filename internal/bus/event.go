package bus

import (
	"time"

	"github.com/google/uuid"

	"github.com/avetta/conveyor/internal/domain"
)

// Name — имя события. Совпадает с именем, на которое подписываются webhooks.
type Name string

// События пайплайна.
const (
	EventExecutionCompleted Name = "agent.executed"
	EventExecutionFailed    Name = "agent.failed"
	EventWorkflowCompleted  Name = "workflow.completed"
	EventWorkflowFailed     Name = "workflow.failed"
)

// Event — неизменяемый факт о задаче, достигшей терминального статуса.
//
// Несёт read-only snapshot записи задачи: listener'ы не мутируют его
// и обязаны быть независимыми и толерантными к повторной доставке
// (at-least-once, порядок между разными listener'ами не гарантирован).
type Event struct {
	// ID — уникальный идентификатор события.
	ID uuid.UUID `json:"id"`

	// Name — имя события.
	Name Name `json:"name"`

	// TenantID — tenant источника; по нему scoping каналов.
	TenantID uuid.UUID `json:"tenant_id"`

	// OccurredAt — время публикации.
	OccurredAt time.Time `json:"occurred_at"`

	// Execution — snapshot agent execution (для agent.* событий).
	Execution *domain.Execution `json:"execution,omitempty"`

	// WorkflowExecution — snapshot workflow execution (для workflow.* событий).
	WorkflowExecution *domain.WorkflowExecution `json:"workflow_execution,omitempty"`

	// Cause — причина провала (только для *.failed).
	Cause string `json:"cause,omitempty"`

	// Terminal — попытки исчерпаны, задача больше не будет повторена.
	// Для *.completed всегда true. По этому флагу listener'ы отличают
	// промежуточный провал (будет retry) от окончательного.
	Terminal bool `json:"terminal"`
}

// NewExecutionCompleted создаёт событие agent.executed.
func NewExecutionCompleted(exec *domain.Execution) *Event {
	snapshot := *exec
	return &Event{
		ID:         uuid.New(),
		Name:       EventExecutionCompleted,
		TenantID:   exec.TenantID,
		OccurredAt: time.Now(),
		Execution:  &snapshot,
		Terminal:   true,
	}
}

// NewExecutionFailed создаёт событие agent.failed.
func NewExecutionFailed(exec *domain.Execution, cause string, terminal bool) *Event {
	snapshot := *exec
	return &Event{
		ID:         uuid.New(),
		Name:       EventExecutionFailed,
		TenantID:   exec.TenantID,
		OccurredAt: time.Now(),
		Execution:  &snapshot,
		Cause:      cause,
		Terminal:   terminal,
	}
}

// NewWorkflowCompleted создаёт событие workflow.completed.
func NewWorkflowCompleted(exec *domain.WorkflowExecution) *Event {
	snapshot := *exec
	return &Event{
		ID:                uuid.New(),
		Name:              EventWorkflowCompleted,
		TenantID:          exec.TenantID,
		OccurredAt:        time.Now(),
		WorkflowExecution: &snapshot,
		Terminal:          true,
	}
}

// NewWorkflowFailed создаёт событие workflow.failed.
func NewWorkflowFailed(exec *domain.WorkflowExecution, cause string, terminal bool) *Event {
	snapshot := *exec
	return &Event{
		ID:                uuid.New(),
		Name:              EventWorkflowFailed,
		TenantID:          exec.TenantID,
		OccurredAt:        time.Now(),
		WorkflowExecution: &snapshot,
		Cause:             cause,
		Terminal:          terminal,
	}
}
