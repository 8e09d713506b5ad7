package domain

import (
	"time"

	"github.com/google/uuid"
)

// Execution — выполнение агента (agent execution task).
//
// Execution создаётся синхронно при enqueue (статус PENDING),
// мутируется исключительно своим executor'ом и никогда не удаляется
// этим ядром (retention — забота внешних слоёв).
type Execution struct {
	// ID — уникальный идентификатор, назначается при создании, неизменяем.
	ID uuid.UUID `json:"id"`

	// TenantID — владеющий tenant. Каждая задача принадлежит ровно
	// одному tenant; используется для изоляции и scoping каналов событий.
	TenantID uuid.UUID `json:"tenant_id"`

	// AgentID — агент, который выполняется.
	AgentID uuid.UUID `json:"agent_id"`

	// JobFlowID — ссылка на job flow, если execution запущен из него.
	JobFlowID *uuid.UUID `json:"job_flow_id,omitempty"`

	// WorkflowExecutionID — ссылка на workflow execution,
	// если execution порождён узлом типа "agent".
	WorkflowExecutionID *uuid.UUID `json:"workflow_execution_id,omitempty"`

	// TriggeredByUserID — пользователь, запустивший execution.
	TriggeredByUserID *uuid.UUID `json:"triggered_by_user_id,omitempty"`

	// Status — текущий статус.
	Status TaskStatus `json:"status"`

	// Attempt — номер попытки (начиная с 1, растёт при claim).
	Attempt int `json:"attempt"`

	// InputData — входные данные. Принадлежат задаче пока она RUNNING,
	// read-only для listener'ов после завершения.
	InputData map[string]any `json:"input_data,omitempty"`

	// OutputData — результат выполнения.
	OutputData map[string]any `json:"output_data,omitempty"`

	// ErrorMessage — текст ошибки, только при терминальном провале.
	ErrorMessage string `json:"error_message,omitempty"`

	// TokensUsed — количество токенов, потраченных backend'ом.
	TokensUsed int `json:"tokens_used"`

	// Cost — стоимость выполнения.
	Cost float64 `json:"cost"`

	// ExecutionTimeMS — wall-clock длительность в миллисекундах,
	// считается executor'ом, не backend'ом.
	ExecutionTimeMS int64 `json:"execution_time_ms"`

	// StartedAt — время начала выполнения.
	StartedAt *time.Time `json:"started_at,omitempty"`

	// CompletedAt — время завершения (успешного или нет).
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// CreatedAt — время создания записи.
	CreatedAt time.Time `json:"created_at"`
}

// Duration возвращает продолжительность выполнения.
func (e *Execution) Duration() time.Duration {
	if e.StartedAt == nil || e.CompletedAt == nil {
		return 0
	}
	return e.CompletedAt.Sub(*e.StartedAt)
}

// IsFinished возвращает true, если execution завершён.
func (e *Execution) IsFinished() bool {
	return e.Status.IsTerminal()
}

// MarkCompleted переводит execution в COMPLETED с результатами.
func (e *Execution) MarkCompleted(output map[string]any, tokens int, cost float64) {
	now := time.Now()
	e.Status = TaskStatusCompleted
	e.CompletedAt = &now
	e.OutputData = output
	e.TokensUsed = tokens
	e.Cost = cost
	if e.StartedAt != nil {
		e.ExecutionTimeMS = now.Sub(*e.StartedAt).Milliseconds()
	}
}

// MarkFailed переводит execution в FAILED с ошибкой.
func (e *Execution) MarkFailed(errMsg string) {
	now := time.Now()
	e.Status = TaskStatusFailed
	e.CompletedAt = &now
	e.ErrorMessage = errMsg
	if e.StartedAt != nil {
		e.ExecutionTimeMS = now.Sub(*e.StartedAt).Milliseconds()
	}
}

// CanRetry проверяет, можно ли сделать ещё одну попытку.
func (e *Execution) CanRetry(maxAttempts int) bool {
	return e.Attempt < maxAttempts
}
