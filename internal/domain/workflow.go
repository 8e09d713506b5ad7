package domain

import (
	"time"

	"github.com/google/uuid"
)

// Workflow — определение workflow: упорядоченный список узлов.
//
// Edges присутствуют в определении, но не влияют на порядок обхода —
// step machine идёт строго по списку Nodes.
type Workflow struct {
	// ID — уникальный идентификатор workflow.
	ID uuid.UUID `json:"id"`

	// TenantID — владеющий tenant.
	TenantID uuid.UUID `json:"tenant_id"`

	// Name — имя workflow для удобства.
	Name string `json:"name"`

	// Nodes — упорядоченный список узлов. Обход строго последовательный.
	Nodes []Node `json:"nodes"`

	// Edges — связи между узлами (хранятся, но обход по ним не идёт).
	Edges []Edge `json:"edges,omitempty"`

	// IsActive — можно ли запускать workflow.
	IsActive bool `json:"is_active"`

	// CreatedAt — время создания.
	CreatedAt time.Time `json:"created_at"`
}

// Node — узел workflow.
type Node struct {
	// ID — идентификатор узла внутри workflow.
	ID string `json:"id"`

	// Type — тип узла: "agent", "condition", "transform", "api_call".
	// Неизвестный тип — фатальная ошибка всего workflow.
	Type string `json:"type"`

	// Config — конфигурация узла (зависит от типа).
	Config map[string]any `json:"config,omitempty"`
}

// Edge — связь между узлами в определении.
type Edge struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// WorkflowExecution — выполнение workflow (workflow execution task).
//
// Шаги выполняются строго последовательно в одном потоке.
// CurrentStep монотонно растёт; ExecutionLog — append-only,
// ровно одна запись на каждый начатый узел.
type WorkflowExecution struct {
	// ID — уникальный идентификатор.
	ID uuid.UUID `json:"id"`

	// TenantID — владеющий tenant.
	TenantID uuid.UUID `json:"tenant_id"`

	// WorkflowID — ссылка на определение workflow.
	WorkflowID uuid.UUID `json:"workflow_id"`

	// TriggeredByUserID — пользователь, запустивший workflow.
	TriggeredByUserID *uuid.UUID `json:"triggered_by_user_id,omitempty"`

	// Status — текущий статус.
	Status TaskStatus `json:"status"`

	// Attempt — номер попытки (начиная с 1, растёт при claim).
	Attempt int `json:"attempt"`

	// CurrentStep — индекс текущего шага (1-based после первого инкремента).
	// Персистится сразу после инкремента, чтобы прогресс был виден mid-run.
	CurrentStep int `json:"current_step"`

	// ExecutionLog — append-only журнал шагов.
	ExecutionLog []StepLogEntry `json:"execution_log,omitempty"`

	// InputData — входные данные workflow.
	InputData map[string]any `json:"input_data,omitempty"`

	// OutputData — накопленные данные после успешного прохода всех узлов.
	OutputData map[string]any `json:"output_data,omitempty"`

	// ErrorMessage — текст ошибки при терминальном провале.
	ErrorMessage string `json:"error_message,omitempty"`

	// StartedAt — время начала выполнения.
	StartedAt *time.Time `json:"started_at,omitempty"`

	// CompletedAt — время завершения.
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// CreatedAt — время создания записи.
	CreatedAt time.Time `json:"created_at"`
}

// StepLogEntry — запись журнала об одном шаге workflow.
type StepLogEntry struct {
	// Step — порядковый номер шага (равен CurrentStep в момент записи).
	Step int `json:"step"`

	// NodeID — идентификатор узла.
	NodeID string `json:"node_id"`

	// NodeType — тип узла.
	NodeType string `json:"node_type"`

	// Timestamp — время начала шага.
	Timestamp time.Time `json:"timestamp"`

	// Status — PROCESSING / COMPLETED / FAILED.
	Status StepStatus `json:"status"`

	// Output — выход узла (только при COMPLETED).
	Output map[string]any `json:"output,omitempty"`

	// Error — текст ошибки (только при FAILED).
	Error string `json:"error,omitempty"`
}

// Duration возвращает продолжительность выполнения.
func (w *WorkflowExecution) Duration() time.Duration {
	if w.StartedAt == nil || w.CompletedAt == nil {
		return 0
	}
	return w.CompletedAt.Sub(*w.StartedAt)
}

// IsFinished возвращает true, если workflow execution завершён.
func (w *WorkflowExecution) IsFinished() bool {
	return w.Status.IsTerminal()
}

// MarkCompleted переводит workflow execution в COMPLETED.
func (w *WorkflowExecution) MarkCompleted(output map[string]any) {
	now := time.Now()
	w.Status = TaskStatusCompleted
	w.CompletedAt = &now
	w.OutputData = output
}

// MarkFailed переводит workflow execution в FAILED с ошибкой.
func (w *WorkflowExecution) MarkFailed(errMsg string) {
	now := time.Now()
	w.Status = TaskStatusFailed
	w.CompletedAt = &now
	w.ErrorMessage = errMsg
}

// CanRetry проверяет, можно ли сделать ещё одну попытку.
func (w *WorkflowExecution) CanRetry(maxAttempts int) bool {
	return w.Attempt < maxAttempts
}
