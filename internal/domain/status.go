package domain

// TaskStatus — статус выполнения задачи (любого вида).
//
// Жизненный цикл:
//
//	PENDING → RUNNING → COMPLETED
//	                  ↘ FAILED (при retry задача возвращается в PENDING
//	                            с тем же id; attempt растёт при claim)
type TaskStatus string

const (
	// TaskStatusPending — задача создана и ждёт выполнения.
	TaskStatusPending TaskStatus = "PENDING"

	// TaskStatusRunning — задача выполняется воркером.
	TaskStatusRunning TaskStatus = "RUNNING"

	// TaskStatusCompleted — задача успешно завершена.
	TaskStatusCompleted TaskStatus = "COMPLETED"

	// TaskStatusFailed — задача завершилась с ошибкой (после всех retry).
	TaskStatusFailed TaskStatus = "FAILED"
)

// IsTerminal возвращает true, если статус финальный.
func (s TaskStatus) IsTerminal() bool {
	switch s {
	case TaskStatusCompleted, TaskStatusFailed:
		return true
	default:
		return false
	}
}

// TaskKind — вид асинхронной задачи.
//
// Каждый вид имеет свою RetryPolicy (см. PolicyFor) и свой executor.
type TaskKind string

const (
	// KindAgentExecution — выполнение агента (вызов inference backend).
	KindAgentExecution TaskKind = "agent_execution"

	// KindWorkflowExecution — выполнение workflow (последовательная step machine).
	KindWorkflowExecution TaskKind = "workflow_execution"

	// KindWebhookDelivery — доставка webhook на внешний URL.
	KindWebhookDelivery TaskKind = "webhook_delivery"

	// KindNotification — отправка уведомления пользователю.
	KindNotification TaskKind = "notification"
)

// StepStatus — статус одного шага workflow внутри execution_log.
//
// Жизненный цикл записи лога:
//
//	PROCESSING → COMPLETED
//	           ↘ FAILED (весь workflow прерывается)
type StepStatus string

const (
	// StepStatusProcessing — шаг выполняется.
	StepStatusProcessing StepStatus = "PROCESSING"

	// StepStatusCompleted — шаг успешно завершён.
	StepStatusCompleted StepStatus = "COMPLETED"

	// StepStatusFailed — шаг упал, workflow прерван.
	StepStatusFailed StepStatus = "FAILED"
)
