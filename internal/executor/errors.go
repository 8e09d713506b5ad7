package executor

import "errors"

// Ошибки executor-слоя.
var (
	// ErrRetryExhausted — все попытки retry исчерпаны.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrAgentNotFound — агент задачи не найден.
	ErrAgentNotFound = errors.New("agent not found")

	// ErrAgentInactive — агент отключён, запускать нельзя.
	ErrAgentInactive = errors.New("agent is not active")

	// ErrWorkflowNotFound — определение workflow не найдено.
	ErrWorkflowNotFound = errors.New("workflow not found")

	// ErrWorkflowInactive — workflow отключён.
	ErrWorkflowInactive = errors.New("workflow is not active")

	// ErrWebhookNotFound — webhook доставки не найден.
	ErrWebhookNotFound = errors.New("webhook not found")

	// ErrWebhookStatus — endpoint вернул не-2xx статус.
	ErrWebhookStatus = errors.New("webhook endpoint returned non-2xx status")

	// ErrUnknownChannel — неизвестный канал уведомления.
	ErrUnknownChannel = errors.New("unknown notification channel")
)

// maxAttemptsMessage — текст, которым перезаписывается error_message
// задачи при исчерпании попыток. Формат стабильный: на него
// завязаны внешние потребители записей.
const maxAttemptsMessage = "Maximum retry attempts exceeded"
