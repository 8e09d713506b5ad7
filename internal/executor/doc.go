// Package executor — выполнение задач пайплайна с retry.
//
// Четыре executor'а, по одному на вид задачи:
//   - AgentExecutor — вызов inference backend'а (agent_execution)
//   - WorkflowExecutor — прогон step machine (workflow_execution)
//   - WebhookDeliverer — POST на URL подписчика (webhook_delivery)
//   - NotificationExecutor — отправка уведомления (notification)
//
// Все реализуют Hooks[T] и прогоняются общим retry-циклом Run:
// claim → попытка под таймаутом → retry с backoff или terminal hook.
// Исход попытки — тегированный Outcome (completed / retryable / fatal),
// запись задачи доводится до статуса в store до возврата исхода.
package executor
