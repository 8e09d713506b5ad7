// Package listener — подписчики шины событий.
//
// Каждый listener независим: порядок между listener'ами одного события
// не гарантирован, ошибки одного не влияют на остальных. Follow-on
// работа (доставки, уведомления) ставится в очередь через Router,
// а не выполняется в listener'е.
package listener

import (
	"time"

	"github.com/avetta/conveyor/internal/bus"
)

// eventPayload строит внешнее представление события: плоская карта
// с ISO-8601 временем. Публикуется в realtime-каналы и доставляется
// webhook-подписчикам.
func eventPayload(ev *bus.Event) map[string]any {
	payload := map[string]any{
		"event":     string(ev.Name),
		"tenant_id": ev.TenantID.String(),
		"timestamp": ev.OccurredAt.UTC().Format(time.RFC3339),
	}

	if exec := ev.Execution; exec != nil {
		payload["execution_id"] = exec.ID.String()
		payload["agent_id"] = exec.AgentID.String()
		payload["status"] = string(exec.Status)
		payload["attempt"] = exec.Attempt
		payload["tokens_used"] = exec.TokensUsed
		payload["cost"] = exec.Cost
		payload["execution_time_ms"] = exec.ExecutionTimeMS
		if exec.StartedAt != nil {
			payload["started_at"] = exec.StartedAt.UTC().Format(time.RFC3339)
		}
		if exec.CompletedAt != nil {
			payload["completed_at"] = exec.CompletedAt.UTC().Format(time.RFC3339)
		}
	}

	if exec := ev.WorkflowExecution; exec != nil {
		payload["workflow_execution_id"] = exec.ID.String()
		payload["workflow_id"] = exec.WorkflowID.String()
		payload["status"] = string(exec.Status)
		payload["attempt"] = exec.Attempt
		payload["current_step"] = exec.CurrentStep
		if exec.StartedAt != nil {
			payload["started_at"] = exec.StartedAt.UTC().Format(time.RFC3339)
		}
		if exec.CompletedAt != nil {
			payload["completed_at"] = exec.CompletedAt.UTC().Format(time.RFC3339)
		}
	}

	if ev.Cause != "" {
		payload["error"] = ev.Cause
	}

	return payload
}
