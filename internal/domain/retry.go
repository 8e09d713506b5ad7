package domain

import "time"

// RetryPolicy — явная конфигурация retry для вида задачи.
//
// Политика — чистое value object: передаётся в retry runner,
// не выводится через reflection и не наследуется.
type RetryPolicy struct {
	// MaxAttempts — максимальное суммарное количество попыток (включая первую).
	MaxAttempts int

	// Backoff — паузы между попытками: Backoff[0] — между первой и второй.
	// Если попыток больше, чем записей, используется последняя запись.
	// Пустой список — retry без паузы.
	Backoff []time.Duration

	// Timeout — таймаут одной попытки. Истечение таймаута — такой же
	// transient fault, как любая другая ошибка выполнения.
	Timeout time.Duration
}

// Delay возвращает паузу после неудачной попытки attempt (1-based),
// измеряется от провала попытки N до старта попытки N+1.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if len(p.Backoff) == 0 {
		return 0
	}
	idx := attempt - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(p.Backoff) {
		idx = len(p.Backoff) - 1
	}
	return p.Backoff[idx]
}

// GiveUp решает, исчерпаны ли попытки после провала попытки attempt.
func (p RetryPolicy) GiveUp(attempt int) bool {
	return attempt >= p.MaxAttempts
}

// Политики по видам задач.
var (
	agentPolicy = RetryPolicy{
		MaxAttempts: 3,
		Backoff:     []time.Duration{10 * time.Second, 30 * time.Second, 60 * time.Second},
		Timeout:     300 * time.Second,
	}

	workflowPolicy = RetryPolicy{
		MaxAttempts: 2,
		Backoff:     nil,
		Timeout:     600 * time.Second,
	}

	notificationPolicy = RetryPolicy{
		MaxAttempts: 3,
		Backoff:     []time.Duration{10 * time.Second, 30 * time.Second, 60 * time.Second},
		Timeout:     30 * time.Second,
	}

	webhookPolicy = RetryPolicy{
		MaxAttempts: 3,
		Backoff:     []time.Duration{5 * time.Second, 15 * time.Second, 30 * time.Second},
		Timeout:     30 * time.Second,
	}
)

// PolicyFor возвращает RetryPolicy для вида задачи.
func PolicyFor(kind TaskKind) RetryPolicy {
	switch kind {
	case KindAgentExecution:
		return agentPolicy
	case KindWorkflowExecution:
		return workflowPolicy
	case KindNotification:
		return notificationPolicy
	case KindWebhookDelivery:
		return webhookPolicy
	default:
		return RetryPolicy{MaxAttempts: 1}
	}
}
