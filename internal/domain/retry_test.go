package domain

import (
	"testing"
	"time"
)

func TestRetryPolicy_Delay(t *testing.T) {
	p := RetryPolicy{
		MaxAttempts: 4,
		Backoff:     []time.Duration{10 * time.Second, 30 * time.Second},
	}

	// Пауза после первой попытки — первая запись
	if d := p.Delay(1); d != 10*time.Second {
		t.Errorf("attempt 1: expected 10s, got %v", d)
	}

	// Пауза после второй попытки — вторая запись
	if d := p.Delay(2); d != 30*time.Second {
		t.Errorf("attempt 2: expected 30s, got %v", d)
	}

	// Попыток больше, чем записей — используется последняя
	if d := p.Delay(3); d != 30*time.Second {
		t.Errorf("attempt 3: expected clamp to 30s, got %v", d)
	}
	if d := p.Delay(10); d != 30*time.Second {
		t.Errorf("attempt 10: expected clamp to 30s, got %v", d)
	}

	// Некорректный attempt не должен паниковать
	if d := p.Delay(0); d != 10*time.Second {
		t.Errorf("attempt 0: expected 10s, got %v", d)
	}
}

func TestRetryPolicy_Delay_EmptyBackoff(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 2}

	// Пустой Backoff — retry без паузы
	if d := p.Delay(1); d != 0 {
		t.Errorf("expected 0, got %v", d)
	}
}

func TestRetryPolicy_GiveUp(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 3}

	if p.GiveUp(1) {
		t.Error("should not give up after attempt 1")
	}
	if p.GiveUp(2) {
		t.Error("should not give up after attempt 2")
	}
	if !p.GiveUp(3) {
		t.Error("should give up after attempt 3")
	}
	if !p.GiveUp(4) {
		t.Error("should give up after attempt 4")
	}
}

func TestPolicyFor(t *testing.T) {
	// Каждый вид задачи имеет собственную политику
	tests := []struct {
		kind        TaskKind
		maxAttempts int
		timeout     time.Duration
	}{
		{KindAgentExecution, 3, 300 * time.Second},
		{KindWorkflowExecution, 2, 600 * time.Second},
		{KindNotification, 3, 30 * time.Second},
		{KindWebhookDelivery, 3, 30 * time.Second},
	}

	for _, tt := range tests {
		p := PolicyFor(tt.kind)
		if p.MaxAttempts != tt.maxAttempts {
			t.Errorf("%s: expected MaxAttempts=%d, got %d", tt.kind, tt.maxAttempts, p.MaxAttempts)
		}
		if p.Timeout != tt.timeout {
			t.Errorf("%s: expected Timeout=%v, got %v", tt.kind, tt.timeout, p.Timeout)
		}
	}

	// Неизвестный вид — одна попытка без retry
	p := PolicyFor(TaskKind("unknown"))
	if p.MaxAttempts != 1 {
		t.Errorf("unknown kind: expected MaxAttempts=1, got %d", p.MaxAttempts)
	}
}

func TestTaskStatus_IsTerminal(t *testing.T) {
	if TaskStatusPending.IsTerminal() {
		t.Error("PENDING should not be terminal")
	}
	if TaskStatusRunning.IsTerminal() {
		t.Error("RUNNING should not be terminal")
	}
	if !TaskStatusCompleted.IsTerminal() {
		t.Error("COMPLETED should be terminal")
	}
	if !TaskStatusFailed.IsTerminal() {
		t.Error("FAILED should be terminal")
	}
}
