package bus

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/avetta/conveyor/internal/domain"
)

// recordingListener собирает полученные события.
type recordingListener struct {
	name string
	err  error

	mu     sync.Mutex
	events []*Event
	panics bool
}

func (l *recordingListener) Name() string { return l.name }

func (l *recordingListener) Handle(_ context.Context, ev *Event) error {
	if l.panics {
		panic("listener bug")
	}
	l.mu.Lock()
	l.events = append(l.events, ev)
	l.mu.Unlock()
	return l.err
}

func (l *recordingListener) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.events)
}

func (l *recordingListener) waitFor(t *testing.T, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if l.count() >= n {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("listener %s: expected %d events, got %d", l.name, n, l.count())
}

func testExecution() *domain.Execution {
	return &domain.Execution{
		ID:       uuid.New(),
		TenantID: uuid.New(),
		AgentID:  uuid.New(),
		Status:   domain.TaskStatusCompleted,
		Attempt:  1,
	}
}

func TestBus_FanOut(t *testing.T) {
	first := &recordingListener{name: "first"}
	second := &recordingListener{name: "second"}

	registry := NewRegistry()
	registry.Subscribe(EventExecutionCompleted, first)
	registry.Subscribe(EventExecutionCompleted, second)

	b := New(registry, nil)
	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer b.Close()

	ev := NewExecutionCompleted(testExecution())
	if err := b.Publish(context.Background(), ev); err != nil {
		t.Fatalf("publish: %v", err)
	}

	// Оба listener'а получают событие
	first.waitFor(t, 1)
	second.waitFor(t, 1)

	if first.events[0].ID != ev.ID || second.events[0].ID != ev.ID {
		t.Error("listeners received different events")
	}
}

func TestBus_ListenerErrorIsolation(t *testing.T) {
	failing := &recordingListener{name: "failing", err: errors.New("boom")}
	healthy := &recordingListener{name: "healthy"}

	registry := NewRegistry()
	registry.Subscribe(EventExecutionFailed, failing)
	registry.Subscribe(EventExecutionFailed, healthy)

	b := New(registry, nil)
	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer b.Close()

	ev := NewExecutionFailed(testExecution(), "backend down", false)
	if err := b.Publish(context.Background(), ev); err != nil {
		t.Fatalf("publish error must not surface listener failures: %v", err)
	}

	// Ошибка одного listener'а не мешает остальным
	healthy.waitFor(t, 1)
}

func TestBus_ListenerPanicRecovery(t *testing.T) {
	panicking := &recordingListener{name: "panicking", panics: true}
	healthy := &recordingListener{name: "healthy"}

	registry := NewRegistry()
	registry.Subscribe(EventWorkflowCompleted, panicking)
	registry.Subscribe(EventWorkflowCompleted, healthy)

	b := New(registry, nil)
	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer b.Close()

	ev := NewWorkflowCompleted(&domain.WorkflowExecution{
		ID:       uuid.New(),
		TenantID: uuid.New(),
		Status:   domain.TaskStatusCompleted,
	})
	if err := b.Publish(context.Background(), ev); err != nil {
		t.Fatalf("publish: %v", err)
	}

	// Паника одного listener'а не роняет dispatch
	healthy.waitFor(t, 1)
}

func TestBus_EventsSubscribedSeparately(t *testing.T) {
	completed := &recordingListener{name: "completed-only"}

	registry := NewRegistry()
	registry.Subscribe(EventExecutionCompleted, completed)

	b := New(registry, nil)
	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer b.Close()

	// Listener не подписан на agent.failed — публикация просто уходит в пустоту
	failEv := NewExecutionFailed(testExecution(), "x", true)
	if err := b.Publish(context.Background(), failEv); err != nil {
		t.Fatalf("publish to event without listeners: %v", err)
	}

	okEv := NewExecutionCompleted(testExecution())
	if err := b.Publish(context.Background(), okEv); err != nil {
		t.Fatalf("publish: %v", err)
	}

	completed.waitFor(t, 1)
	if completed.events[0].Name != EventExecutionCompleted {
		t.Errorf("unexpected event: %s", completed.events[0].Name)
	}
}

func TestEventConstructors_Terminal(t *testing.T) {
	exec := testExecution()

	if !NewExecutionCompleted(exec).Terminal {
		t.Error("agent.executed must always be terminal")
	}
	if NewExecutionFailed(exec, "x", false).Terminal {
		t.Error("intermediate agent.failed must not be terminal")
	}
	if !NewExecutionFailed(exec, "x", true).Terminal {
		t.Error("final agent.failed must be terminal")
	}

	wfExec := &domain.WorkflowExecution{ID: uuid.New(), TenantID: uuid.New()}
	if !NewWorkflowCompleted(wfExec).Terminal {
		t.Error("workflow.completed must always be terminal")
	}
	if NewWorkflowFailed(wfExec, "x", false).Terminal {
		t.Error("intermediate workflow.failed must not be terminal")
	}
}

func TestEvent_Snapshot(t *testing.T) {
	exec := testExecution()
	ev := NewExecutionCompleted(exec)

	// Событие несёт snapshot: мутация исходной записи его не меняет
	exec.Status = domain.TaskStatusFailed
	if ev.Execution.Status != domain.TaskStatusCompleted {
		t.Error("event must carry a snapshot, not the live record")
	}
	if ev.TenantID != exec.TenantID {
		t.Error("tenant scoping lost")
	}
}
