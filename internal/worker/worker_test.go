package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/avetta/conveyor/internal/domain"
	"github.com/avetta/conveyor/internal/executor"
	"github.com/avetta/conveyor/internal/repo"
)

// Фейки store для сборки настоящих executor'ов в тестах диспетчеризации.

type memExecutionStore struct {
	exec *domain.Execution
}

func (s *memExecutionStore) Claim(_ context.Context, _ uuid.UUID) (*domain.Execution, error) {
	if s.exec == nil || s.exec.Status != domain.TaskStatusPending {
		return nil, repo.ErrNotClaimed
	}
	now := time.Now()
	s.exec.Status = domain.TaskStatusRunning
	s.exec.Attempt++
	s.exec.StartedAt = &now
	return s.exec, nil
}

func (s *memExecutionStore) Update(_ context.Context, exec *domain.Execution) error {
	s.exec = exec
	return nil
}

func (s *memExecutionStore) Requeue(_ context.Context, _ uuid.UUID) error {
	s.exec.Status = domain.TaskStatusPending
	return nil
}

type memAgentStore struct {
	agent *domain.Agent
	err   error
}

func (s *memAgentStore) GetByID(_ context.Context, _ uuid.UUID) (*domain.Agent, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.agent, nil
}

func testWorker(agents *executor.AgentExecutor) *Worker {
	return New(Config{Agents: agents})
}

func TestWorker_Process_UnknownKind(t *testing.T) {
	w := New(Config{})

	err := w.process(context.Background(), domain.TaskKind("mystery"), uuid.New())
	if !errors.Is(err, ErrUnknownTaskKind) {
		t.Fatalf("expected ErrUnknownTaskKind, got %v", err)
	}
}

func TestWorker_Process_FatalErrorsAreAcked(t *testing.T) {
	// Агент не найден: задача доведена до FAILED, сообщение ack —
	// redelivery бессмысленен
	exec := &domain.Execution{
		ID:      uuid.New(),
		AgentID: uuid.New(),
		Status:  domain.TaskStatusPending,
	}
	agents := executor.NewAgentExecutor(
		&memExecutionStore{exec: exec},
		&memAgentStore{err: repo.ErrNotFound},
		nil, nil, nil, nil,
	)
	w := testWorker(agents)

	if err := w.process(context.Background(), domain.KindAgentExecution, exec.ID); err != nil {
		t.Fatalf("fatal executor error must be fully handled, got %v", err)
	}
	if exec.Status != domain.TaskStatusFailed {
		t.Errorf("expected FAILED record, got %s", exec.Status)
	}
}

func TestWorker_Process_NotClaimedIsNoop(t *testing.T) {
	// Запись уже RUNNING у другого воркера
	exec := &domain.Execution{
		ID:      uuid.New(),
		AgentID: uuid.New(),
		Status:  domain.TaskStatusRunning,
	}
	agents := executor.NewAgentExecutor(
		&memExecutionStore{exec: exec},
		&memAgentStore{},
		nil, nil, nil, nil,
	)
	w := testWorker(agents)

	if err := w.process(context.Background(), domain.KindAgentExecution, exec.ID); err != nil {
		t.Fatalf("claimed-elsewhere must be a no-op, got %v", err)
	}
	if exec.Attempt != 0 {
		t.Errorf("attempt must not change, got %d", exec.Attempt)
	}
}

func TestExecutionPoller_PendingIDs(t *testing.T) {
	store := &listPendingStore{execs: []domain.Execution{
		{ID: uuid.New(), TenantID: uuid.New()},
		{ID: uuid.New(), TenantID: uuid.New()},
	}}
	p := ExecutionPoller{Store: store}

	tasks, err := p.PendingIDs(context.Background(), 50)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(tasks) != 2 {
		t.Fatalf("expected 2 tasks, got %d", len(tasks))
	}
	for i, task := range tasks {
		if task.ID != store.execs[i].ID || task.TenantID != store.execs[i].TenantID {
			t.Errorf("task %d: coordinates mismatch", i)
		}
	}
}

type listPendingStore struct {
	execs []domain.Execution
}

func (s *listPendingStore) ListPending(_ context.Context, _ int) ([]domain.Execution, error) {
	return s.execs, nil
}

func TestWorker_Poll_DispatchesPendingTasks(t *testing.T) {
	exec := &domain.Execution{
		ID:      uuid.New(),
		AgentID: uuid.New(),
		Status:  domain.TaskStatusPending,
	}
	store := &memExecutionStore{exec: exec}
	agents := executor.NewAgentExecutor(store, &memAgentStore{err: repo.ErrNotFound}, nil, nil, nil, nil)

	w := New(Config{
		Agents: agents,
		Pollers: map[domain.TaskKind]Poller{
			domain.KindAgentExecution: ExecutionPoller{Store: &listPendingStore{
				execs: []domain.Execution{*exec},
			}},
		},
	})

	w.poll(context.Background())

	// Poll нашёл PENDING задачу и прогнал через executor
	if store.exec.Status != domain.TaskStatusFailed {
		t.Errorf("expected task processed from poll, status=%s", store.exec.Status)
	}
}

func TestWorker_StopIdempotent(t *testing.T) {
	w := New(Config{})

	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if w.IsStopped() {
		t.Error("worker must not be stopped after start")
	}

	w.Stop()
	if !w.IsStopped() {
		t.Error("worker must report stopped")
	}
}
