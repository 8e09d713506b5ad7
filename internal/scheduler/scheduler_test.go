package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/avetta/conveyor/internal/domain"
)

type fakeScheduleStore struct {
	schedules []domain.Schedule
	listErr   error

	claims    int
	loseClaim bool
	claimedID uuid.UUID
	nextDue   time.Time
}

func (s *fakeScheduleStore) ListDue(_ context.Context, _ time.Time, _ int) ([]domain.Schedule, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	return s.schedules, nil
}

func (s *fakeScheduleStore) ClaimDue(_ context.Context, id uuid.UUID, _, nextDue time.Time) (bool, error) {
	s.claims++
	if s.loseClaim {
		return false, nil
	}
	s.claimedID = id
	s.nextDue = nextDue
	return true, nil
}

type fakeWorkflowEnqueuer struct {
	enqueued []*domain.WorkflowExecution
	err      error
}

func (f *fakeWorkflowEnqueuer) EnqueueWorkflow(_ context.Context, exec *domain.WorkflowExecution) (uuid.UUID, error) {
	if f.err != nil {
		return uuid.Nil, f.err
	}
	exec.ID = uuid.New()
	f.enqueued = append(f.enqueued, exec)
	return exec.ID, nil
}

func dueSchedule() domain.Schedule {
	due := time.Now().Add(-time.Minute)
	return domain.Schedule{
		ID:          uuid.New(),
		TenantID:    uuid.New(),
		WorkflowID:  uuid.New(),
		IntervalSec: 300,
		Timezone:    "UTC",
		Enabled:     true,
		NextDueAt:   &due,
		Inputs:      map[string]any{"source": "schedule"},
	}
}

func TestScheduler_Tick_EnqueuesDueSchedules(t *testing.T) {
	sched := dueSchedule()
	store := &fakeScheduleStore{schedules: []domain.Schedule{sched}}
	enqueuer := &fakeWorkflowEnqueuer{}

	s := New(Config{Schedules: store, Enqueuer: enqueuer})

	if err := s.Tick(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if store.claims != 1 || store.claimedID != sched.ID {
		t.Errorf("expected claim of due schedule, claims=%d", store.claims)
	}
	// next_due_at сдвинут вперёд
	if !store.nextDue.After(*sched.NextDueAt) {
		t.Errorf("next due must advance: prev=%v next=%v", sched.NextDueAt, store.nextDue)
	}

	if len(enqueuer.enqueued) != 1 {
		t.Fatalf("expected 1 workflow enqueued, got %d", len(enqueuer.enqueued))
	}
	exec := enqueuer.enqueued[0]
	if exec.WorkflowID != sched.WorkflowID || exec.TenantID != sched.TenantID {
		t.Errorf("wrong workflow execution: %+v", exec)
	}
	if exec.InputData["source"] != "schedule" {
		t.Errorf("schedule inputs not propagated: %v", exec.InputData)
	}
}

func TestScheduler_Tick_LostClaimSkipsEnqueue(t *testing.T) {
	// CAS проиграл — задачу ставит другой процесс
	store := &fakeScheduleStore{
		schedules: []domain.Schedule{dueSchedule()},
		loseClaim: true,
	}
	enqueuer := &fakeWorkflowEnqueuer{}

	s := New(Config{Schedules: store, Enqueuer: enqueuer})

	if err := s.Tick(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(enqueuer.enqueued) != 0 {
		t.Errorf("lost claim must not enqueue, got %d", len(enqueuer.enqueued))
	}
}

func TestScheduler_Tick_BrokenScheduleDoesNotBlockOthers(t *testing.T) {
	broken := dueSchedule()
	broken.IntervalSec = 0 // ни cron, ни interval
	healthy := dueSchedule()

	store := &fakeScheduleStore{schedules: []domain.Schedule{broken, healthy}}
	enqueuer := &fakeWorkflowEnqueuer{}

	s := New(Config{Schedules: store, Enqueuer: enqueuer})

	if err := s.Tick(context.Background()); err != nil {
		t.Fatalf("tick must not fail on one broken schedule: %v", err)
	}
	if len(enqueuer.enqueued) != 1 {
		t.Errorf("healthy schedule must be processed, got %d", len(enqueuer.enqueued))
	}
	if enqueuer.enqueued[0].WorkflowID != healthy.WorkflowID {
		t.Errorf("wrong schedule processed")
	}
}

func TestScheduler_Tick_NilNextDueSkipped(t *testing.T) {
	sched := dueSchedule()
	sched.NextDueAt = nil

	store := &fakeScheduleStore{schedules: []domain.Schedule{sched}}
	enqueuer := &fakeWorkflowEnqueuer{}

	s := New(Config{Schedules: store, Enqueuer: enqueuer})

	if err := s.Tick(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.claims != 0 || len(enqueuer.enqueued) != 0 {
		t.Errorf("schedule without next_due_at must be skipped")
	}
}

func TestScheduler_Tick_ListError(t *testing.T) {
	store := &fakeScheduleStore{listErr: errors.New("db down")}
	s := New(Config{Schedules: store, Enqueuer: &fakeWorkflowEnqueuer{}})

	if err := s.Tick(context.Background()); err == nil {
		t.Fatal("expected error when listing fails")
	}
}
