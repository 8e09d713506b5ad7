package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/avetta/conveyor/internal/domain"
)

// ScheduleStore — чтение due schedules и атомарный claim тика.
type ScheduleStore interface {
	ListDue(ctx context.Context, now time.Time, limit int) ([]domain.Schedule, error)
	ClaimDue(ctx context.Context, id uuid.UUID, prevDue, nextDue time.Time) (bool, error)
}

// WorkflowEnqueuer — постановка workflow executions в очередь.
// Реализуется router.Router.
type WorkflowEnqueuer interface {
	EnqueueWorkflow(ctx context.Context, exec *domain.WorkflowExecution) (uuid.UUID, error)
}

// Scheduler — планировщик, обрабатывающий due schedules.
type Scheduler struct {
	schedules ScheduleStore
	enqueuer  WorkflowEnqueuer
	logger    *slog.Logger
	batchSize int
}

// Config — конфигурация Scheduler.
type Config struct {
	Schedules ScheduleStore
	Enqueuer  WorkflowEnqueuer
	Logger    *slog.Logger
	BatchSize int // количество schedules за один тик (default: 100)
}

// New создаёт новый Scheduler.
func New(cfg Config) *Scheduler {
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Scheduler{
		schedules: cfg.Schedules,
		enqueuer:  cfg.Enqueuer,
		logger:    logger,
		batchSize: batchSize,
	}
}

// Tick выполняет один тик планировщика.
//
// 1. Находит due schedules (enabled=true, next_due_at <= now)
// 2. Атомарно claim'ит каждый (CAS по next_due_at)
// 3. Победитель claim'а ставит workflow execution в очередь
//
// Ошибки одного schedule не блокируют обработку остальных.
func (s *Scheduler) Tick(ctx context.Context) error {
	now := time.Now()

	schedules, err := s.schedules.ListDue(ctx, now, s.batchSize)
	if err != nil {
		return fmt.Errorf("list due schedules: %w", err)
	}

	if len(schedules) == 0 {
		return nil
	}

	s.logger.Debug("found due schedules", "count", len(schedules))

	var claimed, enqueued int
	for i := range schedules {
		sched := &schedules[i]

		won, err := s.processSchedule(ctx, sched, now)
		if err != nil {
			s.logger.Error("failed to process schedule",
				"schedule_id", sched.ID,
				"schedule_name", sched.Name,
				"error", err,
			)
			// Продолжаем обработку остальных
			continue
		}

		if won {
			claimed++
			enqueued++
		}
	}

	s.logger.Info("scheduler tick completed",
		"due", len(schedules),
		"claimed", claimed,
		"enqueued", enqueued,
	)

	return nil
}

// processSchedule обрабатывает один schedule.
// Возвращает true, если этот процесс выиграл claim и поставил задачу.
func (s *Scheduler) processSchedule(ctx context.Context, sched *domain.Schedule, now time.Time) (bool, error) {
	if sched.NextDueAt == nil {
		return false, nil
	}
	prevDue := *sched.NextDueAt

	// 1. Вычисляем следующее время выполнения
	nextDue, err := CalculateNextDue(sched, now)
	if err != nil {
		// Schedule некорректный — next_due_at не трогаем,
		// админ увидит зависший schedule
		return false, fmt.Errorf("calculate next due: %w", err)
	}

	// 2. Атомарно сдвигаем next_due_at. CAS по прежнему значению:
	// из нескольких scheduler-процессов выигрывает один, дубликатов
	// запусков не бывает
	won, err := s.schedules.ClaimDue(ctx, sched.ID, prevDue, nextDue)
	if err != nil {
		return false, fmt.Errorf("claim schedule: %w", err)
	}
	if !won {
		s.logger.Debug("schedule claimed by another process",
			"schedule_id", sched.ID,
		)
		return false, nil
	}

	// 3. Ставим workflow execution в очередь
	exec := &domain.WorkflowExecution{
		TenantID:   sched.TenantID,
		WorkflowID: sched.WorkflowID,
		InputData:  sched.Inputs,
	}

	execID, err := s.enqueuer.EnqueueWorkflow(ctx, exec)
	if err != nil {
		return true, fmt.Errorf("enqueue workflow execution: %w", err)
	}

	s.logger.Info("enqueued workflow execution from schedule",
		"schedule_id", sched.ID,
		"schedule_name", sched.Name,
		"workflow_id", sched.WorkflowID,
		"workflow_execution_id", execID,
		"next_due_at", nextDue,
	)

	return true, nil
}
