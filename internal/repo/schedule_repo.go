package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/avetta/conveyor/internal/domain"
)

// ScheduleRepo — репозиторий расписаний workflow.
type ScheduleRepo struct {
	pool *pgxpool.Pool
}

// NewScheduleRepo создаёт новый ScheduleRepo.
func NewScheduleRepo(pool *pgxpool.Pool) *ScheduleRepo {
	return &ScheduleRepo{pool: pool}
}

// ListDue возвращает включённые расписания с next_due_at <= now.
func (r *ScheduleRepo) ListDue(ctx context.Context, now time.Time, limit int) ([]domain.Schedule, error) {
	query := `
		SELECT id, tenant_id, workflow_id, name, cron_expr, interval_sec, timezone,
		       enabled, next_due_at, last_run_at, inputs, created_at
		FROM workflow_schedules
		WHERE enabled = TRUE AND next_due_at IS NOT NULL AND next_due_at <= $1
		ORDER BY next_due_at ASC
		LIMIT $2
	`
	rows, err := r.pool.Query(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("list due schedules: %w", err)
	}
	defer rows.Close()

	var schedules []domain.Schedule
	for rows.Next() {
		var s domain.Schedule
		var name, cronExpr *string
		var intervalSec *int
		var inputsJSON []byte

		err := rows.Scan(
			&s.ID,
			&s.TenantID,
			&s.WorkflowID,
			&name,
			&cronExpr,
			&intervalSec,
			&s.Timezone,
			&s.Enabled,
			&s.NextDueAt,
			&s.LastRunAt,
			&inputsJSON,
			&s.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan schedule: %w", err)
		}

		if name != nil {
			s.Name = *name
		}
		if cronExpr != nil {
			s.CronExpr = *cronExpr
		}
		if intervalSec != nil {
			s.IntervalSec = *intervalSec
		}
		if inputsJSON != nil {
			if err := json.Unmarshal(inputsJSON, &s.Inputs); err != nil {
				return nil, fmt.Errorf("unmarshal inputs: %w", err)
			}
		}

		schedules = append(schedules, s)
	}
	return schedules, rows.Err()
}

// ClaimDue атомарно сдвигает next_due_at расписания.
//
// Условие по prevDue — CAS: из нескольких scheduler-процессов
// только один выигрывает тик и создаёт workflow execution,
// остальные получают false. Дубликатов запусков не бывает.
func (r *ScheduleRepo) ClaimDue(ctx context.Context, id uuid.UUID, prevDue, nextDue time.Time) (bool, error) {
	query := `
		UPDATE workflow_schedules
		SET next_due_at = $3, last_run_at = NOW()
		WHERE id = $1 AND next_due_at = $2 AND enabled = TRUE
	`
	result, err := r.pool.Exec(ctx, query, id, prevDue, nextDue)
	if err != nil {
		return false, fmt.Errorf("claim due schedule: %w", err)
	}
	return result.RowsAffected() > 0, nil
}
