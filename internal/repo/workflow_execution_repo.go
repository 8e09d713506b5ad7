package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/avetta/conveyor/internal/domain"
)

// WorkflowExecutionRepo — репозиторий workflow executions.
type WorkflowExecutionRepo struct {
	pool *pgxpool.Pool
}

// NewWorkflowExecutionRepo создаёт новый WorkflowExecutionRepo.
func NewWorkflowExecutionRepo(pool *pgxpool.Pool) *WorkflowExecutionRepo {
	return &WorkflowExecutionRepo{pool: pool}
}

const workflowExecutionColumns = `
	id, tenant_id, workflow_id, triggered_by_user_id, status, attempt,
	current_step, execution_log, input_data, output_data, error_message,
	started_at, completed_at, created_at
`

// Create создаёт новую запись workflow execution (статус PENDING).
func (r *WorkflowExecutionRepo) Create(ctx context.Context, exec *domain.WorkflowExecution) error {
	inputJSON, err := json.Marshal(exec.InputData)
	if err != nil {
		return fmt.Errorf("marshal input_data: %w", err)
	}

	query := `
		INSERT INTO workflow_executions (id, tenant_id, workflow_id, triggered_by_user_id,
		                                 status, attempt, current_step, input_data, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err = r.pool.Exec(ctx, query,
		exec.ID,
		exec.TenantID,
		exec.WorkflowID,
		exec.TriggeredByUserID,
		exec.Status,
		exec.Attempt,
		exec.CurrentStep,
		inputJSON,
		exec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert workflow execution: %w", err)
	}
	return nil
}

// GetByID возвращает workflow execution по ID.
func (r *WorkflowExecutionRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.WorkflowExecution, error) {
	query := `SELECT ` + workflowExecutionColumns + ` FROM workflow_executions WHERE id = $1`
	return scanWorkflowExecution(r.pool.QueryRow(ctx, query, id))
}

// Claim атомарно захватывает workflow execution в работу
// (условный UPDATE PENDING → RUNNING, attempt + 1).
func (r *WorkflowExecutionRepo) Claim(ctx context.Context, id uuid.UUID) (*domain.WorkflowExecution, error) {
	query := `
		UPDATE workflow_executions
		SET status = $2, attempt = attempt + 1, started_at = $3
		WHERE id = $1 AND status = $4
		RETURNING ` + workflowExecutionColumns
	exec, err := scanWorkflowExecution(r.pool.QueryRow(ctx, query,
		id, domain.TaskStatusRunning, time.Now(), domain.TaskStatusPending))
	if errors.Is(err, ErrNotFound) {
		return nil, ErrNotClaimed
	}
	return exec, err
}

// Update персистит мутации workflow execution.
func (r *WorkflowExecutionRepo) Update(ctx context.Context, exec *domain.WorkflowExecution) error {
	logJSON, err := json.Marshal(exec.ExecutionLog)
	if err != nil {
		return fmt.Errorf("marshal execution_log: %w", err)
	}
	outputJSON, err := json.Marshal(exec.OutputData)
	if err != nil {
		return fmt.Errorf("marshal output_data: %w", err)
	}

	query := `
		UPDATE workflow_executions
		SET status = $2, attempt = $3, current_step = $4, execution_log = $5,
		    output_data = $6, error_message = $7, started_at = $8, completed_at = $9
		WHERE id = $1
	`
	result, err := r.pool.Exec(ctx, query,
		exec.ID,
		exec.Status,
		exec.Attempt,
		exec.CurrentStep,
		logJSON,
		outputJSON,
		nullString(exec.ErrorMessage),
		exec.StartedAt,
		exec.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("update workflow execution: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SaveProgress персистит current_step и execution_log mid-run.
// Вызывается step machine после каждого шага (engine.Progress).
func (r *WorkflowExecutionRepo) SaveProgress(ctx context.Context, exec *domain.WorkflowExecution) error {
	logJSON, err := json.Marshal(exec.ExecutionLog)
	if err != nil {
		return fmt.Errorf("marshal execution_log: %w", err)
	}

	query := `
		UPDATE workflow_executions
		SET current_step = $2, execution_log = $3
		WHERE id = $1
	`
	result, err := r.pool.Exec(ctx, query, exec.ID, exec.CurrentStep, logJSON)
	if err != nil {
		return fmt.Errorf("save workflow progress: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Requeue возвращает workflow execution в PENDING для следующей попытки.
// CurrentStep и лог сбрасываются: новая попытка начинает workflow заново.
func (r *WorkflowExecutionRepo) Requeue(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE workflow_executions
		SET status = $2, current_step = 0, execution_log = NULL,
		    started_at = NULL, completed_at = NULL, error_message = NULL
		WHERE id = $1 AND status = $3
	`
	result, err := r.pool.Exec(ctx, query, id, domain.TaskStatusPending, domain.TaskStatusFailed)
	if err != nil {
		return fmt.Errorf("requeue workflow execution: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrInvalidState
	}
	return nil
}

// ListPending возвращает workflow executions в статусе PENDING (polling fallback).
func (r *WorkflowExecutionRepo) ListPending(ctx context.Context, limit int) ([]domain.WorkflowExecution, error) {
	query := `SELECT ` + workflowExecutionColumns + `
		FROM workflow_executions
		WHERE status = $1
		ORDER BY created_at ASC
		LIMIT $2`
	rows, err := r.pool.Query(ctx, query, domain.TaskStatusPending, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending workflow executions: %w", err)
	}
	defer rows.Close()

	var execs []domain.WorkflowExecution
	for rows.Next() {
		exec, err := scanWorkflowExecution(rows)
		if err != nil {
			return nil, err
		}
		execs = append(execs, *exec)
	}
	return execs, rows.Err()
}

// scanWorkflowExecution читает одну строку workflow_executions.
func scanWorkflowExecution(row pgx.Row) (*domain.WorkflowExecution, error) {
	var exec domain.WorkflowExecution
	var logJSON, inputJSON, outputJSON []byte
	var errMsg *string

	err := row.Scan(
		&exec.ID,
		&exec.TenantID,
		&exec.WorkflowID,
		&exec.TriggeredByUserID,
		&exec.Status,
		&exec.Attempt,
		&exec.CurrentStep,
		&logJSON,
		&inputJSON,
		&outputJSON,
		&errMsg,
		&exec.StartedAt,
		&exec.CompletedAt,
		&exec.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan workflow execution: %w", err)
	}

	if logJSON != nil {
		if err := json.Unmarshal(logJSON, &exec.ExecutionLog); err != nil {
			return nil, fmt.Errorf("unmarshal execution_log: %w", err)
		}
	}
	if inputJSON != nil {
		if err := json.Unmarshal(inputJSON, &exec.InputData); err != nil {
			return nil, fmt.Errorf("unmarshal input_data: %w", err)
		}
	}
	if outputJSON != nil {
		if err := json.Unmarshal(outputJSON, &exec.OutputData); err != nil {
			return nil, fmt.Errorf("unmarshal output_data: %w", err)
		}
	}
	if errMsg != nil {
		exec.ErrorMessage = *errMsg
	}

	return &exec, nil
}
