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

// ExecutionRepo — репозиторий agent executions.
type ExecutionRepo struct {
	pool *pgxpool.Pool
}

// NewExecutionRepo создаёт новый ExecutionRepo.
func NewExecutionRepo(pool *pgxpool.Pool) *ExecutionRepo {
	return &ExecutionRepo{pool: pool}
}

const executionColumns = `
	id, tenant_id, agent_id, job_flow_id, workflow_execution_id,
	triggered_by_user_id, status, attempt, input_data, output_data,
	error_message, tokens_used, cost, execution_time_ms,
	started_at, completed_at, created_at
`

// Create создаёт новую запись execution (статус PENDING).
func (r *ExecutionRepo) Create(ctx context.Context, exec *domain.Execution) error {
	inputJSON, err := json.Marshal(exec.InputData)
	if err != nil {
		return fmt.Errorf("marshal input_data: %w", err)
	}

	query := `
		INSERT INTO executions (id, tenant_id, agent_id, job_flow_id, workflow_execution_id,
		                        triggered_by_user_id, status, attempt, input_data, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err = r.pool.Exec(ctx, query,
		exec.ID,
		exec.TenantID,
		exec.AgentID,
		exec.JobFlowID,
		exec.WorkflowExecutionID,
		exec.TriggeredByUserID,
		exec.Status,
		exec.Attempt,
		inputJSON,
		exec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert execution: %w", err)
	}
	return nil
}

// GetByID возвращает execution по ID.
func (r *ExecutionRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Execution, error) {
	query := `SELECT ` + executionColumns + ` FROM executions WHERE id = $1`
	return scanExecution(r.pool.QueryRow(ctx, query, id))
}

// Claim атомарно захватывает execution в работу:
// условный UPDATE PENDING → RUNNING с инкрементом attempt.
//
// Из двух одновременных claim одного id ровно один получает строку,
// второй — ErrNotClaimed. Это единственный путь в статус RUNNING.
func (r *ExecutionRepo) Claim(ctx context.Context, id uuid.UUID) (*domain.Execution, error) {
	query := `
		UPDATE executions
		SET status = $2, attempt = attempt + 1, started_at = $3
		WHERE id = $1 AND status = $4
		RETURNING ` + executionColumns
	exec, err := scanExecution(r.pool.QueryRow(ctx, query,
		id, domain.TaskStatusRunning, time.Now(), domain.TaskStatusPending))
	if errors.Is(err, ErrNotFound) {
		return nil, ErrNotClaimed
	}
	return exec, err
}

// Update персистит мутации execution (результат, ошибку, статус).
// Возвращает ErrNotFound, если записи нет.
func (r *ExecutionRepo) Update(ctx context.Context, exec *domain.Execution) error {
	outputJSON, err := json.Marshal(exec.OutputData)
	if err != nil {
		return fmt.Errorf("marshal output_data: %w", err)
	}

	query := `
		UPDATE executions
		SET status = $2, attempt = $3, output_data = $4, error_message = $5,
		    tokens_used = $6, cost = $7, execution_time_ms = $8,
		    started_at = $9, completed_at = $10
		WHERE id = $1
	`
	result, err := r.pool.Exec(ctx, query,
		exec.ID,
		exec.Status,
		exec.Attempt,
		outputJSON,
		nullString(exec.ErrorMessage),
		exec.TokensUsed,
		exec.Cost,
		exec.ExecutionTimeMS,
		exec.StartedAt,
		exec.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("update execution: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Requeue возвращает execution в PENDING для следующей попытки.
// Attempt не сбрасывается: он вырастет при следующем Claim.
func (r *ExecutionRepo) Requeue(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE executions
		SET status = $2, started_at = NULL, completed_at = NULL, error_message = NULL
		WHERE id = $1 AND status = $3
	`
	result, err := r.pool.Exec(ctx, query, id, domain.TaskStatusPending, domain.TaskStatusFailed)
	if err != nil {
		return fmt.Errorf("requeue execution: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrInvalidState
	}
	return nil
}

// ListPending возвращает executions в статусе PENDING (polling fallback).
func (r *ExecutionRepo) ListPending(ctx context.Context, limit int) ([]domain.Execution, error) {
	query := `SELECT ` + executionColumns + `
		FROM executions
		WHERE status = $1
		ORDER BY created_at ASC
		LIMIT $2`
	rows, err := r.pool.Query(ctx, query, domain.TaskStatusPending, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending executions: %w", err)
	}
	defer rows.Close()

	var execs []domain.Execution
	for rows.Next() {
		exec, err := scanExecution(rows)
		if err != nil {
			return nil, err
		}
		execs = append(execs, *exec)
	}
	return execs, rows.Err()
}

// scanExecution читает одну строку executions.
func scanExecution(row pgx.Row) (*domain.Execution, error) {
	var exec domain.Execution
	var inputJSON, outputJSON []byte
	var errMsg *string

	err := row.Scan(
		&exec.ID,
		&exec.TenantID,
		&exec.AgentID,
		&exec.JobFlowID,
		&exec.WorkflowExecutionID,
		&exec.TriggeredByUserID,
		&exec.Status,
		&exec.Attempt,
		&inputJSON,
		&outputJSON,
		&errMsg,
		&exec.TokensUsed,
		&exec.Cost,
		&exec.ExecutionTimeMS,
		&exec.StartedAt,
		&exec.CompletedAt,
		&exec.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan execution: %w", err)
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

// nullString возвращает nil для пустой строки (NULL в БД).
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
