package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/avetta/conveyor/internal/domain"
)

// WorkflowRepo — репозиторий определений workflow (read-only для ядра).
type WorkflowRepo struct {
	pool *pgxpool.Pool
}

// NewWorkflowRepo создаёт новый WorkflowRepo.
func NewWorkflowRepo(pool *pgxpool.Pool) *WorkflowRepo {
	return &WorkflowRepo{pool: pool}
}

// GetByID возвращает определение workflow по ID.
func (r *WorkflowRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Workflow, error) {
	query := `
		SELECT id, tenant_id, name, nodes, edges, is_active, created_at
		FROM workflows
		WHERE id = $1
	`
	var wf domain.Workflow
	var nodesJSON, edgesJSON []byte

	err := r.pool.QueryRow(ctx, query, id).Scan(
		&wf.ID,
		&wf.TenantID,
		&wf.Name,
		&nodesJSON,
		&edgesJSON,
		&wf.IsActive,
		&wf.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan workflow: %w", err)
	}

	if nodesJSON != nil {
		if err := json.Unmarshal(nodesJSON, &wf.Nodes); err != nil {
			return nil, fmt.Errorf("unmarshal nodes: %w", err)
		}
	}
	if edgesJSON != nil {
		if err := json.Unmarshal(edgesJSON, &wf.Edges); err != nil {
			return nil, fmt.Errorf("unmarshal edges: %w", err)
		}
	}

	return &wf, nil
}

// AgentRepo — репозиторий конфигураций агентов (read-only для ядра).
type AgentRepo struct {
	pool *pgxpool.Pool
}

// NewAgentRepo создаёт новый AgentRepo.
func NewAgentRepo(pool *pgxpool.Pool) *AgentRepo {
	return &AgentRepo{pool: pool}
}

// GetByID возвращает агента по ID.
func (r *AgentRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Agent, error) {
	query := `
		SELECT id, tenant_id, name, model, system_prompt, priority,
		       max_tokens, temperature, is_active, created_at
		FROM agents
		WHERE id = $1
	`
	var a domain.Agent
	var systemPrompt *string

	err := r.pool.QueryRow(ctx, query, id).Scan(
		&a.ID,
		&a.TenantID,
		&a.Name,
		&a.Model,
		&systemPrompt,
		&a.Priority,
		&a.MaxTokens,
		&a.Temperature,
		&a.IsActive,
		&a.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan agent: %w", err)
	}

	if systemPrompt != nil {
		a.SystemPrompt = *systemPrompt
	}

	return &a, nil
}

// ActivityRepo — репозиторий записей аудита.
//
// Запись best-effort: вызывающая сторона логирует ошибку,
// но не проваливает задачу из-за неё.
type ActivityRepo struct {
	pool *pgxpool.Pool
}

// NewActivityRepo создаёт новый ActivityRepo.
func NewActivityRepo(pool *pgxpool.Pool) *ActivityRepo {
	return &ActivityRepo{pool: pool}
}

// Insert добавляет запись аудита.
func (r *ActivityRepo) Insert(ctx context.Context, rec *domain.ActivityRecord) error {
	detailJSON, err := json.Marshal(rec.Detail)
	if err != nil {
		return fmt.Errorf("marshal detail: %w", err)
	}

	query := `
		INSERT INTO activity_records (id, tenant_id, user_id, action, subject_kind, subject_id, detail, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err = r.pool.Exec(ctx, query,
		rec.ID, rec.TenantID, rec.UserID, rec.Action, rec.SubjectKind, rec.SubjectID, detailJSON, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert activity record: %w", err)
	}
	return nil
}
