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

// DeliveryRepo — репозиторий webhook deliveries.
type DeliveryRepo struct {
	pool *pgxpool.Pool
}

// NewDeliveryRepo создаёт новый DeliveryRepo.
func NewDeliveryRepo(pool *pgxpool.Pool) *DeliveryRepo {
	return &DeliveryRepo{pool: pool}
}

const deliveryColumns = `
	id, tenant_id, webhook_id, event, payload, status, attempt,
	response_status, error_message, started_at, completed_at, created_at
`

// Create создаёт новую запись доставки (статус PENDING).
func (r *DeliveryRepo) Create(ctx context.Context, d *domain.Delivery) error {
	payloadJSON, err := json.Marshal(d.Payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	query := `
		INSERT INTO deliveries (id, tenant_id, webhook_id, event, payload, status, attempt, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err = r.pool.Exec(ctx, query,
		d.ID, d.TenantID, d.WebhookID, d.Event, payloadJSON, d.Status, d.Attempt, d.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert delivery: %w", err)
	}
	return nil
}

// GetByID возвращает доставку по ID.
func (r *DeliveryRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Delivery, error) {
	query := `SELECT ` + deliveryColumns + ` FROM deliveries WHERE id = $1`
	return scanDelivery(r.pool.QueryRow(ctx, query, id))
}

// Claim атомарно захватывает доставку в работу
// (условный UPDATE PENDING → RUNNING, attempt + 1).
func (r *DeliveryRepo) Claim(ctx context.Context, id uuid.UUID) (*domain.Delivery, error) {
	query := `
		UPDATE deliveries
		SET status = $2, attempt = attempt + 1, started_at = $3
		WHERE id = $1 AND status = $4
		RETURNING ` + deliveryColumns
	d, err := scanDelivery(r.pool.QueryRow(ctx, query,
		id, domain.TaskStatusRunning, time.Now(), domain.TaskStatusPending))
	if errors.Is(err, ErrNotFound) {
		return nil, ErrNotClaimed
	}
	return d, err
}

// Update персистит мутации доставки.
func (r *DeliveryRepo) Update(ctx context.Context, d *domain.Delivery) error {
	query := `
		UPDATE deliveries
		SET status = $2, attempt = $3, response_status = $4, error_message = $5,
		    started_at = $6, completed_at = $7
		WHERE id = $1
	`
	result, err := r.pool.Exec(ctx, query,
		d.ID, d.Status, d.Attempt, d.ResponseStatus, nullString(d.ErrorMessage),
		d.StartedAt, d.CompletedAt)
	if err != nil {
		return fmt.Errorf("update delivery: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Requeue возвращает доставку в PENDING для следующей попытки.
func (r *DeliveryRepo) Requeue(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE deliveries
		SET status = $2, started_at = NULL, completed_at = NULL, error_message = NULL
		WHERE id = $1 AND status = $3
	`
	result, err := r.pool.Exec(ctx, query, id, domain.TaskStatusPending, domain.TaskStatusFailed)
	if err != nil {
		return fmt.Errorf("requeue delivery: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrInvalidState
	}
	return nil
}

// ListPending возвращает доставки в статусе PENDING (polling fallback).
func (r *DeliveryRepo) ListPending(ctx context.Context, limit int) ([]domain.Delivery, error) {
	query := `SELECT ` + deliveryColumns + `
		FROM deliveries
		WHERE status = $1
		ORDER BY created_at ASC
		LIMIT $2`
	rows, err := r.pool.Query(ctx, query, domain.TaskStatusPending, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending deliveries: %w", err)
	}
	defer rows.Close()

	var deliveries []domain.Delivery
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, err
		}
		deliveries = append(deliveries, *d)
	}
	return deliveries, rows.Err()
}

// scanDelivery читает одну строку deliveries.
func scanDelivery(row pgx.Row) (*domain.Delivery, error) {
	var d domain.Delivery
	var payloadJSON []byte
	var errMsg *string
	var responseStatus *int

	err := row.Scan(
		&d.ID,
		&d.TenantID,
		&d.WebhookID,
		&d.Event,
		&payloadJSON,
		&d.Status,
		&d.Attempt,
		&responseStatus,
		&errMsg,
		&d.StartedAt,
		&d.CompletedAt,
		&d.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan delivery: %w", err)
	}

	if payloadJSON != nil {
		if err := json.Unmarshal(payloadJSON, &d.Payload); err != nil {
			return nil, fmt.Errorf("unmarshal payload: %w", err)
		}
	}
	if responseStatus != nil {
		d.ResponseStatus = *responseStatus
	}
	if errMsg != nil {
		d.ErrorMessage = *errMsg
	}

	return &d, nil
}
