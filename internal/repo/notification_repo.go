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

// NotificationRepo — репозиторий notification tasks.
type NotificationRepo struct {
	pool *pgxpool.Pool
}

// NewNotificationRepo создаёт новый NotificationRepo.
func NewNotificationRepo(pool *pgxpool.Pool) *NotificationRepo {
	return &NotificationRepo{pool: pool}
}

const notificationColumns = `
	id, tenant_id, user_id, channel, data, status, attempt,
	error_message, started_at, completed_at, created_at
`

// Create создаёт новую запись уведомления (статус PENDING).
func (r *NotificationRepo) Create(ctx context.Context, n *domain.Notification) error {
	dataJSON, err := json.Marshal(n.Data)
	if err != nil {
		return fmt.Errorf("marshal data: %w", err)
	}

	query := `
		INSERT INTO notifications (id, tenant_id, user_id, channel, data, status, attempt, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err = r.pool.Exec(ctx, query,
		n.ID, n.TenantID, n.UserID, n.Channel, dataJSON, n.Status, n.Attempt, n.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

// GetByID возвращает уведомление по ID.
func (r *NotificationRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE id = $1`
	return scanNotification(r.pool.QueryRow(ctx, query, id))
}

// Claim атомарно захватывает уведомление в работу
// (условный UPDATE PENDING → RUNNING, attempt + 1).
func (r *NotificationRepo) Claim(ctx context.Context, id uuid.UUID) (*domain.Notification, error) {
	query := `
		UPDATE notifications
		SET status = $2, attempt = attempt + 1, started_at = $3
		WHERE id = $1 AND status = $4
		RETURNING ` + notificationColumns
	n, err := scanNotification(r.pool.QueryRow(ctx, query,
		id, domain.TaskStatusRunning, time.Now(), domain.TaskStatusPending))
	if errors.Is(err, ErrNotFound) {
		return nil, ErrNotClaimed
	}
	return n, err
}

// Update персистит мутации уведомления.
func (r *NotificationRepo) Update(ctx context.Context, n *domain.Notification) error {
	query := `
		UPDATE notifications
		SET status = $2, attempt = $3, error_message = $4, started_at = $5, completed_at = $6
		WHERE id = $1
	`
	result, err := r.pool.Exec(ctx, query,
		n.ID, n.Status, n.Attempt, nullString(n.ErrorMessage), n.StartedAt, n.CompletedAt)
	if err != nil {
		return fmt.Errorf("update notification: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Requeue возвращает уведомление в PENDING для следующей попытки.
func (r *NotificationRepo) Requeue(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE notifications
		SET status = $2, started_at = NULL, completed_at = NULL, error_message = NULL
		WHERE id = $1 AND status = $3
	`
	result, err := r.pool.Exec(ctx, query, id, domain.TaskStatusPending, domain.TaskStatusFailed)
	if err != nil {
		return fmt.Errorf("requeue notification: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrInvalidState
	}
	return nil
}

// ListPending возвращает уведомления в статусе PENDING (polling fallback).
func (r *NotificationRepo) ListPending(ctx context.Context, limit int) ([]domain.Notification, error) {
	query := `SELECT ` + notificationColumns + `
		FROM notifications
		WHERE status = $1
		ORDER BY created_at ASC
		LIMIT $2`
	rows, err := r.pool.Query(ctx, query, domain.TaskStatusPending, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending notifications: %w", err)
	}
	defer rows.Close()

	var notifications []domain.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		notifications = append(notifications, *n)
	}
	return notifications, rows.Err()
}

// scanNotification читает одну строку notifications.
func scanNotification(row pgx.Row) (*domain.Notification, error) {
	var n domain.Notification
	var dataJSON []byte
	var errMsg *string

	err := row.Scan(
		&n.ID,
		&n.TenantID,
		&n.UserID,
		&n.Channel,
		&dataJSON,
		&n.Status,
		&n.Attempt,
		&errMsg,
		&n.StartedAt,
		&n.CompletedAt,
		&n.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan notification: %w", err)
	}

	if dataJSON != nil {
		if err := json.Unmarshal(dataJSON, &n.Data); err != nil {
			return nil, fmt.Errorf("unmarshal data: %w", err)
		}
	}
	if errMsg != nil {
		n.ErrorMessage = *errMsg
	}

	return &n, nil
}
