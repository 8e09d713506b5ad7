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

// WebhookRepo — репозиторий webhooks.
//
// CRUD принадлежит внешнему слою; ядро мутирует только счётчики
// (атомарные инкременты в SQL, не read-modify-write) и is_active.
type WebhookRepo struct {
	pool *pgxpool.Pool
}

// NewWebhookRepo создаёт новый WebhookRepo.
func NewWebhookRepo(pool *pgxpool.Pool) *WebhookRepo {
	return &WebhookRepo{pool: pool}
}

const webhookColumns = `
	id, tenant_id, url, events, secret, custom_headers,
	is_active, total_calls, failed_calls, last_triggered_at, created_at
`

// GetByID возвращает webhook по ID.
func (r *WebhookRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Webhook, error) {
	query := `SELECT ` + webhookColumns + ` FROM webhooks WHERE id = $1`
	return scanWebhook(r.pool.QueryRow(ctx, query, id))
}

// ListActiveByEvent возвращает активные webhooks tenant'а,
// подписанные на событие. Используется listener'ом fan-out.
func (r *WebhookRepo) ListActiveByEvent(ctx context.Context, tenantID uuid.UUID, event string) ([]domain.Webhook, error) {
	query := `SELECT ` + webhookColumns + `
		FROM webhooks
		WHERE tenant_id = $1 AND is_active = TRUE AND events @> $2
		ORDER BY created_at ASC`

	eventsJSON, err := json.Marshal([]string{event})
	if err != nil {
		return nil, fmt.Errorf("marshal event filter: %w", err)
	}

	rows, err := r.pool.Query(ctx, query, tenantID, eventsJSON)
	if err != nil {
		return nil, fmt.Errorf("list webhooks by event: %w", err)
	}
	defer rows.Close()

	var webhooks []domain.Webhook
	for rows.Next() {
		wh, err := scanWebhook(rows)
		if err != nil {
			return nil, err
		}
		webhooks = append(webhooks, *wh)
	}
	return webhooks, rows.Err()
}

// RecordSuccess атомарно инкрементит total_calls и ставит last_triggered_at.
func (r *WebhookRepo) RecordSuccess(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE webhooks
		SET total_calls = total_calls + 1, last_triggered_at = NOW()
		WHERE id = $1
	`
	result, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("record webhook success: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// RecordFailure атомарно инкрементит failed_calls и возвращает новое
// значение счётчика — по нему граница терминального провала решает
// про авто-отключение.
func (r *WebhookRepo) RecordFailure(ctx context.Context, id uuid.UUID) (int, error) {
	query := `
		UPDATE webhooks
		SET failed_calls = failed_calls + 1
		WHERE id = $1
		RETURNING failed_calls
	`
	var failedCalls int
	err := r.pool.QueryRow(ctx, query, id).Scan(&failedCalls)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("record webhook failure: %w", err)
	}
	return failedCalls, nil
}

// Deactivate выключает webhook (is_active = false).
// Обратное включение — только вручную, вне этого ядра.
func (r *WebhookRepo) Deactivate(ctx context.Context, id uuid.UUID) error {
	result, err := r.pool.Exec(ctx, `UPDATE webhooks SET is_active = FALSE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deactivate webhook: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// scanWebhook читает одну строку webhooks.
func scanWebhook(row pgx.Row) (*domain.Webhook, error) {
	var wh domain.Webhook
	var eventsJSON, headersJSON []byte
	var secret *string

	err := row.Scan(
		&wh.ID,
		&wh.TenantID,
		&wh.URL,
		&eventsJSON,
		&secret,
		&headersJSON,
		&wh.IsActive,
		&wh.TotalCalls,
		&wh.FailedCalls,
		&wh.LastTriggeredAt,
		&wh.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan webhook: %w", err)
	}

	if eventsJSON != nil {
		if err := json.Unmarshal(eventsJSON, &wh.Events); err != nil {
			return nil, fmt.Errorf("unmarshal events: %w", err)
		}
	}
	if headersJSON != nil {
		if err := json.Unmarshal(headersJSON, &wh.CustomHeaders); err != nil {
			return nil, fmt.Errorf("unmarshal custom_headers: %w", err)
		}
	}
	if secret != nil {
		wh.Secret = *secret
	}

	return &wh, nil
}
