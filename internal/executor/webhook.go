package executor

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/avetta/conveyor/internal/domain"
	"github.com/avetta/conveyor/internal/repo"
	"github.com/avetta/conveyor/internal/telemetry"
)

// deliveryTimeout — таймаут одного HTTP-запроса доставки.
// Короче per-attempt таймаута политики.
const deliveryTimeout = 15 * time.Second

// DeliveryStore — операции над записями webhook deliveries.
type DeliveryStore interface {
	Claim(ctx context.Context, id uuid.UUID) (*domain.Delivery, error)
	Update(ctx context.Context, d *domain.Delivery) error
	Requeue(ctx context.Context, id uuid.UUID) error
}

// WebhookStore — чтение webhooks и атомарные мутации их счётчиков.
type WebhookStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Webhook, error)
	RecordSuccess(ctx context.Context, id uuid.UUID) error
	RecordFailure(ctx context.Context, id uuid.UUID) (int, error)
	Deactivate(ctx context.Context, id uuid.UUID) error
}

// WebhookDeliverer выполняет webhook delivery tasks: POST на URL
// подписчика с подписанным payload.
//
// Неактивный webhook или событие вне подписки — тихий no-op:
// доставка завершается успешно, счётчики не трогаются.
type WebhookDeliverer struct {
	deliveries DeliveryStore
	webhooks   WebhookStore
	client     *http.Client
	logger     *slog.Logger
}

// NewWebhookDeliverer создаёт WebhookDeliverer.
// client опционален: nil — клиент с таймаутом deliveryTimeout.
func NewWebhookDeliverer(deliveries DeliveryStore, webhooks WebhookStore, client *http.Client, logger *slog.Logger) *WebhookDeliverer {
	if client == nil {
		client = &http.Client{Timeout: deliveryTimeout}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &WebhookDeliverer{
		deliveries: deliveries,
		webhooks:   webhooks,
		client:     client,
		logger:     logger,
	}
}

// Kind возвращает вид задачи.
func (e *WebhookDeliverer) Kind() domain.TaskKind {
	return domain.KindWebhookDelivery
}

// Claim атомарно берёт доставку в работу.
func (e *WebhookDeliverer) Claim(ctx context.Context, id uuid.UUID) (*domain.Delivery, error) {
	return e.deliveries.Claim(ctx, id)
}

// Attempt возвращает номер попытки.
func (e *WebhookDeliverer) Attempt(d *domain.Delivery) int {
	return d.Attempt
}

// Execute выполняет одну попытку доставки.
func (e *WebhookDeliverer) Execute(ctx context.Context, d *domain.Delivery) Outcome {
	webhook, err := e.webhooks.GetByID(ctx, d.WebhookID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return e.fail(ctx, d, 0, Fatal(fmt.Errorf("%w: %s", ErrWebhookNotFound, d.WebhookID)))
		}
		return e.fail(ctx, d, 0, Retryable(fmt.Errorf("load webhook: %w", err)))
	}

	// Skip conditions: не ошибка и не доставка, счётчики не трогаем
	if !webhook.IsActive || !webhook.SubscribesTo(d.Event) {
		e.logger.Debug("webhook delivery skipped",
			"delivery_id", d.ID,
			"webhook_id", webhook.ID,
			"event", d.Event,
			"is_active", webhook.IsActive,
		)
		d.MarkCompleted(0)
		if err := e.deliveries.Update(ctx, d); err != nil {
			return Retryable(fmt.Errorf("persist skipped delivery: %w", err))
		}
		return Completed()
	}

	status, err := e.send(ctx, webhook, d)
	if err != nil {
		// failed_calls растёт на каждой неудачной попытке
		if _, recErr := e.webhooks.RecordFailure(context.WithoutCancel(ctx), webhook.ID); recErr != nil {
			e.logger.Error("failed to record webhook failure",
				"webhook_id", webhook.ID,
				"error", recErr,
			)
		}
		telemetry.WebhookDeliveries.WithLabelValues("failure").Inc()
		return e.fail(ctx, d, status, Retryable(err))
	}

	if err := e.webhooks.RecordSuccess(ctx, webhook.ID); err != nil {
		e.logger.Error("failed to record webhook success",
			"webhook_id", webhook.ID,
			"error", err,
		)
	}
	telemetry.WebhookDeliveries.WithLabelValues("success").Inc()

	d.MarkCompleted(status)
	if err := e.deliveries.Update(ctx, d); err != nil {
		return Retryable(fmt.Errorf("persist completed delivery: %w", err))
	}

	return Completed()
}

// Requeue возвращает доставку в PENDING для следующей попытки.
func (e *WebhookDeliverer) Requeue(ctx context.Context, id uuid.UUID) error {
	return e.deliveries.Requeue(ctx, id)
}

// Exhausted — terminal failure hook: перезаписывает error_message
// и авто-отключает webhook при накоплении failed_calls.
func (e *WebhookDeliverer) Exhausted(ctx context.Context, d *domain.Delivery, cause error) {
	d.ErrorMessage = fmt.Sprintf("%s: %v", maxAttemptsMessage, cause)
	if err := e.deliveries.Update(ctx, d); err != nil {
		e.logger.Error("failed to persist exhausted delivery",
			"delivery_id", d.ID,
			"error", err,
		)
	}

	webhook, err := e.webhooks.GetByID(ctx, d.WebhookID)
	if err != nil {
		e.logger.Error("failed to load webhook for auto-disable check",
			"webhook_id", d.WebhookID,
			"error", err,
		)
		return
	}

	if webhook.FailedCalls >= domain.AutoDisableThreshold {
		if err := e.webhooks.Deactivate(ctx, webhook.ID); err != nil {
			e.logger.Error("failed to auto-disable webhook",
				"webhook_id", webhook.ID,
				"error", err,
			)
			return
		}
		e.logger.Log(ctx, telemetry.LevelCritical, "webhook auto-disabled",
			"webhook_id", webhook.ID,
			"failed_calls", webhook.FailedCalls,
		)
	}
}

// send выполняет один POST на URL webhook'а.
// Возвращает HTTP-статус ответа (0, если запрос не дошёл).
func (e *WebhookDeliverer) send(ctx context.Context, webhook *domain.Webhook, d *domain.Delivery) (int, error) {
	// Подпись считается по JSON самого payload, тело запроса —
	// конверт вокруг него. Асимметрия сохранена намеренно:
	// существующие получатели проверяют подпись именно так.
	payloadJSON, err := json.Marshal(d.Payload)
	if err != nil {
		return 0, fmt.Errorf("marshal payload: %w", err)
	}

	envelope := map[string]any{
		"event":     d.Event,
		"data":      d.Payload,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	body, err := json.Marshal(envelope)
	if err != nil {
		return 0, fmt.Errorf("marshal body: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, deliveryTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhook.URL, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}

	// Кастомные заголовки первыми: фиксированные перекрывают их,
	// подписчик не может подменить Content-Type или подпись
	for key, val := range webhook.CustomHeaders {
		req.Header.Set(key, val)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-Event", d.Event)
	req.Header.Set("X-Webhook-ID", webhook.ID.String())
	req.Header.Set("X-Webhook-Timestamp", time.Now().UTC().Format(time.RFC3339))
	if webhook.Secret != "" {
		req.Header.Set("X-Webhook-Signature", Sign(webhook.Secret, payloadJSON))
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("webhook request: %w", err)
	}
	defer resp.Body.Close()

	// Тело читаем и отбрасываем: важен только статус
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, fmt.Errorf("%w: %d", ErrWebhookStatus, resp.StatusCode)
	}

	return resp.StatusCode, nil
}

// fail доводит доставку до FAILED и возвращает исходный Outcome.
// Событий webhook delivery не публикует: каскад webhook-on-webhook не нужен.
func (e *WebhookDeliverer) fail(ctx context.Context, d *domain.Delivery, status int, out Outcome) Outcome {
	ctx = context.WithoutCancel(ctx)

	d.MarkFailed(status, out.Err.Error())
	if err := e.deliveries.Update(ctx, d); err != nil {
		e.logger.Error("failed to persist failed delivery",
			"delivery_id", d.ID,
			"error", err,
		)
	}

	return out
}

// Sign возвращает hex-подпись HMAC-SHA256 payload ключом secret.
func Sign(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}
