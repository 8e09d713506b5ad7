package domain

import (
	"time"

	"github.com/google/uuid"
)

// AutoDisableThreshold — порог накопленных failed_calls, после которого
// webhook автоматически отключается. Проверяется на границе терминального
// провала доставки, не на каждой попытке. Обратное включение — вручную.
const AutoDisableThreshold = 10

// Webhook — подписка tenant'а на события.
//
// Запись принадлежит внешнему CRUD-слою; это ядро читает её и мутирует
// только счётчики (атомарные инкременты) и is_active.
type Webhook struct {
	// ID — уникальный идентификатор webhook.
	ID uuid.UUID `json:"id"`

	// TenantID — владеющий tenant.
	TenantID uuid.UUID `json:"tenant_id"`

	// URL — адрес доставки (POST).
	URL string `json:"url"`

	// Events — имена событий, на которые подписан webhook.
	Events []string `json:"events"`

	// Secret — ключ для HMAC-SHA256 подписи payload (опционально).
	Secret string `json:"secret,omitempty"`

	// CustomHeaders — дополнительные заголовки запроса.
	// Фиксированные заголовки доставки имеют приоритет.
	CustomHeaders map[string]string `json:"custom_headers,omitempty"`

	// IsActive — false после авто-отключения или ручной деактивации.
	IsActive bool `json:"is_active"`

	// TotalCalls — количество успешных доставок (атомарный инкремент).
	TotalCalls int `json:"total_calls"`

	// FailedCalls — количество неуспешных попыток (атомарный инкремент).
	FailedCalls int `json:"failed_calls"`

	// LastTriggeredAt — время последней успешной доставки.
	LastTriggeredAt *time.Time `json:"last_triggered_at,omitempty"`

	// CreatedAt — время создания.
	CreatedAt time.Time `json:"created_at"`
}

// SubscribesTo проверяет, подписан ли webhook на событие.
func (w *Webhook) SubscribesTo(event string) bool {
	for _, e := range w.Events {
		if e == event {
			return true
		}
	}
	return false
}

// Delivery — одна доставка webhook (webhook delivery task).
type Delivery struct {
	// ID — уникальный идентификатор доставки.
	ID uuid.UUID `json:"id"`

	// TenantID — владеющий tenant.
	TenantID uuid.UUID `json:"tenant_id"`

	// WebhookID — webhook, на который идёт доставка.
	WebhookID uuid.UUID `json:"webhook_id"`

	// Event — имя события (попадает в X-Webhook-Event и тело запроса).
	Event string `json:"event"`

	// Payload — полезная нагрузка события. Подпись считается
	// именно по ней, а не по отправляемому конверту.
	Payload map[string]any `json:"payload,omitempty"`

	// Status — текущий статус.
	Status TaskStatus `json:"status"`

	// Attempt — номер попытки.
	Attempt int `json:"attempt"`

	// ResponseStatus — HTTP-код последнего ответа (0, если запрос не дошёл).
	ResponseStatus int `json:"response_status,omitempty"`

	// ErrorMessage — текст ошибки при терминальном провале.
	ErrorMessage string `json:"error_message,omitempty"`

	// StartedAt — время начала последней попытки.
	StartedAt *time.Time `json:"started_at,omitempty"`

	// CompletedAt — время завершения.
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// CreatedAt — время создания записи.
	CreatedAt time.Time `json:"created_at"`
}

// MarkCompleted переводит доставку в COMPLETED.
func (d *Delivery) MarkCompleted(responseStatus int) {
	now := time.Now()
	d.Status = TaskStatusCompleted
	d.CompletedAt = &now
	d.ResponseStatus = responseStatus
}

// MarkFailed переводит доставку в FAILED с ошибкой.
func (d *Delivery) MarkFailed(responseStatus int, errMsg string) {
	now := time.Now()
	d.Status = TaskStatusFailed
	d.CompletedAt = &now
	d.ResponseStatus = responseStatus
	d.ErrorMessage = errMsg
}

// CanRetry проверяет, можно ли сделать ещё одну попытку.
func (d *Delivery) CanRetry(maxAttempts int) bool {
	return d.Attempt < maxAttempts
}
