package domain

import (
	"time"

	"github.com/google/uuid"
)

// NotificationChannel — канал доставки уведомления.
//
// Неизвестный канал — ошибка конфигурации (фатальная, без retry).
type NotificationChannel string

const (
	ChannelEmail NotificationChannel = "email"
	ChannelPush  NotificationChannel = "push"
	ChannelSMS   NotificationChannel = "sms"
)

// IsValid проверяет, известен ли канал.
func (c NotificationChannel) IsValid() bool {
	switch c {
	case ChannelEmail, ChannelPush, ChannelSMS:
		return true
	default:
		return false
	}
}

// Notification — отправка уведомления пользователю (notification task).
type Notification struct {
	// ID — уникальный идентификатор.
	ID uuid.UUID `json:"id"`

	// TenantID — владеющий tenant.
	TenantID uuid.UUID `json:"tenant_id"`

	// UserID — получатель.
	UserID uuid.UUID `json:"user_id"`

	// Channel — email / push / sms.
	Channel NotificationChannel `json:"channel"`

	// Data — содержимое уведомления (шаблонизация — забота sender'а).
	Data map[string]any `json:"data,omitempty"`

	// Status — текущий статус.
	Status TaskStatus `json:"status"`

	// Attempt — номер попытки.
	Attempt int `json:"attempt"`

	// ErrorMessage — текст ошибки при терминальном провале.
	ErrorMessage string `json:"error_message,omitempty"`

	// StartedAt — время начала последней попытки.
	StartedAt *time.Time `json:"started_at,omitempty"`

	// CompletedAt — время завершения.
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// CreatedAt — время создания записи.
	CreatedAt time.Time `json:"created_at"`
}

// MarkCompleted переводит уведомление в COMPLETED.
func (n *Notification) MarkCompleted() {
	now := time.Now()
	n.Status = TaskStatusCompleted
	n.CompletedAt = &now
}

// MarkFailed переводит уведомление в FAILED с ошибкой.
func (n *Notification) MarkFailed(errMsg string) {
	now := time.Now()
	n.Status = TaskStatusFailed
	n.CompletedAt = &now
	n.ErrorMessage = errMsg
}

// CanRetry проверяет, можно ли сделать ещё одну попытку.
func (n *Notification) CanRetry(maxAttempts int) bool {
	return n.Attempt < maxAttempts
}
