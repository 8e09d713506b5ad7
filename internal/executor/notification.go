package executor

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/avetta/conveyor/internal/domain"
)

// NotificationStore — операции над записями notifications.
type NotificationStore interface {
	Claim(ctx context.Context, id uuid.UUID) (*domain.Notification, error)
	Update(ctx context.Context, n *domain.Notification) error
	Requeue(ctx context.Context, id uuid.UUID) error
}

// Sender — внешний collaborator доставки уведомлений.
type Sender interface {
	Send(ctx context.Context, userID uuid.UUID, channel domain.NotificationChannel, data map[string]any) error
}

// NotificationExecutor выполняет notification tasks.
//
// Неизвестный канал — конфигурационная ошибка, retry бесполезен.
type NotificationExecutor struct {
	notifications NotificationStore
	sender        Sender
	logger        *slog.Logger
}

// NewNotificationExecutor создаёт NotificationExecutor.
func NewNotificationExecutor(notifications NotificationStore, sender Sender, logger *slog.Logger) *NotificationExecutor {
	if logger == nil {
		logger = slog.Default()
	}
	return &NotificationExecutor{
		notifications: notifications,
		sender:        sender,
		logger:        logger,
	}
}

// Kind возвращает вид задачи.
func (e *NotificationExecutor) Kind() domain.TaskKind {
	return domain.KindNotification
}

// Claim атомарно берёт уведомление в работу.
func (e *NotificationExecutor) Claim(ctx context.Context, id uuid.UUID) (*domain.Notification, error) {
	return e.notifications.Claim(ctx, id)
}

// Attempt возвращает номер попытки.
func (e *NotificationExecutor) Attempt(n *domain.Notification) int {
	return n.Attempt
}

// Execute выполняет одну попытку отправки.
func (e *NotificationExecutor) Execute(ctx context.Context, n *domain.Notification) Outcome {
	if !n.Channel.IsValid() {
		return e.fail(ctx, n, Fatal(fmt.Errorf("%w: %q", ErrUnknownChannel, n.Channel)))
	}

	if err := e.sender.Send(ctx, n.UserID, n.Channel, n.Data); err != nil {
		return e.fail(ctx, n, Retryable(fmt.Errorf("send %s notification: %w", n.Channel, err)))
	}

	n.MarkCompleted()
	if err := e.notifications.Update(ctx, n); err != nil {
		return Retryable(fmt.Errorf("persist completed notification: %w", err))
	}

	return Completed()
}

// Requeue возвращает уведомление в PENDING для следующей попытки.
func (e *NotificationExecutor) Requeue(ctx context.Context, id uuid.UUID) error {
	return e.notifications.Requeue(ctx, id)
}

// Exhausted перезаписывает error_message терминального провала.
func (e *NotificationExecutor) Exhausted(ctx context.Context, n *domain.Notification, cause error) {
	n.ErrorMessage = fmt.Sprintf("%s: %v", maxAttemptsMessage, cause)
	if err := e.notifications.Update(ctx, n); err != nil {
		e.logger.Error("failed to persist exhausted notification",
			"notification_id", n.ID,
			"error", err,
		)
	}
}

// fail доводит уведомление до FAILED и возвращает исходный Outcome.
func (e *NotificationExecutor) fail(ctx context.Context, n *domain.Notification, out Outcome) Outcome {
	ctx = context.WithoutCancel(ctx)

	n.MarkFailed(out.Err.Error())
	if err := e.notifications.Update(ctx, n); err != nil {
		e.logger.Error("failed to persist failed notification",
			"notification_id", n.ID,
			"error", err,
		)
	}

	return out
}

// LogSender — Sender, пишущий уведомления в лог.
// Используется, пока внешний провайдер доставки не подключён.
type LogSender struct {
	Logger *slog.Logger
}

// Send логирует уведомление вместо реальной отправки.
func (s *LogSender) Send(ctx context.Context, userID uuid.UUID, channel domain.NotificationChannel, data map[string]any) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("notification dispatched",
		"user_id", userID,
		"channel", channel,
		"keys", len(data),
	)
	return nil
}
