package listener

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/avetta/conveyor/internal/bus"
	"github.com/avetta/conveyor/internal/domain"
)

// NotificationEnqueuer — постановка уведомлений в очередь.
// Реализуется router.Router.
type NotificationEnqueuer interface {
	EnqueueNotification(ctx context.Context, n *domain.Notification) (uuid.UUID, error)
}

// NotifyUser ставит уведомление пользователю о терминальном провале
// его задачи. Подписывается на agent.failed и workflow.failed;
// промежуточные провалы (будет retry) пользователя не касаются.
type NotifyUser struct {
	enqueuer NotificationEnqueuer
	channel  domain.NotificationChannel
	logger   *slog.Logger
}

// NewNotifyUser создаёт NotifyUser с каналом доставки по умолчанию.
func NewNotifyUser(enqueuer NotificationEnqueuer, channel domain.NotificationChannel, logger *slog.Logger) *NotifyUser {
	if channel == "" {
		channel = domain.ChannelEmail
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &NotifyUser{
		enqueuer: enqueuer,
		channel:  channel,
		logger:   logger,
	}
}

// Name возвращает имя listener'а.
func (l *NotifyUser) Name() string {
	return "notify_user"
}

// Handle обрабатывает событие.
func (l *NotifyUser) Handle(ctx context.Context, ev *bus.Event) error {
	if !ev.Terminal {
		return nil
	}

	userID := triggeredBy(ev)
	if userID == nil {
		// Задача без инициатора (например, запуск по расписанию)
		return nil
	}

	n := &domain.Notification{
		TenantID: ev.TenantID,
		UserID:   *userID,
		Channel:  l.channel,
		Data:     eventPayload(ev),
	}

	if _, err := l.enqueuer.EnqueueNotification(ctx, n); err != nil {
		return fmt.Errorf("enqueue notification for %s: %w", ev.Name, err)
	}

	return nil
}

// triggeredBy возвращает инициатора задачи события, если он есть.
func triggeredBy(ev *bus.Event) *uuid.UUID {
	if ev.Execution != nil {
		return ev.Execution.TriggeredByUserID
	}
	if ev.WorkflowExecution != nil {
		return ev.WorkflowExecution.TriggeredByUserID
	}
	return nil
}
