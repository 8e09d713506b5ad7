package listener

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/avetta/conveyor/internal/bus"
	"github.com/avetta/conveyor/internal/domain"
)

// WebhookLister — поиск активных webhooks, подписанных на событие.
type WebhookLister interface {
	ListActiveByEvent(ctx context.Context, tenantID uuid.UUID, event string) ([]domain.Webhook, error)
}

// DeliveryEnqueuer — постановка доставок в очередь.
// Реализуется router.Router.
type DeliveryEnqueuer interface {
	EnqueueDelivery(ctx context.Context, d *domain.Delivery) (uuid.UUID, error)
}

// WebhookFanout на каждое терминальное событие находит все активные
// webhooks tenant'а, подписанные на имя события, и ставит по одной
// Delivery-задаче на каждый. Fan-out, не multicast: доставки
// независимы, retry и счётчики у каждой свои.
type WebhookFanout struct {
	webhooks WebhookLister
	enqueuer DeliveryEnqueuer
	logger   *slog.Logger
}

// NewWebhookFanout создаёт WebhookFanout.
func NewWebhookFanout(webhooks WebhookLister, enqueuer DeliveryEnqueuer, logger *slog.Logger) *WebhookFanout {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebhookFanout{
		webhooks: webhooks,
		enqueuer: enqueuer,
		logger:   logger,
	}
}

// Name возвращает имя listener'а.
func (l *WebhookFanout) Name() string {
	return "webhook_fanout"
}

// Handle обрабатывает событие.
//
// Промежуточные провалы (будет retry) не доставляются: подписчик
// получает только окончательный исход задачи.
func (l *WebhookFanout) Handle(ctx context.Context, ev *bus.Event) error {
	if !ev.Terminal {
		return nil
	}

	webhooks, err := l.webhooks.ListActiveByEvent(ctx, ev.TenantID, string(ev.Name))
	if err != nil {
		return fmt.Errorf("list webhooks for %s: %w", ev.Name, err)
	}
	if len(webhooks) == 0 {
		return nil
	}

	payload := eventPayload(ev)

	for i := range webhooks {
		webhook := &webhooks[i]

		d := &domain.Delivery{
			TenantID:  ev.TenantID,
			WebhookID: webhook.ID,
			Event:     string(ev.Name),
			Payload:   payload,
		}

		if _, err := l.enqueuer.EnqueueDelivery(ctx, d); err != nil {
			// Остальные доставки не страдают из-за одной
			l.logger.Error("failed to enqueue webhook delivery",
				"webhook_id", webhook.ID,
				"event", ev.Name,
				"error", err,
			)
			continue
		}
	}

	l.logger.Debug("webhook deliveries enqueued",
		"event", ev.Name,
		"tenant_id", ev.TenantID,
		"count", len(webhooks),
	)

	return nil
}
