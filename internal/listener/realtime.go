package listener

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/avetta/conveyor/internal/bus"
	"github.com/avetta/conveyor/internal/telemetry"
)

// ChannelPublisher — публикация в realtime-каналы.
// Реализуется mq.Publisher (topic-обменник событий).
type ChannelPublisher interface {
	PublishChannel(ctx context.Context, channel string, payload any) error
}

// Realtime транслирует каждое событие во внешние realtime-каналы:
// tenant-scoped канал tenant.{id} плюс resource-scoped канал
// (agent.{id} / workflow.{id}) и user.{id}, если есть инициатор.
//
// В отличие от webhooks и уведомлений публикуются и промежуточные
// провалы: подписчик канала видит каждый attempt.
type Realtime struct {
	publisher ChannelPublisher
	logger    *slog.Logger
}

// NewRealtime создаёт Realtime.
func NewRealtime(publisher ChannelPublisher, logger *slog.Logger) *Realtime {
	if logger == nil {
		logger = slog.Default()
	}
	return &Realtime{
		publisher: publisher,
		logger:    logger,
	}
}

// Name возвращает имя listener'а.
func (l *Realtime) Name() string {
	return "realtime"
}

// Handle обрабатывает событие.
func (l *Realtime) Handle(ctx context.Context, ev *bus.Event) error {
	payload := eventPayload(ev)
	channels := l.channels(ev)

	for _, channel := range channels {
		if err := l.publisher.PublishChannel(ctx, channel, payload); err != nil {
			return fmt.Errorf("publish to %s: %w", channel, err)
		}
	}

	telemetry.EventsPublished.WithLabelValues(string(ev.Name)).Inc()

	return nil
}

// channels возвращает список каналов для события.
func (l *Realtime) channels(ev *bus.Event) []string {
	channels := []string{"tenant." + ev.TenantID.String()}

	if ev.Execution != nil {
		channels = append(channels, "agent."+ev.Execution.AgentID.String())
	}
	if ev.WorkflowExecution != nil {
		channels = append(channels, "workflow."+ev.WorkflowExecution.WorkflowID.String())
	}
	if userID := triggeredBy(ev); userID != nil {
		channels = append(channels, "user."+userID.String())
	}

	return channels
}
