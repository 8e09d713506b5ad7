// Package bus — внутрипроцессный publish/subscribe для событий пайплайна.
//
// Executor'ы публикуют события завершения/провала; независимые listener'ы
// (fan-out webhooks, уведомления, аудит, realtime-каналы) подписываются
// через статический Registry и ставят follow-on задачи в очередь.
//
// Гарантии: at-least-once, порядок между разными listener'ами одного
// события не гарантирован; внутри одного listener'а события
// обрабатываются последовательно.
package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// Bus — внутрипроцессная шина событий поверх watermill gochannel.
type Bus struct {
	pubsub   *gochannel.GoChannel
	registry *Registry
	logger   *slog.Logger

	wg         sync.WaitGroup
	cancelFunc context.CancelFunc
}

// New создаёт Bus с заданным Registry.
// Registry после этого мутировать нельзя.
func New(registry *Registry, logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}

	pubsub := gochannel.NewGoChannel(
		gochannel.Config{OutputChannelBuffer: 64},
		watermill.NewSlogLogger(logger),
	)

	return &Bus{
		pubsub:   pubsub,
		registry: registry,
		logger:   logger,
	}
}

// Start подписывает все listener'ы из Registry.
// Должен быть вызван до первой публикации: gochannel не хранит
// сообщения для будущих подписчиков.
func (b *Bus) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	b.cancelFunc = cancel

	for _, name := range b.registry.Events() {
		messages, err := b.pubsub.Subscribe(ctx, string(name))
		if err != nil {
			return fmt.Errorf("subscribe %s: %w", name, err)
		}

		listeners := b.registry.Listeners(name)

		b.wg.Add(1)
		go func(name Name, messages <-chan *message.Message, listeners []Listener) {
			defer b.wg.Done()
			b.dispatchLoop(ctx, name, messages, listeners)
		}(name, messages, listeners)
	}

	b.logger.Info("event bus started", "events", len(b.registry.Events()))
	return nil
}

// Publish публикует событие. Ошибки listener'ов publisher'а не касаются:
// запись задачи уже durable к этому моменту.
func (b *Bus) Publish(ctx context.Context, ev *Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	msg := message.NewMessage(ev.ID.String(), payload)
	msg.SetContext(ctx)

	if err := b.pubsub.Publish(string(ev.Name), msg); err != nil {
		return fmt.Errorf("publish %s: %w", ev.Name, err)
	}

	b.logger.Debug("event published",
		"event", ev.Name,
		"event_id", ev.ID,
		"tenant_id", ev.TenantID,
	)

	return nil
}

// Close останавливает шину и ждёт завершения dispatch-горутин.
func (b *Bus) Close() error {
	if b.cancelFunc != nil {
		b.cancelFunc()
	}
	err := b.pubsub.Close()
	b.wg.Wait()
	return err
}

// dispatchLoop обрабатывает сообщения одного события.
func (b *Bus) dispatchLoop(ctx context.Context, name Name, messages <-chan *message.Message, listeners []Listener) {
	for msg := range messages {
		var ev Event
		if err := json.Unmarshal(msg.Payload, &ev); err != nil {
			b.logger.Error("failed to unmarshal event",
				"event", name,
				"message_id", msg.UUID,
				"error", err,
			)
			msg.Ack()
			continue
		}

		for _, l := range listeners {
			b.invoke(ctx, l, &ev)
		}

		// Ack всегда: провал listener'а не повод для redelivery,
		// событие уже записано в store publisher'ом
		msg.Ack()
	}
}

// invoke вызывает один listener с защитой от паники.
func (b *Bus) invoke(ctx context.Context, l Listener, ev *Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("listener panicked",
				"listener", l.Name(),
				"event", ev.Name,
				"event_id", ev.ID,
				"panic", r,
			)
		}
	}()

	if err := l.Handle(ctx, ev); err != nil {
		b.logger.Error("listener failed",
			"listener", l.Name(),
			"event", ev.Name,
			"event_id", ev.ID,
			"error", err,
		)
	}
}
