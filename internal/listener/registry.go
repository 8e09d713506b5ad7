package listener

import "github.com/avetta/conveyor/internal/bus"

// BuildRegistry собирает статическую таблицу подписок.
// Таблица фиксируется на старте процесса и не меняется в рантайме.
// Nil-listener пропускается: например, без RabbitMQ нет realtime-каналов.
func BuildRegistry(fanout *WebhookFanout, notify *NotifyUser, activity *Activity, realtime *Realtime) *bus.Registry {
	reg := bus.NewRegistry()

	all := []bus.Name{
		bus.EventExecutionCompleted,
		bus.EventExecutionFailed,
		bus.EventWorkflowCompleted,
		bus.EventWorkflowFailed,
	}

	for _, name := range all {
		if fanout != nil {
			reg.Subscribe(name, fanout)
		}
		if realtime != nil {
			reg.Subscribe(name, realtime)
		}
	}

	if notify != nil {
		// Уведомления — только о провалах; терминальность проверяет сам listener
		reg.Subscribe(bus.EventExecutionFailed, notify)
		reg.Subscribe(bus.EventWorkflowFailed, notify)
	}

	if activity != nil {
		// Аудит workflow-части
		reg.Subscribe(bus.EventWorkflowCompleted, activity)
		reg.Subscribe(bus.EventWorkflowFailed, activity)
	}

	return reg
}
