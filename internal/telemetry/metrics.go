package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Метрики пайплайна задач. Лейбл kind — тип задачи
// (agent_execution, workflow_execution, webhook_delivery, notification).
var (
	// TasksCompleted — счётчик успешно завершённых задач.
	TasksCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "conveyor_tasks_completed_total",
		Help: "Количество успешно завершённых задач",
	}, []string{"kind"})

	// TasksFailed — счётчик терминально провалившихся задач.
	TasksFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "conveyor_tasks_failed_total",
		Help: "Количество задач, провалившихся после исчерпания попыток",
	}, []string{"kind"})

	// TaskRetries — счётчик повторных попыток.
	TaskRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "conveyor_task_retries_total",
		Help: "Количество повторных попыток выполнения задач",
	}, []string{"kind"})

	// TaskDuration — гистограмма длительности выполнения задач.
	TaskDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "conveyor_task_duration_seconds",
		Help:    "Длительность выполнения задач",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
	}, []string{"kind"})

	// WebhookDeliveries — счётчик попыток доставки вебхуков по HTTP статусу.
	WebhookDeliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "conveyor_webhook_deliveries_total",
		Help: "Количество HTTP попыток доставки вебхуков",
	}, []string{"outcome"})

	// EventsPublished — счётчик опубликованных доменных событий.
	EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "conveyor_events_published_total",
		Help: "Количество опубликованных доменных событий",
	}, []string{"event"})
)
