package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/avetta/conveyor/internal/domain"
	"github.com/avetta/conveyor/internal/executor"
	"github.com/avetta/conveyor/internal/mq"
)

// Default configuration values.
const (
	defaultPollInterval = 10 * time.Second
	defaultBatchSize    = 50
	defaultPrefetch     = 5
)

// Worker выполняет задачи пайплайна.
//
// Worker — stateless компонент, который:
//   - Потребляет координаты задач из всех lanes RabbitMQ (event-driven)
//   - Периодически проверяет PENDING записи в БД (polling fallback)
//   - Диспетчеризует по виду задачи на соответствующий executor
//   - Прогоняет задачу через общий retry-цикл
//
// Workers масштабируются горизонтально — атомарный claim в store
// гарантирует, что задачу выполняет ровно один воркер.
type Worker struct {
	// Executors
	agents        *executor.AgentExecutor
	workflows     *executor.WorkflowExecutor
	webhooks      *executor.WebhookDeliverer
	notifications *executor.NotificationExecutor

	// Polling fallback
	pollers map[domain.TaskKind]Poller

	// MQ
	conn      *mq.Connection
	consumers []*mq.Consumer

	// Configuration
	pollInterval time.Duration
	batchSize    int

	// Lifecycle
	logger     *slog.Logger
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	stopped    bool
	stoppedMu  sync.RWMutex
}

// Poller — список PENDING задач одного вида для polling fallback.
type Poller interface {
	PendingIDs(ctx context.Context, limit int) ([]PendingTask, error)
}

// PendingTask — координаты PENDING задачи.
type PendingTask struct {
	ID       uuid.UUID
	TenantID uuid.UUID
}

// Config — конфигурация Worker.
type Config struct {
	// Executors
	Agents        *executor.AgentExecutor
	Workflows     *executor.WorkflowExecutor
	Webhooks      *executor.WebhookDeliverer
	Notifications *executor.NotificationExecutor

	// Polling fallback: по Poller на вид задачи (опционально)
	Pollers map[domain.TaskKind]Poller

	// MQ
	Conn *mq.Connection

	// Polling configuration
	PollInterval time.Duration // интервал polling (default: 10s)
	BatchSize    int           // количество задач за один poll (default: 50)

	// Logger
	Logger *slog.Logger
}

// New создаёт новый Worker.
func New(cfg Config) *Worker {
	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Worker{
		agents:        cfg.Agents,
		workflows:     cfg.Workflows,
		webhooks:      cfg.Webhooks,
		notifications: cfg.Notifications,
		pollers:       cfg.Pollers,
		conn:          cfg.Conn,
		pollInterval:  pollInterval,
		batchSize:     batchSize,
		logger:        logger,
	}
}

// Start запускает Worker.
//
// Запускает:
//   - Consumer на каждую lane
//   - Polling горутину для fallback
func (w *Worker) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	w.cancelFunc = cancel

	w.logger.Info("starting worker",
		"lanes", len(mq.AllLanes),
		"poll_interval", w.pollInterval,
		"batch_size", w.batchSize,
	)

	if w.conn != nil {
		for _, lane := range mq.AllLanes {
			consumer := mq.NewConsumer(w.conn, w.logger, mq.ConsumerConfig{
				Queue:    lane.Queue(),
				Handler:  w.handleTaskEnqueued,
				Prefetch: defaultPrefetch,
			})
			w.consumers = append(w.consumers, consumer)

			w.wg.Add(1)
			go func(c *mq.Consumer, lane mq.Lane) {
				defer w.wg.Done()
				if err := c.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
					w.logger.Error("lane consumer error", "lane", lane, "error", err)
				}
			}(consumer, lane)
		}
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.pollLoop(ctx)
	}()

	w.logger.Info("worker started")
	return nil
}

// Stop останавливает Worker.
func (w *Worker) Stop() {
	w.stoppedMu.Lock()
	w.stopped = true
	w.stoppedMu.Unlock()

	w.logger.Info("stopping worker...")

	if w.cancelFunc != nil {
		w.cancelFunc()
	}

	for _, c := range w.consumers {
		c.Stop()
	}

	// Ждём завершения горутин
	w.wg.Wait()

	w.logger.Info("worker stopped")
}

// IsStopped проверяет, остановлен ли Worker.
func (w *Worker) IsStopped() bool {
	w.stoppedMu.RLock()
	defer w.stoppedMu.RUnlock()
	return w.stopped
}

// pollLoop — цикл polling для fallback.
func (w *Worker) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	// Первый poll сразу при старте (подхватываем задачи, созданные
	// пока воркеры были выключены)
	w.poll(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.poll(ctx)
		}
	}
}

// poll выполняет один цикл polling по всем видам задач.
func (w *Worker) poll(ctx context.Context) {
	for kind, poller := range w.pollers {
		tasks, err := poller.PendingIDs(ctx, w.batchSize)
		if err != nil {
			w.logger.Error("failed to list pending tasks", "kind", kind, "error", err)
			continue
		}
		if len(tasks) == 0 {
			continue
		}

		w.logger.Debug("poll found pending tasks", "kind", kind, "count", len(tasks))

		for _, task := range tasks {
			if err := w.process(ctx, kind, task.ID); err != nil {
				w.logger.Error("failed to process task from poll",
					"kind", kind,
					"task_id", task.ID,
					"error", err,
				)
			}
			if ctx.Err() != nil {
				return
			}
		}
	}
}
