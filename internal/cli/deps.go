package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/avetta/conveyor/internal/mq"
	"github.com/avetta/conveyor/internal/repo"
	"github.com/avetta/conveyor/internal/router"
)

// Deps — подключённые зависимости команд: репозитории и router.
// CLI работает напрямую со store и очередью, без промежуточного API.
type Deps struct {
	Executions         *repo.ExecutionRepo
	WorkflowExecutions *repo.WorkflowExecutionRepo
	Deliveries         *repo.DeliveryRepo
	Notifications      *repo.NotificationRepo
	Webhooks           *repo.WebhookRepo
	Agents             *repo.AgentRepo
	Schedules          *repo.ScheduleRepo
	Router             *router.Router

	closeFns []func()
}

// Connect подключает БД и (опционально) RabbitMQ.
// Без RabbitMQ enqueue полагается на polling fallback воркеров.
func Connect(ctx context.Context) (*Deps, error) {
	// CLI шумит в stderr только при ошибках
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	pool, err := repo.NewPool(ctx)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	d := &Deps{
		Executions:         repo.NewExecutionRepo(pool),
		WorkflowExecutions: repo.NewWorkflowExecutionRepo(pool),
		Deliveries:         repo.NewDeliveryRepo(pool),
		Notifications:      repo.NewNotificationRepo(pool),
		Webhooks:           repo.NewWebhookRepo(pool),
		Agents:             repo.NewAgentRepo(pool),
		Schedules:          repo.NewScheduleRepo(pool),
	}
	d.closeFns = append(d.closeFns, pool.Close)

	cfg := router.Config{
		Executions:         d.Executions,
		WorkflowExecutions: d.WorkflowExecutions,
		Deliveries:         d.Deliveries,
		Notifications:      d.Notifications,
		Agents:             d.Agents,
		Logger:             logger,
	}

	mqURL := os.Getenv("RABBITMQ_URL")
	if mqURL == "" {
		mqURL = mq.DefaultURL()
	}
	if conn, err := mq.NewConnection(mqURL, logger); err == nil {
		cfg.Publisher = mq.NewPublisher(conn, logger)
		d.closeFns = append(d.closeFns, func() { conn.Close() })
	}

	d.Router = router.New(cfg)

	return d, nil
}

// Close освобождает подключения.
func (d *Deps) Close() {
	for i := len(d.closeFns) - 1; i >= 0; i-- {
		d.closeFns[i]()
	}
}
