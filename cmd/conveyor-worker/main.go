// Conveyor Worker — выполняет задачи пайплайна.
//
// Worker:
//   - Потребляет координаты задач из всех lanes RabbitMQ
//   - Диспетчеризует на executor по виду задачи
//   - Прогоняет через общий retry-цикл с backoff
//   - Публикует события завершения на внутреннюю шину,
//     listener'ы которой ставят follow-on задачи
//
// Workers масштабируются горизонтально.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/avetta/conveyor/internal/bus"
	"github.com/avetta/conveyor/internal/domain"
	"github.com/avetta/conveyor/internal/engine"
	"github.com/avetta/conveyor/internal/executor"
	"github.com/avetta/conveyor/internal/inference"
	"github.com/avetta/conveyor/internal/listener"
	"github.com/avetta/conveyor/internal/mq"
	"github.com/avetta/conveyor/internal/repo"
	"github.com/avetta/conveyor/internal/router"
	"github.com/avetta/conveyor/internal/telemetry"
	"github.com/avetta/conveyor/internal/worker"
)

func main() {
	// Инициализируем structured logging
	logger := telemetry.SetupLogger()
	logger.Info("starting conveyor-worker")

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// DB pool
	pool, err := repo.NewPool(ctx)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	logger.Info("database connected")

	// Репозитории
	executionRepo := repo.NewExecutionRepo(pool)
	workflowExecutionRepo := repo.NewWorkflowExecutionRepo(pool)
	deliveryRepo := repo.NewDeliveryRepo(pool)
	notificationRepo := repo.NewNotificationRepo(pool)
	webhookRepo := repo.NewWebhookRepo(pool)
	workflowRepo := repo.NewWorkflowRepo(pool)
	agentRepo := repo.NewAgentRepo(pool)
	activityRepo := repo.NewActivityRepo(pool)

	// RabbitMQ
	var publisher *mq.Publisher
	var mqConn *mq.Connection
	mqURL := os.Getenv("RABBITMQ_URL")
	if mqURL == "" {
		mqURL = mq.DefaultURL()
	}

	mqConn, err = mq.NewConnection(mqURL, logger)
	if err != nil {
		logger.Warn("RabbitMQ not available, running in polling-only mode", "error", err)
	} else {
		defer mqConn.Close()
		logger.Info("RabbitMQ connected")

		if err := mq.SetupTopology(ctx, mqConn); err != nil {
			logger.Warn("failed to setup topology", "error", err)
		}

		publisher = mq.NewPublisher(mqConn, logger)
	}

	// Router для follow-on задач из listener'ов
	routerCfg := router.Config{
		Executions:         executionRepo,
		WorkflowExecutions: workflowExecutionRepo,
		Deliveries:         deliveryRepo,
		Notifications:      notificationRepo,
		Agents:             agentRepo,
		Logger:             logger,
	}
	if publisher != nil {
		routerCfg.Publisher = publisher
	}
	taskRouter := router.New(routerCfg)

	// Шина событий: статическая таблица подписок фиксируется на старте
	fanout := listener.NewWebhookFanout(webhookRepo, taskRouter, logger)
	notify := listener.NewNotifyUser(taskRouter, domain.ChannelEmail, logger)
	activity := listener.NewActivity(activityRepo, logger)
	var realtime *listener.Realtime
	if publisher != nil {
		realtime = listener.NewRealtime(publisher, logger)
	}
	registry := listener.BuildRegistry(fanout, notify, activity, realtime)

	eventBus := bus.New(registry, logger)
	if err := eventBus.Start(ctx); err != nil {
		logger.Error("failed to start event bus", "error", err)
		os.Exit(1)
	}
	defer eventBus.Close()

	// Inference backend
	backend := inference.NewHTTPBackendFromEnv()

	// Step machine для workflow
	machine := engine.NewMachine(engine.DefaultHandlers(backend), workflowExecutionRepo)

	// Executors
	agentExec := executor.NewAgentExecutor(executionRepo, agentRepo, activityRepo, backend, eventBus, logger)
	workflowExec := executor.NewWorkflowExecutor(workflowExecutionRepo, workflowRepo, machine, eventBus, logger)
	webhookExec := executor.NewWebhookDeliverer(deliveryRepo, webhookRepo, nil, logger)
	notificationExec := executor.NewNotificationExecutor(notificationRepo, &executor.LogSender{Logger: logger}, logger)

	// Worker
	w := worker.New(worker.Config{
		Agents:        agentExec,
		Workflows:     workflowExec,
		Webhooks:      webhookExec,
		Notifications: notificationExec,
		Pollers: map[domain.TaskKind]worker.Poller{
			domain.KindAgentExecution:    worker.ExecutionPoller{Store: executionRepo},
			domain.KindWorkflowExecution: worker.WorkflowExecutionPoller{Store: workflowExecutionRepo},
			domain.KindWebhookDelivery:   worker.DeliveryPoller{Store: deliveryRepo},
			domain.KindNotification:      worker.NotificationPoller{Store: notificationRepo},
		},
		Conn:   mqConn,
		Logger: logger,
	})

	if err := w.Start(ctx); err != nil {
		logger.Error("failed to start worker", "error", err)
		os.Exit(1)
	}

	// HTTP mux: /healthz + /metrics
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	port := ":8082"
	if v := os.Getenv("WORKER_PORT"); v != "" {
		port = ":" + v
	}

	go func() {
		logger.Info("listening", "addr", port)
		if err := http.ListenAndServe(port, mux); err != nil {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	// Ожидаем сигнал завершения
	<-ctx.Done()

	w.Stop()
	logger.Info("conveyor-worker stopped")
}
