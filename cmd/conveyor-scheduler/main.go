// Conveyor Scheduler — запускает workflow по расписанию.
//
// Каждый тик (раз в секунду) выбирает due schedules и ставит
// workflow executions в очередь. Несколько экземпляров могут
// работать одновременно: тик schedule'а атомарно claim'ится в БД,
// дубликатов запусков не бывает.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/avetta/conveyor/internal/mq"
	"github.com/avetta/conveyor/internal/repo"
	"github.com/avetta/conveyor/internal/router"
	"github.com/avetta/conveyor/internal/scheduler"
	"github.com/avetta/conveyor/internal/telemetry"
)

func main() {
	// Инициализируем structured logging
	logger := telemetry.SetupLogger()
	logger.Info("starting conveyor-scheduler")

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
	scheduleRepo := repo.NewScheduleRepo(pool)
	workflowExecutionRepo := repo.NewWorkflowExecutionRepo(pool)
	executionRepo := repo.NewExecutionRepo(pool)
	deliveryRepo := repo.NewDeliveryRepo(pool)
	notificationRepo := repo.NewNotificationRepo(pool)
	agentRepo := repo.NewAgentRepo(pool)

	// RabbitMQ
	var publisher *mq.Publisher
	mqURL := os.Getenv("RABBITMQ_URL")
	if mqURL == "" {
		mqURL = mq.DefaultURL()
	}

	mqConn, err := mq.NewConnection(mqURL, logger)
	if err != nil {
		logger.Warn("RabbitMQ not available, workers will rely on polling", "error", err)
	} else {
		defer mqConn.Close()
		logger.Info("RabbitMQ connected")

		if err := mq.SetupTopology(ctx, mqConn); err != nil {
			logger.Warn("failed to setup topology", "error", err)
		}

		publisher = mq.NewPublisher(mqConn, logger)
	}

	// Router для постановки workflow executions
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

	sched := scheduler.New(scheduler.Config{
		Schedules: scheduleRepo,
		Enqueuer:  taskRouter,
		Logger:    logger,
	})

	// scheduler loop
	go func() {
		tk := time.NewTicker(1 * time.Second)
		defer tk.Stop()

		for {
			select {
			case <-tk.C:
				if err := sched.Tick(ctx); err != nil {
					logger.Error("scheduler tick failed", "error", err)
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	// HTTP mux: /healthz + /metrics
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	port := ":8081"
	if v := os.Getenv("SCHED_PORT"); v != "" {
		port = ":" + v
	}

	go func() {
		logger.Info("listening", "addr", port)
		if err := http.ListenAndServe(port, mux); err != nil {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	logger.Info("conveyor-scheduler stopped")
}
