package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/avetta/conveyor/internal/domain"
	"github.com/avetta/conveyor/internal/repo"
	"github.com/avetta/conveyor/internal/telemetry"
)

// Run — общий retry-цикл для всех видов задач.
//
// Цикл: claim → попытка с таймаутом → по исходу:
//   - Completed — конец.
//   - Fatal — конфигурационная ошибка, критический лог, без retry.
//   - Retryable — если попытки не исчерпаны: backoff-пауза,
//     requeue в PENDING и повторный claim (attempt растёт на claim);
//     иначе terminal failure hook.
//
// Запись, уже взятая другим воркером (repo.ErrNotClaimed), — не ошибка:
// claim атомарен, задачу выполняет ровно один воркер.
func Run[T any](ctx context.Context, h Hooks[T], id uuid.UUID, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	kind := h.Kind()
	policy := domain.PolicyFor(kind)

	for {
		task, err := h.Claim(ctx, id)
		if err != nil {
			if errors.Is(err, repo.ErrNotClaimed) || errors.Is(err, repo.ErrNotFound) {
				logger.Debug("task not claimed",
					"kind", kind,
					"task_id", id,
					"reason", err,
				)
				return nil
			}
			return fmt.Errorf("claim %s %s: %w", kind, id, err)
		}

		attempt := h.Attempt(task)

		logger.Info("task attempt started",
			"kind", kind,
			"task_id", id,
			"attempt", attempt,
		)

		started := time.Now()
		out := runAttempt(ctx, h, task, policy.Timeout)
		telemetry.TaskDuration.WithLabelValues(string(kind)).Observe(time.Since(started).Seconds())

		switch out.Disposition {
		case DispositionCompleted:
			telemetry.TasksCompleted.WithLabelValues(string(kind)).Inc()
			logger.Info("task completed",
				"kind", kind,
				"task_id", id,
				"attempt", attempt,
			)
			return nil

		case DispositionFatal:
			telemetry.TasksFailed.WithLabelValues(string(kind)).Inc()
			logger.Log(ctx, telemetry.LevelCritical, "task failed with configuration fault",
				"kind", kind,
				"task_id", id,
				"attempt", attempt,
				"error", out.Err,
			)
			return out.Err

		case DispositionRetryable:
			if policy.GiveUp(attempt) {
				h.Exhausted(ctx, task, out.Err)
				telemetry.TasksFailed.WithLabelValues(string(kind)).Inc()
				logger.Log(ctx, telemetry.LevelCritical, "task retry attempts exhausted",
					"kind", kind,
					"task_id", id,
					"attempts", attempt,
					"error", out.Err,
				)
				return fmt.Errorf("%w: %s %s after %d attempts: %v", ErrRetryExhausted, kind, id, attempt, out.Err)
			}

			telemetry.TaskRetries.WithLabelValues(string(kind)).Inc()

			delay := policy.Delay(attempt)
			logger.Warn("task attempt failed, retrying",
				"kind", kind,
				"task_id", id,
				"attempt", attempt,
				"delay", delay,
				"error", out.Err,
			)

			if delay > 0 {
				select {
				case <-time.After(delay):
				case <-ctx.Done():
					return ctx.Err()
				}
			}

			if err := h.Requeue(ctx, id); err != nil {
				return fmt.Errorf("requeue %s %s: %w", kind, id, err)
			}
		}
	}
}

// runAttempt выполняет одну попытку под per-attempt таймаутом.
func runAttempt[T any](ctx context.Context, h Hooks[T], task T, timeout time.Duration) Outcome {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return h.Execute(ctx, task)
}
