package listener

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/avetta/conveyor/internal/bus"
	"github.com/avetta/conveyor/internal/domain"
)

// ActivityWriter — запись аудита.
type ActivityWriter interface {
	Insert(ctx context.Context, rec *domain.ActivityRecord) error
}

// Activity пишет запись аудита о завершении workflow execution.
// Agent executions аудируются самим executor'ом; здесь закрывается
// workflow-часть журнала.
type Activity struct {
	activity ActivityWriter
	logger   *slog.Logger
}

// NewActivity создаёт Activity.
func NewActivity(activity ActivityWriter, logger *slog.Logger) *Activity {
	if logger == nil {
		logger = slog.Default()
	}
	return &Activity{
		activity: activity,
		logger:   logger,
	}
}

// Name возвращает имя listener'а.
func (l *Activity) Name() string {
	return "activity"
}

// Handle обрабатывает событие. Запись best-effort: ошибка аудита
// логируется, но наружу не отдаётся.
func (l *Activity) Handle(ctx context.Context, ev *bus.Event) error {
	exec := ev.WorkflowExecution
	if exec == nil || !ev.Terminal {
		return nil
	}

	rec := &domain.ActivityRecord{
		ID:          uuid.New(),
		TenantID:    ev.TenantID,
		UserID:      exec.TriggeredByUserID,
		Action:      string(ev.Name),
		SubjectKind: domain.KindWorkflowExecution,
		SubjectID:   exec.ID,
		Detail: map[string]any{
			"workflow_id":  exec.WorkflowID.String(),
			"attempt":      exec.Attempt,
			"current_step": exec.CurrentStep,
		},
		CreatedAt: time.Now(),
	}
	if ev.Cause != "" {
		rec.Detail["error"] = ev.Cause
	}

	if err := l.activity.Insert(ctx, rec); err != nil {
		l.logger.Warn("failed to record activity",
			"event", ev.Name,
			"workflow_execution_id", exec.ID,
			"error", err,
		)
	}

	return nil
}
