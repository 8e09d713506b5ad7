package executor

import (
	"context"

	"github.com/google/uuid"

	"github.com/avetta/conveyor/internal/bus"
	"github.com/avetta/conveyor/internal/domain"
)

// Disposition — исход одной попытки выполнения.
//
// Явный тегированный результат вместо протаскивания ошибок через
// panic/recover: retry-цикл различает исходы по тегу, а не по типу ошибки.
type Disposition int

const (
	// DispositionCompleted — задача выполнена, запись в терминальном COMPLETED.
	DispositionCompleted Disposition = iota

	// DispositionRetryable — transient fault (сеть, таймаут, ошибка backend'а);
	// retry-цикл решает, повторять ли, по RetryPolicy.
	DispositionRetryable

	// DispositionFatal — конфигурационная ошибка (неизвестный тип узла,
	// неизвестный канал, отсутствующий агент); retry бесполезен.
	DispositionFatal
)

// Outcome — результат одной попытки.
//
// Инвариант: к моменту возврата Outcome из Execute запись задачи
// уже доведена до соответствующего статуса в store — store остаётся
// durable source of truth даже при немедленном падении процесса.
type Outcome struct {
	Disposition Disposition
	Err         error
}

// Completed — успешный исход.
func Completed() Outcome {
	return Outcome{Disposition: DispositionCompleted}
}

// Retryable — transient fault.
func Retryable(err error) Outcome {
	return Outcome{Disposition: DispositionRetryable, Err: err}
}

// Fatal — конфигурационная ошибка без retry.
func Fatal(err error) Outcome {
	return Outcome{Disposition: DispositionFatal, Err: err}
}

// Hooks — операции конкретного вида задачи, нужные retry-циклу.
//
// T — доменный тип записи задачи (Execution, WorkflowExecution,
// Delivery, Notification). Реализации: AgentExecutor,
// WorkflowExecutor, WebhookDeliverer, NotificationExecutor.
type Hooks[T any] interface {
	// Kind возвращает вид задачи; по нему выбирается RetryPolicy.
	Kind() domain.TaskKind

	// Claim атомарно переводит запись PENDING→RUNNING и инкрементирует
	// attempt. Возвращает repo.ErrNotClaimed, если запись уже взята
	// другим воркером или не в PENDING.
	Claim(ctx context.Context, id uuid.UUID) (T, error)

	// Attempt возвращает номер попытки заclaim'ленной записи (1-based).
	Attempt(task T) int

	// Execute выполняет одну попытку. ctx несёт per-attempt таймаут
	// из политики. До возврата запись обязана быть в терминальном
	// статусе, а событие попытки — опубликовано.
	Execute(ctx context.Context, task T) Outcome

	// Requeue возвращает FAILED запись в PENDING перед следующей попыткой.
	Requeue(ctx context.Context, id uuid.UUID) error

	// Exhausted — terminal failure hook: попытки исчерпаны, задача
	// больше не будет повторена. Перезаписывает error_message
	// и выполняет side effects вида задачи (авто-отключение webhook).
	// Новое событие не публикуется: последнее *.failed финальной
	// попытки уже терминальное.
	Exhausted(ctx context.Context, task T, cause error)
}

// EventPublisher — публикация доменных событий на шину.
// Реализуется bus.Bus; в тестах подменяется фейком.
type EventPublisher interface {
	Publish(ctx context.Context, ev *bus.Event) error
}
