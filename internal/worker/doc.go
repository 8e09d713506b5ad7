// Package worker выполняет задачи пайплайна Conveyor.
//
// # Обзор
//
// Worker — stateless компонент системы Conveyor, который выполняет
// задачи, поставленные Router'ом. Worker отвечает за:
//
//   - Потребление координат задач из lanes RabbitMQ (event-driven)
//   - Периодическую проверку PENDING записей в БД (polling fallback)
//   - Диспетчеризацию по виду задачи на соответствующий executor
//   - Прогон задачи через общий retry-цикл с backoff
//
// Workers масштабируются горизонтально — атомарный claim в store
// гарантирует, что задачу выполняет ровно один воркер, даже если
// несколько экземпляров потребляют из одной lane.
//
// # Ключевые компоненты
//
// ## Worker
//
// Основная структура, управляющая жизненным циклом.
// Создаётся через New(cfg Config) и запускается методом Start(ctx).
//
//	w := worker.New(worker.Config{
//	    Agents:        agentExecutor,
//	    Workflows:     workflowExecutor,
//	    Webhooks:      webhookDeliverer,
//	    Notifications: notificationExecutor,
//	    Conn:          mqConn,
//	    Logger:        logger,
//	})
//
//	if err := w.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer w.Stop()
//
// ## Lanes
//
// По одному consumer'у на каждую lane (high, default, notifications,
// webhooks). Приоритет задач выражается только выбором lane при
// enqueue — внутри lane порядок FIFO, reordering нет.
//
// ## Pollers
//
// Адаптеры polling fallback: по одному на вид задачи, перечисляют
// PENDING записи напрямую из store. Poll подхватывает задачи,
// потерянные очередью (рестарт RabbitMQ, упавшая публикация).
//
// # Обработка задачи
//
//  1. Получение координат (из lane или polling)
//  2. executor.Run: атомарный claim PENDING→RUNNING, attempt+1
//  3. Попытка под per-attempt таймаутом политики
//  4. Успех → ack
//  5. Transient fault → backoff-пауза, requeue в PENDING, повторный claim
//  6. Исчерпание попыток / конфигурационная ошибка → запись FAILED,
//     критический лог, ack (сообщение обработано)
//
// # Retry
//
// Retry выполняется в процессе (in-process), а не через requeue
// в RabbitMQ. Это даёт точный контроль над backoff-паузами
// и подсчётом попыток; nack с requeue используется только для
// инфраструктурных сбоев самой обработки сообщения.
package worker
