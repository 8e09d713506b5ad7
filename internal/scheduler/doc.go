// Package scheduler реализует запуск workflow по расписанию.
//
// Scheduler периодически проверяет schedules с истекшим next_due_at
// и ставит workflow executions в очередь через Router.
//
// Структура:
//   - scheduler.go — основная логика Scheduler (Tick, processSchedule)
//   - cron.go      — парсинг cron-выражений и вычисление следующего времени
//
// Использование:
//
//	sched := scheduler.New(scheduler.Config{
//	    Schedules: scheduleRepo,
//	    Enqueuer:  router,
//	    Logger:    logger,
//	})
//
//	// Вызывается каждый тик (обычно раз в секунду)
//	if err := sched.Tick(ctx); err != nil {
//	    logger.Error("scheduler tick failed", "error", err)
//	}
//
// Конкурентность:
//
// Несколько экземпляров scheduler'а могут тикать одновременно:
// сдвиг next_due_at — атомарный CAS в store, запуск создаёт только
// выигравший процесс. Leader election не требуется.
package scheduler
