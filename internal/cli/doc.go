// Package cli реализует операторскую утилиту командной строки Conveyor.
//
// # Обзор
//
// CLI — операторский инструмент для осмотра и управления задачами
// пайплайна. HTTP API в системе нет, поэтому CLI работает напрямую
// с базой данных и очередью через те же internal-пакеты, что и воркеры.
//
// # Ключевые компоненты
//
// ## Deps
//
// Подключённые зависимости команд: пул PostgreSQL, репозитории и
// router для постановки задач. RabbitMQ подключается опционально —
// без него enqueue полагается на polling fallback воркеров.
//
//	deps, err := cli.Connect(ctx)
//	defer deps.Close()
//
// ## Output
//
// Форматирование вывода. Поддерживает два режима:
//   - Таблицы и пары ключ-значение (text/tabwriter) — по умолчанию
//   - JSON (encoding/json) — с флагом --json
//
// Данные выводятся в stdout, сообщения (Success/Error) — в stderr.
// Это позволяет использовать pipe: conveyor execution pending --json | jq .
//
// ## Commands
//
// Cobra-команды организованы по ресурсам:
//   - enqueue: agent, workflow
//   - execution: show, pending, requeue
//   - workflow-execution: show
//   - webhook: show, disable
//   - schedule: due, validate-cron
//
// Каждая группа создаётся через фабричную функцию (NewExecutionCmd
// и т.д.), принимающую depsFn и outputFn — замыкания для ленивого
// подключения Deps и создания Output после парсинга PersistentFlags.
package cli
