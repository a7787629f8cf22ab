// Package scheduler реализует логику планировщика задач.
//
// Scheduler периодически проверяет schedules с истекшим next_due_at
// и подаёт задачу для каждого через Orchestrator.
//
// Структура:
//   - scheduler.go — основная логика Scheduler (Tick, processSchedule)
//   - cron.go      — парсинг cron-выражений и вычисление следующего времени
//
// Использование:
//
//	sched := scheduler.New(scheduler.Config{
//	    Store:     st,
//	    Submitter: orch,
//	    Logger:    logger,
//	})
//
//	// Вызывается каждый тик (обычно раз в секунду)
//	if err := sched.Tick(ctx); err != nil {
//	    logger.Error("scheduler tick failed", "error", err)
//	}
//
// Leader Election:
//
// Scheduler не реализует leader election самостоятельно.
// При Postgres-хранилище это делается в main через pg_try_advisory_lock.
// Метод Tick() вызывается только лидером; с in-memory хранилищем лидер
// всегда ровно один — сам процесс.
package scheduler
