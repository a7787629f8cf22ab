// Package weaver выполняет юниты работы.
//
// # Обзор
//
// Weaver — stateless компонент системы Neuroweave, который выполняет
// юниты работы, нарезанные Orchestrator'ом из задач. Weaver отвечает за:
//
//   - Регистрацию у оркестратора (получение идентификатора)
//   - Периодический heartbeat (подтверждение живости)
//   - Poll юнитов по своим capabilities (pull-модель)
//   - Выполнение юнита executor'ом соответствующего типа
//   - Отчёт о результате (успех или ошибка)
//   - Приём подсказок work.available из RabbitMQ (опционально)
//
// Weavers масштабируются горизонтально: каждый процесс регистрируется
// под собственным идентификатором, атомарный claim на стороне
// оркестратора гарантирует, что юнит достаётся ровно одному воркеру.
//
// # Ключевые компоненты
//
// ## Weaver
//
// Основная структура, управляющая жизненным циклом.
// Создаётся через New(cfg Config) и запускается методом Start(ctx).
//
//	w := weaver.New(weaver.Config{
//	    ServerURL: "http://localhost:8080",
//	    Conn:      mqConn, // опционально
//	    Logger:    logger,
//	})
//
//	if err := w.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer w.Stop()
//
// ## Executor
//
// Интерфейс для выполнения юнита конкретного типа задачи:
//
//	type Executor interface {
//	    Execute(ctx context.Context, unit *domain.WorkUnit) (*ExecutionResult, error)
//	}
//
// Реализации:
//   - InferenceExecutor — инференс chunk'а через модельный сервис
//     (или локальная заглушка, если endpoint не задан)
//   - SleepExecutor — имитация вычислений сном на sleep_ms
//   - EchoExecutor — диагностический passthrough
//
// ## Registry
//
// Реестр executor'ов по типу задачи. NewRegistry() создаёт реестр
// с предустановленными executor'ами (inference, sleep, echo).
// Список типов реестра — это capabilities воркера по умолчанию.
//
// ## Client
//
// HTTP-клиент для API оркестратора. Переводит значимые ответы
// в sentinel-ошибки: 404 → ErrNotRegistered (регистрация потеряна),
// ASSIGNMENT_MISMATCH → ErrAssignmentMismatch (юнит переназначен).
//
// # Цикл работы
//
//  1. Регистрация: POST /weavers → идентификатор
//  2. Poll: POST /weavers/{id}/poll → юнит или null + backoff
//  3. Выполнение: registry.Get(unit.TaskType).Execute(ctx, unit)
//  4. Отчёт: POST /units/{id}/result (с повторами при сетевых сбоях)
//  5. Без работы — пауза на backoff, срезается подсказкой из MQ
//
// Подсказки work.available — только оптимизация латентности: очередь
// с competing consumers будит один простаивающий воркер, остальные
// подтянутся на обычном poll-интервале. Корректность хранится
// в polling, не в MQ.
//
// # Потеря регистрации
//
// Оркестратор вычищает воркеров, переставших слать heartbeat, и
// возвращает их юниты в очередь. Воркер, получивший 404 на heartbeat,
// poll или report, прозрачно регистрируется заново и продолжает
// работу под новым идентификатором. Отчёт по юниту, переназначенному
// за время паузы, отклоняется оркестратором (ASSIGNMENT_MISMATCH)
// и сбрасывается без повтора.
//
// # Ошибки
//
// Пакет различает два уровня ошибок выполнения:
//   - Инфраструктурные (error от Execute) — сеть упала, сервис недоступен
//   - Логические (ExecutionResult.Error) — модельный сервис вернул не-200
//
// Обе репортятся оркестратору как failed; решение о повторе юнита
// (до max retries) принимает оркестратор, а не воркер.
package weaver
