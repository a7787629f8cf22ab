// Package api содержит HTTP API сервер.
//
// Структура:
//   - handler.go          — Handler с DI (orchestrator, store, logger)
//   - routes.go           — регистрация маршрутов
//   - middleware.go       — middleware (logging, recovery)
//   - response.go         — унифицированные JSON-ответы и обработка ошибок
//   - dto.go              — Data Transfer Objects (request/response)
//   - task_handler.go     — обработчики для /tasks
//   - weaver_handler.go   — обработчики для /weavers и /units
//   - schedule_handler.go — обработчики для /schedules
//
// API обслуживает два вида клиентов: заказчики подают задачи и читают
// их статус, воркеры регистрируются, поллят работу и сообщают
// результаты. Worker-facing и requester-facing маршруты живут в одном
// сервере: раздача работы — это pull-модель поверх того же REST API.
package api
