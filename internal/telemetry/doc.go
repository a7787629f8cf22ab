// Package telemetry — наблюдаемость NeuroWeave.
//
// Состав:
//   - logging.go — structured logging через slog (настраивается LOG_LEVEL/LOG_FORMAT)
//   - metrics.go — Prometheus-счётчики жизненного цикла задач, юнитов и weaver-ов
//
// Сервер и weaver настраивают логгер одинаково и отдают метрики
// на своём /metrics endpoint.
package telemetry
