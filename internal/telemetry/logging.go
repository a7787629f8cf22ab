package telemetry

import (
	"context"
	"log/slog"
	"os"
)

// LogLevel читает уровень логирования из LOG_LEVEL.
// Принимает DEBUG, WARN, ERROR; всё остальное — INFO.
func LogLevel() slog.Level {
	switch os.Getenv("LOG_LEVEL") {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// SetupLogger настраивает процессный логгер и делает его slog.Default.
//
// LOG_FORMAT=text включает человекочитаемый вывод для разработки;
// по умолчанию пишется JSON. На уровне DEBUG к записям добавляется
// источник (файл:строка).
func SetupLogger() *slog.Logger {
	level := LogLevel()
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	var handler slog.Handler
	switch os.Getenv("LOG_FORMAT") {
	case "text":
		handler = slog.NewTextHandler(os.Stdout, opts)
	default:
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// ctxKey — приватный тип ключей контекста логгера.
type ctxKey string

// CtxLogger — ключ логгера в контексте запроса.
const CtxLogger ctxKey = "logger"

// WithLogger кладёт логгер в контекст.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, CtxLogger, logger)
}

// FromContext достаёт логгер из контекста, откатываясь на slog.Default.
func FromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(CtxLogger).(*slog.Logger); ok {
		return logger
	}
	return slog.Default()
}

// WithTaskID возвращает логгер с полем task_id.
func WithTaskID(logger *slog.Logger, taskID string) *slog.Logger {
	return logger.With("task_id", taskID)
}

// WithUnitID возвращает логгер с полем unit_id.
func WithUnitID(logger *slog.Logger, unitID string) *slog.Logger {
	return logger.With("unit_id", unitID)
}

// WithWeaverID возвращает логгер с полем weaver_id.
func WithWeaverID(logger *slog.Logger, weaverID string) *slog.Logger {
	return logger.With("weaver_id", weaverID)
}
