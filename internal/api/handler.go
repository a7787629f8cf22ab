package api

import (
	"log/slog"

	"github.com/shaiso/Neuroweave/internal/orchestrator"
	"github.com/shaiso/Neuroweave/internal/store"
)

// Handler — главный обработчик API с зависимостями.
//
// Операции над задачами и воркерами идут через Orchestrator (он
// обновляет метрики, публикует события и будит декомпозер).
// CRUD расписаний ходит в store напрямую: scheduler подхватывает
// изменения на следующем тике.
type Handler struct {
	orch   *orchestrator.Orchestrator
	store  store.Store
	logger *slog.Logger
}

// Config — конфигурация для создания Handler.
type Config struct {
	Orchestrator *orchestrator.Orchestrator
	Store        store.Store
	Logger       *slog.Logger
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	return &Handler{
		orch:   cfg.Orchestrator,
		store:  cfg.Store,
		logger: cfg.Logger,
	}
}
