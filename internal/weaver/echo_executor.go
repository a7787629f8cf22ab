package weaver

import (
	"context"

	"github.com/shaiso/Neuroweave/internal/domain"
)

// EchoExecutor — executor юнитов типа "echo".
//
// Возвращает item как есть. Диагностический тип: проверяет весь
// конвейер (декомпозиция → claim → report → агрегация) без моделей
// и без сна.
//
// Payload юнита:
//   - item (any): элемент items исходной задачи
//
// Output:
//   - echo (any): тот же элемент
type EchoExecutor struct{}

// Execute возвращает item юнита.
func (e *EchoExecutor) Execute(_ context.Context, unit *domain.WorkUnit) (*ExecutionResult, error) {
	return &ExecutionResult{
		Output: map[string]any{"echo": unit.Payload["item"]},
	}, nil
}
