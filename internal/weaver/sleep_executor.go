package weaver

import (
	"context"
	"time"

	"github.com/shaiso/Neuroweave/internal/domain"
	"github.com/shaiso/Neuroweave/internal/tasktype"
)

// SleepExecutor — executor юнитов типа "sleep".
//
// Спит sleep_ms миллисекунд, имитируя вычислительную нагрузку.
// Поддерживает отмену через context.
//
// Payload юнита:
//   - sleep_ms (number): длительность сна в миллисекундах
//
// Output:
//   - slept_ms (int): проспанные миллисекунды
type SleepExecutor struct{}

// Execute выполняет сон.
func (e *SleepExecutor) Execute(ctx context.Context, unit *domain.WorkUnit) (*ExecutionResult, error) {
	ms := tasktype.GetPayloadInt(unit.Payload, "sleep_ms")
	if ms < 0 {
		ms = 0
	}

	// Context-aware ожидание
	select {
	case <-time.After(time.Duration(ms) * time.Millisecond):
		return &ExecutionResult{
			Output: map[string]any{"slept_ms": ms},
		}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
