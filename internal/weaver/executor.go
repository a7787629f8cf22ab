package weaver

import (
	"context"
	"fmt"
	"sort"

	"github.com/shaiso/Neuroweave/internal/domain"
	"github.com/shaiso/Neuroweave/internal/tasktype"
)

// Executor — интерфейс для выполнения юнита конкретного типа задачи.
//
// Реализации: InferenceExecutor, SleepExecutor, EchoExecutor.
//
// unit.Payload содержит под-нагрузку, вычисленную стратегией
// декомпозиции на стороне оркестратора.
type Executor interface {
	Execute(ctx context.Context, unit *domain.WorkUnit) (*ExecutionResult, error)
}

// ExecutionResult — результат выполнения юнита.
type ExecutionResult struct {
	// Output — выходные данные выполнения.
	Output map[string]any

	// Error — сообщение об ошибке (логическая ошибка выполнения).
	// Инфраструктурные ошибки возвращаются через error в Execute().
	Error string
}

// Registry — реестр executor'ов по типу задачи.
//
// Список типов реестра — это и есть capabilities воркера: воркер
// сообщает их при регистрации и в каждом poll.
type Registry struct {
	executors map[string]Executor
}

// NewRegistry создаёт реестр с зарегистрированными executor'ами по умолчанию.
//
// Регистрирует: inference, sleep, echo.
func NewRegistry() *Registry {
	r := &Registry{executors: make(map[string]Executor)}
	r.Register(tasktype.TypeInference, NewInferenceExecutor(""))
	r.Register(tasktype.TypeSleep, &SleepExecutor{})
	r.Register(tasktype.TypeEcho, &EchoExecutor{})
	return r
}

// Register добавляет executor для типа задачи.
func (r *Registry) Register(taskType string, executor Executor) {
	r.executors[taskType] = executor
}

// Get возвращает executor для типа задачи.
func (r *Registry) Get(taskType string) (Executor, error) {
	executor, ok := r.executors[taskType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTaskType, taskType)
	}
	return executor, nil
}

// Types возвращает отсортированный список зарегистрированных типов.
func (r *Registry) Types() []string {
	types := make([]string, 0, len(r.executors))
	for t := range r.executors {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
