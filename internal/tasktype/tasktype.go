package tasktype

import (
	"errors"
	"fmt"
)

// Ошибки типов задач.
var (
	// ErrTypeNotFound — тип задачи не найден в реестре.
	ErrTypeNotFound = errors.New("task type not found")

	// ErrInvalidPayload — payload не соответствует схеме типа задачи.
	ErrInvalidPayload = errors.New("invalid task payload")

	// ErrEmptySplit — декомпозиция не дала ни одного юнита.
	ErrEmptySplit = errors.New("split produced no work units")
)

// Splitter — стратегия декомпозиции задачи.
//
// Разбивает payload задачи на payload'ы юнитов. Позиция в слайсе
// определяет ordinal юнита (0..N-1). Чистая функция: не выполняет I/O
// и не модифицирует входной payload.
type Splitter interface {
	// Split разбивает payload задачи на payload'ы юнитов.
	Split(payload map[string]any) ([]map[string]any, error)
}

// Merger — стратегия агрегации результатов юнитов.
type Merger interface {
	// Merge собирает результаты юнитов (в порядке ordinal)
	// в итоговый результат задачи.
	Merge(results []map[string]any) (map[string]any, error)
}

// Definition — описание типа задачи: имя и стратегии.
type Definition struct {
	// Name — имя типа ("inference", "sleep", "echo").
	Name string

	// Splitter — стратегия декомпозиции.
	Splitter Splitter

	// Merger — стратегия агрегации.
	// Если nil, используется ConcatMerger.
	Merger Merger
}

// Split выполняет декомпозицию и валидирует результат.
// Пустой список юнитов — ошибка ErrEmptySplit, а не пустая задача.
func (d *Definition) Split(payload map[string]any) ([]map[string]any, error) {
	units, err := d.Splitter.Split(payload)
	if err != nil {
		return nil, err
	}
	if len(units) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptySplit, d.Name)
	}
	return units, nil
}

// Merge агрегирует результаты юнитов (в порядке ordinal).
func (d *Definition) Merge(results []map[string]any) (map[string]any, error) {
	m := d.Merger
	if m == nil {
		m = ConcatMerger{}
	}
	return m.Merge(results)
}

// GetPayloadString извлекает строковое значение из payload.
func GetPayloadString(payload map[string]any, key string) string {
	if v, ok := payload[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// GetPayloadInt извлекает числовое значение из payload.
func GetPayloadInt(payload map[string]any, key string) int {
	if v, ok := payload[key]; ok {
		switch n := v.(type) {
		case int:
			return n
		case int64:
			return int(n)
		case float64:
			return int(n)
		}
	}
	return 0
}

// GetPayloadSlice извлекает слайс из payload.
func GetPayloadSlice(payload map[string]any, key string) []any {
	if v, ok := payload[key]; ok {
		if s, ok := v.([]any); ok {
			return s
		}
	}
	return nil
}
