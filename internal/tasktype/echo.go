package tasktype

import "fmt"

const (
	// TypeEcho — диагностический тип задачи.
	TypeEcho = "echo"

	// Ключи payload echo.
	payloadItems = "items"
	payloadItem  = "item"
)

// EchoSplitter — декомпозиция echo-задачи.
//
// Один юнит на каждый элемент items; воркер возвращает элемент как
// есть. Используется для smoke-проверки всего пайплайна без моделей.
//
// Payload задачи:
//
//	{"items": ["a", "b", "c"]}
//
// Payload юнита:
//
//	{"item": "a"}
type EchoSplitter struct{}

// Split создаёт юнит на каждый элемент items.
func (EchoSplitter) Split(payload map[string]any) ([]map[string]any, error) {
	items := GetPayloadSlice(payload, payloadItems)
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: %s: items required", ErrInvalidPayload, TypeEcho)
	}

	units := make([]map[string]any, 0, len(items))
	for _, it := range items {
		units = append(units, map[string]any{payloadItem: it})
	}
	return units, nil
}

// NewEcho создаёт определение типа echo.
func NewEcho() *Definition {
	return &Definition{
		Name:     TypeEcho,
		Splitter: EchoSplitter{},
	}
}
