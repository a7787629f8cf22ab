package tasktype

import (
	"errors"
	"testing"
)

// Registry Tests

func TestRegistry(t *testing.T) {
	r := NewRegistry()

	// Пустой реестр
	if r.Count() != 0 {
		t.Errorf("expected empty registry")
	}

	// Регистрация
	r.Register(NewEcho())
	if r.Count() != 1 {
		t.Errorf("expected 1 type, got %d", r.Count())
	}

	// Получение
	def, err := r.Get("echo")
	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if def.Name != "echo" {
		t.Errorf("expected echo, got %s", def.Name)
	}

	// Несуществующий тип
	_, err = r.Get("unknown")
	if !errors.Is(err, ErrTypeNotFound) {
		t.Errorf("expected ErrTypeNotFound, got %v", err)
	}

	// Has
	if !r.Has("echo") {
		t.Error("should have echo")
	}
	if r.Has("unknown") {
		t.Error("should not have unknown")
	}

	// Unregister
	r.Unregister("echo")
	if r.Has("echo") {
		t.Error("should not have echo after unregister")
	}
}

func TestDefaultRegistry(t *testing.T) {
	r := DefaultRegistry()

	expectedTypes := []string{"inference", "sleep", "echo"}
	for _, typ := range expectedTypes {
		if !r.Has(typ) {
			t.Errorf("default registry should have %s", typ)
		}
	}

	types := r.Types()
	if len(types) != len(expectedTypes) {
		t.Errorf("expected %d types, got %d", len(expectedTypes), len(types))
	}
}

// Inference Tests

func TestInferenceSplit(t *testing.T) {
	def := NewInference()

	units, err := def.Split(map[string]any{
		"model":      "resnet-50",
		"data_input": []any{"a", "b", "c", "d", "e"},
		"chunk_size": 2,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// 5 элементов по 2 → 3 юнита
	if len(units) != 3 {
		t.Fatalf("expected 3 units, got %d", len(units))
	}

	// Каждый юнит несёт model
	for i, u := range units {
		if u["model"] != "resnet-50" {
			t.Errorf("unit %d: expected model resnet-50, got %v", i, u["model"])
		}
	}

	// Чанки в исходном порядке, последний неполный
	first := units[0]["chunk"].([]any)
	if len(first) != 2 || first[0] != "a" || first[1] != "b" {
		t.Errorf("unexpected first chunk: %v", first)
	}
	last := units[2]["chunk"].([]any)
	if len(last) != 1 || last[0] != "e" {
		t.Errorf("unexpected last chunk: %v", last)
	}
}

func TestInferenceSplit_DefaultChunkSize(t *testing.T) {
	def := NewInference()

	// Без chunk_size — один элемент на юнит
	units, err := def.Split(map[string]any{
		"model":      "bert",
		"data_input": []any{"x", "y", "z"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(units) != 3 {
		t.Errorf("expected 3 units, got %d", len(units))
	}
}

func TestInferenceSplit_InvalidPayload(t *testing.T) {
	def := NewInference()

	// Нет model
	_, err := def.Split(map[string]any{
		"data_input": []any{"a"},
	})
	if !errors.Is(err, ErrInvalidPayload) {
		t.Errorf("expected ErrInvalidPayload, got %v", err)
	}

	// Нет data_input
	_, err = def.Split(map[string]any{
		"model": "resnet-50",
	})
	if !errors.Is(err, ErrInvalidPayload) {
		t.Errorf("expected ErrInvalidPayload, got %v", err)
	}
}

// Sleep Tests

func TestSleepSplit(t *testing.T) {
	def := NewSleep()

	units, err := def.Split(map[string]any{
		"total_ms": 1000,
		"slices":   4,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(units) != 4 {
		t.Fatalf("expected 4 units, got %d", len(units))
	}

	// Сумма sleep_ms равна total_ms
	sum := 0
	for _, u := range units {
		sum += u["sleep_ms"].(int)
	}
	if sum != 1000 {
		t.Errorf("expected total 1000ms, got %d", sum)
	}
}

func TestSleepSplit_Remainder(t *testing.T) {
	def := NewSleep()

	// 100 на 3 не делится — остаток уходит первым юнитам
	units, err := def.Split(map[string]any{
		"total_ms": 100,
		"slices":   3,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	sum := 0
	for _, u := range units {
		sum += u["sleep_ms"].(int)
	}
	if sum != 100 {
		t.Errorf("expected total 100ms, got %d", sum)
	}
	if units[0]["sleep_ms"].(int) != 34 {
		t.Errorf("expected first unit 34ms, got %v", units[0]["sleep_ms"])
	}
}

func TestSleepSplit_MoreSlicesThanMs(t *testing.T) {
	def := NewSleep()

	// Юнитов не больше, чем миллисекунд
	units, err := def.Split(map[string]any{
		"total_ms": 2,
		"slices":   10,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(units) != 2 {
		t.Errorf("expected 2 units, got %d", len(units))
	}
}

func TestSleepSplit_InvalidPayload(t *testing.T) {
	def := NewSleep()

	_, err := def.Split(map[string]any{})
	if !errors.Is(err, ErrInvalidPayload) {
		t.Errorf("expected ErrInvalidPayload, got %v", err)
	}
}

// Echo Tests

func TestEchoSplit(t *testing.T) {
	def := NewEcho()

	units, err := def.Split(map[string]any{
		"items": []any{"a", "b", "c"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(units) != 3 {
		t.Fatalf("expected 3 units, got %d", len(units))
	}
	if units[1]["item"] != "b" {
		t.Errorf("expected item b, got %v", units[1]["item"])
	}
}

func TestEchoSplit_Empty(t *testing.T) {
	def := NewEcho()

	_, err := def.Split(map[string]any{"items": []any{}})
	if !errors.Is(err, ErrInvalidPayload) {
		t.Errorf("expected ErrInvalidPayload, got %v", err)
	}
}

// Merge Tests

func TestConcatMerger(t *testing.T) {
	var m ConcatMerger

	result, err := m.Merge([]map[string]any{
		{"echo": "a"},
		{"echo": "b"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	outputs, ok := result["all_outputs"].([]any)
	if !ok {
		t.Fatalf("expected all_outputs slice, got %T", result["all_outputs"])
	}
	if len(outputs) != 2 {
		t.Fatalf("expected 2 outputs, got %d", len(outputs))
	}

	// Порядок ordinal сохраняется
	if outputs[0].(map[string]any)["echo"] != "a" {
		t.Errorf("expected first output a, got %v", outputs[0])
	}
	if outputs[1].(map[string]any)["echo"] != "b" {
		t.Errorf("expected second output b, got %v", outputs[1])
	}
}

func TestSleepMerger(t *testing.T) {
	def := NewSleep()

	// Часть значений float64 — как после JSON-декодирования результатов
	result, err := def.Merge([]map[string]any{
		{"slept_ms": 250},
		{"slept_ms": float64(250)},
		{"slept_ms": 500},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result["total_slept_ms"] != 1000 {
		t.Errorf("expected total_slept_ms 1000, got %v", result["total_slept_ms"])
	}
	if result["slices"] != 3 {
		t.Errorf("expected 3 slices, got %v", result["slices"])
	}
}

func TestDefinitionMerge_DefaultMerger(t *testing.T) {
	// Definition без Merger использует ConcatMerger
	def := NewEcho()

	result, err := def.Merge([]map[string]any{{"echo": "x"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := result["all_outputs"]; !ok {
		t.Error("expected all_outputs key from default merger")
	}
}

// Helper Tests

func TestGetPayloadHelpers(t *testing.T) {
	payload := map[string]any{
		"string_val": "test",
		"int_val":    42,
		"float_val":  3.14,
		"slice_val":  []any{"a", "b"},
	}

	// GetPayloadString
	if GetPayloadString(payload, "string_val") != "test" {
		t.Error("GetPayloadString failed")
	}
	if GetPayloadString(payload, "missing") != "" {
		t.Error("GetPayloadString should return empty for missing")
	}

	// GetPayloadInt
	if GetPayloadInt(payload, "int_val") != 42 {
		t.Error("GetPayloadInt failed for int")
	}
	// JSON-декодированные числа приходят как float64
	if GetPayloadInt(payload, "float_val") != 3 {
		t.Error("GetPayloadInt failed for float")
	}
	if GetPayloadInt(payload, "missing") != 0 {
		t.Error("GetPayloadInt should return 0 for missing")
	}

	// GetPayloadSlice
	s := GetPayloadSlice(payload, "slice_val")
	if len(s) != 2 || s[0] != "a" {
		t.Error("GetPayloadSlice failed")
	}
	if GetPayloadSlice(payload, "missing") != nil {
		t.Error("GetPayloadSlice should return nil for missing")
	}
}
