package tasktype

import "fmt"

const (
	// TypeSleep — тип задачи имитации вычислений.
	TypeSleep = "sleep"

	// Ключи payload sleep.
	payloadTotalMs = "total_ms"
	payloadSlices  = "slices"
	payloadSleepMs = "sleep_ms"

	// Ключи результата sleep.
	resultSleptMs      = "slept_ms"
	resultTotalSleptMs = "total_slept_ms"
)

// SleepSplitter — декомпозиция sleep-задачи.
//
// Делит общий бюджет сна total_ms на slices примерно равных юнитов.
// Остаток миллисекунд распределяется по первым юнитам, так что сумма
// sleep_ms юнитов всегда равна total_ms.
//
// Payload задачи:
//
//	{"total_ms": 1000, "slices": 4}
//
// Payload юнита:
//
//	{"sleep_ms": 250}
type SleepSplitter struct{}

// Split делит бюджет сна на юниты.
func (SleepSplitter) Split(payload map[string]any) ([]map[string]any, error) {
	total := GetPayloadInt(payload, payloadTotalMs)
	if total <= 0 {
		return nil, fmt.Errorf("%w: %s: total_ms required", ErrInvalidPayload, TypeSleep)
	}

	count := GetPayloadInt(payload, payloadSlices)
	if count <= 0 {
		count = 1
	}
	// Юнитов не может быть больше, чем миллисекунд
	if count > total {
		count = total
	}

	base := total / count
	rem := total % count

	units := make([]map[string]any, 0, count)
	for i := 0; i < count; i++ {
		ms := base
		if i < rem {
			ms++
		}
		units = append(units, map[string]any{payloadSleepMs: ms})
	}
	return units, nil
}

// SleepMerger — агрегация sleep-задачи.
//
// Суммирует slept_ms юнитов; при корректных исполнителях сумма равна
// total_ms исходной задачи.
type SleepMerger struct{}

// Merge складывает проспанные миллисекунды юнитов.
func (SleepMerger) Merge(results []map[string]any) (map[string]any, error) {
	total := 0
	for _, r := range results {
		total += GetPayloadInt(r, resultSleptMs)
	}
	return map[string]any{
		resultTotalSleptMs: total,
		payloadSlices:      len(results),
	}, nil
}

// NewSleep создаёт определение типа sleep.
func NewSleep() *Definition {
	return &Definition{
		Name:     TypeSleep,
		Splitter: SleepSplitter{},
		Merger:   SleepMerger{},
	}
}
