package tasktype

// ConcatMerger — агрегация по умолчанию.
//
// Складывает результаты юнитов (в порядке ordinal) в массив под ключом
// "all_outputs". Используется для всех типов без собственного Merger.
type ConcatMerger struct{}

// Merge собирает результаты юнитов в {"all_outputs": [...]}.
func (ConcatMerger) Merge(results []map[string]any) (map[string]any, error) {
	outputs := make([]any, 0, len(results))
	for _, r := range results {
		outputs = append(outputs, r)
	}
	return map[string]any{"all_outputs": outputs}, nil
}
