// Package tasktype содержит определения типов задач: стратегии
// декомпозиции и агрегации.
//
// # Обзор
//
// Тип задачи отвечает на два вопроса жизненного цикла задачи:
//   - Как разбить payload задачи на независимые юниты (Splitter)
//   - Как собрать результаты юнитов в итоговый результат (Merger)
//
// Выполнение юнитов типам не принадлежит: оно живёт в weaver'ах
// (internal/weaver), которые объявляют поддерживаемые типы через
// capabilities. Здесь только чистая payload-математика.
//
// # Интерфейсы
//
//	type Splitter interface {
//	    Split(payload map[string]any) ([]map[string]any, error)
//	}
//
//	type Merger interface {
//	    Merge(results []map[string]any) (map[string]any, error)
//	}
//
// Definition связывает имя типа со стратегиями:
//
//	def := &tasktype.Definition{
//	    Name:     "inference",
//	    Splitter: tasktype.InferenceSplitter{},
//	    // Merger nil — используется ConcatMerger
//	}
//
// Позиция payload'а в результате Split определяет ordinal юнита.
// Merge получает результаты строго в порядке ordinal.
//
// # Registry
//
// Registry — фабрика для получения Definition по имени:
//
//	registry := tasktype.DefaultRegistry()  // inference, sleep, echo
//	def, err := registry.Get("inference")
//	if err != nil {
//	    // неизвестный тип
//	}
//
// # Типы задач
//
// ## Inference (inference.go)
//
// Инференс модели над массивом входных данных.
//
// Payload задачи:
//
//	{
//	    "model": "resnet-50",
//	    "data_input": ["img1.png", "img2.png"],
//	    "chunk_size": 2
//	}
//
// Payload юнита:
//
//	{"model": "resnet-50", "chunk": ["img1.png", "img2.png"]}
//
// ## Sleep (sleep.go)
//
// Имитация вычислений: бюджет сна делится на юниты.
//
// Payload задачи:
//
//	{"total_ms": 1000, "slices": 4}
//
// Payload юнита:
//
//	{"sleep_ms": 250}
//
// ## Echo (echo.go)
//
// Диагностический passthrough: один юнит на элемент.
//
// Payload задачи:
//
//	{"items": ["a", "b"]}
//
// Payload юнита:
//
//	{"item": "a"}
//
// # Агрегация по умолчанию
//
// ConcatMerger (merge.go) складывает результаты юнитов в порядке
// ordinal под ключ "all_outputs":
//
//	{"all_outputs": [{"echo": "a"}, {"echo": "b"}]}
//
// # Обработка ошибок
//
// Типизированные ошибки:
//
//	var (
//	    ErrTypeNotFound    // тип не зарегистрирован
//	    ErrInvalidPayload  // payload не соответствует схеме типа
//	    ErrEmptySplit      // декомпозиция не дала юнитов
//	)
//
// Пустой результат Split — всегда ошибка: задача без юнитов не имеет
// смысла и помечается FAILED оркестратором.
//
// # Файлы пакета
//
//   - tasktype.go  — интерфейсы Splitter/Merger, Definition, ошибки, helpers
//   - registry.go  — Registry для получения Definition по имени
//   - merge.go     — ConcatMerger (агрегация по умолчанию)
//   - inference.go — InferenceSplitter
//   - sleep.go     — SleepSplitter
//   - echo.go      — EchoSplitter
package tasktype
