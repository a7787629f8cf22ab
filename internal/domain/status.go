package domain

// TaskStatus — статус задачи.
//
// Жизненный цикл:
//
//	PENDING → DECOMPOSING → IN_PROGRESS → AGGREGATING → COMPLETED
//	                      ↘ FAILED (пустая декомпозиция)
//	                                   ↘ FAILED (исчерпаны retry юнита)
type TaskStatus string

const (
	// TaskStatusPending — задача принята, декомпозиция ещё не началась.
	TaskStatusPending TaskStatus = "PENDING"

	// TaskStatusDecomposing — задача захвачена декомпозером, юниты ещё не созданы.
	TaskStatusDecomposing TaskStatus = "DECOMPOSING"

	// TaskStatusInProgress — юниты созданы, хотя бы один не завершён.
	TaskStatusInProgress TaskStatus = "IN_PROGRESS"

	// TaskStatusAggregating — все юниты завершены, идёт слияние результатов.
	TaskStatusAggregating TaskStatus = "AGGREGATING"

	// TaskStatusCompleted — задача успешно завершена, результат собран.
	TaskStatusCompleted TaskStatus = "COMPLETED"

	// TaskStatusFailed — задача завершилась с ошибкой (после всех retry).
	TaskStatusFailed TaskStatus = "FAILED"
)

// IsTerminal возвращает true, если статус финальный (задача завершена).
func (s TaskStatus) IsTerminal() bool {
	switch s {
	case TaskStatusCompleted, TaskStatusFailed:
		return true
	default:
		return false
	}
}

// UnitStatus — статус юнита работы.
//
// Жизненный цикл:
//
//	PENDING → ASSIGNED → COMPLETED
//	                   ↘ PENDING (retry, в том числе после purge воркера)
//	                   ↘ FAILED (retry исчерпаны)
type UnitStatus string

const (
	// UnitStatusPending — юнит ожидает назначения на воркера.
	UnitStatusPending UnitStatus = "PENDING"

	// UnitStatusAssigned — юнит назначен воркеру и выполняется.
	UnitStatusAssigned UnitStatus = "ASSIGNED"

	// UnitStatusCompleted — юнит успешно выполнен, результат сохранён.
	UnitStatusCompleted UnitStatus = "COMPLETED"

	// UnitStatusFailed — юнит провален окончательно.
	UnitStatusFailed UnitStatus = "FAILED"
)

// IsTerminal возвращает true, если статус финальный.
func (s UnitStatus) IsTerminal() bool {
	switch s {
	case UnitStatusCompleted, UnitStatusFailed:
		return true
	default:
		return false
	}
}
