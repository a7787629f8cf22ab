package domain

import (
	"time"

	"github.com/google/uuid"
)

// Task — вычислительная задача, принятая от заказчика.
//
// Задача проходит путь:
// - Submit создаёт её в статусе PENDING
// - Декомпозер разбивает payload на юниты (WorkUnit) по стратегии типа
// - Воркеры ("weavers") выполняют юниты и сообщают результаты
// - Агрегатор собирает результаты юнитов в итоговый Result
//
// Статус задачи — производная от статусов её юнитов.
type Task struct {
	// ID — уникальный идентификатор задачи.
	ID uuid.UUID `json:"id"`

	// Type — тег типа задачи. Определяет стратегию декомпозиции
	// и функцию слияния результатов (см. tasktype.Registry).
	Type string `json:"type"`

	// Status — текущий статус задачи.
	Status TaskStatus `json:"status"`

	// Payload — входные данные задачи. Для оркестратора непрозрачны,
	// интерпретируются только стратегией декомпозиции.
	Payload map[string]any `json:"payload,omitempty"`

	// UnitCount — количество юнитов, созданных декомпозицией.
	// 0, пока декомпозиция не завершилась.
	UnitCount int `json:"unit_count"`

	// Result — итоговый результат задачи.
	// Заполняется агрегатором, только когда Status == COMPLETED.
	Result map[string]any `json:"result,omitempty"`

	// FailureReason — причина провала, только когда Status == FAILED.
	// Называет провалившийся юнит либо ошибку декомпозиции.
	FailureReason string `json:"failure_reason,omitempty"`

	// CreatedAt — время приёма задачи. Определяет порядок раздачи
	// юнитов воркерам (FIFO по задачам).
	CreatedAt time.Time `json:"created_at"`

	// FinishedAt — время перехода в терминальный статус.
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// IsFinished возвращает true, если задача завершена.
func (t *Task) IsFinished() bool {
	return t.Status.IsTerminal()
}

// Duration возвращает время от приёма до завершения.
// Возвращает 0, если задача ещё не завершена.
func (t *Task) Duration() time.Duration {
	if t.FinishedAt == nil {
		return 0
	}
	return t.FinishedAt.Sub(t.CreatedAt)
}

// MarkDecomposing переводит задачу в статус DECOMPOSING.
func (t *Task) MarkDecomposing() {
	t.Status = TaskStatusDecomposing
}

// MarkInProgress переводит задачу в статус IN_PROGRESS после вставки юнитов.
func (t *Task) MarkInProgress(unitCount int) {
	t.Status = TaskStatusInProgress
	t.UnitCount = unitCount
}

// MarkAggregating переводит задачу в статус AGGREGATING.
// Переход выполняет ровно один агрегирующий вызов (CAS в store).
func (t *Task) MarkAggregating() {
	t.Status = TaskStatusAggregating
}

// MarkCompleted переводит задачу в статус COMPLETED с итоговым результатом.
func (t *Task) MarkCompleted(result map[string]any) {
	now := time.Now()
	t.Status = TaskStatusCompleted
	t.Result = result
	t.FinishedAt = &now
}

// MarkFailed переводит задачу в статус FAILED с причиной.
func (t *Task) MarkFailed(reason string) {
	now := time.Now()
	t.Status = TaskStatusFailed
	t.FailureReason = reason
	t.FinishedAt = &now
}
