package domain

import (
	"time"

	"github.com/google/uuid"
)

// WorkUnit — независимо исполняемый кусок задачи.
//
// Юниты создаются декомпозицией все разом (атомарно) и раздаются
// воркерам по одному через поллинг. Инварианты:
// - Ordinal уникален и непрерывен от 0 в рамках задачи
// - юнит ASSIGNED ровно тогда, когда AssignedWeaver != nil и у этого
//   воркера CurrentUnit == ID юнита (двусторонняя согласованность)
type WorkUnit struct {
	// ID — уникальный идентификатор юнита.
	ID uuid.UUID `json:"id"`

	// TaskID — ссылка на родительскую задачу.
	TaskID uuid.UUID `json:"task_id"`

	// TaskType — тег типа родительской задачи, денормализованный при
	// декомпозиции. Воркер выбирает по нему исполнителя юнита.
	TaskType string `json:"task_type"`

	// Ordinal — порядковый номер юнита в задаче (0, 1, 2, ...).
	// Определяет порядок слияния результатов и порядок раздачи.
	Ordinal int `json:"ordinal"`

	// Status — текущий статус юнита.
	Status UnitStatus `json:"status"`

	// Payload — под-нагрузка юнита, вычисленная стратегией декомпозиции.
	Payload map[string]any `json:"payload,omitempty"`

	// AssignedWeaver — ID воркера, которому назначен юнит.
	// Nil, пока юнит не назначен.
	AssignedWeaver *uuid.UUID `json:"assigned_weaver,omitempty"`

	// AssignedAt — время назначения. Используется purge'ем, чтобы не
	// трогать назначения, сделанные после начала цикла очистки.
	AssignedAt *time.Time `json:"assigned_at,omitempty"`

	// Result — результат выполнения, только когда Status == COMPLETED.
	Result map[string]any `json:"result,omitempty"`

	// Error — текст последней ошибки, сообщённой воркером.
	Error string `json:"error,omitempty"`

	// RetryCount — сколько раз юнит возвращался в PENDING после неудачи
	// (сообщённый провал или purge исчезнувшего воркера).
	RetryCount int `json:"retry_count"`

	// CreatedAt — время создания юнита.
	CreatedAt time.Time `json:"created_at"`
}

// IsFinished возвращает true, если юнит завершён.
func (u *WorkUnit) IsFinished() bool {
	return u.Status.IsTerminal()
}

// MarkAssigned назначает юнит воркеру.
func (u *WorkUnit) MarkAssigned(weaverID uuid.UUID) {
	now := time.Now()
	u.Status = UnitStatusAssigned
	u.AssignedWeaver = &weaverID
	u.AssignedAt = &now
}

// MarkCompleted переводит юнит в статус COMPLETED с результатом
// и снимает назначение.
func (u *WorkUnit) MarkCompleted(result map[string]any) {
	u.Status = UnitStatusCompleted
	u.Result = result
	u.AssignedWeaver = nil
	u.AssignedAt = nil
}

// MarkFailed проваливает юнит окончательно.
func (u *WorkUnit) MarkFailed(errText string) {
	u.Status = UnitStatusFailed
	u.Error = errText
	u.AssignedWeaver = nil
	u.AssignedAt = nil
}

// ResetForRetry возвращает юнит в PENDING для повторного назначения
// и увеличивает счётчик retry.
func (u *WorkUnit) ResetForRetry(errText string) {
	u.Status = UnitStatusPending
	u.Error = errText
	u.AssignedWeaver = nil
	u.AssignedAt = nil
	u.RetryCount++
}

// CanRetry проверяет, остался ли у юнита retry-бюджет.
// maxRetries — число повторов сверх первой попытки: при maxRetries=2
// юнит может быть выполнен максимум 3 раза.
func (u *WorkUnit) CanRetry(maxRetries int) bool {
	return u.RetryCount < maxRetries
}
