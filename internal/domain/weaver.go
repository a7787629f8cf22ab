package domain

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

// Weaver — зарегистрированный воркер-процесс.
//
// Weaver'ы сами приходят за работой (поллинг): оркестратор никогда не
// проталкивает юниты к воркерам. Живость — производная от LastSeen,
// пересчитывается при чтении и нигде не хранится как флаг.
type Weaver struct {
	// ID — уникальный идентификатор воркера.
	ID uuid.UUID `json:"id"`

	// Address — адрес воркера (host:port). Информационное поле,
	// оркестратор по нему не ходит.
	Address string `json:"address,omitempty"`

	// Capabilities — типы задач, которые воркер умеет выполнять.
	Capabilities []string `json:"capabilities"`

	// RegisteredAt — время регистрации.
	RegisteredAt time.Time `json:"registered_at"`

	// LastSeen — время последнего контакта (heartbeat, poll или report).
	LastSeen time.Time `json:"last_seen"`

	// CurrentUnit — ID юнита, назначенного воркеру. Nil, если воркер свободен.
	// У воркера не бывает больше одного активного назначения.
	CurrentUnit *uuid.UUID `json:"current_unit,omitempty"`
}

// IsLive возвращает true, если воркер живой: с последнего контакта
// прошло меньше livenessTimeout.
func (w *Weaver) IsLive(livenessTimeout time.Duration, now time.Time) bool {
	return now.Sub(w.LastSeen) < livenessTimeout
}

// IsIdle возвращает true, если у воркера нет активного назначения.
func (w *Weaver) IsIdle() bool {
	return w.CurrentUnit == nil
}

// CanExecute проверяет, заявлен ли тип задачи в capabilities воркера.
func (w *Weaver) CanExecute(taskType string) bool {
	return slices.Contains(w.Capabilities, taskType)
}

// Touch обновляет время последнего контакта.
func (w *Weaver) Touch() {
	w.LastSeen = time.Now()
}

// Assign записывает воркеру активное назначение.
func (w *Weaver) Assign(unitID uuid.UUID) {
	w.CurrentUnit = &unitID
}

// ClearAssignment снимает активное назначение.
func (w *Weaver) ClearAssignment() {
	w.CurrentUnit = nil
}
