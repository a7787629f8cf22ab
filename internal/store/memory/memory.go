// Package memory реализует store.Store в памяти процесса.
//
// Устройство: арена указателей на строки (map id → *row) плюс явные
// индексы — порядок подачи задач (FIFO), списки юнитов задачи в порядке
// ordinal, порядок регистрации воркеров. Арены и индексы защищены одним
// RWMutex; содержимое каждой строки — собственным мьютексом строки,
// поэтому операции над разными задачами/юнитами/воркерами друг друга
// не блокируют.
//
// Порядок взятия блокировок фиксированный: строка задачи → строки юнитов
// (по ordinal) → строка воркера → мьютекс арены. Глобальный мьютекс
// никогда не удерживается при захвате мьютекса строки.
//
// Payload/Result, отданные наружу, разделяют map'ы с ареной: записи
// считаются неизменяемыми после сохранения, читатели их не модифицируют.
package memory

import (
	"sync"

	"github.com/google/uuid"

	"github.com/shaiso/Neuroweave/internal/domain"
)

// taskRow — строка арены задач.
type taskRow struct {
	mu  sync.Mutex
	rec domain.Task
}

// unitRow — строка арены юнитов.
type unitRow struct {
	mu  sync.Mutex
	rec domain.WorkUnit
}

// weaverRow — строка арены воркеров.
// deleted выставляется purge'ем: строка может быть ещё видна читателю,
// который достал указатель до удаления из арены.
type weaverRow struct {
	mu      sync.Mutex
	deleted bool
	rec     domain.Weaver
}

// scheduleRow — строка арены расписаний.
type scheduleRow struct {
	mu      sync.Mutex
	deleted bool
	rec     domain.Schedule
}

// Store — in-memory реализация store.Store.
type Store struct {
	mu sync.RWMutex

	tasks     map[uuid.UUID]*taskRow
	units     map[uuid.UUID]*unitRow
	weavers   map[uuid.UUID]*weaverRow
	schedules map[uuid.UUID]*scheduleRow

	// taskOrder — ID задач в порядке подачи (FIFO раздачи юнитов).
	taskOrder []uuid.UUID

	// unitsByTask — ID юнитов задачи в порядке ordinal.
	unitsByTask map[uuid.UUID][]uuid.UUID

	// weaverOrder — ID воркеров в порядке регистрации.
	weaverOrder []uuid.UUID
}

// New создаёт пустой in-memory store.
func New() *Store {
	return &Store{
		tasks:       make(map[uuid.UUID]*taskRow),
		units:       make(map[uuid.UUID]*unitRow),
		weavers:     make(map[uuid.UUID]*weaverRow),
		schedules:   make(map[uuid.UUID]*scheduleRow),
		unitsByTask: make(map[uuid.UUID][]uuid.UUID),
	}
}

// Close освобождает ресурсы. Для in-memory store — no-op.
func (s *Store) Close() {}

// getTaskRow возвращает указатель на строку задачи или nil.
func (s *Store) getTaskRow(id uuid.UUID) *taskRow {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tasks[id]
}

// getUnitRow возвращает указатель на строку юнита или nil.
func (s *Store) getUnitRow(id uuid.UUID) *unitRow {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.units[id]
}

// getWeaverRow возвращает указатель на строку воркера или nil.
func (s *Store) getWeaverRow(id uuid.UUID) *weaverRow {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.weavers[id]
}

// getScheduleRow возвращает указатель на строку расписания или nil.
func (s *Store) getScheduleRow(id uuid.UUID) *scheduleRow {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.schedules[id]
}

// cloneTask возвращает копию записи задачи.
func cloneTask(t *domain.Task) *domain.Task {
	c := *t
	if t.FinishedAt != nil {
		ts := *t.FinishedAt
		c.FinishedAt = &ts
	}
	return &c
}

// cloneUnit возвращает копию записи юнита.
func cloneUnit(u *domain.WorkUnit) *domain.WorkUnit {
	c := *u
	if u.AssignedWeaver != nil {
		id := *u.AssignedWeaver
		c.AssignedWeaver = &id
	}
	if u.AssignedAt != nil {
		ts := *u.AssignedAt
		c.AssignedAt = &ts
	}
	return &c
}

// cloneWeaver возвращает копию записи воркера.
func cloneWeaver(w *domain.Weaver) *domain.Weaver {
	c := *w
	if w.CurrentUnit != nil {
		id := *w.CurrentUnit
		c.CurrentUnit = &id
	}
	return &c
}

// cloneSchedule возвращает копию записи расписания.
func cloneSchedule(sc *domain.Schedule) *domain.Schedule {
	c := *sc
	if sc.NextDueAt != nil {
		ts := *sc.NextDueAt
		c.NextDueAt = &ts
	}
	if sc.LastSubmitAt != nil {
		ts := *sc.LastSubmitAt
		c.LastSubmitAt = &ts
	}
	if sc.LastTaskID != nil {
		id := *sc.LastTaskID
		c.LastTaskID = &id
	}
	return &c
}
