package memory

import (
	"context"
	"slices"

	"github.com/google/uuid"

	"github.com/shaiso/Neuroweave/internal/domain"
	"github.com/shaiso/Neuroweave/internal/store"
)

// GetUnit возвращает копию юнита по ID.
func (s *Store) GetUnit(ctx context.Context, id uuid.UUID) (*domain.WorkUnit, error) {
	row := s.getUnitRow(id)
	if row == nil {
		return nil, store.ErrNotFound
	}

	row.mu.Lock()
	defer row.mu.Unlock()
	return cloneUnit(&row.rec), nil
}

// ListUnitsByTask возвращает юниты задачи в порядке ordinal.
func (s *Store) ListUnitsByTask(ctx context.Context, taskID uuid.UUID) ([]*domain.WorkUnit, error) {
	if row := s.getTaskRow(taskID); row == nil {
		return nil, store.ErrNotFound
	}

	s.mu.RLock()
	ids := make([]uuid.UUID, len(s.unitsByTask[taskID]))
	copy(ids, s.unitsByTask[taskID])
	s.mu.RUnlock()

	units := make([]*domain.WorkUnit, 0, len(ids))
	for _, id := range ids {
		row := s.getUnitRow(id)
		row.mu.Lock()
		units = append(units, cloneUnit(&row.rec))
		row.mu.Unlock()
	}
	return units, nil
}

// ClaimUnit атомарно назначает воркеру следующий подходящий юнит.
//
// Порядок выбора: задачи в порядке подачи (FIFO), внутри задачи — юниты
// по возрастанию ordinal. Кандидат берётся только из задач IN_PROGRESS:
// PENDING-юниты провалившихся задач не раздаются, чтобы не жечь
// мощность воркеров на мёртвую задачу.
func (s *Store) ClaimUnit(ctx context.Context, weaverID uuid.UUID, capabilities []string) (*domain.WorkUnit, bool, error) {
	wrow := s.getWeaverRow(weaverID)
	if wrow == nil {
		return nil, false, store.ErrNotFound
	}

	wrow.mu.Lock()
	if wrow.deleted {
		wrow.mu.Unlock()
		return nil, false, store.ErrNotFound
	}
	wrow.rec.Touch()
	if cur := wrow.rec.CurrentUnit; cur != nil {
		id := *cur
		wrow.mu.Unlock()
		return s.redeliver(id)
	}
	if len(capabilities) == 0 {
		capabilities = slices.Clone(wrow.rec.Capabilities)
	}
	wrow.mu.Unlock()

	for _, cand := range s.pendingCandidates(capabilities) {
		urow := s.getUnitRow(cand)
		urow.mu.Lock()
		if urow.rec.Status != domain.UnitStatusPending {
			urow.mu.Unlock()
			continue
		}

		// Порядок блокировок: юнит → воркер.
		wrow.mu.Lock()
		if wrow.deleted {
			wrow.mu.Unlock()
			urow.mu.Unlock()
			return nil, false, store.ErrNotFound
		}
		if cur := wrow.rec.CurrentUnit; cur != nil {
			// Параллельный poll того же воркера успел раньше.
			id := *cur
			wrow.mu.Unlock()
			urow.mu.Unlock()
			return s.redeliver(id)
		}

		urow.rec.MarkAssigned(weaverID)
		wrow.rec.Assign(urow.rec.ID)
		unit := cloneUnit(&urow.rec)
		wrow.mu.Unlock()
		urow.mu.Unlock()
		return unit, false, nil
	}

	return nil, false, store.ErrNoWork
}

// redeliver возвращает уже назначенный воркеру юнит повторно.
func (s *Store) redeliver(unitID uuid.UUID) (*domain.WorkUnit, bool, error) {
	row := s.getUnitRow(unitID)
	if row == nil {
		return nil, false, store.ErrNotFound
	}
	row.mu.Lock()
	defer row.mu.Unlock()
	return cloneUnit(&row.rec), true, nil
}

// pendingCandidates возвращает ID юнитов задач, подходящих по типу,
// в порядке раздачи. Статусы юнитов здесь не читаются: кандидат
// перепроверяется под блокировкой строки в ClaimUnit.
func (s *Store) pendingCandidates(capabilities []string) []uuid.UUID {
	rows := s.taskRowsInOrder()

	var out []uuid.UUID
	for _, trow := range rows {
		trow.mu.Lock()
		eligible := trow.rec.Status == domain.TaskStatusInProgress &&
			slices.Contains(capabilities, trow.rec.Type)
		taskID := trow.rec.ID
		trow.mu.Unlock()
		if !eligible {
			continue
		}

		s.mu.RLock()
		out = append(out, s.unitsByTask[taskID]...)
		s.mu.RUnlock()
	}
	return out
}

// CompleteUnit принимает успешный результат юнита.
func (s *Store) CompleteUnit(ctx context.Context, unitID, weaverID uuid.UUID, result map[string]any) (*domain.WorkUnit, error) {
	urow := s.getUnitRow(unitID)
	if urow == nil {
		return nil, store.ErrNotFound
	}

	urow.mu.Lock()
	defer urow.mu.Unlock()

	if !isAssignee(&urow.rec, weaverID) {
		return nil, store.ErrAssignmentMismatch
	}

	s.clearWeaverAssignment(weaverID, unitID)
	urow.rec.MarkCompleted(result)
	return cloneUnit(&urow.rec), nil
}

// FailUnitAttempt принимает провальный отчёт: retry либо окончательный провал.
func (s *Store) FailUnitAttempt(ctx context.Context, unitID, weaverID uuid.UUID, errText string, maxRetries int) (*domain.WorkUnit, error) {
	urow := s.getUnitRow(unitID)
	if urow == nil {
		return nil, store.ErrNotFound
	}

	urow.mu.Lock()
	defer urow.mu.Unlock()

	if !isAssignee(&urow.rec, weaverID) {
		return nil, store.ErrAssignmentMismatch
	}

	s.clearWeaverAssignment(weaverID, unitID)
	if urow.rec.CanRetry(maxRetries) {
		urow.rec.ResetForRetry(errText)
	} else {
		urow.rec.MarkFailed(errText)
	}
	return cloneUnit(&urow.rec), nil
}

// isAssignee проверяет, что воркер — текущий назначенец юнита.
func isAssignee(u *domain.WorkUnit, weaverID uuid.UUID) bool {
	return u.Status == domain.UnitStatusAssigned &&
		u.AssignedWeaver != nil && *u.AssignedWeaver == weaverID
}

// clearWeaverAssignment снимает назначение у воркера, если оно указывает
// на данный юнит. Вызывается под блокировкой строки юнита (юнит → воркер).
func (s *Store) clearWeaverAssignment(weaverID, unitID uuid.UUID) {
	wrow := s.getWeaverRow(weaverID)
	if wrow == nil {
		return
	}

	wrow.mu.Lock()
	defer wrow.mu.Unlock()

	if wrow.deleted {
		return
	}
	if wrow.rec.CurrentUnit != nil && *wrow.rec.CurrentUnit == unitID {
		wrow.rec.ClearAssignment()
	}
	wrow.rec.Touch()
}
