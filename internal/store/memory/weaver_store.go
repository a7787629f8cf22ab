package memory

import (
	"context"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Neuroweave/internal/domain"
	"github.com/shaiso/Neuroweave/internal/store"
)

// CreateWeaver регистрирует нового воркера.
func (s *Store) CreateWeaver(ctx context.Context, w *domain.Weaver) error {
	row := &weaverRow{rec: *cloneWeaver(w)}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.weavers[w.ID]; ok {
		return store.ErrAlreadyExists
	}
	s.weavers[w.ID] = row
	s.weaverOrder = append(s.weaverOrder, w.ID)
	return nil
}

// GetWeaver возвращает копию воркера по ID.
func (s *Store) GetWeaver(ctx context.Context, id uuid.UUID) (*domain.Weaver, error) {
	row := s.getWeaverRow(id)
	if row == nil {
		return nil, store.ErrNotFound
	}

	row.mu.Lock()
	defer row.mu.Unlock()

	if row.deleted {
		return nil, store.ErrNotFound
	}
	return cloneWeaver(&row.rec), nil
}

// ListWeavers возвращает воркеров в порядке регистрации.
func (s *Store) ListWeavers(ctx context.Context) ([]*domain.Weaver, error) {
	s.mu.RLock()
	rows := make([]*weaverRow, 0, len(s.weaverOrder))
	for _, id := range s.weaverOrder {
		rows = append(rows, s.weavers[id])
	}
	s.mu.RUnlock()

	weavers := make([]*domain.Weaver, 0, len(rows))
	for _, row := range rows {
		row.mu.Lock()
		if !row.deleted {
			weavers = append(weavers, cloneWeaver(&row.rec))
		}
		row.mu.Unlock()
	}
	return weavers, nil
}

// TouchWeaver обновляет LastSeen воркера (heartbeat).
func (s *Store) TouchWeaver(ctx context.Context, id uuid.UUID) error {
	row := s.getWeaverRow(id)
	if row == nil {
		return store.ErrNotFound
	}

	row.mu.Lock()
	defer row.mu.Unlock()

	if row.deleted {
		return store.ErrNotFound
	}
	row.rec.Touch()
	return nil
}

// PurgeWeavers удаляет воркеров, молчащих дольше cutoff, и возвращает их
// юниты в раздачу (или проваливает при исчерпании retry).
//
// Назначения, сделанные после cycleStart, не трогаются: такой claim обновил
// LastSeen воркера, и воркер уже не считается молчащим. Отчёт, гонящийся с
// purge за ту же строку юнита, либо успевает первым (юнит уходит из
// ASSIGNED, воркер остаётся без назначения и вычищается следующим циклом),
// либо отклоняется после purge как ErrAssignmentMismatch.
func (s *Store) PurgeWeavers(ctx context.Context, cutoff, cycleStart time.Time, maxRetries int) (*store.PurgeResult, error) {
	s.mu.RLock()
	ids := slices.Clone(s.weaverOrder)
	s.mu.RUnlock()

	res := &store.PurgeResult{}
	for _, id := range ids {
		wrow := s.getWeaverRow(id)
		if wrow == nil {
			continue
		}

		wrow.mu.Lock()
		if wrow.deleted || !wrow.rec.LastSeen.Before(cutoff) {
			wrow.mu.Unlock()
			continue
		}
		cur := wrow.rec.CurrentUnit
		if cur == nil {
			wrow.deleted = true
			res.Purged = append(res.Purged, cloneWeaver(&wrow.rec))
			wrow.mu.Unlock()
			s.removeWeaver(id)
			continue
		}
		unitID := *cur
		wrow.mu.Unlock()

		// Порядок блокировок: юнит → воркер, поэтому строка воркера
		// отпускается и перехватывается заново с перепроверкой.
		urow := s.getUnitRow(unitID)
		urow.mu.Lock()
		wrow.mu.Lock()

		stillStale := !wrow.deleted && wrow.rec.LastSeen.Before(cutoff) &&
			wrow.rec.CurrentUnit != nil && *wrow.rec.CurrentUnit == unitID
		if !stillStale {
			// Отчёт или claim успели между блокировками; воркер
			// достанется следующему циклу, если всё ещё молчит.
			wrow.mu.Unlock()
			urow.mu.Unlock()
			continue
		}

		if isAssignee(&urow.rec, id) && urow.rec.AssignedAt != nil &&
			urow.rec.AssignedAt.Before(cycleStart) {
			if urow.rec.CanRetry(maxRetries) {
				urow.rec.ResetForRetry("assigned weaver purged")
				res.Requeued = append(res.Requeued, cloneUnit(&urow.rec))
			} else {
				urow.rec.MarkFailed("assigned weaver purged")
				res.Exhausted = append(res.Exhausted, cloneUnit(&urow.rec))
			}
			wrow.rec.ClearAssignment()
			wrow.deleted = true
			res.Purged = append(res.Purged, cloneWeaver(&wrow.rec))
			wrow.mu.Unlock()
			urow.mu.Unlock()
			s.removeWeaver(id)
			continue
		}

		wrow.mu.Unlock()
		urow.mu.Unlock()
	}
	return res, nil
}

// removeWeaver убирает воркера из арены и индекса порядка регистрации.
func (s *Store) removeWeaver(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.weavers, id)
	if i := slices.Index(s.weaverOrder, id); i >= 0 {
		s.weaverOrder = slices.Delete(s.weaverOrder, i, i+1)
	}
}
