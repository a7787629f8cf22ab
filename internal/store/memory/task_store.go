package memory

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/shaiso/Neuroweave/internal/domain"
	"github.com/shaiso/Neuroweave/internal/store"
)

// CreateTask сохраняет новую задачу и ставит её в конец FIFO-порядка.
func (s *Store) CreateTask(ctx context.Context, t *domain.Task) error {
	row := &taskRow{rec: *cloneTask(t)}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tasks[t.ID]; ok {
		return store.ErrAlreadyExists
	}
	s.tasks[t.ID] = row
	s.taskOrder = append(s.taskOrder, t.ID)
	return nil
}

// GetTask возвращает копию задачи по ID.
func (s *Store) GetTask(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	row := s.getTaskRow(id)
	if row == nil {
		return nil, store.ErrNotFound
	}

	row.mu.Lock()
	defer row.mu.Unlock()
	return cloneTask(&row.rec), nil
}

// ListTasks возвращает все задачи, новые первыми.
func (s *Store) ListTasks(ctx context.Context) ([]*domain.Task, error) {
	rows := s.taskRowsInOrder()

	tasks := make([]*domain.Task, 0, len(rows))
	for i := len(rows) - 1; i >= 0; i-- {
		rows[i].mu.Lock()
		tasks = append(tasks, cloneTask(&rows[i].rec))
		rows[i].mu.Unlock()
	}
	return tasks, nil
}

// ListTasksByStatus возвращает задачи в заданном статусе, старые первыми.
func (s *Store) ListTasksByStatus(ctx context.Context, status domain.TaskStatus, limit int) ([]*domain.Task, error) {
	rows := s.taskRowsInOrder()

	var tasks []*domain.Task
	for _, row := range rows {
		row.mu.Lock()
		if row.rec.Status == status {
			tasks = append(tasks, cloneTask(&row.rec))
		}
		row.mu.Unlock()

		if limit > 0 && len(tasks) >= limit {
			break
		}
	}
	return tasks, nil
}

// taskRowsInOrder возвращает строки задач в порядке подачи.
func (s *Store) taskRowsInOrder() []*taskRow {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows := make([]*taskRow, 0, len(s.taskOrder))
	for _, id := range s.taskOrder {
		rows = append(rows, s.tasks[id])
	}
	return rows
}

// MarkTaskDecomposing захватывает задачу декомпозером: PENDING → DECOMPOSING.
func (s *Store) MarkTaskDecomposing(ctx context.Context, id uuid.UUID) error {
	row := s.getTaskRow(id)
	if row == nil {
		return store.ErrNotFound
	}

	row.mu.Lock()
	defer row.mu.Unlock()

	if row.rec.Status != domain.TaskStatusPending {
		return store.ErrInvalidState
	}
	row.rec.MarkDecomposing()
	return nil
}

// InsertUnits атомарно вставляет все юниты задачи и переводит её в IN_PROGRESS.
//
// Юниты становятся видимы читателям одним действием: арена и индекс
// обновляются под глобальным мьютексом, пока строка задачи заблокирована.
func (s *Store) InsertUnits(ctx context.Context, taskID uuid.UUID, units []*domain.WorkUnit) error {
	if len(units) == 0 {
		return store.ErrInvalidState
	}

	rows := make([]*unitRow, len(units))
	for i, u := range units {
		rec := *cloneUnit(u)
		rec.Status = domain.UnitStatusPending
		rows[i] = &unitRow{rec: rec}
	}
	sort.Slice(rows, func(i, j int) bool {
		return rows[i].rec.Ordinal < rows[j].rec.Ordinal
	})
	// Ordinal'ы обязаны быть уникальны и непрерывны от 0.
	for i, row := range rows {
		if row.rec.Ordinal != i || row.rec.TaskID != taskID {
			return store.ErrInvalidState
		}
	}

	trow := s.getTaskRow(taskID)
	if trow == nil {
		return store.ErrNotFound
	}

	trow.mu.Lock()
	defer trow.mu.Unlock()

	if trow.rec.Status != domain.TaskStatusDecomposing {
		return store.ErrInvalidState
	}

	s.mu.Lock()
	ids := make([]uuid.UUID, len(rows))
	for i, row := range rows {
		s.units[row.rec.ID] = row
		ids[i] = row.rec.ID
	}
	s.unitsByTask[taskID] = ids
	s.mu.Unlock()

	trow.rec.MarkInProgress(len(rows))
	return nil
}

// FailTask переводит незавершённую задачу в FAILED.
func (s *Store) FailTask(ctx context.Context, id uuid.UUID, reason string) error {
	row := s.getTaskRow(id)
	if row == nil {
		return store.ErrNotFound
	}

	row.mu.Lock()
	defer row.mu.Unlock()

	if row.rec.Status.IsTerminal() {
		return store.ErrInvalidState
	}
	row.rec.MarkFailed(reason)
	return nil
}

// BeginAggregation захватывает задачу агрегатором: IN_PROGRESS → AGGREGATING,
// только если все юниты COMPLETED. COMPLETED — терминальный статус, юнит из
// него не выходит, поэтому проверка по одному юниту за раз безопасна.
func (s *Store) BeginAggregation(ctx context.Context, taskID uuid.UUID) ([]*domain.WorkUnit, error) {
	trow := s.getTaskRow(taskID)
	if trow == nil {
		return nil, store.ErrNotFound
	}

	trow.mu.Lock()
	defer trow.mu.Unlock()

	if trow.rec.Status != domain.TaskStatusInProgress {
		return nil, store.ErrInvalidState
	}

	s.mu.RLock()
	ids := make([]uuid.UUID, len(s.unitsByTask[taskID]))
	copy(ids, s.unitsByTask[taskID])
	s.mu.RUnlock()

	units := make([]*domain.WorkUnit, 0, len(ids))
	for _, id := range ids {
		urow := s.getUnitRow(id)
		urow.mu.Lock()
		if urow.rec.Status != domain.UnitStatusCompleted {
			urow.mu.Unlock()
			return nil, store.ErrInvalidState
		}
		units = append(units, cloneUnit(&urow.rec))
		urow.mu.Unlock()
	}

	trow.rec.MarkAggregating()
	return units, nil
}

// CompleteTask завершает агрегацию: AGGREGATING → COMPLETED с результатом.
func (s *Store) CompleteTask(ctx context.Context, id uuid.UUID, result map[string]any) error {
	row := s.getTaskRow(id)
	if row == nil {
		return store.ErrNotFound
	}

	row.mu.Lock()
	defer row.mu.Unlock()

	if row.rec.Status != domain.TaskStatusAggregating {
		return store.ErrInvalidState
	}
	row.rec.MarkCompleted(result)
	return nil
}
