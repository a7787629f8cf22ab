package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Neuroweave/internal/domain"
	"github.com/shaiso/Neuroweave/internal/store"
)

// CreateSchedule сохраняет новое расписание.
func (s *Store) CreateSchedule(ctx context.Context, sc *domain.Schedule) error {
	row := &scheduleRow{rec: *cloneSchedule(sc)}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.schedules[sc.ID]; ok {
		return store.ErrAlreadyExists
	}
	s.schedules[sc.ID] = row
	return nil
}

// GetSchedule возвращает копию расписания по ID.
func (s *Store) GetSchedule(ctx context.Context, id uuid.UUID) (*domain.Schedule, error) {
	row := s.getScheduleRow(id)
	if row == nil {
		return nil, store.ErrNotFound
	}

	row.mu.Lock()
	defer row.mu.Unlock()

	if row.deleted {
		return nil, store.ErrNotFound
	}
	return cloneSchedule(&row.rec), nil
}

// ListSchedules возвращает все расписания, отсортированные по времени создания.
func (s *Store) ListSchedules(ctx context.Context) ([]*domain.Schedule, error) {
	rows := s.scheduleRows()

	schedules := make([]*domain.Schedule, 0, len(rows))
	for _, row := range rows {
		row.mu.Lock()
		if !row.deleted {
			schedules = append(schedules, cloneSchedule(&row.rec))
		}
		row.mu.Unlock()
	}
	sort.Slice(schedules, func(i, j int) bool {
		return schedules[i].CreatedAt.Before(schedules[j].CreatedAt)
	})
	return schedules, nil
}

// ListDueSchedules возвращает активные расписания с подошедшим next_due_at.
func (s *Store) ListDueSchedules(ctx context.Context, now time.Time) ([]*domain.Schedule, error) {
	rows := s.scheduleRows()

	var due []*domain.Schedule
	for _, row := range rows {
		row.mu.Lock()
		if !row.deleted && row.rec.IsDue(now) {
			due = append(due, cloneSchedule(&row.rec))
		}
		row.mu.Unlock()
	}
	sort.Slice(due, func(i, j int) bool {
		return due[i].NextDueAt.Before(*due[j].NextDueAt)
	})
	return due, nil
}

// UpdateSchedule заменяет запись расписания целиком.
func (s *Store) UpdateSchedule(ctx context.Context, sc *domain.Schedule) error {
	row := s.getScheduleRow(sc.ID)
	if row == nil {
		return store.ErrNotFound
	}

	row.mu.Lock()
	defer row.mu.Unlock()

	if row.deleted {
		return store.ErrNotFound
	}
	row.rec = *cloneSchedule(sc)
	return nil
}

// DeleteSchedule удаляет расписание.
func (s *Store) DeleteSchedule(ctx context.Context, id uuid.UUID) error {
	row := s.getScheduleRow(id)
	if row == nil {
		return store.ErrNotFound
	}

	row.mu.Lock()
	if row.deleted {
		row.mu.Unlock()
		return store.ErrNotFound
	}
	row.deleted = true
	row.mu.Unlock()

	s.mu.Lock()
	delete(s.schedules, id)
	s.mu.Unlock()
	return nil
}

// scheduleRows возвращает снимок строк расписаний.
func (s *Store) scheduleRows() []*scheduleRow {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows := make([]*scheduleRow, 0, len(s.schedules))
	for _, row := range s.schedules {
		rows = append(rows, row)
	}
	return rows
}
