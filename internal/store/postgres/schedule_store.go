package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/shaiso/Neuroweave/internal/domain"
	"github.com/shaiso/Neuroweave/internal/store"
)

const scheduleColumns = `id, name, task_type, payload, cron_expr, interval_sec, timezone, enabled, next_due_at, last_submit_at, last_task_id, created_at, updated_at`

// CreateSchedule сохраняет новое расписание.
func (s *Store) CreateSchedule(ctx context.Context, sc *domain.Schedule) error {
	payloadJSON, err := json.Marshal(sc.Payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	query := `
		INSERT INTO schedules (id, name, task_type, payload, cron_expr, interval_sec,
			timezone, enabled, next_due_at, last_submit_at, last_task_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	_, err = s.pool.Exec(ctx, query,
		sc.ID,
		nullString(sc.Name),
		sc.TaskType,
		payloadJSON,
		nullString(sc.CronExpr),
		nullInt(sc.IntervalSec),
		sc.Timezone,
		sc.Enabled,
		sc.NextDueAt,
		sc.LastSubmitAt,
		sc.LastTaskID,
		sc.CreatedAt,
		sc.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return store.ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("insert schedule: %w", err)
	}
	return nil
}

// GetSchedule возвращает расписание по ID.
func (s *Store) GetSchedule(ctx context.Context, id uuid.UUID) (*domain.Schedule, error) {
	query := `SELECT ` + scheduleColumns + ` FROM schedules WHERE id = $1`
	return scanSchedule(s.pool.QueryRow(ctx, query, id))
}

// ListSchedules возвращает все расписания, отсортированные по времени создания.
func (s *Store) ListSchedules(ctx context.Context) ([]*domain.Schedule, error) {
	query := `SELECT ` + scheduleColumns + ` FROM schedules ORDER BY created_at ASC`
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list schedules: %w", err)
	}
	defer rows.Close()

	return scanSchedules(rows)
}

// ListDueSchedules возвращает активные расписания с подошедшим next_due_at.
func (s *Store) ListDueSchedules(ctx context.Context, now time.Time) ([]*domain.Schedule, error) {
	query := `
		SELECT ` + scheduleColumns + `
		FROM schedules
		WHERE enabled AND next_due_at IS NOT NULL AND next_due_at <= $1
		ORDER BY next_due_at ASC
	`
	rows, err := s.pool.Query(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("list due schedules: %w", err)
	}
	defer rows.Close()

	return scanSchedules(rows)
}

// UpdateSchedule заменяет запись расписания целиком.
func (s *Store) UpdateSchedule(ctx context.Context, sc *domain.Schedule) error {
	payloadJSON, err := json.Marshal(sc.Payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	query := `
		UPDATE schedules
		SET name = $2, task_type = $3, payload = $4, cron_expr = $5, interval_sec = $6,
			timezone = $7, enabled = $8, next_due_at = $9, last_submit_at = $10,
			last_task_id = $11, updated_at = $12
		WHERE id = $1
	`
	tag, err := s.pool.Exec(ctx, query,
		sc.ID,
		nullString(sc.Name),
		sc.TaskType,
		payloadJSON,
		nullString(sc.CronExpr),
		nullInt(sc.IntervalSec),
		sc.Timezone,
		sc.Enabled,
		sc.NextDueAt,
		sc.LastSubmitAt,
		sc.LastTaskID,
		sc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update schedule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// DeleteSchedule удаляет расписание.
func (s *Store) DeleteSchedule(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM schedules WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete schedule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// --- Scan helpers ---

func scanSchedule(row pgx.Row) (*domain.Schedule, error) {
	var sc domain.Schedule
	var payloadJSON []byte
	var name, cronExpr *string
	var intervalSec *int

	err := row.Scan(
		&sc.ID,
		&name,
		&sc.TaskType,
		&payloadJSON,
		&cronExpr,
		&intervalSec,
		&sc.Timezone,
		&sc.Enabled,
		&sc.NextDueAt,
		&sc.LastSubmitAt,
		&sc.LastTaskID,
		&sc.CreatedAt,
		&sc.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan schedule: %w", err)
	}

	if payloadJSON != nil {
		if err := json.Unmarshal(payloadJSON, &sc.Payload); err != nil {
			return nil, fmt.Errorf("unmarshal payload: %w", err)
		}
	}
	if name != nil {
		sc.Name = *name
	}
	if cronExpr != nil {
		sc.CronExpr = *cronExpr
	}
	if intervalSec != nil {
		sc.IntervalSec = *intervalSec
	}

	return &sc, nil
}

func scanSchedules(rows pgx.Rows) ([]*domain.Schedule, error) {
	var schedules []*domain.Schedule
	for rows.Next() {
		sc, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		schedules = append(schedules, sc)
	}
	return schedules, rows.Err()
}
