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

const taskColumns = `id, type, status, payload, unit_count, result, failure_reason, created_at, finished_at`

// CreateTask сохраняет новую задачу.
func (s *Store) CreateTask(ctx context.Context, t *domain.Task) error {
	payloadJSON, err := json.Marshal(t.Payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	query := `
		INSERT INTO tasks (id, type, status, payload, unit_count, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err = s.pool.Exec(ctx, query,
		t.ID,
		t.Type,
		t.Status,
		payloadJSON,
		t.UnitCount,
		t.CreatedAt,
	)
	if isUniqueViolation(err) {
		return store.ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

// GetTask возвращает задачу по ID.
func (s *Store) GetTask(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = $1`
	return scanTask(s.pool.QueryRow(ctx, query, id))
}

// ListTasks возвращает все задачи, новые первыми.
func (s *Store) ListTasks(ctx context.Context) ([]*domain.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks ORDER BY created_at DESC`
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	return scanTasks(rows)
}

// ListTasksByStatus возвращает задачи в заданном статусе, старые первыми.
func (s *Store) ListTasksByStatus(ctx context.Context, status domain.TaskStatus, limit int) ([]*domain.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE status = $1 ORDER BY created_at ASC`
	args := []any{status}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks by status: %w", err)
	}
	defer rows.Close()

	return scanTasks(rows)
}

// MarkTaskDecomposing захватывает задачу декомпозером: PENDING → DECOMPOSING.
// CAS по статусу: из двух конкурентных декомпозеров выигрывает один.
func (s *Store) MarkTaskDecomposing(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE tasks SET status = $2 WHERE id = $1 AND status = $3`
	tag, err := s.pool.Exec(ctx, query, id, domain.TaskStatusDecomposing, domain.TaskStatusPending)
	if err != nil {
		return fmt.Errorf("mark task decomposing: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.taskMissingOrInvalid(ctx, id)
	}
	return nil
}

// InsertUnits атомарно вставляет все юниты задачи и переводит её в IN_PROGRESS.
// Одна транзакция: либо появляются все юниты, либо ни одного.
func (s *Store) InsertUnits(ctx context.Context, taskID uuid.UUID, units []*domain.WorkUnit) error {
	if err := validateUnits(taskID, units); err != nil {
		return err
	}

	err := s.inTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE tasks SET status = $2, unit_count = $3
			WHERE id = $1 AND status = $4
		`, taskID, domain.TaskStatusInProgress, len(units), domain.TaskStatusDecomposing)
		if err != nil {
			return fmt.Errorf("mark task in progress: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return s.taskMissingOrInvalid(ctx, taskID)
		}

		for _, u := range units {
			payloadJSON, err := json.Marshal(u.Payload)
			if err != nil {
				return fmt.Errorf("marshal unit payload: %w", err)
			}

			_, err = tx.Exec(ctx, `
				INSERT INTO work_units (id, task_id, task_type, ordinal, status, payload, retry_count, created_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			`,
				u.ID,
				u.TaskID,
				u.TaskType,
				u.Ordinal,
				domain.UnitStatusPending,
				payloadJSON,
				u.RetryCount,
				u.CreatedAt,
			)
			if err != nil {
				return fmt.Errorf("insert unit %d: %w", u.Ordinal, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	return nil
}

// validateUnits проверяет, что ordinal'ы уникальны и непрерывны от 0
// и все юниты принадлежат задаче.
func validateUnits(taskID uuid.UUID, units []*domain.WorkUnit) error {
	if len(units) == 0 {
		return store.ErrInvalidState
	}

	seen := make([]bool, len(units))
	for _, u := range units {
		if u.TaskID != taskID || u.Ordinal < 0 || u.Ordinal >= len(units) || seen[u.Ordinal] {
			return store.ErrInvalidState
		}
		seen[u.Ordinal] = true
	}
	return nil
}

// FailTask переводит незавершённую задачу в FAILED.
func (s *Store) FailTask(ctx context.Context, id uuid.UUID, reason string) error {
	query := `
		UPDATE tasks SET status = $2, failure_reason = $3, finished_at = $4
		WHERE id = $1 AND status NOT IN ($5, $6)
	`
	tag, err := s.pool.Exec(ctx, query,
		id,
		domain.TaskStatusFailed,
		reason,
		time.Now(),
		domain.TaskStatusCompleted,
		domain.TaskStatusFailed,
	)
	if err != nil {
		return fmt.Errorf("fail task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.taskMissingOrInvalid(ctx, id)
	}
	return nil
}

// BeginAggregation захватывает задачу агрегатором: IN_PROGRESS → AGGREGATING,
// только если все юниты COMPLETED. Возвращает юниты в порядке ordinal.
//
// Строка задачи блокируется FOR UPDATE, поэтому из конкурентных
// агрегаторов побеждает ровно один; проигравший увидит AGGREGATING и
// получит ErrInvalidState. Юниты не блокируются: COMPLETED — терминальный
// статус, из него юнит не выходит.
func (s *Store) BeginAggregation(ctx context.Context, taskID uuid.UUID) ([]*domain.WorkUnit, error) {
	var units []*domain.WorkUnit

	err := s.inTx(ctx, func(tx pgx.Tx) error {
		var status domain.TaskStatus
		err := tx.QueryRow(ctx, `SELECT status FROM tasks WHERE id = $1 FOR UPDATE`, taskID).Scan(&status)
		if errors.Is(err, pgx.ErrNoRows) {
			return store.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("lock task: %w", err)
		}
		if status != domain.TaskStatusInProgress {
			return store.ErrInvalidState
		}

		var notDone int
		err = tx.QueryRow(ctx, `
			SELECT count(*) FROM work_units WHERE task_id = $1 AND status <> $2
		`, taskID, domain.UnitStatusCompleted).Scan(&notDone)
		if err != nil {
			return fmt.Errorf("count incomplete units: %w", err)
		}
		if notDone > 0 {
			return store.ErrInvalidState
		}

		if _, err := tx.Exec(ctx, `UPDATE tasks SET status = $2 WHERE id = $1`,
			taskID, domain.TaskStatusAggregating); err != nil {
			return fmt.Errorf("mark task aggregating: %w", err)
		}

		rows, err := tx.Query(ctx, `
			SELECT `+unitColumns+` FROM work_units WHERE task_id = $1 ORDER BY ordinal ASC
		`, taskID)
		if err != nil {
			return fmt.Errorf("list task units: %w", err)
		}
		defer rows.Close()

		units, err = scanUnits(rows)
		return err
	})
	if err != nil {
		return nil, err
	}
	return units, nil
}

// CompleteTask завершает агрегацию: AGGREGATING → COMPLETED с результатом.
func (s *Store) CompleteTask(ctx context.Context, id uuid.UUID, result map[string]any) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}

	query := `
		UPDATE tasks SET status = $2, result = $3, finished_at = $4
		WHERE id = $1 AND status = $5
	`
	tag, err := s.pool.Exec(ctx, query,
		id,
		domain.TaskStatusCompleted,
		resultJSON,
		time.Now(),
		domain.TaskStatusAggregating,
	)
	if err != nil {
		return fmt.Errorf("complete task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.taskMissingOrInvalid(ctx, id)
	}
	return nil
}

// taskMissingOrInvalid различает исходы CAS-обновления задачи, не
// зацепившего ни одной строки: задачи нет вовсе либо она в другом статусе.
func (s *Store) taskMissingOrInvalid(ctx context.Context, id uuid.UUID) error {
	var exists bool
	if err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM tasks WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("check task exists: %w", err)
	}
	if !exists {
		return store.ErrNotFound
	}
	return store.ErrInvalidState
}

// --- Scan helpers ---

func scanTask(row pgx.Row) (*domain.Task, error) {
	var t domain.Task
	var payloadJSON, resultJSON []byte
	var failureReason *string

	err := row.Scan(
		&t.ID,
		&t.Type,
		&t.Status,
		&payloadJSON,
		&t.UnitCount,
		&resultJSON,
		&failureReason,
		&t.CreatedAt,
		&t.FinishedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan task: %w", err)
	}

	if payloadJSON != nil {
		if err := json.Unmarshal(payloadJSON, &t.Payload); err != nil {
			return nil, fmt.Errorf("unmarshal payload: %w", err)
		}
	}
	if resultJSON != nil {
		if err := json.Unmarshal(resultJSON, &t.Result); err != nil {
			return nil, fmt.Errorf("unmarshal result: %w", err)
		}
	}
	if failureReason != nil {
		t.FailureReason = *failureReason
	}

	return &t, nil
}

func scanTasks(rows pgx.Rows) ([]*domain.Task, error) {
	var tasks []*domain.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}
