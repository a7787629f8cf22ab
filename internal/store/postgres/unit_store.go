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

const unitColumns = `id, task_id, task_type, ordinal, status, payload, assigned_weaver, assigned_at, result, error, retry_count, created_at`

// GetUnit возвращает юнит по ID.
func (s *Store) GetUnit(ctx context.Context, id uuid.UUID) (*domain.WorkUnit, error) {
	query := `SELECT ` + unitColumns + ` FROM work_units WHERE id = $1`
	return scanUnit(s.pool.QueryRow(ctx, query, id))
}

// ListUnitsByTask возвращает юниты задачи в порядке ordinal.
func (s *Store) ListUnitsByTask(ctx context.Context, taskID uuid.UUID) ([]*domain.WorkUnit, error) {
	var exists bool
	if err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM tasks WHERE id = $1)`, taskID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("check task exists: %w", err)
	}
	if !exists {
		return nil, store.ErrNotFound
	}

	query := `SELECT ` + unitColumns + ` FROM work_units WHERE task_id = $1 ORDER BY ordinal ASC`
	rows, err := s.pool.Query(ctx, query, taskID)
	if err != nil {
		return nil, fmt.Errorf("list units: %w", err)
	}
	defer rows.Close()

	return scanUnits(rows)
}

// ClaimUnit атомарно назначает воркеру следующий подходящий юнит.
//
// Строка воркера блокируется FOR UPDATE: параллельные poll'ы одного
// воркера сериализуются, и второй получает повторную выдачу текущего
// юнита. Кандидаты берутся через SKIP LOCKED — poll'ы разных воркеров
// не ждут друг друга и не получают один юнит дважды.
//
// Порядок выбора: задачи в порядке подачи (FIFO), внутри задачи — юниты
// по возрастанию ordinal. Кандидат берётся только из задач IN_PROGRESS:
// PENDING-юниты провалившихся задач не раздаются, чтобы не жечь
// мощность воркеров на мёртвую задачу.
func (s *Store) ClaimUnit(ctx context.Context, weaverID uuid.UUID, capabilities []string) (*domain.WorkUnit, bool, error) {
	var (
		unit        *domain.WorkUnit
		redelivered bool
	)

	err := s.inTx(ctx, func(tx pgx.Tx) error {
		var registered []string
		var currentUnit *uuid.UUID
		err := tx.QueryRow(ctx, `
			SELECT capabilities, current_unit FROM weavers WHERE id = $1 FOR UPDATE
		`, weaverID).Scan(&registered, &currentUnit)
		if errors.Is(err, pgx.ErrNoRows) {
			return store.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("lock weaver: %w", err)
		}

		// Poll считается признаком жизни: даже пустой ответ
		// обновляет last_seen (транзакция коммитится и без юнита).
		if _, err := tx.Exec(ctx, `UPDATE weavers SET last_seen = $2 WHERE id = $1`,
			weaverID, time.Now()); err != nil {
			return fmt.Errorf("touch weaver: %w", err)
		}

		if currentUnit != nil {
			unit, err = scanUnit(tx.QueryRow(ctx,
				`SELECT `+unitColumns+` FROM work_units WHERE id = $1`, *currentUnit))
			if err != nil {
				return err
			}
			redelivered = true
			return nil
		}

		if len(capabilities) == 0 {
			capabilities = registered
		}

		u, err := scanUnit(tx.QueryRow(ctx, `
			SELECT u.id, u.task_id, u.task_type, u.ordinal, u.status, u.payload,
			       u.assigned_weaver, u.assigned_at, u.result, u.error, u.retry_count, u.created_at
			FROM work_units u
			JOIN tasks t ON t.id = u.task_id
			WHERE u.status = $1 AND t.status = $2 AND u.task_type = ANY ($3)
			ORDER BY t.created_at ASC, u.ordinal ASC
			LIMIT 1
			FOR UPDATE OF u SKIP LOCKED
		`, domain.UnitStatusPending, domain.TaskStatusInProgress, capabilities))
		if errors.Is(err, store.ErrNotFound) {
			return nil // нет работы, но touch должен закоммититься
		}
		if err != nil {
			return err
		}

		u.MarkAssigned(weaverID)
		if _, err := tx.Exec(ctx, `
			UPDATE work_units SET status = $2, assigned_weaver = $3, assigned_at = $4 WHERE id = $1
		`, u.ID, u.Status, weaverID, u.AssignedAt); err != nil {
			return fmt.Errorf("assign unit: %w", err)
		}
		if _, err := tx.Exec(ctx, `UPDATE weavers SET current_unit = $2 WHERE id = $1`,
			weaverID, u.ID); err != nil {
			return fmt.Errorf("assign weaver: %w", err)
		}

		unit = u
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	if unit == nil {
		return nil, false, store.ErrNoWork
	}
	return unit, redelivered, nil
}

// CompleteUnit принимает успешный результат юнита.
func (s *Store) CompleteUnit(ctx context.Context, unitID, weaverID uuid.UUID, result map[string]any) (*domain.WorkUnit, error) {
	var unit *domain.WorkUnit

	err := s.inTx(ctx, func(tx pgx.Tx) error {
		u, err := lockAssignedUnit(ctx, tx, unitID, weaverID)
		if err != nil {
			return err
		}

		u.MarkCompleted(result)
		resultJSON, err := json.Marshal(u.Result)
		if err != nil {
			return fmt.Errorf("marshal result: %w", err)
		}

		if _, err := tx.Exec(ctx, `
			UPDATE work_units
			SET status = $2, result = $3, assigned_weaver = NULL, assigned_at = NULL
			WHERE id = $1
		`, u.ID, u.Status, resultJSON); err != nil {
			return fmt.Errorf("complete unit: %w", err)
		}

		if err := clearWeaverAssignment(ctx, tx, weaverID, unitID); err != nil {
			return err
		}
		unit = u
		return nil
	})
	if err != nil {
		return nil, err
	}
	return unit, nil
}

// FailUnitAttempt принимает провальный отчёт: retry либо окончательный провал.
func (s *Store) FailUnitAttempt(ctx context.Context, unitID, weaverID uuid.UUID, errText string, maxRetries int) (*domain.WorkUnit, error) {
	var unit *domain.WorkUnit

	err := s.inTx(ctx, func(tx pgx.Tx) error {
		u, err := lockAssignedUnit(ctx, tx, unitID, weaverID)
		if err != nil {
			return err
		}

		if u.CanRetry(maxRetries) {
			u.ResetForRetry(errText)
		} else {
			u.MarkFailed(errText)
		}

		if _, err := tx.Exec(ctx, `
			UPDATE work_units
			SET status = $2, error = $3, retry_count = $4, assigned_weaver = NULL, assigned_at = NULL
			WHERE id = $1
		`, u.ID, u.Status, u.Error, u.RetryCount); err != nil {
			return fmt.Errorf("fail unit attempt: %w", err)
		}

		if err := clearWeaverAssignment(ctx, tx, weaverID, unitID); err != nil {
			return err
		}
		unit = u
		return nil
	})
	if err != nil {
		return nil, err
	}
	return unit, nil
}

// lockAssignedUnit блокирует строку юнита и проверяет, что воркер —
// его текущий назначенец. Отчёт от чужого или устаревшего назначенца
// получает ErrAssignmentMismatch и не трогает юнит.
func lockAssignedUnit(ctx context.Context, tx pgx.Tx, unitID, weaverID uuid.UUID) (*domain.WorkUnit, error) {
	u, err := scanUnit(tx.QueryRow(ctx,
		`SELECT `+unitColumns+` FROM work_units WHERE id = $1 FOR UPDATE`, unitID))
	if err != nil {
		return nil, err
	}
	if !isAssignee(u, weaverID) {
		return nil, store.ErrAssignmentMismatch
	}
	return u, nil
}

// isAssignee проверяет, что воркер — текущий назначенец юнита.
func isAssignee(u *domain.WorkUnit, weaverID uuid.UUID) bool {
	return u.Status == domain.UnitStatusAssigned &&
		u.AssignedWeaver != nil && *u.AssignedWeaver == weaverID
}

// clearWeaverAssignment снимает назначение у воркера, если оно указывает
// на данный юнит, и обновляет last_seen. Вызывается под блокировкой
// строки юнита (порядок юнит → воркер).
func clearWeaverAssignment(ctx context.Context, tx pgx.Tx, weaverID, unitID uuid.UUID) error {
	_, err := tx.Exec(ctx, `
		UPDATE weavers
		SET last_seen = $2,
		    current_unit = CASE WHEN current_unit = $3 THEN NULL ELSE current_unit END
		WHERE id = $1
	`, weaverID, time.Now(), unitID)
	if err != nil {
		return fmt.Errorf("clear weaver assignment: %w", err)
	}
	return nil
}

// --- Scan helpers ---

func scanUnit(row pgx.Row) (*domain.WorkUnit, error) {
	var u domain.WorkUnit
	var payloadJSON, resultJSON []byte
	var errText *string

	err := row.Scan(
		&u.ID,
		&u.TaskID,
		&u.TaskType,
		&u.Ordinal,
		&u.Status,
		&payloadJSON,
		&u.AssignedWeaver,
		&u.AssignedAt,
		&resultJSON,
		&errText,
		&u.RetryCount,
		&u.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan unit: %w", err)
	}

	if payloadJSON != nil {
		if err := json.Unmarshal(payloadJSON, &u.Payload); err != nil {
			return nil, fmt.Errorf("unmarshal payload: %w", err)
		}
	}
	if resultJSON != nil {
		if err := json.Unmarshal(resultJSON, &u.Result); err != nil {
			return nil, fmt.Errorf("unmarshal result: %w", err)
		}
	}
	if errText != nil {
		u.Error = *errText
	}

	return &u, nil
}

func scanUnits(rows pgx.Rows) ([]*domain.WorkUnit, error) {
	var units []*domain.WorkUnit
	for rows.Next() {
		u, err := scanUnit(rows)
		if err != nil {
			return nil, err
		}
		units = append(units, u)
	}
	return units, rows.Err()
}
