package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/shaiso/Neuroweave/internal/domain"
	"github.com/shaiso/Neuroweave/internal/store"
)

const weaverColumns = `id, address, capabilities, registered_at, last_seen, current_unit`

// CreateWeaver регистрирует нового воркера.
func (s *Store) CreateWeaver(ctx context.Context, w *domain.Weaver) error {
	query := `
		INSERT INTO weavers (id, address, capabilities, registered_at, last_seen)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := s.pool.Exec(ctx, query,
		w.ID,
		nullString(w.Address),
		w.Capabilities,
		w.RegisteredAt,
		w.LastSeen,
	)
	if isUniqueViolation(err) {
		return store.ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("insert weaver: %w", err)
	}
	return nil
}

// GetWeaver возвращает воркера по ID.
func (s *Store) GetWeaver(ctx context.Context, id uuid.UUID) (*domain.Weaver, error) {
	query := `SELECT ` + weaverColumns + ` FROM weavers WHERE id = $1`
	return scanWeaver(s.pool.QueryRow(ctx, query, id))
}

// ListWeavers возвращает воркеров в порядке регистрации.
func (s *Store) ListWeavers(ctx context.Context) ([]*domain.Weaver, error) {
	query := `SELECT ` + weaverColumns + ` FROM weavers ORDER BY registered_at ASC`
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list weavers: %w", err)
	}
	defer rows.Close()

	var weavers []*domain.Weaver
	for rows.Next() {
		w, err := scanWeaver(rows)
		if err != nil {
			return nil, err
		}
		weavers = append(weavers, w)
	}
	return weavers, rows.Err()
}

// TouchWeaver обновляет last_seen воркера (heartbeat).
func (s *Store) TouchWeaver(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `UPDATE weavers SET last_seen = $2 WHERE id = $1`, id, time.Now())
	if err != nil {
		return fmt.Errorf("touch weaver: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// PurgeWeavers удаляет воркеров, молчащих дольше cutoff, и возвращает их
// юниты в раздачу (или проваливает при исчерпании retry).
//
// Каждый воркер вычищается в отдельной транзакции с перепроверкой под
// блокировкой строк: назначения, сделанные после cycleStart, не трогаются,
// а отчёт, гонящийся с purge за ту же строку юнита, либо успевает первым,
// либо отклоняется после purge как ErrAssignmentMismatch. Занятые строки
// пропускаются (SKIP LOCKED) и достаются следующему циклу.
func (s *Store) PurgeWeavers(ctx context.Context, cutoff, cycleStart time.Time, maxRetries int) (*store.PurgeResult, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id FROM weavers WHERE last_seen < $1 ORDER BY registered_at ASC`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("list stale weavers: %w", err)
	}

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan weaver id: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list stale weavers: %w", err)
	}

	res := &store.PurgeResult{}
	for _, id := range ids {
		out, err := s.purgeWeaver(ctx, id, cutoff, cycleStart, maxRetries)
		if err != nil {
			return res, err
		}
		if out == nil {
			continue
		}
		res.Purged = append(res.Purged, out.weaver)
		if out.requeued != nil {
			res.Requeued = append(res.Requeued, out.requeued)
		}
		if out.exhausted != nil {
			res.Exhausted = append(res.Exhausted, out.exhausted)
		}
	}
	return res, nil
}

// purgeOutcome — результат вычистки одного воркера.
type purgeOutcome struct {
	weaver    *domain.Weaver
	requeued  *domain.WorkUnit
	exhausted *domain.WorkUnit
}

// purgeWeaver вычищает одного молчащего воркера в своей транзакции.
// Возвращает nil без ошибки, если воркер оказался жив, занят или исчез.
func (s *Store) purgeWeaver(ctx context.Context, id uuid.UUID, cutoff, cycleStart time.Time, maxRetries int) (*purgeOutcome, error) {
	var out *purgeOutcome

	err := s.inTx(ctx, func(tx pgx.Tx) error {
		var lastSeen time.Time
		var currentUnit *uuid.UUID
		err := tx.QueryRow(ctx,
			`SELECT last_seen, current_unit FROM weavers WHERE id = $1`, id).
			Scan(&lastSeen, &currentUnit)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read weaver: %w", err)
		}
		if !lastSeen.Before(cutoff) {
			return nil
		}

		if currentUnit == nil {
			w, err := s.lockStaleWeaver(ctx, tx, id, cutoff)
			if w == nil || err != nil {
				return err
			}
			if w.CurrentUnit != nil {
				// Параллельный claim успел назначить юнит.
				return nil
			}
			if err := deleteWeaver(ctx, tx, id); err != nil {
				return err
			}
			out = &purgeOutcome{weaver: w}
			return nil
		}

		// Порядок блокировок: юнит → воркер, с перепроверкой стейлости
		// воркера уже под блокировкой.
		u, err := scanUnit(tx.QueryRow(ctx,
			`SELECT `+unitColumns+` FROM work_units WHERE id = $1 FOR UPDATE SKIP LOCKED`, *currentUnit))
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		w, err := s.lockStaleWeaver(ctx, tx, id, cutoff)
		if w == nil || err != nil {
			return err
		}
		if w.CurrentUnit == nil || *w.CurrentUnit != u.ID {
			// Отчёт или claim успели между блокировками; воркер
			// достанется следующему циклу, если всё ещё молчит.
			return nil
		}

		if !isAssignee(u, id) || u.AssignedAt == nil || !u.AssignedAt.Before(cycleStart) {
			return nil
		}

		out = &purgeOutcome{weaver: w}
		if u.CanRetry(maxRetries) {
			u.ResetForRetry("assigned weaver purged")
			out.requeued = u
		} else {
			u.MarkFailed("assigned weaver purged")
			out.exhausted = u
		}

		if _, err := tx.Exec(ctx, `
			UPDATE work_units
			SET status = $2, error = $3, retry_count = $4, assigned_weaver = NULL, assigned_at = NULL
			WHERE id = $1
		`, u.ID, u.Status, u.Error, u.RetryCount); err != nil {
			return fmt.Errorf("requeue unit: %w", err)
		}
		return deleteWeaver(ctx, tx, id)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// lockStaleWeaver блокирует строку воркера и перепроверяет, что он всё ещё
// молчит. Возвращает nil, если строка занята, исчезла или воркер ожил.
func (s *Store) lockStaleWeaver(ctx context.Context, tx pgx.Tx, id uuid.UUID, cutoff time.Time) (*domain.Weaver, error) {
	w, err := scanWeaver(tx.QueryRow(ctx,
		`SELECT `+weaverColumns+` FROM weavers WHERE id = $1 FOR UPDATE SKIP LOCKED`, id))
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !w.LastSeen.Before(cutoff) {
		return nil, nil
	}
	return w, nil
}

func deleteWeaver(ctx context.Context, tx pgx.Tx, id uuid.UUID) error {
	if _, err := tx.Exec(ctx, `DELETE FROM weavers WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete weaver: %w", err)
	}
	return nil
}

// --- Scan helpers ---

func scanWeaver(row pgx.Row) (*domain.Weaver, error) {
	var w domain.Weaver
	var address *string

	err := row.Scan(
		&w.ID,
		&address,
		&w.Capabilities,
		&w.RegisteredAt,
		&w.LastSeen,
		&w.CurrentUnit,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan weaver: %w", err)
	}

	if address != nil {
		w.Address = *address
	}

	return &w, nil
}
