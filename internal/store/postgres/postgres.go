// Package postgres реализует store.Store поверх PostgreSQL (pgx/v5).
//
// Каждая составная операция интерфейса — одна транзакция. Блокировки
// строк берутся в порядке юнит → воркер, как и в store/memory;
// единственное исключение — ClaimUnit, который держит строку воркера и
// берёт юнит только через SELECT ... FOR UPDATE SKIP LOCKED, не ожидая:
// конкурентные poll'ы разных воркеров не ждут друг друга и циклов
// ожидания не образуют.
//
// Бэкенд включается переменной DB_URL и позволяет запускать несколько
// реплик сервера над одной базой.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store — Postgres-реализация store.Store.
type Store struct {
	pool *pgxpool.Pool
}

// New подключается к базе и возвращает Store.
func New(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	cfg.MaxConns = 10
	cfg.HealthCheckPeriod = 30 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("new pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	return &Store{pool: pool}, nil
}

// Close закрывает пул соединений.
func (s *Store) Close() {
	s.pool.Close()
}

// Pool возвращает пул соединений (для advisory lock планировщика).
func (s *Store) Pool() *pgxpool.Pool {
	return s.pool
}

// EnsureSchema создаёт таблицы и индексы, если их ещё нет.
// Вызывается при старте сервера.
func (s *Store) EnsureSchema(ctx context.Context) error {
	ddl := `
		CREATE TABLE IF NOT EXISTS tasks (
			id             UUID PRIMARY KEY,
			type           TEXT NOT NULL,
			status         TEXT NOT NULL,
			payload        JSONB,
			unit_count     INT NOT NULL DEFAULT 0,
			result         JSONB,
			failure_reason TEXT,
			created_at     TIMESTAMPTZ NOT NULL,
			finished_at    TIMESTAMPTZ
		);
		CREATE INDEX IF NOT EXISTS idx_tasks_status_created
			ON tasks (status, created_at);

		CREATE TABLE IF NOT EXISTS work_units (
			id              UUID PRIMARY KEY,
			task_id         UUID NOT NULL REFERENCES tasks (id) ON DELETE CASCADE,
			task_type       TEXT NOT NULL,
			ordinal         INT NOT NULL,
			status          TEXT NOT NULL,
			payload         JSONB,
			assigned_weaver UUID,
			assigned_at     TIMESTAMPTZ,
			result          JSONB,
			error           TEXT,
			retry_count     INT NOT NULL DEFAULT 0,
			created_at      TIMESTAMPTZ NOT NULL,
			UNIQUE (task_id, ordinal)
		);
		CREATE INDEX IF NOT EXISTS idx_units_claim
			ON work_units (status, task_type);
		CREATE INDEX IF NOT EXISTS idx_units_task
			ON work_units (task_id, ordinal);

		CREATE TABLE IF NOT EXISTS weavers (
			id            UUID PRIMARY KEY,
			address       TEXT,
			capabilities  TEXT[] NOT NULL DEFAULT '{}',
			registered_at TIMESTAMPTZ NOT NULL,
			last_seen     TIMESTAMPTZ NOT NULL,
			current_unit  UUID
		);
		CREATE INDEX IF NOT EXISTS idx_weavers_last_seen
			ON weavers (last_seen);

		CREATE TABLE IF NOT EXISTS schedules (
			id             UUID PRIMARY KEY,
			name           TEXT,
			task_type      TEXT NOT NULL,
			payload        JSONB,
			cron_expr      TEXT,
			interval_sec   INT,
			timezone       TEXT NOT NULL DEFAULT 'UTC',
			enabled        BOOLEAN NOT NULL DEFAULT true,
			next_due_at    TIMESTAMPTZ,
			last_submit_at TIMESTAMPTZ,
			last_task_id   UUID,
			created_at     TIMESTAMPTZ NOT NULL,
			updated_at     TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_schedules_due
			ON schedules (enabled, next_due_at);
	`
	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// TryAdvisoryLock пытается взять session-level advisory lock.
// Используется для выбора лидера цикла планировщика между репликами.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (bool, error) {
	var ok bool
	if err := s.pool.QueryRow(ctx, "select pg_try_advisory_lock($1)", key).Scan(&ok); err != nil {
		return false, fmt.Errorf("try advisory lock: %w", err)
	}
	return ok, nil
}

// AdvisoryUnlock освобождает advisory lock.
func (s *Store) AdvisoryUnlock(ctx context.Context, key int64) error {
	if _, err := s.pool.Exec(ctx, "select pg_advisory_unlock($1)", key); err != nil {
		return fmt.Errorf("advisory unlock: %w", err)
	}
	return nil
}

// inTx выполняет fn в транзакции: commit при nil, rollback при ошибке.
func (s *Store) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// --- Helpers ---

// nullString возвращает nil для пустой строки (для NULL в БД).
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// nullInt возвращает nil для нулевого значения (для NULL в БД).
func nullInt(v int) *int {
	if v == 0 {
		return nil
	}
	return &v
}

// isUniqueViolation распознаёт нарушение уникального ограничения.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
