// Package store определяет интерфейс хранилища оркестратора.
//
// Store — единственная точка доступа к разделяемому состоянию
// (задачи, юниты, воркеры, расписания). Каждая запись принадлежит
// своему хранилищу; всё общение между сущностями идёт через
// составные атомарные операции:
//   - ClaimUnit        — PENDING→ASSIGNED юнита + назначение воркеру
//   - InsertUnits      — вставка всех юнитов + задача→IN_PROGRESS
//   - CompleteUnit     — COMPLETED юнита + снятие назначения
//   - FailUnitAttempt  — retry либо окончательный провал юнита
//   - BeginAggregation — захват задачи ровно одним агрегатором
//   - PurgeWeavers     — удаление молчащих воркеров + возврат их юнитов
//
// Каждая операция линеаризуема для конкурентных вызовов по одним и тем
// же записям; операции над разными задачами/юнитами/воркерами не должны
// блокировать друг друга.
//
// Реализации: store/memory (по умолчанию) и store/postgres (DB_URL).
package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Neuroweave/internal/domain"
)

// Store — интерфейс хранилища. Реализации обязаны возвращать
// ошибки этого пакета (ErrNotFound, ErrNoWork, ...) для типовых исходов.
type Store interface {
	// --- Задачи ---

	// CreateTask сохраняет новую задачу.
	CreateTask(ctx context.Context, t *domain.Task) error

	// GetTask возвращает задачу по ID.
	GetTask(ctx context.Context, id uuid.UUID) (*domain.Task, error)

	// ListTasks возвращает все задачи, новые первыми.
	ListTasks(ctx context.Context) ([]*domain.Task, error)

	// ListTasksByStatus возвращает задачи в заданном статусе,
	// старые первыми, не больше limit (0 — без ограничения).
	ListTasksByStatus(ctx context.Context, status domain.TaskStatus, limit int) ([]*domain.Task, error)

	// MarkTaskDecomposing захватывает задачу декомпозером:
	// PENDING → DECOMPOSING. ErrInvalidState, если задача уже захвачена
	// или ушла дальше.
	MarkTaskDecomposing(ctx context.Context, id uuid.UUID) error

	// InsertUnits атомарно вставляет все юниты задачи и переводит её
	// DECOMPOSING → IN_PROGRESS. Либо появляются все юниты, либо ни
	// одного: частичная декомпозиция не наблюдаема.
	InsertUnits(ctx context.Context, taskID uuid.UUID, units []*domain.WorkUnit) error

	// FailTask переводит незавершённую задачу в FAILED с причиной.
	// ErrInvalidState, если задача уже терминальна.
	FailTask(ctx context.Context, id uuid.UUID, reason string) error

	// BeginAggregation захватывает задачу агрегатором: IN_PROGRESS →
	// AGGREGATING, только если все юниты COMPLETED. Возвращает юниты
	// в порядке ordinal. ErrInvalidState, если задача не готова к
	// агрегации или захвачена другим вызовом.
	BeginAggregation(ctx context.Context, taskID uuid.UUID) ([]*domain.WorkUnit, error)

	// CompleteTask завершает агрегацию: AGGREGATING → COMPLETED
	// с итоговым результатом.
	CompleteTask(ctx context.Context, id uuid.UUID, result map[string]any) error

	// --- Юниты ---

	// GetUnit возвращает юнит по ID.
	GetUnit(ctx context.Context, id uuid.UUID) (*domain.WorkUnit, error)

	// ListUnitsByTask возвращает юниты задачи в порядке ordinal.
	ListUnitsByTask(ctx context.Context, taskID uuid.UUID) ([]*domain.WorkUnit, error)

	// ClaimUnit атомарно назначает воркеру следующий подходящий юнит:
	// PENDING → ASSIGNED плюс запись назначения у воркера. Порядок
	// выбора: FIFO по времени подачи задачи, внутри задачи — меньший
	// ordinal. Если у воркера уже есть назначение, тот же юнит
	// возвращается повторно (redelivered=true). ErrNoWork, если
	// подходящих юнитов нет; ErrNotFound, если воркер не зарегистрирован.
	// Вызов обновляет LastSeen воркера.
	ClaimUnit(ctx context.Context, weaverID uuid.UUID, capabilities []string) (unit *domain.WorkUnit, redelivered bool, err error)

	// CompleteUnit принимает успешный результат: юнит → COMPLETED,
	// назначение воркера снимается, LastSeen обновляется.
	// ErrAssignmentMismatch, если воркер не является текущим назначенцем.
	CompleteUnit(ctx context.Context, unitID, weaverID uuid.UUID, result map[string]any) (*domain.WorkUnit, error)

	// FailUnitAttempt принимает провальный отчёт: при оставшемся
	// retry-бюджете юнит возвращается в PENDING с RetryCount+1, иначе
	// переходит в FAILED окончательно. Возвращает обновлённый юнит.
	// ErrAssignmentMismatch, если воркер не является текущим назначенцем.
	FailUnitAttempt(ctx context.Context, unitID, weaverID uuid.UUID, errText string, maxRetries int) (*domain.WorkUnit, error)

	// --- Воркеры ---

	// CreateWeaver регистрирует нового воркера.
	CreateWeaver(ctx context.Context, w *domain.Weaver) error

	// GetWeaver возвращает воркера по ID.
	GetWeaver(ctx context.Context, id uuid.UUID) (*domain.Weaver, error)

	// ListWeavers возвращает всех зарегистрированных воркеров.
	ListWeavers(ctx context.Context) ([]*domain.Weaver, error)

	// TouchWeaver обновляет LastSeen воркера (heartbeat).
	// ErrNotFound, если воркер не зарегистрирован или уже вычищен.
	TouchWeaver(ctx context.Context, id uuid.UUID) error

	// PurgeWeavers удаляет воркеров с LastSeen старше cutoff.
	// Юниты, назначенные удаляемым воркерам, возвращаются в PENDING с
	// RetryCount+1 (или проваливаются при исчерпании retry) — но только
	// юниты, назначенные до cycleStart: отчёт, гонящийся с purge, либо
	// успевает первым, либо отклоняется как ErrAssignmentMismatch.
	PurgeWeavers(ctx context.Context, cutoff, cycleStart time.Time, maxRetries int) (*PurgeResult, error)

	// --- Расписания ---

	// CreateSchedule сохраняет новое расписание.
	CreateSchedule(ctx context.Context, s *domain.Schedule) error

	// GetSchedule возвращает расписание по ID.
	GetSchedule(ctx context.Context, id uuid.UUID) (*domain.Schedule, error)

	// ListSchedules возвращает все расписания.
	ListSchedules(ctx context.Context) ([]*domain.Schedule, error)

	// ListDueSchedules возвращает активные расписания с next_due_at <= now.
	ListDueSchedules(ctx context.Context, now time.Time) ([]*domain.Schedule, error)

	// UpdateSchedule сохраняет изменённое расписание целиком.
	UpdateSchedule(ctx context.Context, s *domain.Schedule) error

	// DeleteSchedule удаляет расписание.
	DeleteSchedule(ctx context.Context, id uuid.UUID) error

	// Close освобождает ресурсы хранилища.
	Close()
}

// PurgeResult — результат одного цикла очистки воркеров.
type PurgeResult struct {
	// Purged — удалённые воркеры.
	Purged []*domain.Weaver

	// Requeued — юниты, возвращённые в PENDING для переназначения.
	Requeued []*domain.WorkUnit

	// Exhausted — юниты, провалившиеся окончательно из-за исчерпания
	// retry-бюджета. Их задачи должен провалить вызывающий код.
	Exhausted []*domain.WorkUnit
}
