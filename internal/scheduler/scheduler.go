package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shaiso/Neuroweave/internal/domain"
	"github.com/shaiso/Neuroweave/internal/store"
)

// Submitter подаёт задачи. Реализуется Orchestrator'ом.
type Submitter interface {
	SubmitTask(ctx context.Context, taskType string, payload map[string]any) (*domain.Task, error)
}

// Scheduler — планировщик, обрабатывающий due schedules.
type Scheduler struct {
	store     store.Store
	submitter Submitter
	logger    *slog.Logger
}

// Config — конфигурация Scheduler.
type Config struct {
	Store     store.Store
	Submitter Submitter
	Logger    *slog.Logger
}

// New создаёт новый Scheduler.
func New(cfg Config) *Scheduler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Scheduler{
		store:     cfg.Store,
		submitter: cfg.Submitter,
		logger:    logger,
	}
}

// Tick выполняет один тик планировщика.
//
// 1. Находит due schedules (enabled=true, next_due_at <= now)
// 2. Для каждого schedule подаёт задачу через Submitter
// 3. Обновляет next_due_at
//
// Ошибки одного schedule не блокируют обработку остальных.
func (s *Scheduler) Tick(ctx context.Context) error {
	now := time.Now()

	// 1. Находим due schedules
	schedules, err := s.store.ListDueSchedules(ctx, now)
	if err != nil {
		return fmt.Errorf("list due schedules: %w", err)
	}

	if len(schedules) == 0 {
		return nil
	}

	s.logger.Debug("found due schedules", "count", len(schedules))

	// 2. Обрабатываем каждый schedule
	var processed, submitted int
	for _, sched := range schedules {
		taskSubmitted, err := s.processSchedule(ctx, sched, now)
		if err != nil {
			s.logger.Error("failed to process schedule",
				"schedule_id", sched.ID,
				"schedule_name", sched.Name,
				"error", err,
			)
			// Продолжаем обработку остальных
			continue
		}

		processed++
		if taskSubmitted {
			submitted++
		}
	}

	s.logger.Info("scheduler tick completed",
		"due", len(schedules),
		"processed", processed,
		"tasks_submitted", submitted,
	)

	return nil
}

// processSchedule обрабатывает один schedule.
// Возвращает true, если задача была подана.
func (s *Scheduler) processSchedule(ctx context.Context, sched *domain.Schedule, now time.Time) (bool, error) {
	// 1. Подаём задачу. При ошибке next_due_at не трогаем: транзиентный
	// сбой повторится на следующем тике, постоянный (выключенный тип
	// задачи) виден в логах, пока расписание не выключат.
	task, err := s.submitter.SubmitTask(ctx, sched.TaskType, sched.Payload)
	if err != nil {
		return false, fmt.Errorf("submit task: %w", err)
	}

	s.logger.Info("submitted task from schedule",
		"task_id", task.ID,
		"task_type", sched.TaskType,
		"schedule_id", sched.ID,
		"schedule_name", sched.Name,
	)

	// 2. Вычисляем следующее время выполнения
	nextDue, err := CalculateNextDue(sched, now)
	if err != nil {
		s.logger.Error("failed to calculate next due, disabling schedule",
			"schedule_id", sched.ID,
			"error", err,
		)
		// Без валидного next_due_at расписание подавало бы задачу
		// каждый тик. Выключаем до ручной правки.
		sched.Enabled = false
		sched.UpdatedAt = time.Now()
		if err := s.store.UpdateSchedule(ctx, sched); err != nil {
			return true, fmt.Errorf("disable schedule: %w", err)
		}
		return true, nil
	}

	// 3. Обновляем schedule
	sched.RecordSubmit(task.ID, nextDue)
	if err := s.store.UpdateSchedule(ctx, sched); err != nil {
		return true, fmt.Errorf("update schedule: %w", err)
	}

	return true, nil
}
