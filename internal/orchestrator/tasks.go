package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Neuroweave/internal/domain"
	"github.com/shaiso/Neuroweave/internal/store"
	"github.com/shaiso/Neuroweave/internal/tasktype"
	"github.com/shaiso/Neuroweave/internal/telemetry"
)

// SubmitTask принимает новую задачу.
//
// Тип валидируется против реестра до записи; задача создаётся в PENDING
// и декомпозируется асинхронно — клиент получает ответ сразу.
func (o *Orchestrator) SubmitTask(ctx context.Context, taskType string, payload map[string]any) (*domain.Task, error) {
	if !o.registry.Has(taskType) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTaskType, taskType)
	}

	task := &domain.Task{
		ID:        uuid.New(),
		Type:      taskType,
		Status:    domain.TaskStatusPending,
		Payload:   payload,
		CreatedAt: time.Now(),
	}

	if err := o.store.CreateTask(ctx, task); err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}

	telemetry.TasksSubmitted.Inc()
	o.publishTaskSubmitted(ctx, task)

	// Будим цикл декомпозиции, не дожидаясь тика
	o.nudgeDecompose()

	o.logger.Info("task submitted",
		"task_id", task.ID,
		"type", task.Type,
	)

	return task, nil
}

// GetTask возвращает задачу по id.
func (o *Orchestrator) GetTask(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	return o.store.GetTask(ctx, id)
}

// ListTasks возвращает все задачи (новые первыми).
func (o *Orchestrator) ListTasks(ctx context.Context) ([]*domain.Task, error) {
	return o.store.ListTasks(ctx)
}

// ListTaskUnits возвращает юниты задачи в порядке ordinal.
func (o *Orchestrator) ListTaskUnits(ctx context.Context, taskID uuid.UUID) ([]*domain.WorkUnit, error) {
	return o.store.ListUnitsByTask(ctx, taskID)
}

// HasTaskType проверяет, зарегистрирован ли тип задачи.
func (o *Orchestrator) HasTaskType(taskType string) bool {
	return o.registry.Has(taskType)
}

// decomposePending обрабатывает все PENDING задачи.
func (o *Orchestrator) decomposePending(ctx context.Context) {
	tasks, err := o.store.ListTasksByStatus(ctx, domain.TaskStatusPending, o.batchSize)
	if err != nil {
		o.logger.Error("failed to list pending tasks", "error", err)
		return
	}

	if len(tasks) == 0 {
		return
	}

	o.logger.Debug("decompose pass found pending tasks", "count", len(tasks))

	for _, task := range tasks {
		if err := o.decomposeTask(ctx, task); err != nil {
			o.logger.Error("failed to decompose task",
				"task_id", task.ID,
				"error", err,
			)
		}
	}
}

// decomposeTask разбивает одну задачу на юниты.
//
// Декомпозиция атомарна: либо задача получает полный набор юнитов и
// переходит в IN_PROGRESS, либо ни одного юнита и переходит в FAILED.
func (o *Orchestrator) decomposeTask(ctx context.Context, task *domain.Task) error {
	// Claim: PENDING → DECOMPOSING. Проигравший конкурент просто выходит.
	if err := o.store.MarkTaskDecomposing(ctx, task.ID); err != nil {
		if errors.Is(err, store.ErrInvalidState) || errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("mark decomposing: %w", err)
	}

	def, err := o.registry.Get(task.Type)
	if err != nil {
		// Тип валидируется на submit; сюда можно попасть только если
		// реестр сузили после рестарта
		o.failTask(ctx, task.ID, fmt.Sprintf("unknown task type: %s", task.Type))
		return nil
	}

	payloads, err := def.Split(task.Payload)
	if err != nil {
		reason := fmt.Sprintf("decompose: %v", err)
		if errors.Is(err, tasktype.ErrEmptySplit) {
			reason = fmt.Sprintf("EmptyDecomposition: %v", err)
		}
		o.failTask(ctx, task.ID, reason)
		return nil
	}

	now := time.Now()
	units := make([]*domain.WorkUnit, len(payloads))
	for i, p := range payloads {
		units[i] = &domain.WorkUnit{
			ID:        uuid.New(),
			TaskID:    task.ID,
			TaskType:  task.Type,
			Ordinal:   i,
			Status:    domain.UnitStatusPending,
			Payload:   p,
			CreatedAt: now,
		}
	}

	if err := o.store.InsertUnits(ctx, task.ID, units); err != nil {
		return fmt.Errorf("insert units: %w", err)
	}

	o.publishWorkAvailable(ctx, task.ID, len(units))

	o.logger.Info("task decomposed",
		"task_id", task.ID,
		"type", task.Type,
		"units", len(units),
	)

	return nil
}

// maybeAggregate запускает агрегацию, если все юниты задачи завершены.
//
// Вызывается после каждого успешного результата. Гонку одновременных
// вызовов решает CAS IN_PROGRESS → AGGREGATING внутри store: агрегацию
// выполняет ровно один победитель.
func (o *Orchestrator) maybeAggregate(ctx context.Context, taskID uuid.UUID) error {
	units, err := o.store.ListUnitsByTask(ctx, taskID)
	if err != nil {
		return fmt.Errorf("list units: %w", err)
	}

	for _, u := range units {
		if u.Status != domain.UnitStatusCompleted {
			return nil
		}
	}

	return o.aggregateTask(ctx, taskID)
}

// aggregateTask собирает результаты юнитов в результат задачи.
func (o *Orchestrator) aggregateTask(ctx context.Context, taskID uuid.UUID) error {
	units, err := o.store.BeginAggregation(ctx, taskID)
	if err != nil {
		if errors.Is(err, store.ErrInvalidState) {
			// Агрегацию уже начал другой поток — или задача уже FAILED
			return nil
		}
		return fmt.Errorf("begin aggregation: %w", err)
	}

	task, err := o.store.GetTask(ctx, taskID)
	if err != nil {
		return fmt.Errorf("get task: %w", err)
	}

	def, err := o.registry.Get(task.Type)
	if err != nil {
		o.failTask(ctx, taskID, fmt.Sprintf("unknown task type: %s", task.Type))
		return nil
	}

	// Юниты приходят в порядке ordinal — контракт store
	results := make([]map[string]any, len(units))
	for i, u := range units {
		results[i] = u.Result
	}

	merged, err := def.Merge(results)
	if err != nil {
		o.failTask(ctx, taskID, fmt.Sprintf("aggregate: %v", err))
		return nil
	}

	if err := o.store.CompleteTask(ctx, taskID, merged); err != nil {
		return fmt.Errorf("complete task: %w", err)
	}

	telemetry.TasksCompleted.Inc()
	o.publishTaskCompleted(ctx, task)

	o.logger.Info("task completed",
		"task_id", taskID,
		"type", task.Type,
		"units", len(units),
	)

	return nil
}

// failTask переводит задачу в FAILED.
//
// Идемпотентен: для уже завершённой задачи ничего не делает. Юниты
// задачи в полёте не отзываются — их результаты будут отброшены.
func (o *Orchestrator) failTask(ctx context.Context, taskID uuid.UUID, reason string) {
	tlog := telemetry.WithTaskID(o.logger, taskID.String())

	err := o.store.FailTask(ctx, taskID, reason)
	if err != nil {
		if errors.Is(err, store.ErrInvalidState) || errors.Is(err, store.ErrNotFound) {
			return
		}
		tlog.Error("failed to mark task failed", "error", err)
		return
	}

	telemetry.TasksFailed.Inc()
	o.publishTaskFailed(ctx, taskID, reason)

	tlog.Warn("task failed", "reason", reason)
}
