package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Neuroweave/internal/domain"
	"github.com/shaiso/Neuroweave/internal/store"
	"github.com/shaiso/Neuroweave/internal/telemetry"
)

// RegisterWeaver регистрирует нового воркера.
func (o *Orchestrator) RegisterWeaver(ctx context.Context, address string, capabilities []string) (*domain.Weaver, error) {
	now := time.Now()
	weaver := &domain.Weaver{
		ID:           uuid.New(),
		Address:      address,
		Capabilities: capabilities,
		RegisteredAt: now,
		LastSeen:     now,
	}

	if err := o.store.CreateWeaver(ctx, weaver); err != nil {
		return nil, fmt.Errorf("create weaver: %w", err)
	}

	telemetry.WeaversRegistered.Inc()

	o.logger.Info("weaver registered",
		"weaver_id", weaver.ID,
		"address", address,
		"capabilities", capabilities,
	)

	return weaver, nil
}

// GetWeaver возвращает воркера по id.
func (o *Orchestrator) GetWeaver(ctx context.Context, id uuid.UUID) (*domain.Weaver, error) {
	return o.store.GetWeaver(ctx, id)
}

// ListWeavers возвращает всех воркеров в порядке регистрации.
func (o *Orchestrator) ListWeavers(ctx context.Context) ([]*domain.Weaver, error) {
	return o.store.ListWeavers(ctx)
}

// LivenessTimeout возвращает действующий порог liveness.
// Используется транспортом для вычисления флага live на чтении.
func (o *Orchestrator) LivenessTimeout() time.Duration {
	return o.livenessTimeout
}

// Heartbeat обновляет отметку жизни воркера.
// Для неизвестного (уже удалённого) воркера возвращает store.ErrNotFound —
// сигнал воркеру перерегистрироваться.
func (o *Orchestrator) Heartbeat(ctx context.Context, weaverID uuid.UUID) error {
	return o.store.TouchWeaver(ctx, weaverID)
}

// Poll выдаёт воркеру юнит работы.
//
// Неблокирующий вызов: если работы нет, возвращает (nil, hint, nil) —
// воркер сам выдерживает паузу hint перед следующим запросом.
// Capabilities из запроса авторитетны; пустой список означает
// «как при регистрации».
func (o *Orchestrator) Poll(ctx context.Context, weaverID uuid.UUID, capabilities []string) (*domain.WorkUnit, time.Duration, error) {
	unit, redelivered, err := o.store.ClaimUnit(ctx, weaverID, capabilities)
	if err != nil {
		if errors.Is(err, store.ErrNoWork) {
			telemetry.EmptyPolls.Inc()
			return nil, o.backoffHint, nil
		}
		return nil, 0, err
	}

	if redelivered {
		// Воркер запросил работу, не отчитавшись за прошлую — выдаём
		// её же повторно, а не вторую
		o.logger.Warn("re-delivering unit to weaver that polled twice",
			"weaver_id", weaverID,
			"unit_id", unit.ID,
		)
	} else {
		telemetry.UnitsAssigned.Inc()
		o.logger.Debug("unit assigned",
			"unit_id", unit.ID,
			"task_id", unit.TaskID,
			"ordinal", unit.Ordinal,
			"weaver_id", weaverID,
		)
	}

	return unit, 0, nil
}

// ReportResult принимает результат выполнения юнита.
//
// success=true завершает юнит и, если он был последним, запускает
// агрегацию задачи. success=false ведёт retry-учёт: юнит возвращается
// в очередь либо, при исчерпании попыток, становится FAILED вместе
// со своей задачей.
//
// Отчёт от не-назначенного воркера отвергается с
// store.ErrAssignmentMismatch и не меняет ничьё состояние.
func (o *Orchestrator) ReportResult(ctx context.Context, unitID, weaverID uuid.UUID, success bool, result map[string]any, errText string) (*domain.WorkUnit, error) {
	if success {
		unit, err := o.store.CompleteUnit(ctx, unitID, weaverID, result)
		if err != nil {
			return nil, err
		}

		telemetry.UnitsCompleted.Inc()
		o.logger.Debug("unit completed",
			"unit_id", unitID,
			"task_id", unit.TaskID,
			"weaver_id", weaverID,
		)

		if err := o.maybeAggregate(ctx, unit.TaskID); err != nil {
			o.logger.Error("aggregation check failed",
				"task_id", unit.TaskID,
				"error", err,
			)
		}

		return unit, nil
	}

	unit, err := o.store.FailUnitAttempt(ctx, unitID, weaverID, errText, o.maxRetries)
	if err != nil {
		return nil, err
	}

	if unit.Status == domain.UnitStatusPending {
		// Попытки ещё остались — юнит снова в очереди
		telemetry.UnitsRequeued.Inc()
		o.publishWorkAvailable(ctx, unit.TaskID, 1)
		o.logger.Warn("unit requeued after failure",
			"unit_id", unitID,
			"task_id", unit.TaskID,
			"retry_count", unit.RetryCount,
			"error", errText,
		)
		return unit, nil
	}

	// Попытки исчерпаны — юнит и его задача проваливаются
	telemetry.UnitsFailed.Inc()
	o.logger.Warn("unit failed permanently",
		"unit_id", unitID,
		"task_id", unit.TaskID,
		"retry_count", unit.RetryCount,
		"error", errText,
	)

	o.failTask(ctx, unit.TaskID,
		fmt.Sprintf("work unit %d failed after %d attempts: %s", unit.Ordinal, unit.RetryCount+1, errText))

	return unit, nil
}

// purgeStaleWeavers выполняет один цикл purge.
//
// Воркер считается умолкнувшим, если молчит дольше
// liveness timeout + grace. Его юнит возвращается в очередь (или
// проваливается при исчерпании попыток), сам воркер удаляется.
func (o *Orchestrator) purgeStaleWeavers(ctx context.Context) {
	cycleStart := time.Now()
	cutoff := cycleStart.Add(-(o.livenessTimeout + o.purgeGrace))

	res, err := o.store.PurgeWeavers(ctx, cutoff, cycleStart, o.maxRetries)
	if err != nil {
		o.logger.Error("purge cycle failed", "error", err)
		return
	}

	for _, w := range res.Purged {
		telemetry.WeaversPurged.Inc()
		o.logger.Warn("weaver purged",
			"weaver_id", w.ID,
			"address", w.Address,
			"last_seen", w.LastSeen,
		)
	}

	for _, u := range res.Requeued {
		telemetry.UnitsRequeued.Inc()
		o.publishWorkAvailable(ctx, u.TaskID, 1)
		o.logger.Warn("unit requeued after weaver purge",
			"unit_id", u.ID,
			"task_id", u.TaskID,
			"retry_count", u.RetryCount,
		)
	}

	for _, u := range res.Exhausted {
		telemetry.UnitsFailed.Inc()
		o.logger.Warn("unit failed permanently after weaver purge",
			"unit_id", u.ID,
			"task_id", u.TaskID,
			"retry_count", u.RetryCount,
		)
		o.failTask(ctx, u.TaskID,
			fmt.Sprintf("work unit %d lost with purged weaver after %d attempts", u.Ordinal, u.RetryCount+1))
	}
}
