package orchestrator

import (
	"context"

	"github.com/google/uuid"
	"github.com/shaiso/Neuroweave/internal/domain"
)

// Помощники публикации событий.
//
// Publisher опционален: без MQ все вызовы — no-op, система живёт на
// одном polling. Ошибка публикации никогда не валит операцию —
// события информационные, истина в store.

func (o *Orchestrator) publishTaskSubmitted(ctx context.Context, task *domain.Task) {
	if o.publisher == nil {
		return
	}
	if err := o.publisher.PublishTaskSubmitted(ctx, task.ID, task.Type); err != nil {
		o.logger.Warn("failed to publish task.submitted",
			"task_id", task.ID,
			"error", err,
		)
	}
}

func (o *Orchestrator) publishTaskCompleted(ctx context.Context, task *domain.Task) {
	if o.publisher == nil {
		return
	}
	if err := o.publisher.PublishTaskCompleted(ctx, task.ID, task.Type); err != nil {
		o.logger.Warn("failed to publish task.completed",
			"task_id", task.ID,
			"error", err,
		)
	}
}

func (o *Orchestrator) publishTaskFailed(ctx context.Context, taskID uuid.UUID, reason string) {
	if o.publisher == nil {
		return
	}
	if err := o.publisher.PublishTaskFailed(ctx, taskID, reason); err != nil {
		o.logger.Warn("failed to publish task.failed",
			"task_id", taskID,
			"error", err,
		)
	}
}

func (o *Orchestrator) publishWorkAvailable(ctx context.Context, taskID uuid.UUID, units int) {
	if o.publisher == nil {
		return
	}
	if err := o.publisher.PublishWorkAvailable(ctx, taskID, units); err != nil {
		o.logger.Warn("failed to publish work.available",
			"task_id", taskID,
			"error", err,
		)
	}
}
