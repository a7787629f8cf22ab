package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Метрики задач.
var (
	// TasksSubmitted — принятые задачи.
	TasksSubmitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "neuroweave_tasks_submitted_total",
		Help: "Total tasks submitted",
	})

	// TasksCompleted — успешно завершённые задачи.
	TasksCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "neuroweave_tasks_completed_total",
		Help: "Total tasks completed successfully",
	})

	// TasksFailed — провалившиеся задачи.
	TasksFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "neuroweave_tasks_failed_total",
		Help: "Total tasks failed",
	})
)

// Метрики юнитов.
var (
	// UnitsAssigned — выдачи юнитов воркерам (повторные выдачи считаются).
	UnitsAssigned = promauto.NewCounter(prometheus.CounterOpts{
		Name: "neuroweave_units_assigned_total",
		Help: "Total work unit assignments to weavers",
	})

	// UnitsCompleted — успешно завершённые юниты.
	UnitsCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "neuroweave_units_completed_total",
		Help: "Total work units completed",
	})

	// UnitsRequeued — юниты, возвращённые в очередь на retry.
	UnitsRequeued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "neuroweave_units_requeued_total",
		Help: "Total work units requeued for retry",
	})

	// UnitsFailed — юниты, исчерпавшие retry.
	UnitsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "neuroweave_units_failed_total",
		Help: "Total work units permanently failed",
	})
)

// Метрики воркеров.
var (
	// WeaversRegistered — регистрации воркеров.
	WeaversRegistered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "neuroweave_weavers_registered_total",
		Help: "Total weaver registrations",
	})

	// WeaversPurged — воркеры, удалённые по liveness timeout.
	WeaversPurged = promauto.NewCounter(prometheus.CounterOpts{
		Name: "neuroweave_weavers_purged_total",
		Help: "Total weavers purged for missed heartbeats",
	})

	// EmptyPolls — poll-запросы без доступной работы.
	EmptyPolls = promauto.NewCounter(prometheus.CounterOpts{
		Name: "neuroweave_empty_polls_total",
		Help: "Total poll requests that returned no work",
	})
)
