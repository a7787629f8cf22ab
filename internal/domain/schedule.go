package domain

import (
	"time"

	"github.com/google/uuid"
)

// Schedule — расписание автоматической подачи задач.
//
// Schedule позволяет подавать задачу:
// - По cron-выражению: "0 9 * * *" (каждый день в 9:00)
// - По интервалу: каждые N секунд
//
// Scheduler проверяет next_due_at и подаёт задачу, когда время подошло.
type Schedule struct {
	// ID — уникальный идентификатор schedule.
	ID uuid.UUID `json:"id"`

	// Name — имя расписания для удобства.
	Name string `json:"name,omitempty"`

	// TaskType — тип задачи, которую нужно подавать.
	TaskType string `json:"task_type"`

	// Payload — входные данные, с которыми подаётся каждая задача.
	Payload map[string]any `json:"payload,omitempty"`

	// CronExpr — cron-выражение.
	// Формат: "минуты часы дни месяцы дни_недели"
	// Примеры:
	//   "0 9 * * *"     — каждый день в 9:00
	//   "*/5 * * * *"   — каждые 5 минут
	//   "0 0 * * 0"     — каждое воскресенье в полночь
	// Если задан CronExpr, IntervalSec игнорируется.
	CronExpr string `json:"cron_expr,omitempty"`

	// IntervalSec — интервал в секундах между подачами.
	// Используется если CronExpr не задан.
	IntervalSec int `json:"interval_sec,omitempty"`

	// Timezone — часовой пояс для вычисления времени.
	// По умолчанию: "UTC".
	// Примеры: "Europe/Moscow", "America/New_York"
	Timezone string `json:"timezone"`

	// Enabled — флаг активности расписания.
	// Если false, scheduler игнорирует это расписание.
	Enabled bool `json:"enabled"`

	// NextDueAt — время следующей подачи.
	// Scheduler подаёт задачу, когда now >= NextDueAt.
	// После подачи Scheduler вычисляет новое NextDueAt.
	NextDueAt *time.Time `json:"next_due_at,omitempty"`

	// LastSubmitAt — время последней подачи.
	LastSubmitAt *time.Time `json:"last_submit_at,omitempty"`

	// LastTaskID — ID последней поданной задачи.
	LastTaskID *uuid.UUID `json:"last_task_id,omitempty"`

	// CreatedAt — время создания schedule.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt — время последнего обновления.
	UpdatedAt time.Time `json:"updated_at"`
}

// IsCron возвращает true, если расписание использует cron-выражение.
func (s *Schedule) IsCron() bool {
	return s.CronExpr != ""
}

// IsInterval возвращает true, если расписание использует интервал.
func (s *Schedule) IsInterval() bool {
	return s.CronExpr == "" && s.IntervalSec > 0
}

// IsDue проверяет, пора ли подавать задачу.
func (s *Schedule) IsDue(now time.Time) bool {
	if !s.Enabled {
		return false
	}
	if s.NextDueAt == nil {
		return false
	}
	return now.After(*s.NextDueAt) || now.Equal(*s.NextDueAt)
}

// RecordSubmit записывает информацию о подаче задачи.
func (s *Schedule) RecordSubmit(taskID uuid.UUID, nextDue time.Time) {
	now := time.Now()
	s.LastSubmitAt = &now
	s.LastTaskID = &taskID
	s.NextDueAt = &nextDue
	s.UpdatedAt = now
}
