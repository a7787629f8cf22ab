package api

import (
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Neuroweave/internal/domain"
)

// Task DTOs

// SubmitTaskRequest — запрос на подачу задачи.
type SubmitTaskRequest struct {
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload,omitempty"`
}

// TaskResponse — ответ с задачей.
type TaskResponse struct {
	ID            uuid.UUID      `json:"id"`
	Type          string         `json:"type"`
	Status        string         `json:"status"`
	Payload       map[string]any `json:"payload,omitempty"`
	UnitCount     int            `json:"unit_count"`
	Result        map[string]any `json:"result,omitempty"`
	FailureReason string         `json:"failure_reason,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	FinishedAt    *time.Time     `json:"finished_at,omitempty"`
}

// TaskFromDomain конвертирует domain.Task в TaskResponse.
func TaskFromDomain(t *domain.Task) TaskResponse {
	if t == nil {
		return TaskResponse{}
	}
	return TaskResponse{
		ID:            t.ID,
		Type:          t.Type,
		Status:        string(t.Status),
		Payload:       t.Payload,
		UnitCount:     t.UnitCount,
		Result:        t.Result,
		FailureReason: t.FailureReason,
		CreatedAt:     t.CreatedAt,
		FinishedAt:    t.FinishedAt,
	}
}

// WorkUnit DTOs

// WorkUnitResponse — ответ с юнитом работы.
type WorkUnitResponse struct {
	ID             uuid.UUID      `json:"id"`
	TaskID         uuid.UUID      `json:"task_id"`
	TaskType       string         `json:"task_type"`
	Ordinal        int            `json:"ordinal"`
	Status         string         `json:"status"`
	Payload        map[string]any `json:"payload,omitempty"`
	AssignedWeaver *uuid.UUID     `json:"assigned_weaver,omitempty"`
	AssignedAt     *time.Time     `json:"assigned_at,omitempty"`
	Result         map[string]any `json:"result,omitempty"`
	Error          string         `json:"error,omitempty"`
	RetryCount     int            `json:"retry_count"`
	CreatedAt      time.Time      `json:"created_at"`
}

// UnitFromDomain конвертирует domain.WorkUnit в WorkUnitResponse.
func UnitFromDomain(u *domain.WorkUnit) WorkUnitResponse {
	if u == nil {
		return WorkUnitResponse{}
	}
	return WorkUnitResponse{
		ID:             u.ID,
		TaskID:         u.TaskID,
		TaskType:       u.TaskType,
		Ordinal:        u.Ordinal,
		Status:         string(u.Status),
		Payload:        u.Payload,
		AssignedWeaver: u.AssignedWeaver,
		AssignedAt:     u.AssignedAt,
		Result:         u.Result,
		Error:          u.Error,
		RetryCount:     u.RetryCount,
		CreatedAt:      u.CreatedAt,
	}
}

// Weaver DTOs

// RegisterWeaverRequest — запрос на регистрацию воркера.
type RegisterWeaverRequest struct {
	Address      string   `json:"address,omitempty"`
	Capabilities []string `json:"capabilities"`
}

// WeaverResponse — ответ с воркером.
//
// Live вычисляется при чтении из LastSeen и нигде не хранится.
type WeaverResponse struct {
	ID           uuid.UUID  `json:"id"`
	Address      string     `json:"address,omitempty"`
	Capabilities []string   `json:"capabilities"`
	Live         bool       `json:"live"`
	RegisteredAt time.Time  `json:"registered_at"`
	LastSeen     time.Time  `json:"last_seen"`
	CurrentUnit  *uuid.UUID `json:"current_unit,omitempty"`
}

// WeaverFromDomain конвертирует domain.Weaver в WeaverResponse,
// вычисляя флаг живости от текущего времени.
func WeaverFromDomain(w *domain.Weaver, livenessTimeout time.Duration) WeaverResponse {
	if w == nil {
		return WeaverResponse{}
	}
	return WeaverResponse{
		ID:           w.ID,
		Address:      w.Address,
		Capabilities: w.Capabilities,
		Live:         w.IsLive(livenessTimeout, time.Now()),
		RegisteredAt: w.RegisteredAt,
		LastSeen:     w.LastSeen,
		CurrentUnit:  w.CurrentUnit,
	}
}

// Poll DTOs

// PollRequest — запрос воркера на получение работы.
type PollRequest struct {
	Capabilities []string `json:"capabilities"`
}

// PollResponse — ответ на poll.
//
// WorkUnit == null означает "работы нет": воркер должен подождать
// BackoffMs миллисекунд перед следующим poll.
type PollResponse struct {
	WorkUnit  *WorkUnitResponse `json:"work_unit"`
	BackoffMs int64             `json:"backoff_ms,omitempty"`
}

// Статусы отчёта воркера о выполнении юнита.
const (
	ReportStatusCompleted = "completed"
	ReportStatusFailed    = "failed"
)

// ReportResultRequest — отчёт воркера о выполнении юнита.
type ReportResultRequest struct {
	WeaverID uuid.UUID      `json:"weaver_id"`
	Status   string         `json:"status"`
	Output   map[string]any `json:"output,omitempty"`
	Error    string         `json:"error,omitempty"`
}

// Schedule DTOs

// CreateScheduleRequest — запрос на создание schedule.
type CreateScheduleRequest struct {
	Name        string         `json:"name"`
	TaskType    string         `json:"task_type"`
	Payload     map[string]any `json:"payload,omitempty"`
	CronExpr    string         `json:"cron_expr,omitempty"`
	IntervalSec int            `json:"interval_sec,omitempty"`
	Timezone    string         `json:"timezone,omitempty"`
	Enabled     bool           `json:"enabled"`
}

// UpdateScheduleRequest — запрос на обновление schedule.
type UpdateScheduleRequest struct {
	Name        *string         `json:"name,omitempty"`
	TaskType    *string         `json:"task_type,omitempty"`
	CronExpr    *string         `json:"cron_expr,omitempty"`
	IntervalSec *int            `json:"interval_sec,omitempty"`
	Timezone    *string         `json:"timezone,omitempty"`
	Payload     *map[string]any `json:"payload,omitempty"`
}

// SetEnabledRequest — запрос на включение/выключение.
type SetEnabledRequest struct {
	Enabled bool `json:"enabled"`
}

// ScheduleResponse — ответ с schedule.
type ScheduleResponse struct {
	ID           uuid.UUID      `json:"id"`
	Name         string         `json:"name"`
	TaskType     string         `json:"task_type"`
	Payload      map[string]any `json:"payload,omitempty"`
	CronExpr     string         `json:"cron_expr,omitempty"`
	IntervalSec  int            `json:"interval_sec,omitempty"`
	Timezone     string         `json:"timezone"`
	Enabled      bool           `json:"enabled"`
	NextDueAt    *time.Time     `json:"next_due_at,omitempty"`
	LastSubmitAt *time.Time     `json:"last_submit_at,omitempty"`
	LastTaskID   *uuid.UUID     `json:"last_task_id,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// ScheduleFromDomain конвертирует domain.Schedule в ScheduleResponse.
func ScheduleFromDomain(s *domain.Schedule) ScheduleResponse {
	if s == nil {
		return ScheduleResponse{}
	}
	return ScheduleResponse{
		ID:           s.ID,
		Name:         s.Name,
		TaskType:     s.TaskType,
		Payload:      s.Payload,
		CronExpr:     s.CronExpr,
		IntervalSec:  s.IntervalSec,
		Timezone:     s.Timezone,
		Enabled:      s.Enabled,
		NextDueAt:    s.NextDueAt,
		LastSubmitAt: s.LastSubmitAt,
		LastTaskID:   s.LastTaskID,
		CreatedAt:    s.CreatedAt,
		UpdatedAt:    s.UpdatedAt,
	}
}
