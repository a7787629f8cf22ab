package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Neuroweave/internal/domain"
	"github.com/shaiso/Neuroweave/internal/scheduler"
)

// ListSchedules возвращает все расписания.
// GET /api/v1/schedules
func (h *Handler) ListSchedules(w http.ResponseWriter, r *http.Request) {
	schedules, err := h.store.ListSchedules(r.Context())
	if HandleStoreError(w, h.logger, err, "") {
		return
	}

	result := make([]ScheduleResponse, len(schedules))
	for i, s := range schedules {
		result[i] = ScheduleFromDomain(s)
	}

	List(w, result, len(result))
}

// CreateSchedule создаёт новое расписание.
// POST /api/v1/schedules
func (h *Handler) CreateSchedule(w http.ResponseWriter, r *http.Request) {
	var req CreateScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	// Валидация
	if req.Name == "" {
		BadRequest(w, "name is required")
		return
	}

	if req.TaskType == "" {
		BadRequest(w, "task_type is required")
		return
	}

	if !h.orch.HasTaskType(req.TaskType) {
		Error(w, http.StatusBadRequest, ErrCodeUnknownTaskType, "unknown task type: "+req.TaskType)
		return
	}

	if req.CronExpr == "" && req.IntervalSec <= 0 {
		BadRequest(w, "either cron_expr or interval_sec is required")
		return
	}

	if req.CronExpr != "" {
		if err := scheduler.ValidateCronExpr(req.CronExpr); err != nil {
			BadRequest(w, err.Error())
			return
		}
	}

	timezone := req.Timezone
	if timezone == "" {
		timezone = "UTC"
	}

	now := time.Now()
	schedule := &domain.Schedule{
		ID:          uuid.New(),
		Name:        req.Name,
		TaskType:    req.TaskType,
		Payload:     req.Payload,
		CronExpr:    req.CronExpr,
		IntervalSec: req.IntervalSec,
		Timezone:    timezone,
		Enabled:     req.Enabled,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	// Без NextDueAt расписание никогда не сработает
	nextDue, err := scheduler.CalculateInitialNextDue(schedule)
	if err != nil {
		BadRequest(w, err.Error())
		return
	}
	schedule.NextDueAt = &nextDue

	if err := h.store.CreateSchedule(r.Context(), schedule); err != nil {
		HandleStoreError(w, h.logger, err, "")
		return
	}

	Created(w, ScheduleFromDomain(schedule))
}

// GetSchedule возвращает schedule по ID.
// GET /api/v1/schedules/{id}
func (h *Handler) GetSchedule(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid schedule id")
		return
	}

	schedule, err := h.store.GetSchedule(r.Context(), id)
	if HandleStoreError(w, h.logger, err, "schedule not found") {
		return
	}

	Success(w, ScheduleFromDomain(schedule))
}

// UpdateSchedule обновляет schedule.
// PUT /api/v1/schedules/{id}
func (h *Handler) UpdateSchedule(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid schedule id")
		return
	}

	var req UpdateScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	schedule, err := h.store.GetSchedule(r.Context(), id)
	if HandleStoreError(w, h.logger, err, "schedule not found") {
		return
	}

	if req.Name != nil {
		schedule.Name = *req.Name
	}
	if req.TaskType != nil {
		if !h.orch.HasTaskType(*req.TaskType) {
			Error(w, http.StatusBadRequest, ErrCodeUnknownTaskType, "unknown task type: "+*req.TaskType)
			return
		}
		schedule.TaskType = *req.TaskType
	}
	if req.CronExpr != nil {
		if *req.CronExpr != "" {
			if err := scheduler.ValidateCronExpr(*req.CronExpr); err != nil {
				BadRequest(w, err.Error())
				return
			}
		}
		schedule.CronExpr = *req.CronExpr
	}
	if req.IntervalSec != nil {
		schedule.IntervalSec = *req.IntervalSec
	}
	if req.Timezone != nil {
		schedule.Timezone = *req.Timezone
	}
	if req.Payload != nil {
		schedule.Payload = *req.Payload
	}

	if schedule.CronExpr == "" && schedule.IntervalSec <= 0 {
		BadRequest(w, "either cron_expr or interval_sec is required")
		return
	}

	// Смена расписания делает старое next_due_at недействительным
	if req.CronExpr != nil || req.IntervalSec != nil || req.Timezone != nil {
		nextDue, err := scheduler.CalculateNextDue(schedule, time.Now())
		if err != nil {
			BadRequest(w, err.Error())
			return
		}
		schedule.NextDueAt = &nextDue
	}

	schedule.UpdatedAt = time.Now()

	if err := h.store.UpdateSchedule(r.Context(), schedule); err != nil {
		HandleStoreError(w, h.logger, err, "schedule not found")
		return
	}

	Success(w, ScheduleFromDomain(schedule))
}

// DeleteSchedule удаляет schedule.
// DELETE /api/v1/schedules/{id}
func (h *Handler) DeleteSchedule(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid schedule id")
		return
	}

	if err := h.store.DeleteSchedule(r.Context(), id); err != nil {
		HandleStoreError(w, h.logger, err, "schedule not found")
		return
	}

	NoContent(w)
}

// SetScheduleEnabled включает или выключает schedule.
//
// При включении next_due_at пересчитывается от текущего момента,
// чтобы расписание не сработало немедленно по давно прошедшему времени.
// PUT /api/v1/schedules/{id}/enabled
func (h *Handler) SetScheduleEnabled(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid schedule id")
		return
	}

	var req SetEnabledRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	schedule, err := h.store.GetSchedule(r.Context(), id)
	if HandleStoreError(w, h.logger, err, "schedule not found") {
		return
	}

	schedule.Enabled = req.Enabled
	if req.Enabled {
		nextDue, err := scheduler.CalculateNextDue(schedule, time.Now())
		if err != nil {
			BadRequest(w, err.Error())
			return
		}
		schedule.NextDueAt = &nextDue
	}
	schedule.UpdatedAt = time.Now()

	if err := h.store.UpdateSchedule(r.Context(), schedule); err != nil {
		HandleStoreError(w, h.logger, err, "schedule not found")
		return
	}

	Success(w, ScheduleFromDomain(schedule))
}
