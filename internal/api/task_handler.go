package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/shaiso/Neuroweave/internal/orchestrator"
)

// ListTasks возвращает список задач, новые первыми.
// GET /api/v1/tasks
func (h *Handler) ListTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.orch.ListTasks(r.Context())
	if HandleStoreError(w, h.logger, err, "") {
		return
	}

	result := make([]TaskResponse, len(tasks))
	for i, t := range tasks {
		result[i] = TaskFromDomain(t)
	}

	List(w, result, len(result))
}

// SubmitTask принимает новую задачу.
// POST /api/v1/tasks
func (h *Handler) SubmitTask(w http.ResponseWriter, r *http.Request) {
	var req SubmitTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	if req.Type == "" {
		BadRequest(w, "type is required")
		return
	}

	task, err := h.orch.SubmitTask(r.Context(), req.Type, req.Payload)
	if err != nil {
		if errors.Is(err, orchestrator.ErrUnknownTaskType) {
			Error(w, http.StatusBadRequest, ErrCodeUnknownTaskType, err.Error())
			return
		}
		InternalError(w, h.logger, err)
		return
	}

	Created(w, TaskFromDomain(task))
}

// GetTask возвращает задачу по ID: статус, а для терминальных задач
// результат либо причину провала.
// GET /api/v1/tasks/{id}
func (h *Handler) GetTask(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid task id")
		return
	}

	task, err := h.orch.GetTask(r.Context(), id)
	if HandleStoreError(w, h.logger, err, "task not found") {
		return
	}

	Success(w, TaskFromDomain(task))
}

// ListTaskUnits возвращает юниты задачи в порядке ordinal.
// GET /api/v1/tasks/{id}/units
func (h *Handler) ListTaskUnits(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid task id")
		return
	}

	// Проверяем, что задача существует
	_, err = h.orch.GetTask(r.Context(), id)
	if HandleStoreError(w, h.logger, err, "task not found") {
		return
	}

	units, err := h.orch.ListTaskUnits(r.Context(), id)
	if HandleStoreError(w, h.logger, err, "") {
		return
	}

	result := make([]WorkUnitResponse, len(units))
	for i, u := range units {
		result[i] = UnitFromDomain(u)
	}

	List(w, result, len(result))
}
