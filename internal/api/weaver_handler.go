package api

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
)

// ListWeavers возвращает всех воркеров с вычисленным флагом живости.
// GET /api/v1/weavers
func (h *Handler) ListWeavers(w http.ResponseWriter, r *http.Request) {
	weavers, err := h.orch.ListWeavers(r.Context())
	if HandleStoreError(w, h.logger, err, "") {
		return
	}

	timeout := h.orch.LivenessTimeout()
	result := make([]WeaverResponse, len(weavers))
	for i, wv := range weavers {
		result[i] = WeaverFromDomain(wv, timeout)
	}

	List(w, result, len(result))
}

// RegisterWeaver регистрирует нового воркера.
// POST /api/v1/weavers
func (h *Handler) RegisterWeaver(w http.ResponseWriter, r *http.Request) {
	var req RegisterWeaverRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	if len(req.Capabilities) == 0 {
		BadRequest(w, "capabilities are required")
		return
	}

	weaver, err := h.orch.RegisterWeaver(r.Context(), req.Address, req.Capabilities)
	if err != nil {
		InternalError(w, h.logger, err)
		return
	}

	Created(w, WeaverFromDomain(weaver, h.orch.LivenessTimeout()))
}

// GetWeaver возвращает воркера по ID.
// GET /api/v1/weavers/{id}
func (h *Handler) GetWeaver(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid weaver id")
		return
	}

	weaver, err := h.orch.GetWeaver(r.Context(), id)
	if HandleStoreError(w, h.logger, err, "weaver not found") {
		return
	}

	Success(w, WeaverFromDomain(weaver, h.orch.LivenessTimeout()))
}

// Heartbeat обновляет LastSeen воркера.
//
// 404 здесь означает, что воркер был вычищен за молчание: клиент
// воркера по этому ответу регистрируется заново.
// POST /api/v1/weavers/{id}/heartbeat
func (h *Handler) Heartbeat(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid weaver id")
		return
	}

	if err := h.orch.Heartbeat(r.Context(), id); err != nil {
		HandleStoreError(w, h.logger, err, "weaver not found")
		return
	}

	Success(w, map[string]string{"status": "ok"})
}

// Poll выдаёт воркеру следующий юнит работы либо пустой ответ
// с backoff-подсказкой.
// POST /api/v1/weavers/{id}/poll
func (h *Handler) Poll(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid weaver id")
		return
	}

	var req PollRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	unit, backoff, err := h.orch.Poll(r.Context(), id, req.Capabilities)
	if HandleStoreError(w, h.logger, err, "weaver not found") {
		return
	}

	if unit == nil {
		Success(w, PollResponse{WorkUnit: nil, BackoffMs: backoff.Milliseconds()})
		return
	}

	u := UnitFromDomain(unit)
	Success(w, PollResponse{WorkUnit: &u})
}

// ReportResult принимает отчёт воркера о выполнении юнита.
//
// Отчёт от воркера, не являющегося текущим назначенцем юнита,
// отклоняется как 409 ASSIGNMENT_MISMATCH и не меняет состояние.
// POST /api/v1/units/{id}/result
func (h *Handler) ReportResult(w http.ResponseWriter, r *http.Request) {
	unitID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid unit id")
		return
	}

	var req ReportResultRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	if req.WeaverID == uuid.Nil {
		BadRequest(w, "weaver_id is required")
		return
	}

	if req.Status != ReportStatusCompleted && req.Status != ReportStatusFailed {
		BadRequest(w, "status must be 'completed' or 'failed'")
		return
	}

	success := req.Status == ReportStatusCompleted
	unit, err := h.orch.ReportResult(r.Context(), unitID, req.WeaverID, success, req.Output, req.Error)
	if HandleStoreError(w, h.logger, err, "work unit not found") {
		return
	}

	Success(w, UnitFromDomain(unit))
}
