package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Neuroweave/internal/orchestrator"
	"github.com/shaiso/Neuroweave/internal/store/memory"
)

// newTestServer поднимает API поверх in-memory store.
// Фоновые циклы оркестратора не запускаются: их включают только тесты,
// которым нужна декомпозиция.
func newTestServer(t *testing.T) (*httptest.Server, *orchestrator.Orchestrator) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	st := memory.New()
	orch := orchestrator.New(orchestrator.Config{
		Store:        st,
		PollInterval: 20 * time.Millisecond,
		BackoffHint:  50 * time.Millisecond,
		Logger:       logger,
	})

	h := NewHandler(Config{
		Orchestrator: orch,
		Store:        st,
		Logger:       logger,
	})

	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server, orch
}

// postJSON отправляет POST с JSON телом.
func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()

	buf, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(buf))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	return resp
}

// doJSON отправляет запрос с произвольным методом (PUT, DELETE).
func doJSON(t *testing.T, method, url string, body any) *http.Response {
	t.Helper()

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request: %v", err)
		}
		reader = bytes.NewReader(buf)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	return resp
}

// decodeError читает error-конверт из ответа.
func decodeError(t *testing.T, resp *http.Response) ErrorDetail {
	t.Helper()

	var envelope ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	resp.Body.Close()
	return envelope.Error
}

// --- Task Endpoint Tests ---

func TestSubmitTask(t *testing.T) {
	server, _ := newTestServer(t)

	resp := postJSON(t, server.URL+"/api/v1/tasks", SubmitTaskRequest{
		Type:    "echo",
		Payload: map[string]any{"items": []any{"a", "b"}},
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}

	var envelope struct {
		Data TaskResponse `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	resp.Body.Close()

	if envelope.Data.ID == uuid.Nil {
		t.Error("task id should be set")
	}
	if envelope.Data.Type != "echo" {
		t.Errorf("expected type echo, got %s", envelope.Data.Type)
	}
	// Декомпозиция асинхронная: сразу после submit задача PENDING
	if envelope.Data.Status != "PENDING" {
		t.Errorf("expected status PENDING, got %s", envelope.Data.Status)
	}
}

func TestSubmitTask_UnknownType(t *testing.T) {
	server, _ := newTestServer(t)

	resp := postJSON(t, server.URL+"/api/v1/tasks", SubmitTaskRequest{Type: "no-such-type"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}

	detail := decodeError(t, resp)
	if detail.Code != ErrCodeUnknownTaskType {
		t.Errorf("expected UNKNOWN_TASK_TYPE, got %s", detail.Code)
	}
}

func TestSubmitTask_MissingType(t *testing.T) {
	server, _ := newTestServer(t)

	resp := postJSON(t, server.URL+"/api/v1/tasks", SubmitTaskRequest{})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}

	detail := decodeError(t, resp)
	if detail.Code != ErrCodeBadRequest {
		t.Errorf("expected BAD_REQUEST, got %s", detail.Code)
	}
}

func TestGetTask_NotFound(t *testing.T) {
	server, _ := newTestServer(t)

	resp, err := http.Get(server.URL + "/api/v1/tasks/" + uuid.NewString())
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}

	detail := decodeError(t, resp)
	if detail.Code != ErrCodeNotFound {
		t.Errorf("expected NOT_FOUND, got %s", detail.Code)
	}
}

func TestGetTask_InvalidID(t *testing.T) {
	server, _ := newTestServer(t)

	resp, err := http.Get(server.URL + "/api/v1/tasks/not-a-uuid")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

// --- Weaver Endpoint Tests ---

func TestRegisterWeaver(t *testing.T) {
	server, _ := newTestServer(t)

	resp := postJSON(t, server.URL+"/api/v1/weavers", RegisterWeaverRequest{
		Address:      "10.0.0.5:9100",
		Capabilities: []string{"echo", "sleep"},
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}

	var envelope struct {
		Data WeaverResponse `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	resp.Body.Close()

	if envelope.Data.ID == uuid.Nil {
		t.Error("weaver id should be set")
	}
	if !envelope.Data.Live {
		t.Error("freshly registered weaver should be live")
	}
	if len(envelope.Data.Capabilities) != 2 {
		t.Errorf("expected 2 capabilities, got %d", len(envelope.Data.Capabilities))
	}
}

func TestRegisterWeaver_NoCapabilities(t *testing.T) {
	server, _ := newTestServer(t)

	resp := postJSON(t, server.URL+"/api/v1/weavers", RegisterWeaverRequest{Address: "x:1"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestPoll_NoWork(t *testing.T) {
	server, _ := newTestServer(t)

	weaverID := registerWeaver(t, server, []string{"echo"})

	resp := postJSON(t, server.URL+"/api/v1/weavers/"+weaverID.String()+"/poll",
		PollRequest{Capabilities: []string{"echo"}})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var envelope struct {
		Data PollResponse `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	resp.Body.Close()

	if envelope.Data.WorkUnit != nil {
		t.Errorf("expected no work, got unit %v", envelope.Data.WorkUnit.ID)
	}
	if envelope.Data.BackoffMs <= 0 {
		t.Errorf("expected positive backoff hint, got %d", envelope.Data.BackoffMs)
	}
}

func TestPoll_UnknownWeaver(t *testing.T) {
	server, _ := newTestServer(t)

	// 404 на poll — сигнал воркеру зарегистрироваться заново
	resp := postJSON(t, server.URL+"/api/v1/weavers/"+uuid.NewString()+"/poll",
		PollRequest{Capabilities: []string{"echo"}})
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestHeartbeat(t *testing.T) {
	server, _ := newTestServer(t)

	weaverID := registerWeaver(t, server, []string{"echo"})

	resp := postJSON(t, server.URL+"/api/v1/weavers/"+weaverID.String()+"/heartbeat", struct{}{})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	// Heartbeat от вычищенного воркера — 404
	resp = postJSON(t, server.URL+"/api/v1/weavers/"+uuid.NewString()+"/heartbeat", struct{}{})
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

// --- Full Flow Test ---

// TestTaskLifecycle прогоняет задачу через весь цикл поверх HTTP:
// submit → декомпозиция → poll → report → агрегация.
func TestTaskLifecycle(t *testing.T) {
	server, orch := newTestServer(t)

	if err := orch.Start(t.Context()); err != nil {
		t.Fatalf("start orchestrator: %v", err)
	}
	t.Cleanup(orch.Stop)

	// Подаём задачу на два юнита
	taskID := submitTask(t, server, "echo", map[string]any{"items": []any{"a", "b"}})

	// Ждём, пока декомпозер разрежет задачу
	waitForTask(t, server, taskID, func(task TaskResponse) bool {
		return task.Status == "IN_PROGRESS" && task.UnitCount == 2
	})

	weaverID := registerWeaver(t, server, []string{"echo"})

	// Выполняем оба юнита по очереди
	for want := 0; want < 2; want++ {
		unit := pollForUnit(t, server, weaverID, []string{"echo"})
		if unit.Ordinal != want {
			t.Fatalf("expected ordinal %d, got %d", want, unit.Ordinal)
		}

		item := unit.Payload["item"]
		resp := postJSON(t, server.URL+"/api/v1/units/"+unit.ID.String()+"/result",
			ReportResultRequest{
				WeaverID: weaverID,
				Status:   ReportStatusCompleted,
				Output:   map[string]any{"echo": item},
			})
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("report result: expected 200, got %d", resp.StatusCode)
		}
		resp.Body.Close()
	}

	// Агрегация срабатывает на последнем отчёте
	final := waitForTask(t, server, taskID, func(task TaskResponse) bool {
		return task.Status == "COMPLETED"
	})

	outputs, ok := final.Result["all_outputs"].([]any)
	if !ok {
		t.Fatalf("expected all_outputs list, got %T", final.Result["all_outputs"])
	}
	if len(outputs) != 2 {
		t.Fatalf("expected 2 outputs, got %d", len(outputs))
	}
	first, ok := outputs[0].(map[string]any)
	if !ok || first["echo"] != "a" {
		t.Errorf("outputs should keep unit order, got %v", outputs)
	}

	// Юниты видны через /units
	resp, err := http.Get(server.URL + "/api/v1/tasks/" + taskID.String() + "/units")
	if err != nil {
		t.Fatalf("GET units: %v", err)
	}
	var unitsEnvelope struct {
		Data  []WorkUnitResponse `json:"data"`
		Total int                `json:"total"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&unitsEnvelope); err != nil {
		t.Fatalf("decode units: %v", err)
	}
	resp.Body.Close()

	if unitsEnvelope.Total != 2 {
		t.Errorf("expected 2 units, got %d", unitsEnvelope.Total)
	}
	for _, u := range unitsEnvelope.Data {
		if u.Status != "COMPLETED" {
			t.Errorf("unit %d: expected COMPLETED, got %s", u.Ordinal, u.Status)
		}
	}
}

func TestReportResult_AssignmentMismatch(t *testing.T) {
	server, orch := newTestServer(t)

	if err := orch.Start(t.Context()); err != nil {
		t.Fatalf("start orchestrator: %v", err)
	}
	t.Cleanup(orch.Stop)

	taskID := submitTask(t, server, "echo", map[string]any{"items": []any{"x"}})
	waitForTask(t, server, taskID, func(task TaskResponse) bool {
		return task.Status == "IN_PROGRESS"
	})

	honest := registerWeaver(t, server, []string{"echo"})
	impostor := registerWeaver(t, server, []string{"echo"})

	unit := pollForUnit(t, server, honest, []string{"echo"})

	// Отчёт от воркера, которому юнит не назначен, отклоняется
	resp := postJSON(t, server.URL+"/api/v1/units/"+unit.ID.String()+"/result",
		ReportResultRequest{
			WeaverID: impostor,
			Status:   ReportStatusCompleted,
			Output:   map[string]any{"echo": "stolen"},
		})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.StatusCode)
	}
	detail := decodeError(t, resp)
	if detail.Code != ErrCodeAssignmentMismatch {
		t.Errorf("expected ASSIGNMENT_MISMATCH, got %s", detail.Code)
	}

	// Законный отчёт по-прежнему проходит
	resp = postJSON(t, server.URL+"/api/v1/units/"+unit.ID.String()+"/result",
		ReportResultRequest{
			WeaverID: honest,
			Status:   ReportStatusCompleted,
			Output:   map[string]any{"echo": "x"},
		})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

// --- Schedule Endpoint Tests ---

func TestCreateSchedule_Validation(t *testing.T) {
	server, _ := newTestServer(t)
	url := server.URL + "/api/v1/schedules"

	cases := []struct {
		name string
		req  CreateScheduleRequest
		code ErrorCode
	}{
		{"missing name", CreateScheduleRequest{TaskType: "echo", IntervalSec: 60}, ErrCodeBadRequest},
		{"missing task type", CreateScheduleRequest{Name: "s", IntervalSec: 60}, ErrCodeBadRequest},
		{"unknown task type", CreateScheduleRequest{Name: "s", TaskType: "nope", IntervalSec: 60}, ErrCodeUnknownTaskType},
		{"no cron and no interval", CreateScheduleRequest{Name: "s", TaskType: "echo"}, ErrCodeBadRequest},
		{"bad cron", CreateScheduleRequest{Name: "s", TaskType: "echo", CronExpr: "not a cron"}, ErrCodeBadRequest},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := postJSON(t, url, tc.req)
			if resp.StatusCode != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", resp.StatusCode)
			}
			detail := decodeError(t, resp)
			if detail.Code != tc.code {
				t.Errorf("expected %s, got %s", tc.code, detail.Code)
			}
		})
	}
}

func TestScheduleCRUD(t *testing.T) {
	server, _ := newTestServer(t)
	base := server.URL + "/api/v1/schedules"

	// Create
	resp := postJSON(t, base, CreateScheduleRequest{
		Name:        "nightly-echo",
		TaskType:    "echo",
		Payload:     map[string]any{"items": []any{1}},
		IntervalSec: 3600,
		Enabled:     true,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d", resp.StatusCode)
	}

	var created struct {
		Data ScheduleResponse `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("decode create: %v", err)
	}
	resp.Body.Close()

	sched := created.Data
	if sched.Timezone != "UTC" {
		t.Errorf("expected default timezone UTC, got %s", sched.Timezone)
	}
	// Без next_due_at расписание никогда не сработает
	if sched.NextDueAt == nil {
		t.Fatal("next_due_at should be set on create")
	}

	// Update интервала пересчитывает next_due_at
	newInterval := 60
	resp = doJSON(t, http.MethodPut, base+"/"+sched.ID.String(),
		UpdateScheduleRequest{IntervalSec: &newInterval})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("update: expected 200, got %d", resp.StatusCode)
	}
	var updated struct {
		Data ScheduleResponse `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&updated); err != nil {
		t.Fatalf("decode update: %v", err)
	}
	resp.Body.Close()
	if updated.Data.IntervalSec != 60 {
		t.Errorf("expected interval 60, got %d", updated.Data.IntervalSec)
	}

	// Disable
	resp = doJSON(t, http.MethodPut, base+"/"+sched.ID.String()+"/enabled",
		SetEnabledRequest{Enabled: false})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("disable: expected 200, got %d", resp.StatusCode)
	}
	var disabled struct {
		Data ScheduleResponse `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&disabled); err != nil {
		t.Fatalf("decode disable: %v", err)
	}
	resp.Body.Close()
	if disabled.Data.Enabled {
		t.Error("schedule should be disabled")
	}

	// Delete
	resp = doJSON(t, http.MethodDelete, base+"/"+sched.ID.String(), nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete: expected 204, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp, err := http.Get(base + "/" + sched.ID.String())
	if err != nil {
		t.Fatalf("GET after delete: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", resp.StatusCode)
	}
}

// --- Helpers ---

// submitTask подаёт задачу и возвращает её ID.
func submitTask(t *testing.T, server *httptest.Server, taskType string, payload map[string]any) uuid.UUID {
	t.Helper()

	resp := postJSON(t, server.URL+"/api/v1/tasks", SubmitTaskRequest{Type: taskType, Payload: payload})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("submit: expected 201, got %d", resp.StatusCode)
	}
	var envelope struct {
		Data TaskResponse `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode submit: %v", err)
	}
	resp.Body.Close()
	return envelope.Data.ID
}

// registerWeaver регистрирует воркера и возвращает его ID.
func registerWeaver(t *testing.T, server *httptest.Server, capabilities []string) uuid.UUID {
	t.Helper()

	resp := postJSON(t, server.URL+"/api/v1/weavers", RegisterWeaverRequest{Capabilities: capabilities})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register: expected 201, got %d", resp.StatusCode)
	}
	var envelope struct {
		Data WeaverResponse `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode register: %v", err)
	}
	resp.Body.Close()
	return envelope.Data.ID
}

// pollForUnit поллит, пока не получит юнит.
func pollForUnit(t *testing.T, server *httptest.Server, weaverID uuid.UUID, capabilities []string) *WorkUnitResponse {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		resp := postJSON(t, server.URL+"/api/v1/weavers/"+weaverID.String()+"/poll",
			PollRequest{Capabilities: capabilities})
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("poll: expected 200, got %d", resp.StatusCode)
		}
		var envelope struct {
			Data PollResponse `json:"data"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
			t.Fatalf("decode poll: %v", err)
		}
		resp.Body.Close()

		if envelope.Data.WorkUnit != nil {
			return envelope.Data.WorkUnit
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("no unit assigned before deadline")
	return nil
}

// waitForTask опрашивает задачу, пока не выполнится условие.
func waitForTask(t *testing.T, server *httptest.Server, taskID uuid.UUID, ready func(TaskResponse) bool) TaskResponse {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	var last TaskResponse
	for time.Now().Before(deadline) {
		resp, err := http.Get(server.URL + "/api/v1/tasks/" + taskID.String())
		if err != nil {
			t.Fatalf("GET task: %v", err)
		}
		var envelope struct {
			Data TaskResponse `json:"data"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
			t.Fatalf("decode task: %v", err)
		}
		resp.Body.Close()

		last = envelope.Data
		if ready(last) {
			return last
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("task did not reach expected state, last: %s", describeTask(last))
	return TaskResponse{}
}

func describeTask(task TaskResponse) string {
	return fmt.Sprintf("status=%s units=%d failure=%q", task.Status, task.UnitCount, task.FailureReason)
}
