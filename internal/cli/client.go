package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// --- Response types (дублируются из api/dto.go, CLI не импортирует internal/api) ---

// TaskResponse — задача из API.
type TaskResponse struct {
	ID            string         `json:"id"`
	Type          string         `json:"type"`
	Status        string         `json:"status"`
	Payload       map[string]any `json:"payload,omitempty"`
	UnitCount     int            `json:"unit_count"`
	Result        map[string]any `json:"result,omitempty"`
	FailureReason string         `json:"failure_reason,omitempty"`
	CreatedAt     string         `json:"created_at"`
	FinishedAt    string         `json:"finished_at,omitempty"`
}

// WorkUnitResponse — юнит работы из API.
type WorkUnitResponse struct {
	ID             string         `json:"id"`
	TaskID         string         `json:"task_id"`
	TaskType       string         `json:"task_type"`
	Ordinal        int            `json:"ordinal"`
	Status         string         `json:"status"`
	Payload        map[string]any `json:"payload,omitempty"`
	AssignedWeaver string         `json:"assigned_weaver,omitempty"`
	AssignedAt     string         `json:"assigned_at,omitempty"`
	Result         map[string]any `json:"result,omitempty"`
	Error          string         `json:"error,omitempty"`
	RetryCount     int            `json:"retry_count"`
	CreatedAt      string         `json:"created_at"`
}

// WeaverResponse — воркер из API.
type WeaverResponse struct {
	ID           string   `json:"id"`
	Address      string   `json:"address,omitempty"`
	Capabilities []string `json:"capabilities"`
	Live         bool     `json:"live"`
	RegisteredAt string   `json:"registered_at"`
	LastSeen     string   `json:"last_seen"`
	CurrentUnit  string   `json:"current_unit,omitempty"`
}

// ScheduleResponse — расписание из API.
type ScheduleResponse struct {
	ID           string         `json:"id"`
	Name         string         `json:"name,omitempty"`
	TaskType     string         `json:"task_type"`
	Payload      map[string]any `json:"payload,omitempty"`
	CronExpr     string         `json:"cron_expr,omitempty"`
	IntervalSec  int            `json:"interval_sec,omitempty"`
	Timezone     string         `json:"timezone"`
	Enabled      bool           `json:"enabled"`
	NextDueAt    string         `json:"next_due_at,omitempty"`
	LastSubmitAt string         `json:"last_submit_at,omitempty"`
	LastTaskID   string         `json:"last_task_id,omitempty"`
	CreatedAt    string         `json:"created_at"`
	UpdatedAt    string         `json:"updated_at"`
}

// --- Request types ---

// SubmitTaskRequest — подача задачи.
type SubmitTaskRequest struct {
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload,omitempty"`
}

// CreateScheduleRequest — создание расписания.
type CreateScheduleRequest struct {
	Name        string         `json:"name"`
	TaskType    string         `json:"task_type"`
	Payload     map[string]any `json:"payload,omitempty"`
	CronExpr    string         `json:"cron_expr,omitempty"`
	IntervalSec int            `json:"interval_sec,omitempty"`
	Timezone    string         `json:"timezone,omitempty"`
	Enabled     bool           `json:"enabled"`
}

// UpdateScheduleRequest — обновление расписания.
type UpdateScheduleRequest struct {
	Name        *string         `json:"name,omitempty"`
	TaskType    *string         `json:"task_type,omitempty"`
	CronExpr    *string         `json:"cron_expr,omitempty"`
	IntervalSec *int            `json:"interval_sec,omitempty"`
	Timezone    *string         `json:"timezone,omitempty"`
	Payload     *map[string]any `json:"payload,omitempty"`
}

// --- API response wrappers ---

type dataResponse struct {
	Data json.RawMessage `json:"data"`
}

type listResponse struct {
	Data  json.RawMessage `json:"data"`
	Total int             `json:"total"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// --- Client ---

// Client — HTTP-клиент для NeuroWeave API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient создаёт клиент для API.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// --- Tasks ---

// ListTasks возвращает все задачи.
func (c *Client) ListTasks() ([]TaskResponse, error) {
	var tasks []TaskResponse
	err := c.list("/api/v1/tasks", &tasks)
	return tasks, err
}

// SubmitTask подаёт новую задачу.
func (c *Client) SubmitTask(req SubmitTaskRequest) (*TaskResponse, error) {
	var task TaskResponse
	err := c.post("/api/v1/tasks", req, &task)
	return &task, err
}

// GetTask возвращает задачу по ID.
func (c *Client) GetTask(id string) (*TaskResponse, error) {
	var task TaskResponse
	err := c.get("/api/v1/tasks/"+id, &task)
	return &task, err
}

// ListTaskUnits возвращает юниты задачи.
func (c *Client) ListTaskUnits(taskID string) ([]WorkUnitResponse, error) {
	var units []WorkUnitResponse
	err := c.list("/api/v1/tasks/"+taskID+"/units", &units)
	return units, err
}

// --- Weavers ---

// ListWeavers возвращает всех воркеров.
func (c *Client) ListWeavers() ([]WeaverResponse, error) {
	var weavers []WeaverResponse
	err := c.list("/api/v1/weavers", &weavers)
	return weavers, err
}

// GetWeaver возвращает воркера по ID.
func (c *Client) GetWeaver(id string) (*WeaverResponse, error) {
	var weaver WeaverResponse
	err := c.get("/api/v1/weavers/"+id, &weaver)
	return &weaver, err
}

// --- Schedules ---

// ListSchedules возвращает все расписания.
func (c *Client) ListSchedules() ([]ScheduleResponse, error) {
	var schedules []ScheduleResponse
	err := c.list("/api/v1/schedules", &schedules)
	return schedules, err
}

// CreateSchedule создаёт расписание.
func (c *Client) CreateSchedule(req CreateScheduleRequest) (*ScheduleResponse, error) {
	var schedule ScheduleResponse
	err := c.post("/api/v1/schedules", req, &schedule)
	return &schedule, err
}

// GetSchedule возвращает расписание по ID.
func (c *Client) GetSchedule(id string) (*ScheduleResponse, error) {
	var schedule ScheduleResponse
	err := c.get("/api/v1/schedules/"+id, &schedule)
	return &schedule, err
}

// UpdateSchedule обновляет расписание.
func (c *Client) UpdateSchedule(id string, req UpdateScheduleRequest) (*ScheduleResponse, error) {
	var schedule ScheduleResponse
	err := c.put("/api/v1/schedules/"+id, req, &schedule)
	return &schedule, err
}

// DeleteSchedule удаляет расписание.
func (c *Client) DeleteSchedule(id string) error {
	return c.delete("/api/v1/schedules/" + id)
}

// EnableSchedule включает расписание.
func (c *Client) EnableSchedule(id string) (*ScheduleResponse, error) {
	var schedule ScheduleResponse
	body := map[string]bool{"enabled": true}
	err := c.put("/api/v1/schedules/"+id+"/enabled", body, &schedule)
	return &schedule, err
}

// DisableSchedule выключает расписание.
func (c *Client) DisableSchedule(id string) (*ScheduleResponse, error) {
	var schedule ScheduleResponse
	body := map[string]bool{"enabled": false}
	err := c.put("/api/v1/schedules/"+id+"/enabled", body, &schedule)
	return &schedule, err
}

// --- HTTP helpers ---

func (c *Client) get(path string, result any) error {
	return c.doData(http.MethodGet, path, nil, result)
}

func (c *Client) post(path string, body any, result any) error {
	return c.doData(http.MethodPost, path, body, result)
}

func (c *Client) put(path string, body any, result any) error {
	return c.doData(http.MethodPut, path, body, result)
}

func (c *Client) delete(path string) error {
	resp, err := c.do(http.MethodDelete, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return c.checkError(resp)
}

func (c *Client) list(path string, result any) error {
	resp, err := c.do(http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	var lr listResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return json.Unmarshal(lr.Data, result)
}

func (c *Client) doData(method, path string, body any, result any) error {
	resp, err := c.do(method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	// 204 No Content
	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	var dr dataResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if result != nil {
		return json.Unmarshal(dr.Data, result)
	}
	return nil
}

func (c *Client) do(method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.httpClient.Do(req)
}

func (c *Client) checkError(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}

	var er errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		return fmt.Errorf("API error: HTTP %d", resp.StatusCode)
	}

	return fmt.Errorf("%s: %s", er.Error.Code, er.Error.Message)
}
