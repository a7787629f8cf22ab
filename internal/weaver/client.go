package weaver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Neuroweave/internal/domain"
)

const defaultClientTimeout = 30 * time.Second

// Статусы отчёта о юните (протокол API).
const (
	reportStatusCompleted = "completed"
	reportStatusFailed    = "failed"
)

// Код ошибки API для отклонённого отчёта.
const codeAssignmentMismatch = "ASSIGNMENT_MISMATCH"

// --- Wire types (дублируются из api/dto.go, воркер не импортирует internal/api) ---

// registerRequest — тело POST /api/v1/weavers.
type registerRequest struct {
	Address      string   `json:"address,omitempty"`
	Capabilities []string `json:"capabilities"`
}

// weaverResponse — воркер из API. Клиенту нужен только ID.
type weaverResponse struct {
	ID uuid.UUID `json:"id"`
}

// pollRequest — тело POST /api/v1/weavers/{id}/poll.
type pollRequest struct {
	Capabilities []string `json:"capabilities"`
}

// unitResponse — юнит из API.
type unitResponse struct {
	ID         uuid.UUID      `json:"id"`
	TaskID     uuid.UUID      `json:"task_id"`
	TaskType   string         `json:"task_type"`
	Ordinal    int            `json:"ordinal"`
	Status     string         `json:"status"`
	Payload    map[string]any `json:"payload,omitempty"`
	RetryCount int            `json:"retry_count"`
}

// toDomain конвертирует wire-представление юнита в доменное.
func (u *unitResponse) toDomain() *domain.WorkUnit {
	return &domain.WorkUnit{
		ID:         u.ID,
		TaskID:     u.TaskID,
		TaskType:   u.TaskType,
		Ordinal:    u.Ordinal,
		Status:     domain.UnitStatus(u.Status),
		Payload:    u.Payload,
		RetryCount: u.RetryCount,
	}
}

// pollResponse — ответ poll: юнит либо null + подсказка backoff.
type pollResponse struct {
	WorkUnit  *unitResponse `json:"work_unit"`
	BackoffMs int64         `json:"backoff_ms"`
}

// reportRequest — тело POST /api/v1/units/{id}/result.
type reportRequest struct {
	WeaverID uuid.UUID      `json:"weaver_id"`
	Status   string         `json:"status"`
	Output   map[string]any `json:"output,omitempty"`
	Error    string         `json:"error,omitempty"`
}

// --- API response wrappers ---

type dataResponse struct {
	Data json.RawMessage `json:"data"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// --- Client ---

// Client — HTTP-клиент воркера для API оркестратора.
//
// Значимые для цикла воркера ответы транслируются в sentinel-ошибки:
// 404 → ErrNotRegistered, ASSIGNMENT_MISMATCH → ErrAssignmentMismatch.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient создаёт клиент для API оркестратора.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: defaultClientTimeout,
		},
	}
}

// Register регистрирует воркера и возвращает присвоенный ID.
func (c *Client) Register(ctx context.Context, address string, capabilities []string) (uuid.UUID, error) {
	body := registerRequest{Address: address, Capabilities: capabilities}

	var weaver weaverResponse
	if err := c.doData(ctx, http.MethodPost, "/api/v1/weavers", body, &weaver); err != nil {
		return uuid.Nil, fmt.Errorf("register: %w", err)
	}
	return weaver.ID, nil
}

// Heartbeat подтверждает живость воркера.
func (c *Client) Heartbeat(ctx context.Context, weaverID uuid.UUID) error {
	path := "/api/v1/weavers/" + weaverID.String() + "/heartbeat"
	if err := c.doData(ctx, http.MethodPost, path, struct{}{}, nil); err != nil {
		return fmt.Errorf("heartbeat: %w", err)
	}
	return nil
}

// Poll запрашивает юнит работы.
//
// (nil, backoff, nil) — подходящей работы нет, backoff подсказывает
// паузу до следующего poll.
func (c *Client) Poll(ctx context.Context, weaverID uuid.UUID, capabilities []string) (*domain.WorkUnit, time.Duration, error) {
	path := "/api/v1/weavers/" + weaverID.String() + "/poll"
	body := pollRequest{Capabilities: capabilities}

	var pr pollResponse
	if err := c.doData(ctx, http.MethodPost, path, body, &pr); err != nil {
		return nil, 0, fmt.Errorf("poll: %w", err)
	}

	backoff := time.Duration(pr.BackoffMs) * time.Millisecond
	if pr.WorkUnit == nil {
		return nil, backoff, nil
	}
	return pr.WorkUnit.toDomain(), backoff, nil
}

// ReportResult отправляет результат выполнения юнита.
func (c *Client) ReportResult(ctx context.Context, unitID, weaverID uuid.UUID, success bool, output map[string]any, errMsg string) error {
	status := reportStatusFailed
	if success {
		status = reportStatusCompleted
	}
	body := reportRequest{
		WeaverID: weaverID,
		Status:   status,
		Output:   output,
		Error:    errMsg,
	}

	path := "/api/v1/units/" + unitID.String() + "/result"
	if err := c.doData(ctx, http.MethodPost, path, body, nil); err != nil {
		return fmt.Errorf("report result: %w", err)
	}
	return nil
}

// --- HTTP helpers ---

func (c *Client) doData(ctx context.Context, method, path string, body any, result any) error {
	resp, err := c.do(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	if result == nil || resp.StatusCode == http.StatusNoContent {
		// Дочитываем тело, чтобы соединение вернулось в пул
		io.Copy(io.Discard, resp.Body)
		return nil
	}

	var dr dataResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return json.Unmarshal(dr.Data, result)
}

func (c *Client) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
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
		return fmt.Errorf("%w: HTTP %d", ErrBadStatus, resp.StatusCode)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		// 404 любого ресурса означает, что оркестратор потерял состояние
		// (purge, рестарт c in-memory store). Лечение одно: регистрация заново.
		return fmt.Errorf("%w: %s", ErrNotRegistered, er.Error.Message)
	case er.Error.Code == codeAssignmentMismatch:
		return fmt.Errorf("%w: %s", ErrAssignmentMismatch, er.Error.Message)
	}

	return fmt.Errorf("%s: %s", er.Error.Code, er.Error.Message)
}
