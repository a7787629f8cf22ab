package weaver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shaiso/Neuroweave/internal/domain"
	"github.com/shaiso/Neuroweave/internal/tasktype"
)

const defaultInferenceTimeout = 60 * time.Second

// InferenceExecutor — executor юнитов типа "inference".
//
// Прогоняет chunk через модельный сервис. Если Endpoint не задан,
// работает локальная заглушка: детерминированный "инференс" без
// внешних вызовов, для разработки и smoke-проверок.
//
// Payload юнита:
//   - model (string): имя модели (обязательно)
//   - chunk ([]any): элементы входных данных (обязательно)
//
// Output:
//   - model (string): имя модели
//   - outputs ([]any): результат по каждому элементу chunk
type InferenceExecutor struct {
	// Endpoint — URL модельного сервиса. Пустой — локальная заглушка.
	Endpoint string

	// Client — HTTP-клиент для обращений к сервису.
	Client *http.Client
}

// NewInferenceExecutor создаёт executor инференса.
func NewInferenceExecutor(endpoint string) *InferenceExecutor {
	return &InferenceExecutor{
		Endpoint: endpoint,
		Client:   &http.Client{Timeout: defaultInferenceTimeout},
	}
}

// Execute выполняет инференс chunk'а.
func (e *InferenceExecutor) Execute(ctx context.Context, unit *domain.WorkUnit) (*ExecutionResult, error) {
	model := tasktype.GetPayloadString(unit.Payload, "model")
	if model == "" {
		return nil, fmt.Errorf("%w: inference: model required", tasktype.ErrInvalidPayload)
	}

	chunk := tasktype.GetPayloadSlice(unit.Payload, "chunk")
	if len(chunk) == 0 {
		return nil, fmt.Errorf("%w: inference: chunk required", tasktype.ErrInvalidPayload)
	}

	if e.Endpoint == "" {
		return e.executeLocal(model, chunk), nil
	}
	return e.executeRemote(ctx, model, chunk)
}

// executeLocal — заглушка инференса: один детерминированный результат
// на элемент chunk.
func (e *InferenceExecutor) executeLocal(model string, chunk []any) *ExecutionResult {
	outputs := make([]any, 0, len(chunk))
	for _, item := range chunk {
		outputs = append(outputs, fmt.Sprintf("%s(%v)", model, item))
	}
	return &ExecutionResult{
		Output: map[string]any{
			"model":   model,
			"outputs": outputs,
		},
	}
}

// executeRemote отправляет chunk модельному сервису.
//
// Протокол: POST Endpoint {"model": ..., "inputs": [...]} →
// 200 {"outputs": [...]}.
func (e *InferenceExecutor) executeRemote(ctx context.Context, model string, chunk []any) (*ExecutionResult, error) {
	reqBody, err := json.Marshal(map[string]any{
		"model":  model,
		"inputs": chunk,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: marshal request: %v", ErrModelService, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.Endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %v", ErrModelService, err)
	}
	req.Header.Set("Content-Type", "application/json")

	client := e.Client
	if client == nil {
		client = &http.Client{Timeout: defaultInferenceTimeout}
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModelService, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrModelService, err)
	}

	// Не-200 — логическая ошибка юнита, решение о retry за оркестратором
	if resp.StatusCode != http.StatusOK {
		return &ExecutionResult{
			Error: fmt.Sprintf("model service: HTTP %d: %s", resp.StatusCode, truncate(string(respBody), 200)),
		}, nil
	}

	var parsed struct {
		Outputs []any `json:"outputs"`
	}
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrModelService, err)
	}

	return &ExecutionResult{
		Output: map[string]any{
			"model":   model,
			"outputs": parsed.Outputs,
		},
	}, nil
}

// truncate обрезает строку до указанной длины.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
