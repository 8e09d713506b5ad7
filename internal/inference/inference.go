// Package inference — клиент внешнего generative backend'а.
//
// Ядро не знает, что стоит за backend'ом: вызов блокирующий,
// с таймаутом со стороны executor'а через context.
package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
)

// Request — запрос на генерацию.
type Request struct {
	// Model — имя модели.
	Model string `json:"model"`

	// SystemPrompt — системный промпт агента.
	SystemPrompt string `json:"system_prompt,omitempty"`

	// Input — входные данные задачи.
	Input map[string]any `json:"input"`

	// MaxTokens — лимит токенов ответа (0 — по умолчанию backend'а).
	MaxTokens int `json:"max_tokens,omitempty"`

	// Temperature — температура сэмплирования.
	Temperature float64 `json:"temperature,omitempty"`
}

// Response — ответ backend'а.
type Response struct {
	// Output — структурированный результат генерации.
	Output map[string]any `json:"output"`

	// TokensUsed — потрачено токенов.
	TokensUsed int `json:"tokens_used"`

	// Cost — стоимость вызова.
	Cost float64 `json:"cost"`
}

// Backend — внешний generative/inference collaborator.
//
// Вызов может длиться сколь угодно долго вплоть до таймаута context.
type Backend interface {
	Generate(ctx context.Context, req Request) (*Response, error)
}

// HTTPBackend — Backend поверх HTTP API.
type HTTPBackend struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewHTTPBackend создаёт HTTPBackend.
// Таймаута на клиенте нет — per-attempt таймаут задаёт executor через context.
func NewHTTPBackend(baseURL, apiKey string) *HTTPBackend {
	return &HTTPBackend{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{},
	}
}

// NewHTTPBackendFromEnv создаёт HTTPBackend из переменных окружения
// INFERENCE_URL и INFERENCE_API_KEY.
func NewHTTPBackendFromEnv() *HTTPBackend {
	url := os.Getenv("INFERENCE_URL")
	if url == "" {
		url = "http://localhost:9090"
	}
	return NewHTTPBackend(url, os.Getenv("INFERENCE_API_KEY"))
}

// Generate выполняет POST {baseURL}/v1/generate.
func (b *HTTPBackend) Generate(ctx context.Context, req Request) (*Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/v1/generate", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if b.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+b.apiKey)
	}

	resp, err := b.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("inference request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("inference backend returned %d: %s", resp.StatusCode, truncate(string(respBody), 200))
	}

	var out Response
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}

	return &out, nil
}

// truncate обрезает строку до указанной длины.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
