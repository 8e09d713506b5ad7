package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/avetta/conveyor/internal/domain"
	"github.com/avetta/conveyor/internal/inference"
)

// NodeHandler — обработчик одного типа узла.
//
// Контракт: (node, currentData) → partial_output.
// currentData read-only для handler'а; merge делает Machine.
type NodeHandler interface {
	Handle(ctx context.Context, node domain.Node, data map[string]any) (map[string]any, error)
}

// DefaultHandlers возвращает handlers для четырёх штатных типов узлов:
// agent, condition, transform, api_call.
func DefaultHandlers(backend inference.Backend) map[string]NodeHandler {
	return map[string]NodeHandler{
		"agent":     &AgentNode{Backend: backend},
		"condition": &ConditionNode{},
		"transform": &TransformNode{},
		"api_call":  &APICallNode{},
	}
}

// AgentNode — узел типа "agent": вызов inference backend'а.
//
// Config:
//   - model (string): модель backend'а (обязательно)
//   - system_prompt (string): системный промпт
//   - max_tokens (number), temperature (number)
//
// Outputs: выход backend'а + tokens_used, cost.
type AgentNode struct {
	Backend inference.Backend
}

// Handle вызывает backend с currentData в качестве входа.
func (n *AgentNode) Handle(ctx context.Context, node domain.Node, data map[string]any) (map[string]any, error) {
	req := inference.Request{
		Model:        getString(node.Config, "model", ""),
		SystemPrompt: getString(node.Config, "system_prompt", ""),
		Input:        data,
		MaxTokens:    getInt(node.Config, "max_tokens", 0),
		Temperature:  getFloat(node.Config, "temperature", 0),
	}

	resp, err := n.Backend.Generate(ctx, req)
	if err != nil {
		return nil, err
	}

	output := make(map[string]any, len(resp.Output)+2)
	for k, v := range resp.Output {
		output[k] = v
	}
	output["tokens_used"] = resp.TokensUsed
	output["cost"] = resp.Cost

	return output, nil
}

// ConditionNode — узел типа "condition": вычисляет предикат над currentData.
//
// Config:
//   - field (string): ключ в currentData (обязательно)
//   - operator (string): equals | not_equals | contains | exists (default: exists)
//   - value (any): операнд сравнения
//
// Outputs:
//   - condition_result (bool)
type ConditionNode struct{}

// Handle вычисляет условие.
func (n *ConditionNode) Handle(_ context.Context, node domain.Node, data map[string]any) (map[string]any, error) {
	field := getString(node.Config, "field", "")
	if field == "" {
		return nil, fmt.Errorf("%w: field is required", ErrCondition)
	}

	operator := getString(node.Config, "operator", "exists")
	actual, exists := data[field]

	var result bool
	switch operator {
	case "exists":
		result = exists
	case "equals":
		result = exists && equalValues(actual, node.Config["value"])
	case "not_equals":
		result = !exists || !equalValues(actual, node.Config["value"])
	case "contains":
		s, ok := actual.(string)
		sub, okSub := node.Config["value"].(string)
		result = exists && ok && okSub && strings.Contains(s, sub)
	default:
		return nil, fmt.Errorf("%w: unknown operator %q", ErrCondition, operator)
	}

	return map[string]any{"condition_result": result}, nil
}

// equalValues сравнивает значения через JSON-представление,
// чтобы не различать int/float64 после (де)сериализации.
func equalValues(a, b any) bool {
	aj, errA := json.Marshal(a)
	bj, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return false
	}
	return bytes.Equal(aj, bj)
}

// TransformNode — узел типа "transform": переименование и подстановка ключей.
//
// Config:
//   - mappings (map[string]string): target_key → source_key из currentData.
//     Отсутствующий source пропускается.
//   - static (map[string]any): значения, подставляемые как есть.
//
// Outputs: только вычисленные ключи (merge в currentData делает Machine).
type TransformNode struct{}

// Handle применяет mappings и static.
func (n *TransformNode) Handle(_ context.Context, node domain.Node, data map[string]any) (map[string]any, error) {
	output := make(map[string]any)

	if mappings, ok := node.Config["mappings"].(map[string]any); ok {
		for target, src := range mappings {
			srcKey, ok := src.(string)
			if !ok {
				continue
			}
			if val, exists := data[srcKey]; exists {
				output[target] = val
			}
		}
	}

	if static, ok := node.Config["static"].(map[string]any); ok {
		for k, v := range static {
			output[k] = v
		}
	}

	return output, nil
}

const defaultAPICallTimeout = 30 * time.Second

// APICallNode — узел типа "api_call": HTTP-запрос на внешний URL.
//
// Config:
//   - method (string): GET, POST, PUT, DELETE. Default: GET
//   - url (string): обязательно
//   - headers (map[string]any): заголовки запроса
//   - body (any): тело запроса (сериализуется в JSON)
//   - timeout_sec (number): таймаут запроса. Default: 30
//
// Outputs:
//   - status_code (int), headers (map[string]string), body (any)
//
// HTTP >= 400 — ошибка узла: workflow прерывается.
type APICallNode struct {
	// Client — опциональный http.Client (для тестов). Nil — дефолтный.
	Client *http.Client
}

// Handle выполняет HTTP-запрос.
func (n *APICallNode) Handle(ctx context.Context, node domain.Node, _ map[string]any) (map[string]any, error) {
	url := getString(node.Config, "url", "")
	if url == "" {
		return nil, fmt.Errorf("%w: url is required", ErrAPICall)
	}
	method := getString(node.Config, "method", http.MethodGet)

	timeout := defaultAPICallTimeout
	if sec := getFloat(node.Config, "timeout_sec", 0); sec > 0 {
		timeout = time.Duration(sec * float64(time.Second))
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var bodyReader io.Reader
	if body, ok := node.Config["body"]; ok && body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("%w: marshal body: %v", ErrAPICall, err)
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %v", ErrAPICall, err)
	}

	if headers, ok := node.Config["headers"].(map[string]any); ok {
		for key, val := range headers {
			if s, ok := val.(string); ok {
				req.Header.Set(key, s)
			}
		}
	}
	if bodyReader != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	client := n.Client
	if client == nil {
		client = &http.Client{}
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAPICall, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrAPICall, err)
	}

	respHeaders := make(map[string]string, len(resp.Header))
	for key := range resp.Header {
		respHeaders[key] = resp.Header.Get(key)
	}

	// Тело ответа: пробуем JSON, иначе строка
	var parsedBody any
	if err := json.Unmarshal(respBody, &parsedBody); err != nil {
		parsedBody = string(respBody)
	}

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("%w: HTTP %d: %s", ErrAPICall, resp.StatusCode, truncate(string(respBody), 200))
	}

	return map[string]any{
		"status_code": resp.StatusCode,
		"headers":     respHeaders,
		"body":        parsedBody,
	}, nil
}

// --- Helpers для извлечения значений из config ---

func getString(m map[string]any, key, defaultVal string) string {
	if val, ok := m[key]; ok {
		if s, ok := val.(string); ok {
			return s
		}
	}
	return defaultVal
}

func getInt(m map[string]any, key string, defaultVal int) int {
	switch v := m[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return defaultVal
}

func getFloat(m map[string]any, key string, defaultVal float64) float64 {
	switch v := m[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return defaultVal
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
