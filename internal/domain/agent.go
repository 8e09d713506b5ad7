package domain

import (
	"time"

	"github.com/google/uuid"
)

// AgentPriority — приоритет агента, определяет lane при enqueue.
//
// Решение принимается один раз при постановке в очередь
// и не пересматривается при retry.
type AgentPriority string

const (
	PriorityHigh   AgentPriority = "high"
	PriorityNormal AgentPriority = "normal"
)

// Agent — конфигурация агента. Читается ядром read-only;
// CRUD принадлежит внешнему слою.
type Agent struct {
	// ID — уникальный идентификатор агента.
	ID uuid.UUID `json:"id"`

	// TenantID — владеющий tenant.
	TenantID uuid.UUID `json:"tenant_id"`

	// Name — имя агента.
	Name string `json:"name"`

	// Model — модель inference backend'а.
	Model string `json:"model"`

	// SystemPrompt — системный промпт агента.
	SystemPrompt string `json:"system_prompt,omitempty"`

	// Priority — high → lane tasks.high, иначе tasks.default.
	Priority AgentPriority `json:"priority"`

	// MaxTokens — лимит токенов ответа.
	MaxTokens int `json:"max_tokens,omitempty"`

	// Temperature — температура сэмплирования.
	Temperature float64 `json:"temperature,omitempty"`

	// IsActive — можно ли запускать агента.
	IsActive bool `json:"is_active"`

	// CreatedAt — время создания.
	CreatedAt time.Time `json:"created_at"`
}

// ActivityRecord — запись аудита о завершении задачи.
//
// Пишется best-effort: ошибка записи не должна провалить задачу.
type ActivityRecord struct {
	ID          uuid.UUID      `json:"id"`
	TenantID    uuid.UUID      `json:"tenant_id"`
	UserID      *uuid.UUID     `json:"user_id,omitempty"`
	Action      string         `json:"action"`
	SubjectKind TaskKind       `json:"subject_kind"`
	SubjectID   uuid.UUID      `json:"subject_id"`
	Detail      map[string]any `json:"detail,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}
