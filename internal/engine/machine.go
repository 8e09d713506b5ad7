// Package engine — последовательная step machine для workflow executions.
//
// Machine идёт строго по списку узлов определения (edges хранятся,
// но на порядок обхода не влияют), выполняет каждый узел через handler
// его типа и накапливает currentData слиянием выходов узлов.
// Падение любого узла прерывает весь workflow — per-node retry нет,
// повтором занимается внешний retry-слой executor'а.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/avetta/conveyor/internal/domain"
)

// Progress — персистенция прогресса выполнения.
//
// Вызывается после каждого изменения current_step / execution_log,
// чтобы прогресс был наблюдаем mid-run. Реализуется репозиторием.
type Progress interface {
	SaveProgress(ctx context.Context, exec *domain.WorkflowExecution) error
}

// Machine — интерпретатор workflow.
type Machine struct {
	handlers map[string]NodeHandler
	progress Progress
}

// NewMachine создаёт Machine с заданным набором handler'ов.
// Обычно handlers приходит из DefaultHandlers().
func NewMachine(handlers map[string]NodeHandler, progress Progress) *Machine {
	return &Machine{
		handlers: handlers,
		progress: progress,
	}
}

// Run выполняет workflow от начала до конца или до первого падения.
//
// Для каждого узла по порядку:
//  1. Инкремент CurrentStep, сразу персистится.
//  2. Запись лога со статусом PROCESSING.
//  3. Dispatch по типу узла. Неизвестный тип — фатально для всего workflow.
//  4. Успех — merge выхода в currentData (поздние ключи перекрывают ранние),
//     запись помечается COMPLETED.
//  5. Ошибка — запись помечается FAILED, дальнейшие узлы не выполняются.
//
// Возвращает накопленный currentData при полном успехе.
func (m *Machine) Run(ctx context.Context, exec *domain.WorkflowExecution, wf *domain.Workflow) (map[string]any, error) {
	if len(wf.Nodes) == 0 {
		return nil, ErrEmptyWorkflow
	}

	current := make(map[string]any, len(exec.InputData))
	for k, v := range exec.InputData {
		current[k] = v
	}

	for i := range wf.Nodes {
		node := wf.Nodes[i]

		// 1. Продвигаем current_step и сразу персистим
		exec.CurrentStep++
		entry := domain.StepLogEntry{
			Step:      exec.CurrentStep,
			NodeID:    node.ID,
			NodeType:  node.Type,
			Timestamp: time.Now(),
			Status:    domain.StepStatusProcessing,
		}
		exec.ExecutionLog = append(exec.ExecutionLog, entry)
		if err := m.saveProgress(ctx, exec); err != nil {
			return nil, err
		}

		// 2. Находим handler
		handler, ok := m.handlers[node.Type]
		if !ok {
			err := fmt.Errorf("%w: %s (node %s)", ErrUnknownNodeType, node.Type, node.ID)
			m.failStep(ctx, exec, err)
			return nil, err
		}

		// 3. Выполняем узел
		output, err := handler.Handle(ctx, node, current)
		if err != nil {
			wrapped := fmt.Errorf("%w: node %s (%s): %v", ErrNodeFailed, node.ID, node.Type, err)
			m.failStep(ctx, exec, wrapped)
			return nil, wrapped
		}

		// 4. Merge выхода узла в currentData
		for k, v := range output {
			current[k] = v
		}

		last := &exec.ExecutionLog[len(exec.ExecutionLog)-1]
		last.Status = domain.StepStatusCompleted
		last.Output = output
		if err := m.saveProgress(ctx, exec); err != nil {
			return nil, err
		}
	}

	return current, nil
}

// failStep помечает последнюю запись лога как FAILED и персистит.
// Ошибка персистенции здесь уже ничего не меняет — workflow всё равно падает.
func (m *Machine) failStep(ctx context.Context, exec *domain.WorkflowExecution, cause error) {
	last := &exec.ExecutionLog[len(exec.ExecutionLog)-1]
	last.Status = domain.StepStatusFailed
	last.Error = cause.Error()
	_ = m.saveProgress(ctx, exec)
}

func (m *Machine) saveProgress(ctx context.Context, exec *domain.WorkflowExecution) error {
	if m.progress == nil {
		return nil
	}
	if err := m.progress.SaveProgress(ctx, exec); err != nil {
		return fmt.Errorf("save progress: %w", err)
	}
	return nil
}
