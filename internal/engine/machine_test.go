package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/avetta/conveyor/internal/domain"
)

// fakeHandler — handler с фиксированным выходом или ошибкой.
type fakeHandler struct {
	output map[string]any
	err    error
	calls  int
}

func (h *fakeHandler) Handle(_ context.Context, _ domain.Node, _ map[string]any) (map[string]any, error) {
	h.calls++
	if h.err != nil {
		return nil, h.err
	}
	return h.output, nil
}

// fakeProgress собирает снимки current_step при каждом сохранении.
type fakeProgress struct {
	saves int
	steps []int
}

func (p *fakeProgress) SaveProgress(_ context.Context, exec *domain.WorkflowExecution) error {
	p.saves++
	p.steps = append(p.steps, exec.CurrentStep)
	return nil
}

func TestMachine_Run_Success(t *testing.T) {
	first := &fakeHandler{output: map[string]any{"a": 1, "shared": "first"}}
	second := &fakeHandler{output: map[string]any{"b": 2, "shared": "second"}}

	progress := &fakeProgress{}
	m := NewMachine(map[string]NodeHandler{
		"first":  first,
		"second": second,
	}, progress)

	exec := &domain.WorkflowExecution{InputData: map[string]any{"input": "x"}}
	wf := &domain.Workflow{Nodes: []domain.Node{
		{ID: "n1", Type: "first"},
		{ID: "n2", Type: "second"},
	}}

	out, err := m.Run(context.Background(), exec, wf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Merge: входные данные + выходы узлов, поздние ключи перекрывают ранние
	if out["input"] != "x" {
		t.Errorf("input data lost: %v", out)
	}
	if out["a"] != 1 || out["b"] != 2 {
		t.Errorf("node outputs missing: %v", out)
	}
	if out["shared"] != "second" {
		t.Errorf("expected later node to overwrite 'shared', got %v", out["shared"])
	}

	if exec.CurrentStep != 2 {
		t.Errorf("expected CurrentStep=2, got %d", exec.CurrentStep)
	}
	if len(exec.ExecutionLog) != 2 {
		t.Fatalf("expected 2 log entries, got %d", len(exec.ExecutionLog))
	}
	for i, entry := range exec.ExecutionLog {
		if entry.Status != domain.StepStatusCompleted {
			t.Errorf("entry %d: expected COMPLETED, got %s", i, entry.Status)
		}
	}

	// Два сохранения на узел: PROCESSING и COMPLETED
	if progress.saves != 4 {
		t.Errorf("expected 4 progress saves, got %d", progress.saves)
	}
}

func TestMachine_Run_StopsOnFailure(t *testing.T) {
	first := &fakeHandler{output: map[string]any{"a": 1}}
	failing := &fakeHandler{err: errors.New("boom")}
	never := &fakeHandler{output: map[string]any{"c": 3}}

	m := NewMachine(map[string]NodeHandler{
		"ok":    first,
		"fail":  failing,
		"after": never,
	}, &fakeProgress{})

	exec := &domain.WorkflowExecution{}
	wf := &domain.Workflow{Nodes: []domain.Node{
		{ID: "n1", Type: "ok"},
		{ID: "n2", Type: "fail"},
		{ID: "n3", Type: "after"},
	}}

	_, err := m.Run(context.Background(), exec, wf)
	if !errors.Is(err, ErrNodeFailed) {
		t.Fatalf("expected ErrNodeFailed, got %v", err)
	}

	// Узел после упавшего не выполняется
	if never.calls != 0 {
		t.Errorf("node after failure should not run, calls=%d", never.calls)
	}

	// CurrentStep остановился на упавшем узле
	if exec.CurrentStep != 2 {
		t.Errorf("expected CurrentStep=2, got %d", exec.CurrentStep)
	}

	// Лог: первый COMPLETED, второй FAILED с текстом ошибки, третьего нет
	if len(exec.ExecutionLog) != 2 {
		t.Fatalf("expected 2 log entries, got %d", len(exec.ExecutionLog))
	}
	if exec.ExecutionLog[0].Status != domain.StepStatusCompleted {
		t.Errorf("entry 0: expected COMPLETED, got %s", exec.ExecutionLog[0].Status)
	}
	last := exec.ExecutionLog[1]
	if last.Status != domain.StepStatusFailed {
		t.Errorf("entry 1: expected FAILED, got %s", last.Status)
	}
	if last.Error == "" {
		t.Error("failed entry should carry error text")
	}
}

func TestMachine_Run_UnknownNodeType(t *testing.T) {
	m := NewMachine(map[string]NodeHandler{}, &fakeProgress{})

	exec := &domain.WorkflowExecution{}
	wf := &domain.Workflow{Nodes: []domain.Node{
		{ID: "n1", Type: "no_such_type"},
	}}

	_, err := m.Run(context.Background(), exec, wf)
	if !errors.Is(err, ErrUnknownNodeType) {
		t.Fatalf("expected ErrUnknownNodeType, got %v", err)
	}

	// Запись лога создана и помечена FAILED
	if len(exec.ExecutionLog) != 1 {
		t.Fatalf("expected 1 log entry, got %d", len(exec.ExecutionLog))
	}
	if exec.ExecutionLog[0].Status != domain.StepStatusFailed {
		t.Errorf("expected FAILED, got %s", exec.ExecutionLog[0].Status)
	}
}

func TestMachine_Run_EmptyWorkflow(t *testing.T) {
	m := NewMachine(map[string]NodeHandler{}, nil)

	exec := &domain.WorkflowExecution{}
	_, err := m.Run(context.Background(), exec, &domain.Workflow{})
	if !errors.Is(err, ErrEmptyWorkflow) {
		t.Fatalf("expected ErrEmptyWorkflow, got %v", err)
	}
	if exec.CurrentStep != 0 {
		t.Errorf("empty workflow should not advance steps, got %d", exec.CurrentStep)
	}
}

func TestMachine_Run_NilProgress(t *testing.T) {
	// Без Progress машина работает (прогресс просто не персистится)
	m := NewMachine(map[string]NodeHandler{
		"ok": &fakeHandler{output: map[string]any{"a": 1}},
	}, nil)

	exec := &domain.WorkflowExecution{}
	wf := &domain.Workflow{Nodes: []domain.Node{{ID: "n1", Type: "ok"}}}

	out, err := m.Run(context.Background(), exec, wf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out["a"] != 1 {
		t.Errorf("unexpected output: %v", out)
	}
}
