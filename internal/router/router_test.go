package router

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/avetta/conveyor/internal/domain"
	"github.com/avetta/conveyor/internal/mq"
)

type fakeExecutionCreator struct {
	created []*domain.Execution
	err     error
}

func (f *fakeExecutionCreator) Create(_ context.Context, exec *domain.Execution) error {
	if f.err != nil {
		return f.err
	}
	f.created = append(f.created, exec)
	return nil
}

type fakeDeliveryCreator struct {
	created []*domain.Delivery
}

func (f *fakeDeliveryCreator) Create(_ context.Context, d *domain.Delivery) error {
	f.created = append(f.created, d)
	return nil
}

type fakeNotificationCreator struct {
	created []*domain.Notification
}

func (f *fakeNotificationCreator) Create(_ context.Context, n *domain.Notification) error {
	f.created = append(f.created, n)
	return nil
}

type fakeAgentReader struct {
	agent *domain.Agent
	err   error
}

func (f *fakeAgentReader) GetByID(_ context.Context, _ uuid.UUID) (*domain.Agent, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.agent, nil
}

type publishedTask struct {
	lane    mq.Lane
	payload mq.TaskEnqueuedPayload
}

type fakeTaskPublisher struct {
	published []publishedTask
	err       error
}

func (f *fakeTaskPublisher) PublishTask(_ context.Context, lane mq.Lane, payload mq.TaskEnqueuedPayload) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, publishedTask{lane: lane, payload: payload})
	return nil
}

func TestRouter_EnqueueExecution_LaneByPriority(t *testing.T) {
	tests := []struct {
		priority domain.AgentPriority
		want     mq.Lane
	}{
		{domain.PriorityHigh, mq.LaneHigh},
		{domain.PriorityNormal, mq.LaneDefault},
	}

	for _, tt := range tests {
		creator := &fakeExecutionCreator{}
		pub := &fakeTaskPublisher{}
		r := New(Config{
			Executions: creator,
			Agents:     &fakeAgentReader{agent: &domain.Agent{ID: uuid.New(), Priority: tt.priority, IsActive: true}},
			Publisher:  pub,
		})

		exec := &domain.Execution{TenantID: uuid.New(), AgentID: uuid.New()}
		id, err := r.EnqueueExecution(context.Background(), exec)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", tt.priority, err)
		}

		if id == uuid.Nil {
			t.Errorf("%s: expected assigned id", tt.priority)
		}
		if exec.Status != domain.TaskStatusPending || exec.Attempt != 0 {
			t.Errorf("%s: expected fresh PENDING record, got %s attempt=%d", tt.priority, exec.Status, exec.Attempt)
		}

		// Запись создана до публикации
		if len(creator.created) != 1 {
			t.Fatalf("%s: expected record created, got %d", tt.priority, len(creator.created))
		}
		if len(pub.published) != 1 {
			t.Fatalf("%s: expected task published, got %d", tt.priority, len(pub.published))
		}
		if pub.published[0].lane != tt.want {
			t.Errorf("%s: expected lane %s, got %s", tt.priority, tt.want, pub.published[0].lane)
		}
		if pub.published[0].payload.Kind != domain.KindAgentExecution || pub.published[0].payload.TaskID != id {
			t.Errorf("%s: wrong payload: %+v", tt.priority, pub.published[0].payload)
		}
	}
}

func TestRouter_EnqueueExecution_AgentLookupFails(t *testing.T) {
	creator := &fakeExecutionCreator{}
	r := New(Config{
		Executions: creator,
		Agents:     &fakeAgentReader{err: errors.New("db down")},
	})

	_, err := r.EnqueueExecution(context.Background(), &domain.Execution{AgentID: uuid.New()})
	if err == nil {
		t.Fatal("expected error when agent lookup fails")
	}
	// Без lane нет и записи
	if len(creator.created) != 0 {
		t.Errorf("record must not be created without routing decision, got %d", len(creator.created))
	}
}

func TestRouter_PublishFailureDoesNotFailEnqueue(t *testing.T) {
	creator := &fakeExecutionCreator{}
	r := New(Config{
		Executions: creator,
		Agents:     &fakeAgentReader{agent: &domain.Agent{Priority: domain.PriorityNormal}},
		Publisher:  &fakeTaskPublisher{err: errors.New("broker down")},
	})

	// Запись в store — polling fallback подхватит
	id, err := r.EnqueueExecution(context.Background(), &domain.Execution{AgentID: uuid.New()})
	if err != nil {
		t.Fatalf("publish failure must not fail enqueue: %v", err)
	}
	if id == uuid.Nil || len(creator.created) != 1 {
		t.Errorf("record must be durable despite publish failure")
	}
}

func TestRouter_EnqueueExecution_NilPublisher(t *testing.T) {
	// Без RabbitMQ enqueue работает: задачи подхватывает polling
	creator := &fakeExecutionCreator{}
	r := New(Config{
		Executions: creator,
		Agents:     &fakeAgentReader{agent: &domain.Agent{Priority: domain.PriorityNormal}},
	})

	if _, err := r.EnqueueExecution(context.Background(), &domain.Execution{AgentID: uuid.New()}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(creator.created) != 1 {
		t.Errorf("expected record created, got %d", len(creator.created))
	}
}

func TestRouter_EnqueueDelivery_FixedLane(t *testing.T) {
	creator := &fakeDeliveryCreator{}
	pub := &fakeTaskPublisher{}
	r := New(Config{Deliveries: creator, Publisher: pub})

	d := &domain.Delivery{TenantID: uuid.New(), WebhookID: uuid.New(), Event: "agent.executed"}
	id, err := r.EnqueueDelivery(context.Background(), d)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if pub.published[0].lane != mq.LaneWebhooks {
		t.Errorf("expected webhooks lane, got %s", pub.published[0].lane)
	}
	if pub.published[0].payload.Kind != domain.KindWebhookDelivery || pub.published[0].payload.TaskID != id {
		t.Errorf("wrong payload: %+v", pub.published[0].payload)
	}
}

func TestRouter_EnqueueNotification_FixedLane(t *testing.T) {
	creator := &fakeNotificationCreator{}
	pub := &fakeTaskPublisher{}
	r := New(Config{Notifications: creator, Publisher: pub})

	n := &domain.Notification{TenantID: uuid.New(), UserID: uuid.New(), Channel: domain.ChannelEmail}
	if _, err := r.EnqueueNotification(context.Background(), n); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if pub.published[0].lane != mq.LaneNotifications {
		t.Errorf("expected notifications lane, got %s", pub.published[0].lane)
	}
}
