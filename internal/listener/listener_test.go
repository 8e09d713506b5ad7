package listener

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/avetta/conveyor/internal/bus"
	"github.com/avetta/conveyor/internal/domain"
)

// Фейки зависимостей listener'ов.

type fakeWebhookLister struct {
	webhooks []domain.Webhook
	err      error
	calls    int
}

func (f *fakeWebhookLister) ListActiveByEvent(_ context.Context, _ uuid.UUID, _ string) ([]domain.Webhook, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.webhooks, nil
}

type fakeDeliveryEnqueuer struct {
	deliveries []*domain.Delivery
	failFor    uuid.UUID
}

func (f *fakeDeliveryEnqueuer) EnqueueDelivery(_ context.Context, d *domain.Delivery) (uuid.UUID, error) {
	if d.WebhookID == f.failFor {
		return uuid.Nil, errors.New("queue unavailable")
	}
	f.deliveries = append(f.deliveries, d)
	return uuid.New(), nil
}

type fakeNotificationEnqueuer struct {
	notifications []*domain.Notification
}

func (f *fakeNotificationEnqueuer) EnqueueNotification(_ context.Context, n *domain.Notification) (uuid.UUID, error) {
	f.notifications = append(f.notifications, n)
	return uuid.New(), nil
}

type fakeActivityWriter struct {
	records []*domain.ActivityRecord
	err     error
}

func (f *fakeActivityWriter) Insert(_ context.Context, rec *domain.ActivityRecord) error {
	if f.err != nil {
		return f.err
	}
	f.records = append(f.records, rec)
	return nil
}

type fakeChannelPublisher struct {
	channels []string
}

func (f *fakeChannelPublisher) PublishChannel(_ context.Context, channel string, _ any) error {
	f.channels = append(f.channels, channel)
	return nil
}

func failedExecutionEvent(terminal bool, userID *uuid.UUID) *bus.Event {
	return bus.NewExecutionFailed(&domain.Execution{
		ID:                uuid.New(),
		TenantID:          uuid.New(),
		AgentID:           uuid.New(),
		TriggeredByUserID: userID,
		Status:            domain.TaskStatusFailed,
		Attempt:           3,
		ErrorMessage:      "backend down",
	}, "backend down", terminal)
}

// WebhookFanout Tests

func TestWebhookFanout_EnqueuesPerWebhook(t *testing.T) {
	webhooks := []domain.Webhook{
		{ID: uuid.New(), IsActive: true, Events: []string{"agent.failed"}},
		{ID: uuid.New(), IsActive: true, Events: []string{"agent.failed"}},
	}
	enqueuer := &fakeDeliveryEnqueuer{}
	l := NewWebhookFanout(&fakeWebhookLister{webhooks: webhooks}, enqueuer, nil)

	ev := failedExecutionEvent(true, nil)
	if err := l.Handle(context.Background(), ev); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Одна независимая доставка на каждый webhook
	if len(enqueuer.deliveries) != 2 {
		t.Fatalf("expected 2 deliveries, got %d", len(enqueuer.deliveries))
	}
	for i, d := range enqueuer.deliveries {
		if d.WebhookID != webhooks[i].ID {
			t.Errorf("delivery %d: wrong webhook", i)
		}
		if d.Event != "agent.failed" {
			t.Errorf("delivery %d: wrong event %q", i, d.Event)
		}
		if d.TenantID != ev.TenantID {
			t.Errorf("delivery %d: tenant mismatch", i)
		}
		if d.Payload["error"] != "backend down" {
			t.Errorf("delivery %d: payload missing error, got %v", i, d.Payload)
		}
	}
}

func TestWebhookFanout_SkipsIntermediateFailures(t *testing.T) {
	lister := &fakeWebhookLister{}
	l := NewWebhookFanout(lister, &fakeDeliveryEnqueuer{}, nil)

	// Промежуточный провал — retry ещё будет, подписчиков не дёргаем
	if err := l.Handle(context.Background(), failedExecutionEvent(false, nil)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if lister.calls != 0 {
		t.Errorf("intermediate failure must not hit the store, calls=%d", lister.calls)
	}
}

func TestWebhookFanout_PartialEnqueueFailure(t *testing.T) {
	broken := uuid.New()
	webhooks := []domain.Webhook{
		{ID: broken, IsActive: true},
		{ID: uuid.New(), IsActive: true},
	}
	enqueuer := &fakeDeliveryEnqueuer{failFor: broken}
	l := NewWebhookFanout(&fakeWebhookLister{webhooks: webhooks}, enqueuer, nil)

	// Провал одной доставки не мешает остальным
	if err := l.Handle(context.Background(), failedExecutionEvent(true, nil)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(enqueuer.deliveries) != 1 {
		t.Errorf("expected remaining delivery enqueued, got %d", len(enqueuer.deliveries))
	}
}

// NotifyUser Tests

func TestNotifyUser_TerminalFailureWithInitiator(t *testing.T) {
	userID := uuid.New()
	enqueuer := &fakeNotificationEnqueuer{}
	l := NewNotifyUser(enqueuer, "", nil)

	ev := failedExecutionEvent(true, &userID)
	if err := l.Handle(context.Background(), ev); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(enqueuer.notifications) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(enqueuer.notifications))
	}
	n := enqueuer.notifications[0]
	if n.UserID != userID {
		t.Errorf("wrong recipient: %s", n.UserID)
	}
	// Канал по умолчанию — email
	if n.Channel != domain.ChannelEmail {
		t.Errorf("expected default email channel, got %s", n.Channel)
	}
}

func TestNotifyUser_SkipsWithoutInitiator(t *testing.T) {
	enqueuer := &fakeNotificationEnqueuer{}
	l := NewNotifyUser(enqueuer, domain.ChannelEmail, nil)

	// Запуск по расписанию — уведомлять некого
	if err := l.Handle(context.Background(), failedExecutionEvent(true, nil)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(enqueuer.notifications) != 0 {
		t.Errorf("expected no notifications, got %d", len(enqueuer.notifications))
	}
}

func TestNotifyUser_SkipsIntermediateFailures(t *testing.T) {
	userID := uuid.New()
	enqueuer := &fakeNotificationEnqueuer{}
	l := NewNotifyUser(enqueuer, domain.ChannelEmail, nil)

	if err := l.Handle(context.Background(), failedExecutionEvent(false, &userID)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(enqueuer.notifications) != 0 {
		t.Errorf("intermediate failure must not notify, got %d", len(enqueuer.notifications))
	}
}

// Activity Tests

func TestActivity_RecordsTerminalWorkflowEvents(t *testing.T) {
	writer := &fakeActivityWriter{}
	l := NewActivity(writer, nil)

	wfExec := &domain.WorkflowExecution{
		ID:          uuid.New(),
		TenantID:    uuid.New(),
		WorkflowID:  uuid.New(),
		Status:      domain.TaskStatusFailed,
		Attempt:     2,
		CurrentStep: 3,
	}
	ev := bus.NewWorkflowFailed(wfExec, "node failed", true)

	if err := l.Handle(context.Background(), ev); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(writer.records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(writer.records))
	}
	rec := writer.records[0]
	if rec.Action != "workflow.failed" {
		t.Errorf("expected workflow.failed action, got %q", rec.Action)
	}
	if rec.SubjectID != wfExec.ID || rec.SubjectKind != domain.KindWorkflowExecution {
		t.Errorf("wrong subject: %+v", rec)
	}
	if rec.Detail["error"] != "node failed" {
		t.Errorf("cause missing from detail: %v", rec.Detail)
	}
	if rec.Detail["current_step"] != 3 {
		t.Errorf("current_step missing from detail: %v", rec.Detail)
	}
}

func TestActivity_IgnoresAgentEvents(t *testing.T) {
	writer := &fakeActivityWriter{}
	l := NewActivity(writer, nil)

	// Agent executions аудируются executor'ом — здесь пропускаются
	if err := l.Handle(context.Background(), failedExecutionEvent(true, nil)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(writer.records) != 0 {
		t.Errorf("agent events must be ignored, got %d", len(writer.records))
	}
}

func TestActivity_BestEffort(t *testing.T) {
	writer := &fakeActivityWriter{err: errors.New("db down")}
	l := NewActivity(writer, nil)

	ev := bus.NewWorkflowCompleted(&domain.WorkflowExecution{
		ID:       uuid.New(),
		TenantID: uuid.New(),
	})

	// Ошибка аудита не отдаётся наружу
	if err := l.Handle(context.Background(), ev); err != nil {
		t.Errorf("activity must be best-effort, got %v", err)
	}
}

// Realtime Tests

func TestRealtime_ChannelScoping(t *testing.T) {
	userID := uuid.New()
	pub := &fakeChannelPublisher{}
	l := NewRealtime(pub, nil)

	ev := failedExecutionEvent(false, &userID) // промежуточные тоже транслируются
	if err := l.Handle(context.Background(), ev); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{
		"tenant." + ev.TenantID.String(),
		"agent." + ev.Execution.AgentID.String(),
		"user." + userID.String(),
	}
	if len(pub.channels) != len(want) {
		t.Fatalf("expected %d channels, got %v", len(want), pub.channels)
	}
	for i, ch := range want {
		if pub.channels[i] != ch {
			t.Errorf("channel %d: expected %q, got %q", i, ch, pub.channels[i])
		}
	}
}

func TestRealtime_WorkflowChannel(t *testing.T) {
	pub := &fakeChannelPublisher{}
	l := NewRealtime(pub, nil)

	wfExec := &domain.WorkflowExecution{
		ID:         uuid.New(),
		TenantID:   uuid.New(),
		WorkflowID: uuid.New(),
	}
	ev := bus.NewWorkflowCompleted(wfExec)

	if err := l.Handle(context.Background(), ev); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(pub.channels) != 2 {
		t.Fatalf("expected tenant + workflow channels, got %v", pub.channels)
	}
	if pub.channels[1] != "workflow."+wfExec.WorkflowID.String() {
		t.Errorf("expected workflow channel, got %q", pub.channels[1])
	}
}

// Registry Tests

func TestBuildRegistry(t *testing.T) {
	fanout := NewWebhookFanout(&fakeWebhookLister{}, &fakeDeliveryEnqueuer{}, nil)
	notify := NewNotifyUser(&fakeNotificationEnqueuer{}, domain.ChannelEmail, nil)
	activity := NewActivity(&fakeActivityWriter{}, nil)
	realtime := NewRealtime(&fakeChannelPublisher{}, nil)

	reg := BuildRegistry(fanout, notify, activity, realtime)

	// fanout и realtime на всех событиях
	for _, name := range []bus.Name{
		bus.EventExecutionCompleted,
		bus.EventExecutionFailed,
		bus.EventWorkflowCompleted,
		bus.EventWorkflowFailed,
	} {
		if len(reg.Listeners(name)) < 2 {
			t.Errorf("%s: expected fanout and realtime subscribed, got %d", name, len(reg.Listeners(name)))
		}
	}

	// notify — только на провалах
	if len(reg.Listeners(bus.EventExecutionFailed)) != 3 {
		t.Errorf("agent.failed: expected 3 listeners, got %d", len(reg.Listeners(bus.EventExecutionFailed)))
	}
	if len(reg.Listeners(bus.EventExecutionCompleted)) != 2 {
		t.Errorf("agent.executed: expected 2 listeners, got %d", len(reg.Listeners(bus.EventExecutionCompleted)))
	}

	// activity добавляется к workflow-событиям
	if len(reg.Listeners(bus.EventWorkflowFailed)) != 4 {
		t.Errorf("workflow.failed: expected 4 listeners, got %d", len(reg.Listeners(bus.EventWorkflowFailed)))
	}
}

func TestBuildRegistry_NilListenersSkipped(t *testing.T) {
	fanout := NewWebhookFanout(&fakeWebhookLister{}, &fakeDeliveryEnqueuer{}, nil)

	// Без RabbitMQ realtime отсутствует
	reg := BuildRegistry(fanout, nil, nil, nil)

	if len(reg.Listeners(bus.EventExecutionCompleted)) != 1 {
		t.Errorf("expected only fanout, got %d", len(reg.Listeners(bus.EventExecutionCompleted)))
	}
}
