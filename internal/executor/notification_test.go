package executor

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/avetta/conveyor/internal/domain"
)

type fakeNotificationStore struct {
	n       *domain.Notification
	updates int
}

func (s *fakeNotificationStore) Claim(_ context.Context, _ uuid.UUID) (*domain.Notification, error) {
	s.n.Status = domain.TaskStatusRunning
	s.n.Attempt++
	return s.n, nil
}

func (s *fakeNotificationStore) Update(_ context.Context, n *domain.Notification) error {
	s.updates++
	s.n = n
	return nil
}

func (s *fakeNotificationStore) Requeue(_ context.Context, _ uuid.UUID) error {
	s.n.Status = domain.TaskStatusPending
	return nil
}

type fakeSender struct {
	err     error
	calls   int
	userID  uuid.UUID
	channel domain.NotificationChannel
}

func (s *fakeSender) Send(_ context.Context, userID uuid.UUID, channel domain.NotificationChannel, _ map[string]any) error {
	s.calls++
	s.userID = userID
	s.channel = channel
	return s.err
}

func runningNotification(channel domain.NotificationChannel) *domain.Notification {
	return &domain.Notification{
		ID:       uuid.New(),
		TenantID: uuid.New(),
		UserID:   uuid.New(),
		Channel:  channel,
		Data:     map[string]any{"event": "agent.failed"},
		Status:   domain.TaskStatusRunning,
		Attempt:  1,
	}
}

func TestNotificationExecutor_Execute_Success(t *testing.T) {
	n := runningNotification(domain.ChannelEmail)
	sender := &fakeSender{}
	e := NewNotificationExecutor(&fakeNotificationStore{n: n}, sender, nil)

	out := e.Execute(context.Background(), n)
	if out.Disposition != DispositionCompleted {
		t.Fatalf("expected completed, got %v (%v)", out.Disposition, out.Err)
	}

	if n.Status != domain.TaskStatusCompleted {
		t.Errorf("expected COMPLETED, got %s", n.Status)
	}
	if sender.calls != 1 || sender.userID != n.UserID || sender.channel != domain.ChannelEmail {
		t.Errorf("sender called incorrectly: %+v", sender)
	}
}

func TestNotificationExecutor_Execute_UnknownChannel(t *testing.T) {
	n := runningNotification(domain.NotificationChannel("carrier_pigeon"))
	sender := &fakeSender{}
	e := NewNotificationExecutor(&fakeNotificationStore{n: n}, sender, nil)

	out := e.Execute(context.Background(), n)
	if out.Disposition != DispositionFatal {
		t.Fatalf("unknown channel must be fatal, got %v", out.Disposition)
	}
	if !errors.Is(out.Err, ErrUnknownChannel) {
		t.Errorf("expected ErrUnknownChannel, got %v", out.Err)
	}

	// Sender не вызывается, запись доведена до FAILED
	if sender.calls != 0 {
		t.Errorf("sender must not run for unknown channel, calls=%d", sender.calls)
	}
	if n.Status != domain.TaskStatusFailed {
		t.Errorf("expected FAILED, got %s", n.Status)
	}
}

func TestNotificationExecutor_Execute_SendError(t *testing.T) {
	n := runningNotification(domain.ChannelPush)
	e := NewNotificationExecutor(
		&fakeNotificationStore{n: n},
		&fakeSender{err: errors.New("provider unavailable")},
		nil,
	)

	out := e.Execute(context.Background(), n)
	if out.Disposition != DispositionRetryable {
		t.Fatalf("send error must be retryable, got %v", out.Disposition)
	}
	if n.Status != domain.TaskStatusFailed {
		t.Errorf("expected FAILED, got %s", n.Status)
	}
}

func TestNotificationExecutor_Exhausted(t *testing.T) {
	n := runningNotification(domain.ChannelSMS)
	n.Status = domain.TaskStatusFailed
	store := &fakeNotificationStore{n: n}
	e := NewNotificationExecutor(store, &fakeSender{}, nil)

	e.Exhausted(context.Background(), n, errors.New("provider unavailable"))

	if !strings.Contains(n.ErrorMessage, "Maximum retry attempts exceeded") {
		t.Errorf("expected exhaustion marker, got %q", n.ErrorMessage)
	}
	if store.updates != 1 {
		t.Errorf("expected persisted update, got %d", store.updates)
	}
}
