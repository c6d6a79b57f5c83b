package worker

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"safepaw/internal/config"
	"safepaw/internal/domain"
	"safepaw/internal/events"

	"firebase.google.com/go/v4/messaging"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	mu   sync.Mutex
	err  error
	sent []*messaging.Message
}

func (f *fakeSender) Send(_ context.Context, m *messaging.Message) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.sent = append(f.sent, m)
	return "projects/safepaw/messages/1", nil
}

func newTestWorker(sender Sender, rdb *redis.Client, cfg config.NotificationsConfig) *NotifyWorker {
	logger := zerolog.New(io.Discard)
	return NewNotifyWorker(sender, rdb, cfg, RetryPolicy{InitialDelay: time.Millisecond}, &logger)
}

func samplePayload() events.BookingEventPayload {
	return events.BookingEventPayload{
		BookingID:   "bk-1",
		OwnerID:     "owner-1",
		CaregiverID: "care-1",
		Service:     "paseo",
		Status:      "REQUESTED",
		StartDate:   "2024-06-01",
		PetName:     "Toby",
	}
}

func publish(t *testing.T, bus *events.EventBus, typ string, p events.BookingEventPayload) {
	t.Helper()
	require.NoError(t, bus.PublishJSON(typ, p))
}

func TestNotifyWorker_RecipientsPerEvent(t *testing.T) {
	tests := []struct {
		event  string
		topics []string
	}{
		{events.EventBookingCreated, []string{"user_care-1"}},
		{events.EventBookingAccepted, []string{"user_owner-1"}},
		{events.EventBookingDeclined, []string{"user_owner-1"}},
		{events.EventBookingCancelled, []string{"user_care-1"}},
		{events.EventBookingPendingPayment, []string{"user_owner-1"}},
		{events.EventBookingPaid, []string{"user_owner-1", "user_care-1"}},
	}

	for _, tt := range tests {
		t.Run(tt.event, func(t *testing.T) {
			w := newTestWorker(&fakeSender{}, nil, config.NotificationsConfig{QueueSize: 4})
			bus := events.NewEventBus()
			w.Subscribe(bus)

			publish(t, bus, tt.event, samplePayload())

			require.Len(t, w.queue, len(tt.topics))
			for _, topic := range tt.topics {
				job := <-w.queue
				assert.Equal(t, topic, job.Notification.Topic)
				assert.Equal(t, "bk-1", job.Notification.Data["bookingId"])
				assert.Equal(t, tt.event, job.Notification.Data["event"])
				assert.NotEmpty(t, job.Notification.Title)
			}
		})
	}
}

func TestNotifyWorker_TopicPrefix(t *testing.T) {
	w := newTestWorker(&fakeSender{}, nil, config.NotificationsConfig{TopicPrefix: "safepaw_", QueueSize: 1})
	ns := w.notificationsFor(events.EventBookingAccepted, samplePayload())
	require.Len(t, ns, 1)
	assert.Equal(t, "safepaw_owner-1", ns[0].Topic)
}

func TestNotifyWorker_ProcessSends(t *testing.T) {
	sender := &fakeSender{}
	w := newTestWorker(sender, nil, config.NotificationsConfig{QueueSize: 1})

	w.process(context.Background(), notifyJob{Notification: domain.Notification{
		Topic: "user_owner-1", Title: "Booking accepted", Body: "ok", Data: map[string]string{"bookingId": "bk-1"},
	}})

	require.Len(t, sender.sent, 1)
	msg := sender.sent[0]
	assert.Equal(t, "user_owner-1", msg.Topic)
	assert.Equal(t, "Booking accepted", msg.Notification.Title)
	assert.Equal(t, "bk-1", msg.Data["bookingId"])
}

func TestNotifyWorker_RetryThenDeadLetter(t *testing.T) {
	s, err := miniredis.Run()
	require.NoError(t, err)
	defer s.Close()
	rdb := redis.NewClient(&redis.Options{Addr: s.Addr()})
	defer rdb.Close()

	sender := &fakeSender{err: errors.New("fcm unavailable")}
	w := newTestWorker(sender, rdb, config.NotificationsConfig{QueueSize: 4, MaxRetries: 2})

	var delays []time.Duration
	w.afterFn = func(d time.Duration, f func()) {
		delays = append(delays, d)
		f()
	}

	ctx := context.Background()
	w.process(ctx, notifyJob{Notification: domain.Notification{Topic: "user_care-1"}})

	// first failure is requeued
	require.Len(t, w.queue, 1)
	require.Equal(t, []time.Duration{time.Millisecond}, delays)
	job := <-w.queue
	assert.Equal(t, 1, job.Attempt)
	assert.Equal(t, "fcm unavailable", job.LastError)

	// second failure reaches MaxRetries and is dead-lettered
	w.process(ctx, job)
	assert.Empty(t, w.queue)

	items, err := s.List("notify:deadletter")
	require.NoError(t, err)
	require.Len(t, items, 1)

	var dead notifyJob
	require.NoError(t, json.Unmarshal([]byte(items[0]), &dead))
	assert.Equal(t, 2, dead.Attempt)
	assert.Equal(t, "user_care-1", dead.Notification.Topic)
}

func TestNotifyWorker_QueueFull(t *testing.T) {
	w := newTestWorker(&fakeSender{}, nil, config.NotificationsConfig{QueueSize: 1})
	ctx := context.Background()

	require.NoError(t, w.Enqueue(ctx, domain.Notification{Topic: "user_a"}))
	assert.ErrorIs(t, w.Enqueue(ctx, domain.Notification{Topic: "user_b"}), ErrQueueFull)
	assert.Error(t, w.Enqueue(ctx, domain.Notification{}))
}

func TestNotifyWorker_BadPayload(t *testing.T) {
	w := newTestWorker(&fakeSender{}, nil, config.NotificationsConfig{QueueSize: 1})
	err := w.HandleEvent(&events.Event{Type: events.EventBookingCreated, Payload: []byte("{")})
	assert.Error(t, err)
	assert.Empty(t, w.queue)
}

func TestNotifyWorker_StartDrainsQueue(t *testing.T) {
	sender := &fakeSender{}
	w := newTestWorker(sender, nil, config.NotificationsConfig{QueueSize: 4})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()

	require.NoError(t, w.Enqueue(ctx, domain.Notification{Topic: "user_owner-1"}))
	assert.Eventually(t, func() bool {
		sender.mu.Lock()
		defer sender.mu.Unlock()
		return len(sender.sent) == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	<-done
}

func TestRetryPolicyNextDelay(t *testing.T) {
	policy := RetryPolicy{InitialDelay: time.Second, BackoffFactor: 2, MaxDelay: 5 * time.Second}

	assert.Equal(t, time.Second, policy.NextDelay(1))
	assert.Equal(t, 2*time.Second, policy.NextDelay(2))
	assert.Equal(t, 5*time.Second, policy.NextDelay(5))
	assert.Equal(t, time.Second, RetryPolicy{}.NextDelay(0))
}

func TestDefaultRetryPolicy(t *testing.T) {
	policy := DefaultRetryPolicy(3)

	assert.Equal(t, 2*time.Second, policy.NextDelay(1))
	assert.Equal(t, 8*time.Second, policy.NextDelay(3))
	assert.Equal(t, time.Minute, policy.NextDelay(10))

	assert.False(t, policy.Exhausted(2))
	assert.True(t, policy.Exhausted(3))
}
