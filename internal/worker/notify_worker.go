package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"safepaw/internal/config"
	"safepaw/internal/domain"
	"safepaw/internal/events"
	"safepaw/internal/metrics"

	"firebase.google.com/go/v4/messaging"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

var ErrQueueFull = errors.New("notification queue is full")

// Sender delivers a push message. *messaging.Client satisfies it.
type Sender interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
}

type notifyJob struct {
	Notification domain.Notification `json:"notification"`
	Attempt      int                 `json:"attempt"`
	LastError    string              `json:"last_error,omitempty"`
}

// NotifyWorker turns booking events into FCM topic messages for the
// counterparty of each change.
type NotifyWorker struct {
	sender        Sender
	redis         *redis.Client
	retryPolicy   RetryPolicy
	queue         chan notifyJob
	topicPrefix   string
	deadLetterKey string
	sendTimeout   time.Duration
	logger        *zerolog.Logger
	afterFn       func(d time.Duration, f func())
}

// NewNotifyWorker builds a worker. redisClient is optional and only holds dead letters.
func NewNotifyWorker(sender Sender, redisClient *redis.Client, cfg config.NotificationsConfig, retry RetryPolicy, logger *zerolog.Logger) *NotifyWorker {
	if cfg.MaxRetries > 0 {
		retry.MaxRetries = cfg.MaxRetries
	}
	if retry.MaxRetries == 0 {
		retry.MaxRetries = 3
	}
	if retry.InitialDelay == 0 {
		retry.InitialDelay = 2 * time.Second
	}
	if retry.MaxDelay == 0 {
		retry.MaxDelay = time.Minute
	}
	if retry.BackoffFactor == 0 {
		retry.BackoffFactor = 2
	}
	size := cfg.QueueSize
	if size <= 0 {
		size = 64
	}
	prefix := cfg.TopicPrefix
	if prefix == "" {
		prefix = "user_"
	}

	return &NotifyWorker{
		sender:        sender,
		redis:         redisClient,
		retryPolicy:   retry,
		queue:         make(chan notifyJob, size),
		topicPrefix:   prefix,
		deadLetterKey: "notify:deadletter",
		sendTimeout:   10 * time.Second,
		logger:        logger,
		afterFn: func(d time.Duration, f func()) {
			time.AfterFunc(d, f)
		},
	}
}

// Subscribe attaches the worker to every booking event on bus.
func (w *NotifyWorker) Subscribe(bus *events.EventBus) {
	bus.SubscribeAll(w.HandleEvent)
}

// HandleEvent enqueues one notification per recipient of e.
func (w *NotifyWorker) HandleEvent(e *events.Event) error {
	var payload events.BookingEventPayload
	if err := e.Decode(&payload); err != nil {
		w.logger.Warn().Err(err).Str("event", e.Type).Msg("undecodable booking event")
		return err
	}

	var errs []error
	for _, n := range w.notificationsFor(e.Type, payload) {
		if err := w.Enqueue(context.Background(), n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var _ domain.Notifier = (*NotifyWorker)(nil)

// Enqueue schedules n without blocking.
func (w *NotifyWorker) Enqueue(_ context.Context, n domain.Notification) error {
	if n.Topic == "" {
		return errors.New("notification topic is required")
	}
	select {
	case w.queue <- notifyJob{Notification: n}:
		return nil
	default:
		metrics.IncNotification("dropped")
		w.logger.Warn().Str("topic", n.Topic).Msg("notification queue full, dropping")
		return ErrQueueFull
	}
}

// Start consumes the queue until ctx is done.
func (w *NotifyWorker) Start(ctx context.Context) {
	w.logger.Info().Msg("notify worker started")
	defer w.logger.Info().Msg("notify worker stopped")

	for {
		select {
		case <-ctx.Done():
			return
		case job := <-w.queue:
			w.process(ctx, job)
		}
	}
}

func (w *NotifyWorker) process(ctx context.Context, job notifyJob) {
	sendCtx, cancel := context.WithTimeout(ctx, w.sendTimeout)
	defer cancel()

	id, err := w.sender.Send(sendCtx, toMessage(job.Notification))
	if err == nil {
		metrics.IncNotification("sent")
		w.logger.Debug().Str("topic", job.Notification.Topic).Str("message_id", id).Msg("notification sent")
		return
	}

	job.Attempt++
	job.LastError = err.Error()
	if w.retryPolicy.Exhausted(job.Attempt) {
		metrics.IncNotification("failed")
		w.logger.Error().Err(err).Str("topic", job.Notification.Topic).Int("attempts", job.Attempt).Msg("notification dropped after retries")
		w.pushDeadLetter(ctx, job)
		return
	}

	metrics.IncNotification("retry")
	delay := w.retryPolicy.NextDelay(job.Attempt)
	w.logger.Warn().Err(err).Str("topic", job.Notification.Topic).Dur("delay", delay).Msg("notification send failed, retrying")
	w.afterFn(delay, func() { w.requeue(job) })
}

func (w *NotifyWorker) requeue(job notifyJob) {
	select {
	case w.queue <- job:
	default:
		metrics.IncNotification("dropped")
		w.logger.Warn().Str("topic", job.Notification.Topic).Msg("notification queue full on retry, dropping")
	}
}

func (w *NotifyWorker) pushDeadLetter(ctx context.Context, job notifyJob) {
	if w.redis == nil {
		return
	}
	data, err := json.Marshal(job)
	if err != nil {
		w.logger.Error().Err(err).Msg("encode notification dead letter")
		return
	}
	if err := w.redis.LPush(ctx, w.deadLetterKey, data).Err(); err != nil {
		w.logger.Error().Err(err).Msg("notification dead letter push failed")
	}
}

func (w *NotifyWorker) topic(uid string) string {
	return w.topicPrefix + uid
}

func (w *NotifyWorker) notificationsFor(eventType string, p events.BookingEventPayload) []domain.Notification {
	data := map[string]string{
		"bookingId": p.BookingID,
		"status":    p.Status,
		"event":     eventType,
	}
	pet := p.PetName
	if pet == "" {
		pet = "your pet"
	}

	note := func(uid, title, body string) domain.Notification {
		return domain.Notification{Topic: w.topic(uid), Title: title, Body: body, Data: data}
	}

	switch eventType {
	case events.EventBookingCreated:
		return []domain.Notification{note(p.CaregiverID, "New booking request",
			fmt.Sprintf("You have a new %s request for %s on %s", p.Service, pet, p.StartDate))}
	case events.EventBookingAccepted:
		return []domain.Notification{note(p.OwnerID, "Booking accepted",
			fmt.Sprintf("Your %s request for %s was accepted", p.Service, pet))}
	case events.EventBookingDeclined:
		return []domain.Notification{note(p.OwnerID, "Booking declined",
			fmt.Sprintf("Your %s request for %s was declined", p.Service, pet))}
	case events.EventBookingCancelled:
		return []domain.Notification{note(p.CaregiverID, "Booking cancelled",
			fmt.Sprintf("The %s booking for %s on %s was cancelled", p.Service, pet, p.StartDate))}
	case events.EventBookingPendingPayment:
		return []domain.Notification{note(p.OwnerID, "Payment started",
			fmt.Sprintf("Complete the payment for %s", pet))}
	case events.EventBookingPaid:
		return []domain.Notification{
			note(p.OwnerID, "Payment received", fmt.Sprintf("The booking for %s is paid", pet)),
			note(p.CaregiverID, "Booking paid", fmt.Sprintf("The %s booking for %s on %s is paid", p.Service, pet, p.StartDate)),
		}
	default:
		return nil
	}
}

func toMessage(n domain.Notification) *messaging.Message {
	return &messaging.Message{
		Topic: n.Topic,
		Notification: &messaging.Notification{
			Title: n.Title,
			Body:  n.Body,
		},
		Data: n.Data,
		Android: &messaging.AndroidConfig{
			Priority: "high",
		},
	}
}
