package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

const (
	publishTimeout = 2 * time.Second

	// publishAttempts includes one retry on a freshly dialled channel.
	publishAttempts = 2
)

var (
	ErrBridgeQueueFull = errors.New("amqp bridge queue is full")
	errPublisherClosed = errors.New("amqp publisher is closed")
)

type amqpChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// session owns one broker connection and the channel opened on it.
type session struct {
	conn *amqp.Connection
	*amqp.Channel
}

func (s *session) Close() error {
	_ = s.Channel.Close()
	return s.conn.Close()
}

// AMQPPublisher forwards raw event payloads to a topic exchange. Events are
// queued by Bridge and published from Run, so a slow or absent broker never
// holds up the code that raised the event. A lost connection is dialled again
// on the next publish.
type AMQPPublisher struct {
	exchange string
	dial     func() (amqpChannel, error)
	queue    chan *Event
	logger   *zerolog.Logger

	mu     sync.Mutex
	ch     amqpChannel
	closed bool
}

// NewAMQPPublisher connects once up front so a bad URL fails at startup.
func NewAMQPPublisher(url, exchange string, queueSize int, logger *zerolog.Logger) (*AMQPPublisher, error) {
	p := newAMQPPublisher(exchange, queueSize, nil, logger)
	p.dial = func() (amqpChannel, error) { return p.connect(url) }
	if _, err := p.channel(); err != nil {
		return nil, err
	}
	return p, nil
}

func newAMQPPublisher(exchange string, queueSize int, dial func() (amqpChannel, error), logger *zerolog.Logger) *AMQPPublisher {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	if queueSize <= 0 {
		queueSize = 1
	}
	return &AMQPPublisher{
		exchange: exchange,
		dial:     dial,
		queue:    make(chan *Event, queueSize),
		logger:   logger,
	}
}

func (p *AMQPPublisher) connect(url string) (amqpChannel, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(p.exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}

	s := &session{conn: conn, Channel: ch}
	lost := conn.NotifyClose(make(chan *amqp.Error, 1))
	go func() {
		if err, ok := <-lost; ok && err != nil {
			p.logger.Warn().Err(err).Msg("amqp connection lost")
		}
		p.drop(s)
	}()
	p.logger.Info().Str("exchange", p.exchange).Msg("amqp channel open")
	return s, nil
}

// channel returns the open channel, dialling a new one when there is none.
func (p *AMQPPublisher) channel() (amqpChannel, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, errPublisherClosed
	}
	if p.ch == nil {
		ch, err := p.dial()
		if err != nil {
			return nil, err
		}
		p.ch = ch
	}
	return p.ch, nil
}

// drop forgets ch if it is still current and closes it.
func (p *AMQPPublisher) drop(ch amqpChannel) {
	p.mu.Lock()
	if p.ch != ch {
		p.mu.Unlock()
		return
	}
	p.ch = nil
	p.mu.Unlock()
	_ = ch.Close()
}

// Publish sends an already encoded event with its type as routing key.
func (p *AMQPPublisher) Publish(ctx context.Context, e *Event) error {
	ch, err := p.channel()
	if err != nil {
		return err
	}
	err = ch.PublishWithContext(ctx, p.exchange, e.Type, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    e.CreatedAt,
		Type:         e.Type,
		Body:         e.Payload,
	})
	if err != nil {
		p.drop(ch)
		return err
	}
	return nil
}

// Enqueue schedules e for Run without blocking.
func (p *AMQPPublisher) Enqueue(e *Event) error {
	select {
	case p.queue <- e:
		return nil
	default:
		p.logger.Warn().Str("event", e.Type).Msg("amqp bridge queue full, dropping")
		return ErrBridgeQueueFull
	}
}

// Run publishes queued events until ctx is done.
func (p *AMQPPublisher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-p.queue:
			p.forward(ctx, e)
		}
	}
}

func (p *AMQPPublisher) forward(ctx context.Context, e *Event) {
	var err error
	for attempt := 1; attempt <= publishAttempts; attempt++ {
		pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
		err = p.Publish(pubCtx, e)
		cancel()
		if err == nil || ctx.Err() != nil {
			break
		}
	}
	if err != nil {
		p.logger.Warn().Err(err).Str("event", e.Type).Msg("amqp publish failed, dropping event")
	}
}

func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	ch := p.ch
	p.ch = nil
	p.closed = true
	p.mu.Unlock()

	if ch != nil {
		return ch.Close()
	}
	return nil
}

// Bridge queues every booking event on bus for pub. Broker failures never
// reach the publisher of the event.
func Bridge(bus *EventBus, pub *AMQPPublisher) {
	bus.SubscribeAll(func(e *Event) error {
		return pub.Enqueue(e)
	})
}
