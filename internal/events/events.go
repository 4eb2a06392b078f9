// Package events publishes domain events to RabbitMQ and webhooks. Publishing is
// best-effort: a broker outage is logged and never fails a request.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	LikeToggled         = "like.toggled"
	SubscriptionToggled = "subscription.toggled"
	VideoPublished      = "video.published"
)

type Event struct {
	Type       string    `json:"type"`
	ActorID    string    `json:"actorId"`
	TargetKind string    `json:"targetKind,omitempty"`
	TargetID   string    `json:"targetId"`
	State      string    `json:"state,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Fanout hands each event to every Publisher in order and joins their errors.
type Fanout []Publisher

func (f Fanout) Publish(ctx context.Context, e Event) error {
	var errs []error
	for _, p := range f {
		if err := p.Publish(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type amqpChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPPublisher routes each event to a durable topic exchange using the
// event type as routing key.
type AMQPPublisher struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	ch       amqpChannel
	exchange string
}

func DialAMQP(url, exchange string) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("rabbitmq: dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("rabbitmq: open channel: %w", err)
	}

	if err := ch.ExchangeDeclare(
		exchange,
		amqp.ExchangeTopic,
		true,  // durable
		false, // autoDelete
		false, // internal
		false, // noWait
		nil,
	); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("rabbitmq: declare exchange %s: %w", exchange, err)
	}

	return &AMQPPublisher{conn: conn, ch: ch, exchange: exchange}, nil
}

func (p *AMQPPublisher) Publish(ctx context.Context, e Event) error {
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("rabbitmq: marshal %s: %w", e.Type, err)
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.NewString(),
		Timestamp:    e.OccurredAt,
		Type:         e.Type,
		Body:         body,
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.ch.PublishWithContext(ctx, p.exchange, e.Type, false, false, msg); err != nil {
		return fmt.Errorf("rabbitmq: publish %s: %w", e.Type, err)
	}
	return nil
}

func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	chErr := p.ch.Close()
	if p.conn != nil {
		if err := p.conn.Close(); err != nil {
			return err
		}
	}
	return chErr
}

// Emitter hands events to a Publisher in the background. A nil Emitter or
// one without a Publisher drops events.
type Emitter struct {
	pub     Publisher
	timeout time.Duration
	now     func() time.Time
	wg      sync.WaitGroup
}

func NewEmitter(pub Publisher, timeout time.Duration) *Emitter {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Emitter{pub: pub, timeout: timeout, now: time.Now}
}

func (em *Emitter) Emit(e Event) {
	if em == nil || em.pub == nil {
		return
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = em.now().UTC()
	}

	em.wg.Add(1)
	go func() {
		defer em.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), em.timeout)
		defer cancel()
		if err := em.pub.Publish(ctx, e); err != nil {
			slog.Warn("events: publish failed", "type", e.Type, "target_id", e.TargetID, "error", err)
		}
	}()
}

// Wait blocks until every emitted event has been handed off.
func (em *Emitter) Wait() {
	if em == nil {
		return
	}
	em.wg.Wait()
}
