package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

type fakeChannel struct {
	exchange string
	key      string
	msg      amqp.Publishing
	err      error
	closed   bool
}

func (f *fakeChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	f.exchange, f.key, f.msg = exchange, key, msg
	return f.err
}

func (f *fakeChannel) Close() error {
	f.closed = true
	return nil
}

func TestAMQPPublisher_RoutesByEventType(t *testing.T) {
	ch := &fakeChannel{}
	p := &AMQPPublisher{ch: ch, exchange: "vibeverse.events"}
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	err := p.Publish(context.Background(), Event{
		Type: LikeToggled, ActorID: "u1", TargetKind: "video", TargetID: "v1", State: "added", OccurredAt: at,
	})
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}

	if ch.exchange != "vibeverse.events" || ch.key != "like.toggled" {
		t.Errorf("unexpected routing %s/%s", ch.exchange, ch.key)
	}
	if ch.msg.DeliveryMode != amqp.Persistent || ch.msg.ContentType != "application/json" {
		t.Errorf("unexpected publishing %+v", ch.msg)
	}
	if ch.msg.MessageId == "" {
		t.Error("expected a message id")
	}

	var decoded Event
	if err := json.Unmarshal(ch.msg.Body, &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded.TargetID != "v1" || decoded.State != "added" || !decoded.OccurredAt.Equal(at) {
		t.Errorf("unexpected body %+v", decoded)
	}

	if err := p.Close(); err != nil || !ch.closed {
		t.Errorf("expected channel closed, err=%v", err)
	}
}

func TestAMQPPublisher_WrapsError(t *testing.T) {
	p := &AMQPPublisher{ch: &fakeChannel{err: amqp.ErrClosed}, exchange: "x"}
	err := p.Publish(context.Background(), Event{Type: VideoPublished})
	if !errors.Is(err, amqp.ErrClosed) {
		t.Fatalf("expected wrapped ErrClosed, got %v", err)
	}
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (r *recordingPublisher) Publish(ctx context.Context, e Event) error {
	if _, ok := ctx.Deadline(); !ok {
		return errors.New("expected bounded context")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return r.err
}

func TestEmitter_PublishesInBackground(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("broker down")}
	em := NewEmitter(pub, time.Second)

	em.Emit(Event{Type: SubscriptionToggled, ActorID: "u1", TargetID: "c1"})
	em.Emit(Event{Type: VideoPublished, ActorID: "u1", TargetID: "v1"})
	em.Wait()

	pub.mu.Lock()
	defer pub.mu.Unlock()
	if len(pub.events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(pub.events))
	}
	for _, e := range pub.events {
		if e.OccurredAt.IsZero() {
			t.Error("expected OccurredAt to be stamped")
		}
	}
}

func TestEmitter_NilIsNoop(t *testing.T) {
	var em *Emitter
	em.Emit(Event{Type: LikeToggled})
	em.Wait()

	NewEmitter(nil, 0).Emit(Event{Type: LikeToggled})
}

func TestFanout_DeliversToEveryPublisher(t *testing.T) {
	brokerDown := errors.New("broker down")
	failing := &recordingPublisher{err: brokerDown}
	healthy := &recordingPublisher{}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	err := Fanout{failing, healthy}.Publish(ctx, Event{Type: LikeToggled, TargetID: "v1"})
	if !errors.Is(err, brokerDown) {
		t.Errorf("expected joined broker error, got %v", err)
	}
	if len(healthy.events) != 1 {
		t.Errorf("expected healthy publisher to receive the event, got %d", len(healthy.events))
	}
}
