package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Muhammad-Alii2/vibeverse/internal/events"
)

func testEvent() events.Event {
	return events.Event{
		Type:       events.LikeToggled,
		ActorID:    "actor-1",
		TargetKind: "video",
		TargetID:   "video-1",
		State:      "added",
		OccurredAt: time.Date(2026, 2, 21, 12, 0, 0, 0, time.UTC),
	}
}

func newTestPublisher(url string) *Publisher {
	p := New(url, "my-secret")
	p.retryDelays = []time.Duration{time.Millisecond, time.Millisecond}
	return p
}

func TestSignPayload(t *testing.T) {
	payload := []byte(`{"type":"like.toggled"}`)

	mac := hmac.New(sha256.New, []byte("test-secret"))
	mac.Write(payload)
	expected := "sha256=" + hex.EncodeToString(mac.Sum(nil))

	if got := SignPayload("test-secret", payload); got != expected {
		t.Errorf("expected signature %s, got %s", expected, got)
	}
	if SignPayload("secret-one", payload) == SignPayload("secret-two", payload) {
		t.Error("different secrets should produce different signatures")
	}
}

func TestPublishSuccess(t *testing.T) {
	var receivedSignature, receivedType string
	var receivedBody []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		receivedSignature = r.Header.Get("X-Webhook-Signature")
		receivedType = r.Header.Get("X-Webhook-Event")
		receivedBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	event := testEvent()
	if err := newTestPublisher(server.URL).Publish(context.Background(), event); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	eventJSON, _ := json.Marshal(event)
	if receivedSignature != SignPayload("my-secret", eventJSON) {
		t.Errorf("unexpected signature %s", receivedSignature)
	}
	if receivedType != events.LikeToggled {
		t.Errorf("expected event header %q, got %q", events.LikeToggled, receivedType)
	}

	var got events.Event
	if err := json.Unmarshal(receivedBody, &got); err != nil {
		t.Fatalf("failed to unmarshal received body: %v", err)
	}
	if got.TargetID != "video-1" || got.State != "added" {
		t.Errorf("unexpected payload %+v", got)
	}
}

func TestPublishRetriesServerErrors(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) <= 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	if err := newTestPublisher(server.URL).Publish(context.Background(), testEvent()); err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if attempts.Load() != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts.Load())
	}
}

func TestPublishAllAttemptsFail(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	err := newTestPublisher(server.URL).Publish(context.Background(), testEvent())
	if err == nil || !strings.Contains(err.Error(), "502") {
		t.Fatalf("expected error mentioning 502, got %v", err)
	}
	if attempts.Load() != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts.Load())
	}
}

func TestPublishConnectionError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	unreachableURL := server.URL
	server.Close()

	if err := newTestPublisher(unreachableURL).Publish(context.Background(), testEvent()); err == nil {
		t.Fatal("expected error for unreachable URL")
	}
}

func TestPublishStopsWhenContextEnds(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	p := New(server.URL, "s")
	p.retryDelays = []time.Duration{time.Hour, time.Hour}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := p.Publish(ctx, testEvent()); err != context.DeadlineExceeded {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}
