// Package webhook delivers domain events to an HTTP endpoint as signed JSON.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/Muhammad-Alii2/vibeverse/internal/events"
)

const maxResponseBodyBytes = 1024

// Publisher posts every event to one URL, retrying failed attempts. It
// satisfies events.Publisher.
type Publisher struct {
	url         string
	secret      string
	http        *http.Client
	retryDelays []time.Duration
}

func New(url, secret string) *Publisher {
	return &Publisher{
		url:         url,
		secret:      secret,
		http:        &http.Client{Timeout: 10 * time.Second},
		retryDelays: []time.Duration{1 * time.Second, 4 * time.Second},
	}
}

// SignPayload computes HMAC-SHA256 of the payload using the secret.
func SignPayload(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// Publish sends the event with up to 1+len(retryDelays) attempts. Only a
// 2xx response counts as delivered.
func (p *Publisher) Publish(ctx context.Context, e events.Event) error {
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	signature := SignPayload(p.secret, body)
	maxAttempts := 1 + len(p.retryDelays)
	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		statusCode, respBody, err := p.doPost(ctx, body, signature, e.Type)
		if err == nil && statusCode >= 200 && statusCode < 300 {
			return nil
		}

		if err != nil {
			lastErr = err
		} else {
			lastErr = fmt.Errorf("webhook returned status %d", statusCode)
		}
		slog.Debug("webhook: delivery attempt failed",
			"type", e.Type, "attempt", attempt, "status", statusCode, "response", respBody, "error", lastErr)

		if attempt < maxAttempts {
			select {
			case <-time.After(p.retryDelays[attempt-1]):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	return lastErr
}

func (p *Publisher) doPost(ctx context.Context, body []byte, signature, eventType string) (int, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return 0, "", fmt.Errorf("create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-Signature", signature)
	req.Header.Set("X-Webhook-Event", eventType)

	resp, err := p.http.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer func() { _ = resp.Body.Close() }()

	respBytes, _ := io.ReadAll(io.LimitReader(resp.Body, int64(maxResponseBodyBytes)+1))
	respBody := string(respBytes)
	if len(respBody) > maxResponseBodyBytes {
		respBody = respBody[:maxResponseBodyBytes]
	}

	return resp.StatusCode, respBody, nil
}
