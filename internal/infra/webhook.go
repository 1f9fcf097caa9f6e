package infra

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// SessionClosedPayload is posted to the back-office webhook receiver when a
// session closes through the normal (non-reconciliation) write path.
type SessionClosedPayload struct {
	SessionID        string `json:"session_id"`
	SessionNumber    string `json:"session_number"`
	StoreID          string `json:"store_id,omitempty"`
	TransactionCount int    `json:"transaction_count"`
	TotalAmount      int64  `json:"total_amount"`
	ExpectedCash     int64  `json:"expected_cash"`
	ActualCash       *int64 `json:"actual_cash,omitempty"`
	CashDifference   *int64 `json:"cash_difference,omitempty"`
	ClosedAt         string `json:"closed_at,omitempty"`
}

// WebhookClient delivers session-closed notifications to the configured
// receiver. Failures trip the circuit breaker so a dead receiver cannot
// stall the worker pool.
type WebhookClient struct {
	url        string
	httpClient *http.Client
	cb         *CircuitBreaker
}

func NewWebhookClient(url string, cb *CircuitBreaker) *WebhookClient {
	return &WebhookClient{
		url:        url,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		cb:         cb,
	}
}

// Enabled reports whether a receiver URL is configured.
func (c *WebhookClient) Enabled() bool { return c.url != "" }

// Breaker exposes the circuit breaker for health reporting.
func (c *WebhookClient) Breaker() *CircuitBreaker { return c.cb }

// NotifySessionClosed posts the payload through the circuit breaker.
func (c *WebhookClient) NotifySessionClosed(ctx context.Context, payload SessionClosedPayload) error {
	if !c.Enabled() {
		return nil
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("webhook: marshal payload: %w", err)
	}
	return c.cb.Execute(func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("webhook: create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("webhook: receiver unreachable: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return fmt.Errorf("webhook: receiver returned %d", resp.StatusCode)
		}
		return nil
	})
}
