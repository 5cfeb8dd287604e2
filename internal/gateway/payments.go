package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// PaymentsGateway is the outbound contract for partial refunds against a
// previously captured charge. Implementations must honor the idempotency key
// so a retried call after a timeout cannot double-refund.
type PaymentsGateway interface {
	// CreateRefund refunds amountCents against the given charge reference
	// and returns the gateway's refund identifier.
	CreateRefund(ctx context.Context, chargeReference string, amountCents int64, idempotencyKey string) (string, error)

	// Configured reports whether a gateway credential is present. When it
	// is not, callers fall back to ledger credits without attempting a call.
	Configured() bool
}

// PaymentsClient calls the payment provider's refund API over HTTP.
type PaymentsClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewPaymentsClient creates a PaymentsClient for the given provider endpoint.
func NewPaymentsClient(baseURL, apiKey string) *PaymentsClient {
	return &PaymentsClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

// Configured reports whether an API key is set.
func (c *PaymentsClient) Configured() bool {
	return c.apiKey != "" && c.baseURL != ""
}

type refundRequest struct {
	ChargeReference string `json:"charge_reference"`
	AmountCents     int64  `json:"amount_cents"`
}

type refundResponse struct {
	RefundID string `json:"refund_id"`
	Status   string `json:"status"`
	Message  string `json:"message"`
}

// CreateRefund issues a partial refund. The idempotency key travels in the
// Idempotency-Key header so provider-side retries deduplicate.
func (c *PaymentsClient) CreateRefund(ctx context.Context, chargeReference string, amountCents int64, idempotencyKey string) (string, error) {
	body, err := json.Marshal(refundRequest{
		ChargeReference: chargeReference,
		AmountCents:     amountCents,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal refund request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/refunds", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build refund request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Idempotency-Key", idempotencyKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("refund request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("refund rejected by gateway: %d %s", resp.StatusCode, string(respBody))
	}

	var out refundResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return "", fmt.Errorf("failed to parse refund response: %w", err)
	}
	if out.RefundID == "" {
		return "", fmt.Errorf("gateway returned no refund identifier: %s", string(respBody))
	}
	return out.RefundID, nil
}
