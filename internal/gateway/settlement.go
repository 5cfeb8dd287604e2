package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// SettlementGateway is the outbound contract for the settlement system.
// A call only reports success when the settlement system acknowledged the
// booking; any failure leaves the booking unsettled for a later retry.
type SettlementGateway interface {
	// Settle asks the settlement system to settle the booking and returns
	// the raw response body on success.
	Settle(ctx context.Context, bookingID uuid.UUID) ([]byte, error)
}

// SettlementClient calls the settlement system over HTTP.
type SettlementClient struct {
	baseURL string
	client  *http.Client
}

// NewSettlementClient creates a SettlementClient for the given endpoint.
func NewSettlementClient(baseURL string) *SettlementClient {
	return &SettlementClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

type settleRequest struct {
	BookingID string `json:"booking_id"`
}

// Settle posts the booking to the settlement system. Any non-2xx response
// is an error; the raw body of a 2xx response is returned for storage.
func (c *SettlementClient) Settle(ctx context.Context, bookingID uuid.UUID) ([]byte, error) {
	body, err := json.Marshal(settleRequest{BookingID: bookingID.String()})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal settlement request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/settlements", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build settlement request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("settlement request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("settlement rejected: %d %s", resp.StatusCode, string(respBody))
	}
	return respBody, nil
}
