package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPaymentsClient_CreateRefund(t *testing.T) {
	t.Run("sends idempotency key and returns refund id", func(t *testing.T) {
		var gotKey, gotAuth string
		var gotBody map[string]interface{}
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotKey = r.Header.Get("Idempotency-Key")
			gotAuth = r.Header.Get("Authorization")
			require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"refund_id":"re_123","status":"succeeded"}`))
		}))
		defer server.Close()

		client := NewPaymentsClient(server.URL, "sk_test")
		ref, err := client.CreateRefund(context.Background(), "ch_abc", 11250, "refund:b1:borrower:100")

		require.NoError(t, err)
		assert.Equal(t, "re_123", ref)
		assert.Equal(t, "refund:b1:borrower:100", gotKey)
		assert.Equal(t, "Bearer sk_test", gotAuth)
		assert.Equal(t, "ch_abc", gotBody["charge_reference"])
		assert.Equal(t, float64(11250), gotBody["amount_cents"])
	})

	t.Run("non-2xx response is an error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnprocessableEntity)
			_, _ = w.Write([]byte(`{"message":"charge already refunded"}`))
		}))
		defer server.Close()

		client := NewPaymentsClient(server.URL, "sk_test")
		_, err := client.CreateRefund(context.Background(), "ch_abc", 11250, "key")

		require.Error(t, err)
		assert.Contains(t, err.Error(), "422")
	})

	t.Run("missing refund id is an error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"status":"pending"}`))
		}))
		defer server.Close()

		client := NewPaymentsClient(server.URL, "sk_test")
		_, err := client.CreateRefund(context.Background(), "ch_abc", 11250, "key")

		require.Error(t, err)
	})
}

func TestPaymentsClient_Configured(t *testing.T) {
	assert.True(t, NewPaymentsClient("http://localhost", "key").Configured())
	assert.False(t, NewPaymentsClient("http://localhost", "").Configured())
	assert.False(t, NewPaymentsClient("", "key").Configured())
}

func TestSettlementClient_Settle(t *testing.T) {
	bookingID := uuid.New()

	t.Run("returns raw body on success", func(t *testing.T) {
		var gotBody map[string]interface{}
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
			_, _ = w.Write([]byte(`{"settlement_id":"st_9","net_payout_cents":42000}`))
		}))
		defer server.Close()

		client := NewSettlementClient(server.URL)
		body, err := client.Settle(context.Background(), bookingID)

		require.NoError(t, err)
		assert.JSONEq(t, `{"settlement_id":"st_9","net_payout_cents":42000}`, string(body))
		assert.Equal(t, bookingID.String(), gotBody["booking_id"])
	})

	t.Run("non-2xx response is an error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer server.Close()

		client := NewSettlementClient(server.URL)
		_, err := client.Settle(context.Background(), bookingID)

		require.Error(t, err)
	})
}
