package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/safar/storefront/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(url string, timeout time.Duration) *Client {
	return NewClient(config.GatewayConfig{
		BaseURL:   url,
		KeyID:     "rzp_test_key",
		KeySecret: "topsecret",
		Currency:  "INR",
		Timeout:   timeout,
	})
}

func TestCreateIntent(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/orders", r.URL.Path)

		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "rzp_test_key", user)
		assert.Equal(t, "topsecret", pass)

		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"order_ABC","amount":30000,"currency":"INR","receipt":"receipt_9","status":"created"}`))
	}))
	defer srv.Close()

	intent, err := newTestClient(srv.URL, time.Second).CreateIntent(context.Background(), IntentRequest{
		AmountMinorUnits: 30000,
		Currency:         "INR",
		Receipt:          "receipt_9",
		Notes:            map[string]string{"order_id": "9", "user_id": "1"},
	})
	require.NoError(t, err)

	assert.Equal(t, "order_ABC", intent.ID)
	assert.Equal(t, int64(30000), intent.Amount)
	assert.EqualValues(t, 30000, got["amount"])
	assert.Equal(t, "INR", got["currency"])
	assert.Equal(t, "receipt_9", got["receipt"])
	assert.Equal(t, map[string]any{"order_id": "9", "user_id": "1"}, got["notes"])
}

func TestCreateIntentAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"code":"BAD_REQUEST_ERROR","description":"amount too small"}}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL, time.Second).CreateIntent(context.Background(), IntentRequest{
		AmountMinorUnits: 1, Currency: "INR", Receipt: "r",
	})

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "BAD_REQUEST_ERROR", apiErr.Code)
}

func TestCreateIntentTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	_, err := newTestClient(srv.URL, 50*time.Millisecond).CreateIntent(context.Background(), IntentRequest{
		AmountMinorUnits: 100, Currency: "INR", Receipt: "r",
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded), "got %v", err)
}

func TestCreateIntentRejectsNonPositiveAmount(t *testing.T) {
	_, err := newTestClient("http://127.0.0.1:0", time.Second).CreateIntent(context.Background(), IntentRequest{
		AmountMinorUnits: 0, Currency: "INR", Receipt: "r",
	})
	assert.Error(t, err)
}

func TestVerifySignature(t *testing.T) {
	sig := Sign("topsecret", "order_ABC", "pay_123")

	assert.True(t, VerifySignature("topsecret", "order_ABC", "pay_123", sig))
	assert.False(t, VerifySignature("topsecret", "order_ABC", "pay_124", sig))
	assert.False(t, VerifySignature("topsecret", "order_ABD", "pay_123", sig))
	assert.False(t, VerifySignature("othersecret", "order_ABC", "pay_123", sig))
	assert.False(t, VerifySignature("topsecret", "order_ABC", "pay_123", ""))
	assert.Len(t, sig, 64)
}

func TestSignKnownVector(t *testing.T) {
	// echo -n "order_ABC|pay_123" | openssl dgst -sha256 -hmac topsecret
	assert.Equal(t, "c0be8639902a67a8a89ea4c548fca5dc813f483cb82614e0ab2d1ea898a2b296",
		Sign("topsecret", "order_ABC", "pay_123"))
}
