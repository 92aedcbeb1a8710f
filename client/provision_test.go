package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProvision(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/sessions", r.URL.Path)
		assert.Equal(t, "key", r.Header.Get("x-api-key"))
		assert.Equal(t, "secret", r.Header.Get("x-api-secret"))

		var req map[string]any
		require.NoError(t, sonic.ConfigDefault.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "client-1", req["clientId"])

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{
			"sessionId": "client-1",
			"websocketUrl": "ws://example/ws/client-1",
			"expiresAt": "2026-01-01T00:00:00Z"
		}`))
	}))
	defer server.Close()

	result, err := Provision(context.Background(), ProvisionOptions{
		BaseURL:   server.URL,
		APIKey:    "key",
		APISecret: "secret",
		ClientID:  "client-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "client-1", result.SessionID)
	assert.Equal(t, "ws://example/ws/client-1", result.WebsocketURL)
	assert.Equal(t, 2026, result.ExpiresAt.Year())
}

func TestProvisionRetriesTransientFailures(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"sessionId":"s1","websocketUrl":"ws://x/ws/s1","expiresAt":"2026-01-01T00:00:00Z"}`))
	}))
	defer server.Close()

	httpClient := retryablehttp.NewClient()
	httpClient.RetryMax = 2
	httpClient.RetryWaitMin = time.Millisecond
	httpClient.RetryWaitMax = 5 * time.Millisecond
	httpClient.Logger = nil

	result, err := Provision(context.Background(), ProvisionOptions{
		BaseURL:    server.URL,
		HTTPClient: httpClient,
	})
	require.NoError(t, err)
	assert.Equal(t, "s1", result.SessionID)
	assert.Equal(t, int64(2), calls.Load())
}

func TestProvisionRejectsErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"invalid API credentials"}`))
	}))
	defer server.Close()

	_, err := Provision(context.Background(), ProvisionOptions{BaseURL: server.URL})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}
