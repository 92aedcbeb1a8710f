package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/hashicorp/go-retryablehttp"
)

// ProvisionOptions configures a session-provisioning call.
type ProvisionOptions struct {
	// BaseURL is the gateway's HTTP origin, e.g. "https://chat.example.com".
	BaseURL string

	// APIKey and APISecret authenticate against the provisioning API.
	APIKey    string
	APISecret string

	// ClientID pins the session id; empty lets the server generate one.
	ClientID string

	// Metadata seeds the session's client metadata.
	Metadata map[string]any

	// HTTPClient overrides the default retrying client.
	HTTPClient *retryablehttp.Client
}

// ProvisionResult is the server's session grant.
type ProvisionResult struct {
	SessionID    string    `json:"sessionId"`
	WebsocketURL string    `json:"websocketUrl"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

// Provision creates a session via the REST API and returns the WebSocket
// URL to connect to. Transient failures are retried with backoff.
func Provision(ctx context.Context, opts ProvisionOptions) (*ProvisionResult, error) {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = retryablehttp.NewClient()
		httpClient.RetryMax = 3
		httpClient.Logger = nil
	}

	body, err := sonic.Marshal(map[string]any{
		"clientId": opts.ClientID,
		"metadata": opts.Metadata,
	})
	if err != nil {
		return nil, err
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost,
		opts.BaseURL+"/api/sessions", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if opts.APIKey != "" {
		req.Header.Set("x-api-key", opts.APIKey)
	}
	if opts.APISecret != "" {
		req.Header.Set("x-api-secret", opts.APISecret)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("provision session: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("provision session: status %d: %s", resp.StatusCode, data)
	}

	var result ProvisionResult
	if err := sonic.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("provision session: malformed response: %w", err)
	}
	return &result, nil
}
