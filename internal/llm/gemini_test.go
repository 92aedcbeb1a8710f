package llm

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatwire/chatwire/internal/config"
	"github.com/chatwire/chatwire/internal/logging"
	"github.com/chatwire/chatwire/internal/protocol"
)

func geminiTestServer(t *testing.T, lines []string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Contains(t, r.URL.Path, ":streamGenerateContent")
		w.Header().Set("Content-Type", "text/event-stream")
		for _, line := range lines {
			_, _ = w.Write([]byte(line + "\n\n"))
		}
	}))
}

func newTestGemini(t *testing.T, baseURL string) *GeminiProvider {
	t.Helper()
	p, err := NewGeminiProvider(config.LLMConfig{
		APIKey:      "test-key",
		Model:       "gemini-2.5-pro",
		BaseURL:     baseURL,
		MaxTokens:   128,
		Temperature: 0.5,
	}, logging.NewNop())
	require.NoError(t, err)
	return p
}

func TestGeminiStreaming(t *testing.T) {
	srv := geminiTestServer(t, []string{
		`data: {"candidates":[{"content":{"parts":[{"text":"Hel"}]}}]}`,
		`data: {"candidates":[{"content":{"parts":[{"text":"lo"}]},"finishReason":"STOP"}],"usageMetadata":{"promptTokenCount":7,"candidatesTokenCount":2}}`,
	})
	defer srv.Close()

	p := newTestGemini(t, srv.URL)

	var chunks []string
	var complete *CompletionResponse

	p.StreamCompletion(context.Background(), Request{
		Messages: []protocol.ConversationMessage{
			{Role: protocol.RoleUser, Content: "hi"},
		},
		SystemPrompt: "be brief",
	}, Callbacks{
		OnChunk:    func(c string) { chunks = append(chunks, c) },
		OnComplete: func(r CompletionResponse) { complete = &r },
		OnError:    func(err error) { t.Fatalf("unexpected error: %v", err) },
	})

	require.NotNil(t, complete)
	assert.Equal(t, []string{"Hel", "lo"}, chunks)
	assert.Equal(t, "Hello", complete.Content)
	assert.Equal(t, 7, complete.TokenUsage.Prompt)
	assert.Equal(t, 2, complete.TokenUsage.Completion)
	assert.Equal(t, 9, complete.TokenUsage.Total)
	assert.Equal(t, "STOP", complete.FinishReason)
}

func TestGeminiHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"quota exceeded"}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	p := newTestGemini(t, srv.URL)

	var gotErr error
	p.StreamCompletion(context.Background(), Request{}, Callbacks{
		OnChunk:    func(string) { t.Fatal("no chunks expected") },
		OnComplete: func(CompletionResponse) { t.Fatal("no completion expected") },
		OnError:    func(err error) { gotErr = err },
	})

	require.Error(t, gotErr)
	assert.Contains(t, gotErr.Error(), "429")
}

func TestGeminiAborted(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	srv := geminiTestServer(t, nil)
	defer srv.Close()

	p := newTestGemini(t, srv.URL)

	var gotErr error
	p.StreamCompletion(ctx, Request{}, Callbacks{
		OnChunk:    func(string) {},
		OnComplete: func(CompletionResponse) { t.Fatal("no completion expected") },
		OnError:    func(err error) { gotErr = err },
	})

	assert.ErrorIs(t, gotErr, ErrAborted)
}

func TestGeminiHistoryConversion(t *testing.T) {
	contents := convertHistory([]protocol.ConversationMessage{
		{Role: protocol.RoleSystem, Content: "sys"},
		{Role: protocol.RoleUser, Content: "q1"},
		{Role: protocol.RoleAssistant, Content: "a1"},
		{Role: protocol.RoleUser, Content: "q2"},
	})

	require.Len(t, contents, 3)
	assert.Equal(t, "user", contents[0].Role)
	assert.Equal(t, "model", contents[1].Role)
	assert.Equal(t, "user", contents[2].Role)
}

func TestGeminiRequiresAPIKey(t *testing.T) {
	_, err := NewGeminiProvider(config.LLMConfig{}, logging.NewNop())
	assert.Error(t, err)
}
