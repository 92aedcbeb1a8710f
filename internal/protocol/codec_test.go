package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeClientMessages(t *testing.T) {
	tests := []struct {
		name string
		data string
		want string
	}{
		{"init", `{"type":"init","payload":{"clientId":"abc","metadata":{"k":"v"}}}`, TypeInit},
		{"context", `{"type":"context","payload":{"data":{"system":"x"},"contextId":"ctx_1"}}`, TypeContext},
		{"message", `{"type":"message","payload":{"content":"hi","messageId":"m1"}}`, TypeMessage},
		{"ping", `{"type":"ping"}`, TypePing},
		{"abort", `{"type":"abort","payload":{"messageId":"m1"}}`, TypeAbort},
		{"new_conversation", `{"type":"new_conversation"}`, TypeNewConversation},
		{"reset", `{"type":"reset"}`, TypeReset},
		{"file", `{"type":"file","payload":{"content":"data","filename":"a.txt"}}`, TypeFile},
		{"metadata", `{"type":"metadata","payload":{"data":{"a":1},"merge":true}}`, TypeMetadata},
		{"instructions", `{"type":"instructions","payload":{"content":"be terse"}}`, TypeInstructions},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := Decode([]byte(tt.data))
			require.NoError(t, err)
			assert.Equal(t, tt.want, msg.MessageType())
		})
	}
}

func TestDecodeInitFields(t *testing.T) {
	msg, err := Decode([]byte(`{"type":"init","payload":{"clientId":"client-7"}}`))
	require.NoError(t, err)

	init, ok := msg.(InitPayload)
	require.True(t, ok)
	assert.Equal(t, "client-7", init.ClientID)
}

func TestDecodeInitWithoutPayload(t *testing.T) {
	msg, err := Decode([]byte(`{"type":"init"}`))
	require.NoError(t, err)

	init, ok := msg.(InitPayload)
	require.True(t, ok)
	assert.Empty(t, init.ClientID)
	assert.Empty(t, init.Metadata)
}

func TestDecodeUnknownType(t *testing.T) {
	_, err := Decode([]byte(`{"type":"teleport"}`))

	var unknown *UnknownTypeError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "teleport", unknown.Type)
}

func TestDecodeInvalid(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"not json", `not json at all`},
		{"missing type", `{"payload":{}}`},
		{"context without data", `{"type":"context","payload":{}}`},
		{"file without content", `{"type":"file","payload":{"filename":"a"}}`},
		{"instructions without content", `{"type":"instructions","payload":{}}`},
		{"metadata without data", `{"type":"metadata","payload":{"merge":true}}`},
		{"message without payload", `{"type":"message"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.data))
			assert.Error(t, err)
		})
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	data, err := Encode(CompleteMessage{
		MessageID:         "m1",
		Content:           "hello",
		TokenUsage:        TokenUsage{Prompt: 10, Completion: 5, Total: 15},
		FollowUpQuestions: []string{"a?", "b?"},
	})
	require.NoError(t, err)

	msg, err := DecodeServer(data)
	require.NoError(t, err)

	complete, ok := msg.(CompleteMessage)
	require.True(t, ok)
	assert.Equal(t, "hello", complete.Content)
	assert.Equal(t, 15, complete.TokenUsage.Total)
	assert.Equal(t, []string{"a?", "b?"}, complete.FollowUpQuestions)
}

func TestEncodeClientRoundTrip(t *testing.T) {
	data, err := EncodeClient(MessagePayload{Content: "hi", MessageID: "m9"})
	require.NoError(t, err)

	msg, err := Decode(data)
	require.NoError(t, err)

	m, ok := msg.(MessagePayload)
	require.True(t, ok)
	assert.Equal(t, "hi", m.Content)
	assert.Equal(t, "m9", m.MessageID)
}

func TestErrorRetryability(t *testing.T) {
	assert.False(t, CodeAuthFailed.Retryable())
	assert.False(t, CodeStreamAborted.Retryable())
	assert.False(t, CodeConnectionError.Retryable())
	assert.False(t, CodeMessageTooLong.Retryable())
	assert.True(t, CodeServerError.Retryable())
	assert.True(t, CodeRateLimit.Retryable())
	assert.True(t, CodeTimeout.Retryable())
}

func TestTokenUsageAdd(t *testing.T) {
	var u TokenUsage
	u.Add(TokenUsage{Prompt: 10, Completion: 5, Total: 15})
	u.Add(TokenUsage{Prompt: 3, Completion: 2, Total: 5})

	assert.Equal(t, 13, u.Prompt)
	assert.Equal(t, 7, u.Completion)
	assert.Equal(t, 20, u.Total)
}
