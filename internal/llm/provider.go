package llm

import (
	"context"
	"errors"

	"github.com/chatwire/chatwire/internal/protocol"
)

// ErrAborted is the sentinel returned through OnError when a generation was
// cancelled rather than failed.
var ErrAborted = errors.New("request aborted")

// CompletionResponse is the final result of one generation.
type CompletionResponse struct {
	Content      string
	TokenUsage   protocol.TokenUsage
	Model        string
	FinishReason string
}

// Request describes one generation.
type Request struct {
	Messages     []protocol.ConversationMessage
	SystemPrompt string
	Model        string
	MaxTokens    int
	Temperature  float64
}

// Callbacks receive streaming results. OnChunk may be called zero or more
// times; afterwards exactly one of OnComplete or OnError is called.
type Callbacks struct {
	OnChunk    func(chunk string)
	OnComplete func(resp CompletionResponse)
	OnError    func(err error)
}

// Provider is a streaming text-generation backend. StreamCompletion blocks
// until the generation finishes, fails, or ctx is cancelled; callers that need
// fire-and-forget run it on their own goroutine.
type Provider interface {
	StreamCompletion(ctx context.Context, req Request, cb Callbacks)
}

// CancelToken is the per-generation mutual-exclusion and abort-signalling
// handle. Token identity (pointer equality) distinguishes a live generation
// from a superseded one; late callbacks from an old token must be dropped.
type CancelToken struct {
	ctx    context.Context
	cancel context.CancelFunc
}

// NewCancelToken derives a cancellation token from parent.
func NewCancelToken(parent context.Context) *CancelToken {
	ctx, cancel := context.WithCancel(parent)
	return &CancelToken{ctx: ctx, cancel: cancel}
}

// Context returns the context to pass into the provider call.
func (t *CancelToken) Context() context.Context { return t.ctx }

// Cancel signals the generation to stop. Safe to call more than once.
func (t *CancelToken) Cancel() { t.cancel() }

// Cancelled reports whether Cancel has been called.
func (t *CancelToken) Cancelled() bool {
	select {
	case <-t.ctx.Done():
		return true
	default:
		return false
	}
}
