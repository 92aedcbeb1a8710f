package llm

import (
	"context"
	"sync"
)

// MockProvider is a scripted provider for tests. It emits the configured
// chunks, honouring context cancellation between increments, then completes
// with the configured response or fails with Err.
type MockProvider struct {
	Chunks   []string
	Response CompletionResponse
	Err      error

	// ChunkGate, when set, is received from before each chunk; closing or
	// sending lets tests interleave aborts with streaming.
	ChunkGate chan struct{}

	mu       sync.Mutex
	requests []Request
}

// Requests returns every request this provider has observed.
func (m *MockProvider) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Request, len(m.requests))
	copy(out, m.requests)
	return out
}

// StreamCompletion implements Provider.
func (m *MockProvider) StreamCompletion(ctx context.Context, req Request, cb Callbacks) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()

	for _, chunk := range m.Chunks {
		if m.ChunkGate != nil {
			select {
			case <-m.ChunkGate:
			case <-ctx.Done():
				cb.OnError(ErrAborted)
				return
			}
		}
		select {
		case <-ctx.Done():
			cb.OnError(ErrAborted)
			return
		default:
		}
		cb.OnChunk(chunk)
	}

	if ctx.Err() != nil {
		cb.OnError(ErrAborted)
		return
	}
	if m.Err != nil {
		cb.OnError(m.Err)
		return
	}
	cb.OnComplete(m.Response)
}
