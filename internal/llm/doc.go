// Package llm defines the streaming text-generation contract and its
// implementations.
//
// A Provider consumes the full conversation plus an assembled system prompt
// and delivers the response through callbacks: OnChunk per text increment,
// then exactly one of OnComplete or OnError. Callbacks are invoked
// sequentially from a single goroutine. Cancellation is signalled through the
// request context; a cancelled generation ends with OnError(ErrAborted).
package llm
