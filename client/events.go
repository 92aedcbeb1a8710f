package client

import "time"

// State is the connection state of a Client.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateError        State = "error"
)

// TokenUsage reports prompt and completion token counts.
type TokenUsage struct {
	Prompt     int `json:"prompt"`
	Completion int `json:"completion"`
	Total      int `json:"total"`
}

// Message is one turn of the client-side conversation log.
type Message struct {
	ID          string    `json:"id"`
	Role        string    `json:"role"`
	Content     string    `json:"content"`
	Timestamp   time.Time `json:"timestamp"`
	Streaming   bool      `json:"streaming,omitempty"`
	Suggestions []string  `json:"suggestions,omitempty"`
}

// Event is a typed notification from the client. Consumers receive events
// in emission order from Events().
type Event interface {
	event()
}

// StateEvent reports a connection state change. Emitted exactly once per
// actual transition.
type StateEvent struct {
	State State
}

// SessionEvent reports the server acknowledging the session binding.
type SessionEvent struct {
	SessionID     string
	ServerVersion string
}

// ReadyEvent acknowledges a context, file, metadata, or instructions update.
type ReadyEvent struct {
	ContextID string
}

// ActivityEvent reports the server-side activity status (idle, typing,
// processing).
type ActivityEvent struct {
	Status  string
	Message string
}

// StreamEvent carries one text increment of an in-flight generation.
type StreamEvent struct {
	MessageID string
	Chunk     string
}

// CompleteEvent carries a generation's final text and suggestions.
type CompleteEvent struct {
	MessageID   string
	Content     string
	Suggestions []string
	TokenUsage  TokenUsage
}

// ErrorEvent surfaces a server-pushed or connection-level error.
type ErrorEvent struct {
	Code      string
	Message   string
	MessageID string
	Retryable bool
}

// ReconnectEvent reports a scheduled reconnection attempt.
type ReconnectEvent struct {
	Attempt int
	Delay   time.Duration
}

func (StateEvent) event()     {}
func (SessionEvent) event()   {}
func (ReadyEvent) event()     {}
func (ActivityEvent) event()  {}
func (StreamEvent) event()    {}
func (CompleteEvent) event()  {}
func (ErrorEvent) event()     {}
func (ReconnectEvent) event() {}
