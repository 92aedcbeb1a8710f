package protocol

import "time"

// Client→server message types.
const (
	TypeInit            = "init"
	TypeContext         = "context"
	TypeMessage         = "message"
	TypePing            = "ping"
	TypeAbort           = "abort"
	TypeNewConversation = "new_conversation"
	TypeReset           = "reset"
	TypeFile            = "file"
	TypeMetadata        = "metadata"
	TypeInstructions    = "instructions"
)

// Server→client message types.
const (
	TypeConnected = "connected"
	TypeReady     = "ready"
	TypeStatus    = "status"
	TypeStream    = "stream"
	TypeComplete  = "complete"
	TypeError     = "error"
	TypePong      = "pong"
)

// MaxMessageLength is the ceiling for a single user turn, in characters.
const MaxMessageLength = 10000

// ClientMessage is a decoded client→server frame.
type ClientMessage interface {
	MessageType() string
}

// InitPayload binds or creates the session for this socket.
type InitPayload struct {
	ClientID string         `json:"clientId,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// ContextPayload replaces the session's context object.
type ContextPayload struct {
	Data      map[string]any `json:"data"`
	ContextID string         `json:"contextId,omitempty"`
}

// MessagePayload is one user turn.
type MessagePayload struct {
	Content        string `json:"content"`
	MessageID      string `json:"messageId"`
	ConversationID string `json:"conversationId,omitempty"`
}

// PingPayload refreshes activity and expects a pong.
type PingPayload struct{}

// AbortPayload cancels the active generation, if any.
type AbortPayload struct {
	MessageID string `json:"messageId,omitempty"`
}

// NewConversationPayload clears history, keeping context and instructions.
type NewConversationPayload struct{}

// ResetPayload drops history, context, instructions and zeroes counters.
type ResetPayload struct{}

// FilePayload uploads file content into the session context.
type FilePayload struct {
	Content  string `json:"content"`
	Filename string `json:"filename,omitempty"`
}

// MetadataPayload merges or replaces client metadata. Data may arrive as a
// JSON object or as a JSON string that itself encodes an object.
type MetadataPayload struct {
	Data  any  `json:"data"`
	Merge bool `json:"merge,omitempty"`
}

// InstructionsPayload replaces the session's system instructions.
type InstructionsPayload struct {
	Content string `json:"content"`
}

func (InitPayload) MessageType() string            { return TypeInit }
func (ContextPayload) MessageType() string         { return TypeContext }
func (MessagePayload) MessageType() string         { return TypeMessage }
func (PingPayload) MessageType() string            { return TypePing }
func (AbortPayload) MessageType() string           { return TypeAbort }
func (NewConversationPayload) MessageType() string { return TypeNewConversation }
func (ResetPayload) MessageType() string           { return TypeReset }
func (FilePayload) MessageType() string            { return TypeFile }
func (MetadataPayload) MessageType() string        { return TypeMetadata }
func (InstructionsPayload) MessageType() string    { return TypeInstructions }

// TokenUsage reports prompt and completion token counts.
type TokenUsage struct {
	Prompt     int `json:"prompt"`
	Completion int `json:"completion"`
	Total      int `json:"total"`
}

// Add accumulates another usage report into this one.
func (u *TokenUsage) Add(other TokenUsage) {
	u.Prompt += other.Prompt
	u.Completion += other.Completion
	u.Total += other.Prompt + other.Completion
}

// ServerStatus is the server-reported activity for a session.
type ServerStatus string

const (
	StatusIdle       ServerStatus = "idle"
	StatusTyping     ServerStatus = "typing"
	StatusProcessing ServerStatus = "processing"
)

// ConnectedMessage acknowledges a session binding.
type ConnectedMessage struct {
	SessionID     string `json:"sessionId"`
	ServerVersion string `json:"serverVersion,omitempty"`
}

// ReadyMessage acknowledges a context/file/metadata/instructions update.
type ReadyMessage struct {
	ContextID string `json:"contextId,omitempty"`
}

// StatusMessage reports a server activity transition.
type StatusMessage struct {
	Status  ServerStatus `json:"status"`
	Message string       `json:"message,omitempty"`
}

// StreamMessage carries one text increment of an in-flight generation.
type StreamMessage struct {
	Chunk     string `json:"chunk"`
	MessageID string `json:"messageId"`
}

// CompleteMessage carries the authoritative final text of a generation.
type CompleteMessage struct {
	MessageID         string         `json:"messageId"`
	Content           string         `json:"content"`
	TokenUsage        TokenUsage     `json:"tokenUsage"`
	Metadata          map[string]any `json:"metadata,omitempty"`
	FollowUpQuestions []string       `json:"followUpQuestions,omitempty"`
}

// ErrorMessage reports a typed protocol-level error.
type ErrorMessage struct {
	Code      ErrorCode `json:"code"`
	Message   string    `json:"message"`
	MessageID string    `json:"messageId,omitempty"`
	Retryable bool      `json:"retryable"`
}

// PongMessage answers a ping. It has no payload.
type PongMessage struct{}

// ServerMessage is a server→client frame body.
type ServerMessage interface {
	MessageType() string
}

func (ConnectedMessage) MessageType() string { return TypeConnected }
func (ReadyMessage) MessageType() string     { return TypeReady }
func (StatusMessage) MessageType() string    { return TypeStatus }
func (StreamMessage) MessageType() string    { return TypeStream }
func (CompleteMessage) MessageType() string  { return TypeComplete }
func (ErrorMessage) MessageType() string     { return TypeError }
func (PongMessage) MessageType() string      { return TypePong }

// ConversationMessage is one role-tagged turn of session history.
type ConversationMessage struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	MessageID string    `json:"messageId,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Role tags a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)
