package session

import (
	"sync"
	"time"

	"github.com/chatwire/chatwire/internal/llm"
	"github.com/chatwire/chatwire/internal/protocol"
)

// Socket is the transport handle a session owns while attached. Implemented
// by the ws package; kept as an interface so the store never imports the
// transport.
type Socket interface {
	Send(msg protocol.ServerMessage) error
	Close(code int, reason string) error
}

// Metadata keys a client may set to override follow-up behavior per session.
const (
	MetaDisableFollowUp = "disableFollowUpQuestions"
	MetaFollowUpCount   = "followUpQuestionsCount"
)

// Session binds a socket (when attached) to conversation history, context,
// and instructions. All fields are guarded by mu; mutation goes through
// methods so the per-session invariants hold regardless of which goroutine
// (read loop, stream callback, sweeper) is calling.
type Session struct {
	mu sync.RWMutex

	id           string
	socket       Socket
	context      map[string]any
	history      []protocol.ConversationMessage
	instructions string
	metadata     map[string]any
	tokenUsage   protocol.TokenUsage
	createdAt    time.Time
	lastActivity time.Time

	// active is the cancellation handle of the in-flight generation.
	// Non-nil iff a generation is running: this is the mutual-exclusion
	// flag for one generation per session.
	active *llm.CancelToken
}

// ID returns the session id, stable across reconnects.
func (s *Session) ID() string { return s.id }

// CreatedAt returns the creation timestamp.
func (s *Session) CreatedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.createdAt
}

// LastActivity returns the last activity timestamp.
func (s *Session) LastActivity() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastActivity
}

// Touch refreshes the activity timestamp.
func (s *Session) Touch() {
	s.mu.Lock()
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

// AttachSocket installs a new socket, closing any prior one first so the
// session never has two active sockets.
func (s *Session) AttachSocket(sock Socket) {
	s.mu.Lock()
	prior := s.socket
	s.socket = sock
	s.lastActivity = time.Now()
	s.mu.Unlock()

	if prior != nil && prior != sock {
		_ = prior.Close(CloseNormal, "Replaced by new connection")
	}
}

// Detach forgets sock without closing it, if it is the attached socket.
// Used when a socket rebinds to a different session.
func (s *Session) Detach(sock Socket) {
	s.mu.Lock()
	if s.socket == sock {
		s.socket = nil
	}
	s.mu.Unlock()
}

// Socket returns the currently attached socket, or nil.
func (s *Session) Socket() Socket {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.socket
}

// Send writes a message to the attached socket. A detached session drops the
// message; delivery is best effort over a live socket.
func (s *Session) Send(msg protocol.ServerMessage) {
	if sock := s.Socket(); sock != nil {
		_ = sock.Send(msg)
	}
}

// SetContext replaces the session's context object.
func (s *Session) SetContext(data map[string]any) {
	s.mu.Lock()
	s.context = data
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

// Context returns the context object. Callers treat it as read-only.
func (s *Session) Context() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.context
}

// AddDocument appends an uploaded file as a context document, creating the
// context object if needed.
func (s *Session) AddDocument(content, title string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.context == nil {
		s.context = map[string]any{}
	}
	doc := map[string]any{"content": content}
	if title != "" {
		doc["title"] = title
	}
	docs, _ := s.context["documents"].([]any)
	s.context["documents"] = append(docs, doc)
	s.lastActivity = time.Now()
}

// SetInstructions replaces the custom system instructions.
func (s *Session) SetInstructions(content string) {
	s.mu.Lock()
	s.instructions = content
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

// Instructions returns the custom system instructions, empty if unset.
func (s *Session) Instructions() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.instructions
}

// UpdateMetadata merges or replaces the client-supplied metadata.
func (s *Session) UpdateMetadata(data map[string]any, merge bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if merge && s.metadata != nil {
		for k, v := range data {
			s.metadata[k] = v
		}
	} else {
		s.metadata = make(map[string]any, len(data))
		for k, v := range data {
			s.metadata[k] = v
		}
	}
	s.lastActivity = time.Now()
}

// Metadata returns a copy of the client metadata.
func (s *Session) Metadata() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]any, len(s.metadata))
	for k, v := range s.metadata {
		out[k] = v
	}
	return out
}

// AppendMessage appends one turn to the conversation history.
func (s *Session) AppendMessage(msg protocol.ConversationMessage) {
	s.mu.Lock()
	s.history = append(s.history, msg)
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

// History returns a copy of the conversation history.
func (s *Session) History() []protocol.ConversationMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]protocol.ConversationMessage, len(s.history))
	copy(out, s.history)
	return out
}

// AddTokenUsage accumulates a completion's token counts. Totals only grow.
func (s *Session) AddTokenUsage(usage protocol.TokenUsage) {
	s.mu.Lock()
	s.tokenUsage.Add(usage)
	s.mu.Unlock()
}

// TokenUsage returns the accumulated token counters.
func (s *Session) TokenUsage() protocol.TokenUsage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tokenUsage
}

// ClearConversation drops history, keeping context and instructions.
func (s *Session) ClearConversation() {
	s.mu.Lock()
	s.history = nil
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

// Reset drops history, context and instructions and zeroes the counters.
func (s *Session) Reset() {
	s.mu.Lock()
	s.history = nil
	s.context = nil
	s.instructions = ""
	s.tokenUsage = protocol.TokenUsage{}
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

// TryBeginGeneration installs tok as the active generation handle. It fails
// if another generation is already active.
func (s *Session) TryBeginGeneration(tok *llm.CancelToken) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active != nil {
		return false
	}
	s.active = tok
	s.lastActivity = time.Now()
	return true
}

// ClearGeneration clears the active handle iff tok is still the installed
// one. A stale token from a superseded generation is rejected, so its late
// callbacks cannot corrupt a newer generation's state.
func (s *Session) ClearGeneration(tok *llm.CancelToken) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active != tok {
		return false
	}
	s.active = nil
	return true
}

// GenerationActive reports whether a generation is in flight.
func (s *Session) GenerationActive() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active != nil
}

// AbortGeneration cancels the active generation, if any. The handle is left
// installed; the stream's error path clears it, keeping exactly one place
// responsible for the transition.
func (s *Session) AbortGeneration() bool {
	s.mu.RLock()
	tok := s.active
	s.mu.RUnlock()

	if tok == nil {
		return false
	}
	tok.Cancel()
	return true
}

// FollowUpEnabled reports whether follow-up question generation applies to
// this session: the metadata override wins, else the global default.
func (s *Session) FollowUpEnabled(globalDefault bool) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if disabled, ok := s.metadata[MetaDisableFollowUp].(bool); ok && disabled {
		return false
	}
	return globalDefault
}

// FollowUpCount returns the number of follow-up questions to request,
// clamped to [1, 5] for session overrides, else the global default.
func (s *Session) FollowUpCount(globalDefault int) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if raw, ok := s.metadata[MetaFollowUpCount]; ok {
		if n, ok := asInt(raw); ok && n >= 1 && n <= 5 {
			return n
		}
	}
	return globalDefault
}

// asInt accepts the numeric shapes JSON decoding produces.
func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}
