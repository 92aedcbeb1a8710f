package client

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Conversation mirrors server-pushed events into an ordered message log.
// Streaming increments coalesce into one growing message; completion
// replaces its text wholesale with the authoritative final version.
type Conversation struct {
	mu sync.Mutex

	messages    []Message
	usage       TokenUsage
	activity    string
	suggestions []string

	// streaming maps a generation's server message id to the local id of
	// the streaming turn it feeds.
	streaming map[string]string
}

// NewConversation creates an empty conversation.
func NewConversation() *Conversation {
	return &Conversation{
		activity:  "idle",
		streaming: make(map[string]string),
	}
}

// Messages returns a snapshot of the message log.
func (cv *Conversation) Messages() []Message {
	cv.mu.Lock()
	defer cv.mu.Unlock()

	out := make([]Message, len(cv.messages))
	copy(out, cv.messages)
	return out
}

// TokenUsage returns the accumulated token totals.
func (cv *Conversation) TokenUsage() TokenUsage {
	cv.mu.Lock()
	defer cv.mu.Unlock()
	return cv.usage
}

// Activity returns the last server-reported activity status.
func (cv *Conversation) Activity() string {
	cv.mu.Lock()
	defer cv.mu.Unlock()
	return cv.activity
}

// Suggestions returns the latest follow-up suggestion set.
func (cv *Conversation) Suggestions() []string {
	cv.mu.Lock()
	defer cv.mu.Unlock()

	out := make([]string, len(cv.suggestions))
	copy(out, cv.suggestions)
	return out
}

// AppendUser optimistically appends a user turn, before any server ack.
func (cv *Conversation) AppendUser(id, content string) {
	cv.mu.Lock()
	defer cv.mu.Unlock()

	cv.messages = append(cv.messages, Message{
		ID:        id,
		Role:      "user",
		Content:   content,
		Timestamp: time.Now(),
	})
}

// ApplyStream feeds one increment. The first increment of an untracked
// generation starts a new streaming turn under a fresh local id, distinct
// from any id the user turn used.
func (cv *Conversation) ApplyStream(messageID, chunk string) {
	cv.mu.Lock()
	defer cv.mu.Unlock()

	localID, tracked := cv.streaming[messageID]
	if !tracked {
		localID = uuid.NewString()
		cv.streaming[messageID] = localID
		cv.messages = append(cv.messages, Message{
			ID:        localID,
			Role:      "assistant",
			Timestamp: time.Now(),
			Streaming: true,
		})
	}

	for i := range cv.messages {
		if cv.messages[i].ID == localID {
			cv.messages[i].Content += chunk
			return
		}
	}
}

// ApplyComplete reconciles a finished generation: the streaming turn's text
// is replaced with the final text, the streaming flag clears, suggestions
// attach, and token deltas accumulate. A generation that never streamed
// gets a fresh turn.
func (cv *Conversation) ApplyComplete(messageID, content string, suggestions []string, usage TokenUsage) {
	cv.mu.Lock()
	defer cv.mu.Unlock()

	cv.usage.Prompt += usage.Prompt
	cv.usage.Completion += usage.Completion
	cv.usage.Total += usage.Prompt + usage.Completion
	cv.suggestions = suggestions

	localID, tracked := cv.streaming[messageID]
	if tracked {
		delete(cv.streaming, messageID)
		for i := range cv.messages {
			if cv.messages[i].ID == localID {
				cv.messages[i].Content = content
				cv.messages[i].Streaming = false
				cv.messages[i].Suggestions = suggestions
				return
			}
		}
	}

	cv.messages = append(cv.messages, Message{
		ID:          uuid.NewString(),
		Role:        "assistant",
		Content:     content,
		Timestamp:   time.Now(),
		Suggestions: suggestions,
	})
}

// ApplyError drops stream tracking for the failed generation but leaves the
// message log untouched; no partial turn rollback.
func (cv *Conversation) ApplyError(messageID string) {
	cv.mu.Lock()
	defer cv.mu.Unlock()

	if localID, tracked := cv.streaming[messageID]; tracked {
		delete(cv.streaming, messageID)
		for i := range cv.messages {
			if cv.messages[i].ID == localID {
				cv.messages[i].Streaming = false
				return
			}
		}
	}
}

// SetActivity records the server-reported activity status.
func (cv *Conversation) SetActivity(status string) {
	cv.mu.Lock()
	cv.activity = status
	cv.mu.Unlock()
}

// Reset clears everything including counters.
func (cv *Conversation) Reset() {
	cv.mu.Lock()
	defer cv.mu.Unlock()

	cv.messages = nil
	cv.usage = TokenUsage{}
	cv.suggestions = nil
	cv.activity = "idle"
	cv.streaming = make(map[string]string)
}

// Snapshot is a persistable view of the conversation.
type Snapshot struct {
	Messages   []Message  `json:"messages"`
	TokenUsage TokenUsage `json:"tokenUsage"`
	Timestamp  time.Time  `json:"timestamp"`
}

// Export captures the conversation for persistence.
func (cv *Conversation) Export() *Snapshot {
	cv.mu.Lock()
	defer cv.mu.Unlock()

	messages := make([]Message, len(cv.messages))
	copy(messages, cv.messages)
	return &Snapshot{
		Messages:   messages,
		TokenUsage: cv.usage,
		Timestamp:  time.Now(),
	}
}

// Import replaces the conversation with a previously exported snapshot.
func (cv *Conversation) Import(snap *Snapshot) {
	cv.mu.Lock()
	defer cv.mu.Unlock()

	cv.messages = make([]Message, len(snap.Messages))
	copy(cv.messages, snap.Messages)
	cv.usage = snap.TokenUsage
	cv.suggestions = nil
	cv.streaming = make(map[string]string)
}
