package client

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/chatwire/chatwire/internal/protocol"
)

// Defaults for the connection state machine.
const (
	DefaultReconnectAttempts = 5
	DefaultReconnectDelay    = 3 * time.Second
	DefaultPingInterval      = 30 * time.Second
)

// ErrNotConnected is returned by send operations while the socket is down.
var ErrNotConnected = errors.New("client is not connected")

// Options configures a Client.
type Options struct {
	// URL is the full WebSocket URL, typically from Provision.
	URL string

	// ReconnectAttempts caps scheduled reconnections. Zero means the
	// default; negative disables reconnection.
	ReconnectAttempts int

	// ReconnectDelay is the backoff base: attempt n waits base × 2^(n-1).
	ReconnectDelay time.Duration

	// PingInterval drives the keep-alive ping while connected.
	PingInterval time.Duration

	// Dialer overrides the default websocket dialer.
	Dialer *websocket.Dialer

	// EventBuffer is the capacity of the event channel. Zero means 256.
	EventBuffer int
}

func (o *Options) withDefaults() Options {
	out := *o
	if out.ReconnectAttempts == 0 {
		out.ReconnectAttempts = DefaultReconnectAttempts
	}
	if out.ReconnectAttempts < 0 {
		out.ReconnectAttempts = 0
	}
	if out.ReconnectDelay == 0 {
		out.ReconnectDelay = DefaultReconnectDelay
	}
	if out.PingInterval == 0 {
		out.PingInterval = DefaultPingInterval
	}
	if out.Dialer == nil {
		out.Dialer = websocket.DefaultDialer
	}
	if out.EventBuffer == 0 {
		out.EventBuffer = 256
	}
	return out
}

// Client is the gateway SDK: a connection state machine with exponential
// backoff reconnection, plus the conversation state it keeps consistent
// with server-pushed events.
type Client struct {
	opts         Options
	conversation *Conversation
	events       chan Event

	mu             sync.Mutex
	state          State
	conn           *websocket.Conn
	attempts       int
	reconnectTimer *time.Timer
	stopPing       chan struct{}
	closed         bool
}

// New creates a disconnected client.
func New(opts Options) *Client {
	o := opts.withDefaults()
	return &Client{
		opts:         o,
		conversation: NewConversation(),
		events:       make(chan Event, o.EventBuffer),
		state:        StateDisconnected,
	}
}

// Events returns the typed event stream. Events arrive in emission order;
// when the buffer is full, new events are dropped rather than blocking the
// read loop.
func (c *Client) Events() <-chan Event {
	return c.events
}

// Conversation returns the client-side conversation state.
func (c *Client) Conversation() *Conversation {
	return c.conversation
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connect opens the socket. On success the client is connected, the
// reconnect counter resets, and the keep-alive ping starts. On failure the
// client enters the error state and, within the retry budget, schedules a
// reconnection.
func (c *Client) Connect() error {
	c.mu.Lock()
	if c.state == StateConnecting || c.state == StateConnected {
		c.mu.Unlock()
		return nil
	}
	c.closed = false
	c.setState(StateConnecting)
	c.mu.Unlock()

	conn, _, err := c.opts.Dialer.Dial(c.opts.URL, nil)
	if err != nil {
		c.mu.Lock()
		c.setState(StateError)
		c.mu.Unlock()
		c.emit(ErrorEvent{
			Code:      string(protocol.CodeConnectionError),
			Message:   err.Error(),
			Retryable: true,
		})
		c.scheduleReconnect()
		return err
	}

	c.mu.Lock()
	if c.closed {
		// Disconnect ran while the dial was in flight; honor it.
		c.setState(StateDisconnected)
		c.mu.Unlock()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "client disconnect"),
			time.Now().Add(time.Second))
		_ = conn.Close()
		return nil
	}
	c.conn = conn
	c.attempts = 0
	c.stopPing = make(chan struct{})
	c.setState(StateConnected)
	stop := c.stopPing
	c.mu.Unlock()

	go c.readLoop(conn)
	go c.pingLoop(stop)
	return nil
}

// Disconnect cancels any pending reconnection and performs a clean close.
// A clean close never triggers auto-reconnect.
func (c *Client) Disconnect() {
	c.mu.Lock()
	c.closed = true
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
	conn := c.conn
	if conn == nil {
		c.setState(StateDisconnected)
	}
	c.mu.Unlock()

	if conn != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "client disconnect"),
			time.Now().Add(time.Second))
		_ = conn.Close()
	}
}

// setState transitions and emits exactly once per actual change.
// Callers hold c.mu.
func (c *Client) setState(next State) {
	if c.state == next {
		return
	}
	c.state = next
	c.emit(StateEvent{State: next})
}

func (c *Client) emit(ev Event) {
	select {
	case c.events <- ev:
	default:
	}
}

func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.handleClose(conn, err)
			return
		}
		if msg, derr := protocol.DecodeServer(data); derr == nil {
			c.dispatch(msg)
		}
	}
}

func (c *Client) handleClose(conn *websocket.Conn, err error) {
	c.mu.Lock()
	if c.conn != conn {
		// A newer connection already replaced this one.
		c.mu.Unlock()
		return
	}
	c.conn = nil
	if c.stopPing != nil {
		close(c.stopPing)
		c.stopPing = nil
	}
	clean := c.closed || websocket.IsCloseError(err, websocket.CloseNormalClosure)
	c.setState(StateDisconnected)
	c.mu.Unlock()

	if !clean {
		c.scheduleReconnect()
	}
}

// scheduleReconnect arms the backoff timer. The attempt counter increments
// per scheduled retry and resets only on a successful open.
func (c *Client) scheduleReconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || c.reconnectTimer != nil {
		return
	}
	if c.attempts >= c.opts.ReconnectAttempts {
		return
	}

	c.attempts++
	delay := c.opts.ReconnectDelay * (1 << (c.attempts - 1))
	c.emit(ReconnectEvent{Attempt: c.attempts, Delay: delay})

	c.reconnectTimer = time.AfterFunc(delay, func() {
		c.mu.Lock()
		c.reconnectTimer = nil
		closed := c.closed
		c.mu.Unlock()
		if !closed {
			_ = c.Connect()
		}
	})
}

func (c *Client) pingLoop(stop <-chan struct{}) {
	ticker := time.NewTicker(c.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			_ = c.send(protocol.PingPayload{})
		}
	}
}

func (c *Client) dispatch(msg protocol.ServerMessage) {
	switch m := msg.(type) {
	case protocol.ConnectedMessage:
		c.emit(SessionEvent{SessionID: m.SessionID, ServerVersion: m.ServerVersion})
	case protocol.ReadyMessage:
		c.emit(ReadyEvent{ContextID: m.ContextID})
	case protocol.StatusMessage:
		c.conversation.SetActivity(string(m.Status))
		c.emit(ActivityEvent{Status: string(m.Status), Message: m.Message})
	case protocol.StreamMessage:
		c.conversation.ApplyStream(m.MessageID, m.Chunk)
		c.emit(StreamEvent{MessageID: m.MessageID, Chunk: m.Chunk})
	case protocol.CompleteMessage:
		usage := TokenUsage(m.TokenUsage)
		c.conversation.ApplyComplete(m.MessageID, m.Content, m.FollowUpQuestions, usage)
		c.emit(CompleteEvent{
			MessageID:   m.MessageID,
			Content:     m.Content,
			Suggestions: m.FollowUpQuestions,
			TokenUsage:  usage,
		})
	case protocol.ErrorMessage:
		c.conversation.ApplyError(m.MessageID)
		c.emit(ErrorEvent{
			Code:      string(m.Code),
			Message:   m.Message,
			MessageID: m.MessageID,
			Retryable: m.Retryable,
		})
	case protocol.PongMessage:
		// Keep-alive answered; nothing to surface.
	}
}

func (c *Client) send(msg protocol.ClientMessage) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	data, err := protocol.EncodeClient(msg)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != conn {
		return ErrNotConnected
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}

// SendMessage sends one user turn and returns its message id. The user turn
// is appended to the conversation optimistically, before any server ack.
// Failed sends are not retried automatically; retry is the caller's call.
func (c *Client) SendMessage(content string) (string, error) {
	id := uuid.NewString()
	if err := c.send(protocol.MessagePayload{Content: content, MessageID: id}); err != nil {
		return "", err
	}
	c.conversation.AppendUser(id, content)
	return id, nil
}

// SetContext replaces the session's context object.
func (c *Client) SetContext(data map[string]any, contextID string) error {
	return c.send(protocol.ContextPayload{Data: data, ContextID: contextID})
}

// SetInstructions replaces the session's system instructions.
func (c *Client) SetInstructions(content string) error {
	return c.send(protocol.InstructionsPayload{Content: content})
}

// SetMetadata merges or replaces client metadata.
func (c *Client) SetMetadata(data map[string]any, merge bool) error {
	return c.send(protocol.MetadataPayload{Data: data, Merge: merge})
}

// UploadFile sends file content into the session context.
func (c *Client) UploadFile(content, filename string) error {
	return c.send(protocol.FilePayload{Content: content, Filename: filename})
}

// Abort cancels the active generation, if any.
func (c *Client) Abort(messageID string) error {
	return c.send(protocol.AbortPayload{MessageID: messageID})
}

// NewConversation clears server-side history and the local log, keeping
// context and instructions.
func (c *Client) NewConversation() error {
	if err := c.send(protocol.NewConversationPayload{}); err != nil {
		return err
	}
	c.conversation.Reset()
	return nil
}

// Reset performs a full server-side reset and clears local state.
func (c *Client) Reset() error {
	if err := c.send(protocol.ResetPayload{}); err != nil {
		return err
	}
	c.conversation.Reset()
	return nil
}

// Init rebinds the socket to the session named by clientID, optionally
// merging metadata.
func (c *Client) Init(clientID string, metadata map[string]any) error {
	return c.send(protocol.InitPayload{ClientID: clientID, Metadata: metadata})
}

// Ping sends an application-level keep-alive.
func (c *Client) Ping() error {
	return c.send(protocol.PingPayload{})
}
