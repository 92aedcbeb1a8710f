package client

import (
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatwire/chatwire/internal/protocol"
)

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsServer is a scriptable gateway endpoint. Each dial is counted; the
// handler decides whether to upgrade and what to do with the connection.
type wsServer struct {
	server *httptest.Server
	dials  atomic.Int64
}

func newRawWSServer(t *testing.T, handle func(w http.ResponseWriter, r *http.Request, dial int64)) *wsServer {
	t.Helper()
	s := &wsServer{}
	s.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handle(w, r, s.dials.Add(1))
	}))
	t.Cleanup(s.server.Close)
	return s
}

func newWSServer(t *testing.T, handle func(conn *websocket.Conn, dial int64)) *wsServer {
	t.Helper()
	return newRawWSServer(t, func(w http.ResponseWriter, r *http.Request, dial int64) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		handle(conn, dial)
	})
}

func (s *wsServer) url() string {
	return "ws" + strings.TrimPrefix(s.server.URL, "http")
}

func sendServer(t *testing.T, conn *websocket.Conn, msg protocol.ServerMessage) {
	t.Helper()
	data, err := protocol.Encode(msg)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, data))
}

func closeWith(conn *websocket.Conn, code int) {
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, ""), time.Now().Add(time.Second))
	_ = conn.Close()
}

// drainUntil reads events until one matches, failing on timeout.
func drainUntil(t *testing.T, c *Client, match func(Event) bool) Event {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev := <-c.Events():
			if match(ev) {
				return ev
			}
		case <-deadline:
			t.Fatal("expected event never arrived")
			return nil
		}
	}
}

func TestConnectEmitsStateAndSession(t *testing.T) {
	srv := newWSServer(t, func(conn *websocket.Conn, _ int64) {
		sendServer(t, conn, protocol.ConnectedMessage{SessionID: "s1", ServerVersion: "1"})
	})

	c := New(Options{URL: srv.url(), ReconnectAttempts: -1})
	require.NoError(t, c.Connect())
	t.Cleanup(c.Disconnect)

	drainUntil(t, c, func(ev Event) bool {
		st, ok := ev.(StateEvent)
		return ok && st.State == StateConnecting
	})
	drainUntil(t, c, func(ev Event) bool {
		st, ok := ev.(StateEvent)
		return ok && st.State == StateConnected
	})
	session := drainUntil(t, c, func(ev Event) bool {
		_, ok := ev.(SessionEvent)
		return ok
	}).(SessionEvent)
	assert.Equal(t, "s1", session.SessionID)
	assert.Equal(t, StateConnected, c.State())
}

func TestCleanCloseNeverReconnects(t *testing.T) {
	srv := newWSServer(t, func(conn *websocket.Conn, _ int64) {
		closeWith(conn, websocket.CloseNormalClosure)
	})

	c := New(Options{URL: srv.url(), ReconnectDelay: 10 * time.Millisecond})
	require.NoError(t, c.Connect())

	drainUntil(t, c, func(ev Event) bool {
		st, ok := ev.(StateEvent)
		return ok && st.State == StateDisconnected
	})

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int64(1), srv.dials.Load(), "clean close must not schedule a reconnect")
	assert.Equal(t, StateDisconnected, c.State())
}

func TestAbnormalCloseReconnectsWithBackoff(t *testing.T) {
	// First dial upgrades and dies abnormally; retries are rejected before
	// the upgrade, so no successful open ever resets the counter.
	srv := newRawWSServer(t, func(w http.ResponseWriter, r *http.Request, dial int64) {
		if dial > 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		closeWith(conn, websocket.CloseInternalServerErr)
	})

	c := New(Options{
		URL:               srv.url(),
		ReconnectDelay:    10 * time.Millisecond,
		ReconnectAttempts: 3,
	})
	require.NoError(t, c.Connect())
	t.Cleanup(c.Disconnect)

	// Delay for attempt n is base × 2^(n-1).
	for attempt := 1; attempt <= 3; attempt++ {
		ev := drainUntil(t, c, func(ev Event) bool {
			_, ok := ev.(ReconnectEvent)
			return ok
		}).(ReconnectEvent)
		assert.Equal(t, attempt, ev.Attempt)
		assert.Equal(t, 10*time.Millisecond*(1<<(attempt-1)), ev.Delay)
	}

	// Ceiling reached: no further dials beyond initial + 3 retries.
	require.Eventually(t, func() bool {
		return srv.dials.Load() == 4
	}, 2*time.Second, 10*time.Millisecond)
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, int64(4), srv.dials.Load())
}

func TestAttemptCounterResetsOnSuccessfulOpen(t *testing.T) {
	// First connection dies abnormally; the reconnected one stays up until
	// we kill it, which must restart the attempt numbering at 1.
	holdThenKill := make(chan struct{})
	srv := newWSServer(t, func(conn *websocket.Conn, dial int64) {
		if dial == 1 {
			closeWith(conn, websocket.CloseInternalServerErr)
			return
		}
		if dial == 2 {
			<-holdThenKill
			closeWith(conn, websocket.CloseInternalServerErr)
		}
	})

	c := New(Options{URL: srv.url(), ReconnectDelay: 10 * time.Millisecond})
	require.NoError(t, c.Connect())
	t.Cleanup(c.Disconnect)

	first := drainUntil(t, c, func(ev Event) bool {
		_, ok := ev.(ReconnectEvent)
		return ok
	}).(ReconnectEvent)
	assert.Equal(t, 1, first.Attempt)

	// Wait for the second dial to be live, then kill it.
	require.Eventually(t, func() bool { return srv.dials.Load() >= 2 }, 2*time.Second, 5*time.Millisecond)
	drainUntil(t, c, func(ev Event) bool {
		st, ok := ev.(StateEvent)
		return ok && st.State == StateConnected
	})
	close(holdThenKill)

	second := drainUntil(t, c, func(ev Event) bool {
		_, ok := ev.(ReconnectEvent)
		return ok
	}).(ReconnectEvent)
	assert.Equal(t, 1, second.Attempt, "counter must reset on successful open")
}

func TestDisconnectCancelsPendingReconnect(t *testing.T) {
	srv := newWSServer(t, func(conn *websocket.Conn, _ int64) {
		closeWith(conn, websocket.CloseInternalServerErr)
	})

	c := New(Options{URL: srv.url(), ReconnectDelay: 200 * time.Millisecond})
	require.NoError(t, c.Connect())

	drainUntil(t, c, func(ev Event) bool {
		_, ok := ev.(ReconnectEvent)
		return ok
	})
	c.Disconnect()

	time.Sleep(400 * time.Millisecond)
	assert.Equal(t, int64(1), srv.dials.Load(), "disconnect must cancel the pending reconnect")
}

func TestDisconnectDuringDialStaysDisconnected(t *testing.T) {
	srv := newWSServer(t, func(conn *websocket.Conn, _ int64) {
		sendServer(t, conn, protocol.ConnectedMessage{SessionID: "s1"})
	})

	dialStarted := make(chan struct{})
	dialGate := make(chan struct{})
	dialer := &websocket.Dialer{
		NetDial: func(network, addr string) (net.Conn, error) {
			close(dialStarted)
			<-dialGate
			return net.Dial(network, addr)
		},
	}

	c := New(Options{URL: srv.url(), Dialer: dialer, ReconnectAttempts: -1})
	done := make(chan error, 1)
	go func() { done <- c.Connect() }()

	// Disconnect lands while the dial is still in flight.
	<-dialStarted
	c.Disconnect()
	close(dialGate)
	require.NoError(t, <-done)

	drainUntil(t, c, func(ev Event) bool {
		st, ok := ev.(StateEvent)
		return ok && st.State == StateDisconnected
	})
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, StateDisconnected, c.State(), "disconnect must win over an in-flight dial")
}

func TestStreamingFlow(t *testing.T) {
	replyGate := make(chan struct{})
	srv := newWSServer(t, func(conn *websocket.Conn, _ int64) {
		sendServer(t, conn, protocol.ConnectedMessage{SessionID: "s1"})
		// Wait for the user turn, then stream a reply.
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		msg, err := protocol.Decode(data)
		if err != nil {
			return
		}
		user := msg.(protocol.MessagePayload)
		<-replyGate

		sendServer(t, conn, protocol.StatusMessage{Status: protocol.StatusTyping})
		sendServer(t, conn, protocol.StreamMessage{Chunk: "Hel", MessageID: user.MessageID})
		sendServer(t, conn, protocol.StreamMessage{Chunk: "lo", MessageID: user.MessageID})
		sendServer(t, conn, protocol.CompleteMessage{
			MessageID:         user.MessageID,
			Content:           "Hello!",
			TokenUsage:        protocol.TokenUsage{Prompt: 10, Completion: 5, Total: 15},
			FollowUpQuestions: []string{"More?"},
		})
		sendServer(t, conn, protocol.StatusMessage{Status: protocol.StatusIdle})
	})

	c := New(Options{URL: srv.url(), ReconnectAttempts: -1})
	require.NoError(t, c.Connect())
	t.Cleanup(c.Disconnect)

	drainUntil(t, c, func(ev Event) bool {
		_, ok := ev.(SessionEvent)
		return ok
	})

	id, err := c.SendMessage("hi")
	require.NoError(t, err)

	// Optimistic user turn is visible before the server replies.
	messages := c.Conversation().Messages()
	require.Len(t, messages, 1)
	assert.Equal(t, id, messages[0].ID)
	assert.Equal(t, "user", messages[0].Role)
	close(replyGate)

	complete := drainUntil(t, c, func(ev Event) bool {
		_, ok := ev.(CompleteEvent)
		return ok
	}).(CompleteEvent)
	assert.Equal(t, "Hello!", complete.Content)
	assert.Equal(t, []string{"More?"}, complete.Suggestions)

	messages = c.Conversation().Messages()
	require.Len(t, messages, 2)
	assistant := messages[1]
	assert.Equal(t, "assistant", assistant.Role)
	assert.Equal(t, "Hello!", assistant.Content, "final text replaces streamed text")
	assert.False(t, assistant.Streaming)
	assert.NotEqual(t, id, assistant.ID, "assistant turn gets its own id")
	assert.Equal(t, []string{"More?"}, assistant.Suggestions)
	assert.Equal(t, TokenUsage{Prompt: 10, Completion: 5, Total: 15}, c.Conversation().TokenUsage())
}

func TestSendWhileDisconnected(t *testing.T) {
	c := New(Options{URL: "ws://127.0.0.1:0", ReconnectAttempts: -1})
	_, err := c.SendMessage("hi")
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.Empty(t, c.Conversation().Messages(), "no optimistic append on failed send")
}
