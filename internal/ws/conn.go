package ws

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/chatwire/chatwire/internal/monitoring"
	"github.com/chatwire/chatwire/internal/protocol"
)

const writeTimeout = 10 * time.Second

// Conn wraps a gorilla connection behind a write mutex so the read loop,
// stream callbacks, and the heartbeat pinger can all write safely. It is the
// socket handle sessions hold.
type Conn struct {
	ws      *websocket.Conn
	metrics *monitoring.Metrics

	// gorilla allows one concurrent writer; writeMu serializes all frames.
	writeMu sync.Mutex
}

// NewConn wraps an upgraded connection. metrics may be nil.
func NewConn(ws *websocket.Conn, metrics *monitoring.Metrics) *Conn {
	return &Conn{ws: ws, metrics: metrics}
}

// Send encodes and writes one server frame.
func (c *Conn) Send(msg protocol.ServerMessage) error {
	data, err := protocol.Encode(msg)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	_ = c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		return err
	}
	if c.metrics != nil {
		c.metrics.RecordWSMessage("out", msg.MessageType())
	}
	return nil
}

// Ping writes a control ping frame.
func (c *Conn) Ping() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout))
}

// Close sends a close frame with the given code and reason, then tears the
// connection down.
func (c *Conn) Close(code int, reason string) error {
	c.writeMu.Lock()
	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason), time.Now().Add(writeTimeout))
	c.writeMu.Unlock()
	return c.ws.Close()
}

// ReadMessage blocks for the next client frame.
func (c *Conn) ReadMessage() ([]byte, error) {
	_, data, err := c.ws.ReadMessage()
	return data, err
}
