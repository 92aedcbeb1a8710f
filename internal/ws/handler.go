package ws

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/chatwire/chatwire/internal/logging"
	"github.com/chatwire/chatwire/internal/monitoring"
	"github.com/chatwire/chatwire/internal/protocol"
	"github.com/chatwire/chatwire/internal/session"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Handler owns WebSocket connections: upgrade, session binding, the read
// loop, and the heartbeat pinger.
type Handler struct {
	store     *session.Store
	router    *Router
	metrics   *monitoring.Metrics
	logger    *logging.Logger
	heartbeat time.Duration
	version   string
}

// NewHandler creates a connection handler. metrics may be nil.
func NewHandler(store *session.Store, router *Router, metrics *monitoring.Metrics, logger *logging.Logger, heartbeat time.Duration, version string) *Handler {
	return &Handler{
		store:     store,
		router:    router,
		metrics:   metrics,
		logger:    logger.Named("ws"),
		heartbeat: heartbeat,
		version:   version,
	}
}

// HandleConnection upgrades a socket for an existing session. Unknown
// session ids are rejected before the upgrade.
func (h *Handler) HandleConnection(c *gin.Context) {
	sessionID := c.Param("sessionId")
	if !h.store.Exists(sessionID) {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}

	wsConn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("Upgrade failed", zap.Error(err))
		return
	}

	conn := NewConn(wsConn, h.metrics)
	if !h.store.AttachSocket(sessionID, conn) {
		// Destroyed between the existence check and the upgrade.
		_ = conn.Close(session.CloseNormal, "Session no longer exists")
		return
	}
	sess, _ := h.store.Get(sessionID)

	if h.metrics != nil {
		h.metrics.WSConnections.Inc()
		defer h.metrics.WSConnections.Dec()
	}
	h.logger.Info("Connection established", zap.String("session_id", sessionID))

	wsConn.SetPongHandler(func(string) error {
		sess.Touch()
		return nil
	})

	_ = conn.Send(protocol.ConnectedMessage{SessionID: sessionID, ServerVersion: h.version})

	done := make(chan struct{})
	defer close(done)
	go h.pingLoop(conn, done)

	for {
		data, err := conn.ReadMessage()
		if err != nil {
			h.logger.Info("Connection closed",
				zap.String("session_id", sess.ID()),
				zap.Error(err))
			break
		}
		sess = h.router.HandleFrame(conn, sess, data)
	}

	// The session dies with its socket unless the socket was already
	// replaced by a newer connection.
	h.store.DestroyBySocket(conn)
}

func (h *Handler) pingLoop(conn *Conn, done <-chan struct{}) {
	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := conn.Ping(); err != nil {
				return
			}
		}
	}
}
