package http

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/chatwire/chatwire/internal/config"
	"github.com/chatwire/chatwire/internal/logging"
	"github.com/chatwire/chatwire/internal/monitoring"
	"github.com/chatwire/chatwire/internal/session"
)

// Handler serves the REST provisioning endpoints.
type Handler struct {
	store   *session.Store
	server  config.ServerConfig
	timeout time.Duration
	metrics *monitoring.Metrics
	logger  *logging.Logger
	started time.Time
}

// NewHandler creates the REST handler. metrics may be nil.
func NewHandler(store *session.Store, server config.ServerConfig, timeout time.Duration, metrics *monitoring.Metrics, logger *logging.Logger) *Handler {
	return &Handler{
		store:   store,
		server:  server,
		timeout: timeout,
		metrics: metrics,
		logger:  logger.Named("api"),
		started: time.Now(),
	}
}

// Register mounts the provisioning routes on group.
func (h *Handler) Register(group *gin.RouterGroup) {
	group.POST("/sessions", h.createSession)
	group.GET("/sessions/:id", h.getSession)
	group.DELETE("/sessions/:id", h.deleteSession)
	group.POST("/sessions/:id/context", h.preloadContext)
	group.POST("/sessions/:id/instructions", h.preloadInstructions)
}

type createSessionRequest struct {
	ClientID string         `json:"clientId"`
	Metadata map[string]any `json:"metadata"`
}

type createSessionResponse struct {
	SessionID    string    `json:"sessionId"`
	WebsocketURL string    `json:"websocketUrl"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

func (h *Handler) createSession(c *gin.Context) {
	var req createSessionRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
	}

	s := h.store.Create(session.CreateOptions{
		ClientID: req.ClientID,
		Metadata: req.Metadata,
	})
	if h.metrics != nil {
		h.metrics.SessionsCreated.Inc()
	}
	h.logger.Info("Session provisioned", zap.String("session_id", s.ID()))

	c.JSON(http.StatusCreated, createSessionResponse{
		SessionID:    s.ID(),
		WebsocketURL: h.websocketURL(c, s.ID()),
		ExpiresAt:    s.LastActivity().Add(h.timeout),
	})
}

func (h *Handler) websocketURL(c *gin.Context, sessionID string) string {
	scheme := "ws"
	if c.Request.TLS != nil {
		scheme = "wss"
	}
	return fmt.Sprintf("%s://%s%s/%s", scheme, c.Request.Host, h.server.WSPath, sessionID)
}

func (h *Handler) getSession(c *gin.Context) {
	s, ok := h.store.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"sessionId":    s.ID(),
		"createdAt":    s.CreatedAt(),
		"lastActivity": s.LastActivity(),
		"connected":    s.Socket() != nil,
		"generating":   s.GenerationActive(),
		"messageCount": len(s.History()),
		"tokenUsage":   s.TokenUsage(),
	})
}

func (h *Handler) deleteSession(c *gin.Context) {
	if !h.store.Destroy(c.Param("id")) {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "destroyed"})
}

type preloadContextRequest struct {
	Data map[string]any `json:"data" binding:"required"`
}

// preloadContext sets a session's context out of band, before the socket
// connects. Same store operation the socket's context frame uses.
func (h *Handler) preloadContext(c *gin.Context) {
	s, ok := h.store.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}

	var req preloadContextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "data object is required"})
		return
	}

	s.SetContext(req.Data)
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type preloadInstructionsRequest struct {
	Content string `json:"content" binding:"required"`
}

func (h *Handler) preloadInstructions(c *gin.Context) {
	s, ok := h.store.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}

	var req preloadInstructionsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "content is required"})
		return
	}

	s.SetInstructions(req.Content)
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Health reports liveness plus session statistics. Mounted outside the
// authenticated group.
func (h *Handler) Health(c *gin.Context) {
	stats := h.store.Stats()
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"uptime": time.Since(h.started).String(),
		"sessions": gin.H{
			"total":  stats.TotalSessions,
			"active": stats.ActiveSessions,
		},
	})
}
