package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	apihttp "github.com/chatwire/chatwire/internal/api/http"
	"github.com/chatwire/chatwire/internal/api/middleware"
	"github.com/chatwire/chatwire/internal/config"
	"github.com/chatwire/chatwire/internal/llm"
	"github.com/chatwire/chatwire/internal/logging"
	"github.com/chatwire/chatwire/internal/monitoring"
	"github.com/chatwire/chatwire/internal/prompt"
	"github.com/chatwire/chatwire/internal/session"
	"github.com/chatwire/chatwire/internal/ws"
)

// Version is the server version reported in connected frames.
const Version = "1.0.0"

// Server wires the gateway together: session store, provider, WebSocket
// handler, REST provisioning, metrics, and the idle sweeper.
type Server struct {
	cfg     *config.Config
	logger  *logging.Logger
	store   *session.Store
	metrics *monitoring.Metrics
	http    *http.Server

	stopSweep chan struct{}
}

// New builds a server from configuration. provider may be nil, in which
// case the Gemini provider is constructed from cfg.LLM.
func New(cfg *config.Config, logger *logging.Logger, provider llm.Provider) (*Server, error) {
	if provider == nil {
		p, err := llm.NewGeminiProvider(cfg.LLM, logger)
		if err != nil {
			return nil, err
		}
		provider = p
	}

	metrics := monitoring.NewMetrics()
	store := session.NewStore(logger)
	assembler := prompt.NewAssembler(cfg.FollowUp)
	streams := ws.NewOrchestrator(provider, assembler, cfg.LLM, cfg.FollowUp, metrics, logger)
	wsRouter := ws.NewRouter(store, streams, metrics, logger, Version)
	wsHandler := ws.NewHandler(store, wsRouter, metrics, logger, cfg.Session.Heartbeat, Version)
	apiHandler := apihttp.NewHandler(store, cfg.Server, cfg.Session.Timeout, metrics, logger)

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	router.Use(monitoring.Middleware(metrics))

	router.GET("/health", apiHandler.Health)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(metrics.Registry(), promhttp.HandlerOpts{})))
	router.GET(cfg.Server.WSPath+"/:sessionId", wsHandler.HandleConnection)

	api := router.Group("/api")
	api.Use(middleware.Auth(cfg.Auth))
	if cfg.RateLimit.Enabled {
		api.Use(middleware.RateLimit(cfg.RateLimit))
	}
	apiHandler.Register(api)

	return &Server{
		cfg:     cfg,
		logger:  logger.Named("server"),
		store:   store,
		metrics: metrics,
		http: &http.Server{
			Addr:    cfg.Server.Host + ":" + cfg.Server.Port,
			Handler: router,
		},
		stopSweep: make(chan struct{}),
	}, nil
}

// Store exposes the session store, for provisioning done outside HTTP.
func (s *Server) Store() *session.Store {
	return s.store
}

// Run starts the listener and the background sweeper. It blocks until the
// listener stops.
func (s *Server) Run() error {
	go s.sweepLoop()

	s.logger.Info("Gateway listening",
		zap.String("addr", s.http.Addr),
		zap.String("ws_path", s.cfg.Server.WSPath))
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown stops the listener, the sweeper, and every live session.
func (s *Server) Shutdown(ctx context.Context) error {
	close(s.stopSweep)
	err := s.http.Shutdown(ctx)
	s.store.Shutdown()
	s.logger.Info("Gateway stopped")
	return err
}

// sweepLoop periodically destroys idle sessions and refreshes gauges.
func (s *Server) sweepLoop() {
	ticker := time.NewTicker(s.cfg.Session.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopSweep:
			return
		case <-ticker.C:
			if n := s.store.SweepExpired(s.cfg.Session.Timeout); n > 0 {
				s.metrics.SessionsSwept.Add(float64(n))
				s.logger.Info("Idle sessions swept", zap.Int("count", n))
			}
			s.metrics.SessionsActive.Set(float64(s.store.Stats().TotalSessions))
			s.metrics.UpdateUptime()
		}
	}
}
