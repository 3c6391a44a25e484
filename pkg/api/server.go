// Package api is the HTTP/WebSocket edge (§6): a gin router exposing the
// project/chat/message CRUD surface, the agent run/stop/status control
// plane, file access, flow-template settings, checkpoint resolution, and
// the WebSocket event stream — plus the ambient /healthz, /readyz, and
// Prometheus /metrics routes every deployment carries regardless of which
// pipeline features it enables.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/flowforge/orchestrator/pkg/artifact"
	"github.com/flowforge/orchestrator/pkg/events"
	"github.com/flowforge/orchestrator/pkg/metrics"
	"github.com/flowforge/orchestrator/pkg/orchestrator"
	"github.com/flowforge/orchestrator/pkg/store"
)

// Server wires the domain packages into a gin.Engine. Mirrors the teacher's
// pkg/api.Server shape: one struct holding every service the handlers need,
// a constructor that builds the engine and registers routes in one place.
type Server struct {
	engine *gin.Engine

	store    *store.Store
	bus      *events.Bus
	sched    *orchestrator.Scheduler
	artifact *artifact.Store
	agents   *orchestrator.AgentRegistry
	metrics  *metrics.Metrics
	log      *slog.Logger
}

// New builds a Server and registers all routes.
func New(s *store.Store, bus *events.Bus, sched *orchestrator.Scheduler, art *artifact.Store, agents *orchestrator.AgentRegistry, m *metrics.Metrics, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	srv := &Server{store: s, bus: bus, sched: sched, artifact: art, agents: agents, metrics: m, log: log}
	srv.engine = gin.New()
	srv.engine.Use(gin.Recovery(), srv.requestLogger(), srv.metricsMiddleware())
	srv.registerRoutes()
	return srv
}

// Handler returns the http.Handler to pass to an http.Server.
func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) registerRoutes() {
	s.engine.GET("/healthz", s.handleHealthz)
	s.engine.GET("/readyz", s.handleReadyz)
	s.engine.GET("/metrics", gin.WrapH(s.metrics.Handler()))

	s.engine.GET("/ws", s.handleWebSocket)

	projects := s.engine.Group("/projects")
	{
		projects.GET("", s.listProjects)
		projects.POST("", s.createProject)
		projects.GET("/:projectId", s.getProject)
		projects.PATCH("/:projectId", s.renameProject)
		projects.DELETE("/:projectId", s.deleteProject)
		projects.GET("/:projectId/chats", s.listChats)

		projects.GET("/:projectId/files/*path", s.readFile)
		projects.PUT("/:projectId/files/*path", s.writeFile)
		projects.DELETE("/:projectId/files/*path", s.deleteFile)
		projects.GET("/:projectId/files", s.listFiles)
	}

	chats := s.engine.Group("/chats")
	{
		chats.POST("", s.createChat)
		chats.GET("/:chatId", s.getChat)
		chats.PATCH("/:chatId", s.renameChat)
		chats.DELETE("/:chatId", s.deleteChat)
		chats.PATCH("/:chatId/yolo", s.setYoloMode)

		chats.GET("/:chatId/messages", s.listMessages)

		chats.POST("/agents/run", s.runAgents)
		chats.POST("/:chatId/agents/run", s.runAgentsForChat)
		chats.POST("/:chatId/agents/stop", s.stopAgents)
		chats.GET("/:chatId/agents/status", s.agentStatus)
	}

	settings := s.engine.Group("/settings")
	{
		settings.GET("/flow/templates", s.listFlowTemplates)
		settings.GET("/flow/templates/:templateId", s.getFlowTemplate)
		settings.PUT("/flow/templates/:templateId", s.putFlowTemplate)
		settings.GET("/flow/active", s.listActiveBindings)
		settings.PUT("/flow/active/:intent", s.setActiveBinding)

		settings.POST("/checkpoints/resolve", s.resolveCheckpoint)
	}
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Info("api: request",
			"method", c.Request.Method, "path", c.FullPath(),
			"status", c.Writer.Status(), "duration", time.Since(start))
	}
}

func (s *Server) metricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		s.metrics.RecordHTTPRequest(c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}

func (s *Server) handleHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleReadyz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	if err := s.store.Pool().Ping(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}
