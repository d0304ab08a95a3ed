// Package api exposes the prediction engine over HTTP: session lifecycle
// endpoints plus a WebSocket stream for phase transition events.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/apdpe/prediction-engine/internal/domain"
	"github.com/apdpe/prediction-engine/internal/engine"
	"github.com/apdpe/prediction-engine/internal/knowledge"
	"github.com/apdpe/prediction-engine/internal/middleware"
	"github.com/apdpe/prediction-engine/internal/session"
)

// Server represents the HTTP server
type Server struct {
	logger   *logrus.Logger
	cfg      *domain.Config
	sessions *session.Manager
	store    domain.SessionStore
	kb       *knowledge.Provider
	hub      *WatchHub
	router   *gin.Engine
	server   *http.Server
}

// NewServer creates a new HTTP server instance
func NewServer(logger *logrus.Logger, cfg *domain.Config, sessions *session.Manager, store domain.SessionStore, kb *knowledge.Provider) *Server {
	// Set Gin mode based on environment
	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Add middleware
	router.Use(gin.Recovery())
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.CorrelationID())
	router.Use(middleware.AuditLogger())
	if cfg.Server.RateLimitPerSec > 0 {
		router.Use(middleware.RateLimit(cfg.Server.RateLimitPerSec, cfg.Server.RateLimitBurst))
	}

	server := &Server{
		logger:   logger,
		cfg:      cfg,
		sessions: sessions,
		store:    store,
		kb:       kb,
		hub:      NewWatchHub(logger),
		router:   router,
	}

	// Setup routes
	server.setupRoutes()

	return server
}

// Start starts the HTTP server and blocks until the context is cancelled.
func (s *Server) Start(ctx context.Context) error {
	cfg := s.cfg.Server
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	s.logger.WithField("addr", addr).Info("HTTP server listening")

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	s.hub.CloseAll()
	return s.server.Shutdown(shutdownCtx)
}

// Router exposes the gin engine for tests.
func (s *Server) Router() *gin.Engine {
	return s.router
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() {
	// Health check endpoint
	s.router.GET("/health", s.handleHealth)

	// API v1 routes
	v1 := s.router.Group("/api/v1")
	{
		v1.POST("/sessions", s.handleStartSession)
		v1.POST("/sessions/:id/responses", s.handleSubmitResponses)
		v1.GET("/sessions/:id", s.handleGetSession)
		v1.DELETE("/sessions/:id", s.handleDeleteSession)
		v1.GET("/sessions/:id/watch", s.handleWatchSession)
	}
}

// handleHealth reports store connectivity and the loaded knowledge version.
func (s *Server) handleHealth(c *gin.Context) {
	status := "healthy"
	code := http.StatusOK
	if err := s.store.Ping(c.Request.Context()); err != nil {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{
		"status":            status,
		"knowledge_version": s.kb.Version(),
		"timestamp":         time.Now().UTC(),
	})
}

// startSessionRequest is the session creation payload.
type startSessionRequest struct {
	Patient domain.PatientContext `json:"patient"`
}

// handleStartSession creates a session and returns the first question.
func (s *Server) handleStartSession(c *gin.Context) {
	var req startSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.renderError(c, domain.NewEngineError(domain.ErrCodeInvalidInput,
			"invalid request body", err.Error()))
		return
	}

	result, err := s.sessions.StartSession(c.Request.Context(), req.Patient)
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

// submitResponsesRequest carries one or more structured answers.
type submitResponsesRequest struct {
	Responses []domain.Response `json:"responses"`
}

// handleSubmitResponses feeds answers through the engine and returns either
// the next question, a phase transition notice or the final report.
func (s *Server) handleSubmitResponses(c *gin.Context) {
	var req submitResponsesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.renderError(c, domain.NewEngineError(domain.ErrCodeInvalidInput,
			"invalid request body", err.Error()))
		return
	}

	sessionID := c.Param("id")
	outcome, err := s.sessions.SubmitResponses(c.Request.Context(), sessionID, req.Responses)
	if err != nil {
		s.renderError(c, err)
		return
	}

	if outcome.Kind != engine.STEP_NEXT_QUESTION {
		s.hub.Broadcast(sessionID, outcome)
	}
	c.JSON(http.StatusOK, outcome)
}

// handleGetSession returns a read-only session snapshot.
func (s *Server) handleGetSession(c *gin.Context) {
	sess, err := s.sessions.GetSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

// handleDeleteSession removes a session and its stored state.
func (s *Server) handleDeleteSession(c *gin.Context) {
	if err := s.sessions.DeleteSession(c.Request.Context(), c.Param("id")); err != nil {
		s.renderError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// handleWatchSession upgrades to a WebSocket carrying phase transition and
// urgency events for one session.
func (s *Server) handleWatchSession(c *gin.Context) {
	sessionID := c.Param("id")
	if _, err := s.sessions.GetSession(c.Request.Context(), sessionID); err != nil {
		s.renderError(c, err)
		return
	}
	s.hub.Serve(c.Writer, c.Request, sessionID)
}

// renderError maps taxonomy errors onto HTTP statuses.
func (s *Server) renderError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrSessionNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrUnknownSymptomCode):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrSessionExpired):
		status = http.StatusGone
	case errors.Is(err, domain.ErrSessionAlreadyTerminal):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrKnowledgeBaseUnavailable):
		status = http.StatusServiceUnavailable
	}

	var engErr *domain.EngineError
	if errors.As(err, &engErr) {
		if engErr.Code == domain.ErrCodeInvalidInput {
			status = http.StatusBadRequest
		}
		engErr.RequestID = c.GetString("correlation_id")
		c.JSON(status, gin.H{"error": engErr})
		return
	}

	s.logger.WithError(err).Error("Unclassified handler error")
	c.JSON(status, gin.H{"error": gin.H{
		"code":    domain.ErrCodeInternal,
		"message": "internal error",
	}})
}
