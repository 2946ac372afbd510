// Package server provides the HTTP API for ragdocs.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/hyperjump/ragdocs/internal/config"
	"github.com/hyperjump/ragdocs/internal/keyword"
	"github.com/hyperjump/ragdocs/internal/metrics"
	"github.com/hyperjump/ragdocs/internal/models"
	"github.com/hyperjump/ragdocs/internal/session"
	"github.com/hyperjump/ragdocs/pkg/utils"
)

// requestTimeout covers upload ingestion, which embeds the whole document synchronously.
const requestTimeout = 120 * time.Second

// SessionService is the session orchestrator behind the API.
type SessionService interface {
	CreateSession(ctx context.Context, userID int64, up session.Upload) (*session.Created, error)
	HandleTurn(ctx context.Context, token string, userID int64, message string) (string, error)
	ListSessions(ctx context.Context, userID int64, limit, offset int) ([]*models.Session, error)
	GetSession(ctx context.Context, token string, userID int64, limit, offset int) (*session.Detail, error)
	DeleteSession(ctx context.Context, token string, userID int64) error
	SearchChats(ctx context.Context, userID int64, query string, limit int) ([]*keyword.Hit, error)
}

// Server is the HTTP server for the ragdocs API.
type Server struct {
	sessions SessionService
	metrics  *metrics.Metrics
	config   *config.ServerConfig
	secret   []byte
	logger   *zap.Logger
	server   *http.Server
}

// NewServer creates a server with the given dependencies. jwtSecret verifies bearer tokens.
func NewServer(
	sessions SessionService,
	m *metrics.Metrics,
	cfg *config.ServerConfig,
	jwtSecret string,
	logger *zap.Logger,
) *Server {
	return &Server{
		sessions: sessions,
		metrics:  m,
		config:   cfg,
		secret:   []byte(jwtSecret),
		logger:   utils.OrNop(logger),
	}
}

// Router returns the HTTP handler with all routes mounted.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(requestTimeout))

	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.authenticate)
		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", s.handleCreateSession)
			r.Get("/", s.handleListSessions)
			r.Post("/chat", s.handleChat)
			r.Get("/{token}", s.handleGetSession)
			r.Delete("/{token}", s.handleDeleteSession)
		})
		r.Get("/search", s.handleSearchChats)
	})
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
