// Package httpapi implements the HTTP surface (§6.2): REST endpoints
// for session, branch, and workspace management, full-text search, and
// blob retrieval, plus the SSE streaming glue that drives a turn.Engine
// cycle through an ssehub.Hub to an HTTP response.
package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/agentserver/agentserver/internal/blobstore"
	"github.com/agentserver/agentserver/internal/provider"
	"github.com/agentserver/agentserver/internal/sessiondb"
	"github.com/agentserver/agentserver/internal/ssehub"
	"github.com/agentserver/agentserver/internal/turn"
)

// Config holds server configuration.
type Config struct {
	Port         int
	EnableCORS   bool
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultConfig returns default server configuration. WriteTimeout is
// zero: an SSE response can legitimately stay open for as long as a
// generation cycle runs, so there is no fixed upper bound to enforce.
func DefaultConfig() *Config {
	return &Config{
		Port:         8080,
		EnableCORS:   true,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
	}
}

// Server is the HTTP server wiring the core's components together.
type Server struct {
	config    *Config
	router    *chi.Mux
	httpSrv   *http.Server
	db        *sessiondb.DB
	blobs     *blobstore.Store
	providers *provider.Registry
	engine    *turn.Engine
	hub       *ssehub.Hub
	csrfToken string
}

// New creates a Server. db, blobs, providers, and engine are the
// already-constructed core components (C1/C2/C5/C6); hub is the SSE
// multicaster (C7) engine was built against.
func New(cfg *Config, db *sessiondb.DB, blobs *blobstore.Store, providers *provider.Registry, engine *turn.Engine, hub *ssehub.Hub) (*Server, error) {
	token, err := newCSRFToken()
	if err != nil {
		return nil, fmt.Errorf("mint csrf token: %w", err)
	}

	s := &Server{
		config:    cfg,
		router:    chi.NewRouter(),
		db:        db,
		blobs:     blobs,
		providers: providers,
		engine:    engine,
		hub:       hub,
		csrfToken: token,
	}

	s.setupMiddleware()
	s.setupRoutes()
	return s, nil
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RealIP)

	if s.config.EnableCORS {
		s.router.Use(cors.Handler(cors.Options{
			AllowedOrigins:   []string{"*"},
			AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID", csrfHeader},
			ExposedHeaders:   []string{"Link", "X-Request-ID"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	s.router.Use(s.csrfMiddleware)
}

func (s *Server) setupRoutes() {
	s.router.Get("/api/csrf-token", s.handleCSRFToken)

	s.router.Post("/api/chat", s.handleChatStart)
	s.router.Post("/api/chat/message", s.handleChatMessage)
	s.router.Get("/api/chat/sessions", s.handleListAllSessions)
	s.router.Get("/api/chat/{sessionId}", s.handleGetHistory)
	s.router.Get("/api/chat/{sessionId}/branch/{branchId}/stream", s.handleStreamBranch)
	s.router.Put("/api/chat/{sessionId}/branch", s.handleSetPrimaryBranch)
	s.router.Post("/api/chat/{sessionId}/branch", s.handleBranch)
	s.router.Post("/api/chat/{sessionId}/branch/{branchId}/confirm", s.handleConfirm)
	s.router.Post("/api/chat/{sessionId}/branch/{branchId}/retry-error", s.handleRetryError)
	s.router.Post("/api/chat/{sessionId}/name", s.handleRename)
	s.router.Post("/api/chat/{sessionId}/archive", s.handleArchive)
	s.router.Post("/api/chat/{sessionId}/workspace", s.handleMoveWorkspace)
	s.router.Post("/api/chat/{sessionId}/extract", s.handleExtract)

	s.router.Get("/api/sessions", s.handleListSessions)

	s.router.Post("/api/search", s.handleSearch)
	s.router.Get("/api/blob/{hash}", s.handleGetBlob)

	s.router.Get("/api/mcp/configs", s.handleListMCPConfigs)
	s.router.Get("/api/mcp/configs/{name}", s.handleGetMCPConfig)
	s.router.Post("/api/mcp/configs/{name}", s.handlePutMCPConfig)
	s.router.Delete("/api/mcp/configs/{name}", s.handleDeleteMCPConfig)

	s.router.Get("/api/systemPrompts", s.handleListSystemPrompts)
	s.router.Get("/api/models", s.handleListModels)
	s.router.Get("/api/accounts", s.handleListAccounts)
	s.router.Get("/api/accounts/{id}/details", s.handleAccountDetails)
	s.router.Get("/api/workspaces", s.handleListWorkspaces)
}

// Start begins serving and blocks until Shutdown or a fatal error.
func (s *Server) Start() error {
	s.httpSrv = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}
	return s.httpSrv.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

// Router exposes the chi router for tests.
func (s *Server) Router() *chi.Mux {
	return s.router
}
