// Package server exposes the portal as a JSON HTTP API: authentication,
// the permission-filtered agent dashboard, chat, document lifecycle and
// the admin surface.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/agoraworks/agora/pkg/agents"
	"github.com/agoraworks/agora/pkg/documents"
	"github.com/agoraworks/agora/pkg/identity"
	"github.com/agoraworks/agora/pkg/jobs"
	"github.com/agoraworks/agora/pkg/store"
)

// ChatService is the conversational surface the server drives. The
// reply text arrives with citation markup already rewritten.
type ChatService interface {
	CreateThread(ctx context.Context) (string, error)
	Send(ctx context.Context, threadID, agentID, text string) (string, error)
}

// TokenValidator checks Azure AD access tokens presented as bearer
// credentials by API clients that skip the login endpoints.
type TokenValidator interface {
	Validate(ctx context.Context, token string) (*identity.Claims, error)
}

var _ TokenValidator = (*identity.TokenValidator)(nil)

// Options wires the server's collaborators.
type Options struct {
	Host string
	Port int

	Users     *identity.Manager
	Agents    *agents.Manager
	Documents *documents.Manager
	Jobs      *jobs.Manager
	Chat      ChatService
	AAD       *identity.AADClient
	Tokens    TokenValidator

	SessionTTL time.Duration
	Logger     *slog.Logger
}

// Server is the portal HTTP server.
type Server struct {
	opts     Options
	sessions *Registry
	flows    *flowRegistry
	metrics  *Metrics
	logger   *slog.Logger

	httpServer *http.Server
}

// New builds a server from its collaborators.
func New(opts Options) (*Server, error) {
	if opts.Users == nil {
		return nil, errors.New("user manager is required")
	}
	if opts.Agents == nil {
		return nil, errors.New("agent manager is required")
	}
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = 8 * time.Hour
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	s := &Server{
		opts:     opts,
		sessions: NewRegistry(opts.SessionTTL),
		flows:    newFlowRegistry(),
		logger:   opts.Logger,
	}
	s.metrics = NewMetrics(s.sessions.Len)
	return s, nil
}

// Routes assembles the chi router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(s.logRequests)
	r.Use(s.metrics.Middleware)

	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Post("/login", s.handleLogin)
		r.Post("/login/azure", s.handleAzureLogin)
		r.Post("/login/device", s.handleDeviceInit)
		r.Get("/login/device/{code}", s.handleDevicePoll)
		r.Get("/login/callback", s.handleAuthCallback)

		r.Group(func(r chi.Router) {
			r.Use(s.requireSession)
			r.Post("/logout", s.handleLogout)
			r.Get("/me", s.handleMe)

			r.Get("/agents", s.handleListAgents)
			r.Route("/agents/{id}", func(r chi.Router) {
				r.With(s.requireAgentPermission("access")).Get("/", s.handleGetAgent)
				r.With(s.requireAgentPermission("chat")).Post("/chat", s.handleChat)
				r.With(s.requireAgentPermission("chat")).Get("/chat", s.handleChatHistory)
				r.With(s.requireAgentPermission("chat")).Post("/chat/reset", s.handleChatReset)

				r.Group(func(r chi.Router) {
					r.Use(s.requireAgentPermission("view"))
					r.Get("/documents", s.handleListDocuments)
					r.Post("/documents", s.handleUploadDocument)
					r.Get("/documents/{name}", s.handleDownloadDocument)
					r.Delete("/documents/{name}", s.handleDeleteDocument)
					r.Post("/documents/{name}/index", s.handleIndexDocument)
				})
			})

			r.Route("/admin", func(r chi.Router) {
				r.Use(s.requireAdmin)
				r.Get("/users", s.handleAdminListUsers)
				r.Post("/users", s.handleAdminCreateUser)
				r.Put("/users/{username}", s.handleAdminUpdateUser)
				r.Delete("/users/{username}", s.handleAdminDeleteUser)

				r.Post("/agents", s.handleAdminCreateAgent)
				r.Put("/agents/{id}", s.handleAdminUpdateAgent)
				r.Delete("/agents/{id}", s.handleAdminDeleteAgent)

				r.Get("/jobs", s.handleAdminListJobs)
				r.Post("/jobs", s.handleAdminCreateJob)
				r.Put("/jobs/{id}", s.handleAdminUpdateJob)
				r.Delete("/jobs/{id}", s.handleAdminDeleteJob)
				r.Get("/jobs/{id}/package", s.handleAdminJobPackage)
			})
		})
	})
	return r
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.opts.Host, s.opts.Port)
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.sessions.StartSweeper(ctx, time.Minute)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("portal listening", "addr", addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		s.logger.Info("shutting down")
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeStoreError maps tagged store errors onto HTTP status codes.
func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, store.ErrConflict):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, store.ErrInvalidData):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrUnavailable):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func decodeBody(r *http.Request, v any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}
