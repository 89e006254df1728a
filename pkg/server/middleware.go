package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/agoraworks/agora/pkg/identity"
)

type contextKey string

const sessionKey contextKey = "portal-session"

// sessionFrom returns the authenticated session, if any.
func sessionFrom(ctx context.Context) (*Session, bool) {
	s, ok := ctx.Value(sessionKey).(*Session)
	return s, ok
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return r.Header.Get("X-Session-Token")
}

// requireSession authenticates the request against the registry.
func (s *Server) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			writeError(w, http.StatusUnauthorized, "missing session token")
			return
		}
		session, ok := s.sessions.Get(token)
		if !ok {
			session, ok = s.sessionFromAccessToken(r.Context(), token)
		}
		if !ok {
			writeError(w, http.StatusUnauthorized, "invalid or expired session")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), sessionKey, session)))
	})
}

// sessionFromAccessToken accepts an Azure AD access token as a bearer
// credential, resolving the portal user and opening a session keyed by
// the token so subsequent requests hit the registry directly.
func (s *Server) sessionFromAccessToken(ctx context.Context, token string) (*Session, bool) {
	if s.opts.Tokens == nil {
		return nil, false
	}
	claims, err := s.opts.Tokens.Validate(ctx, token)
	if err != nil {
		return nil, false
	}
	user, err := s.opts.Users.ResolveAzureUser(ctx, &identity.GraphProfile{
		ID:                claims.Subject,
		DisplayName:       claims.Name,
		UserPrincipalName: claims.PreferredUsername,
	})
	if err != nil {
		s.logger.Warn("resolving bearer principal", "error", err)
		return nil, false
	}
	return s.sessions.CreateWithToken(token, user), true
}

// requireAdmin restricts a subtree to administrator sessions.
func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		session, ok := sessionFrom(r.Context())
		if !ok || session.Role != "admin" {
			writeError(w, http.StatusForbidden, "administrator role required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requireAgentPermission gates a route on the session's permission for
// the {id} agent in the URL.
func (s *Server) requireAgentPermission(action string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			session, ok := sessionFrom(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, "missing session")
				return
			}
			agentID := chi.URLParam(r, "id")
			if !session.HasPermission(agentID, action) {
				writeError(w, http.StatusForbidden, "permission denied")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// logRequests emits one structured log line per request.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"remote", r.RemoteAddr)
	})
}
