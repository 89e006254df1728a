package server

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/agoraworks/agora/pkg/identity"
)

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type sessionResponse struct {
	Token       string    `json:"token"`
	Username    string    `json:"username"`
	Role        string    `json:"role"`
	Permissions []string  `json:"permissions"`
	ExpiresAt   time.Time `json:"expires_at"`
}

func (s *Server) sessionResponse(session *Session) sessionResponse {
	return sessionResponse{
		Token:       session.Token,
		Username:    session.Username,
		Role:        session.Role,
		Permissions: session.Permissions,
		ExpiresAt:   session.ExpiresAt,
	}
}

// handleLogin authenticates a portal-managed user by password.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	user, err := s.opts.Users.Authenticate(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, identity.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, "invalid username or password")
			return
		}
		writeStoreError(w, err)
		return
	}
	session := s.sessions.Create(user)
	s.logger.Info("user logged in", "username", user.Username, "role", user.Role)
	writeJSON(w, http.StatusOK, s.sessionResponse(session))
}

// handleAzureLogin authenticates against AAD with the resource-owner
// password flow, then maps the Graph profile onto a portal user.
func (s *Server) handleAzureLogin(w http.ResponseWriter, r *http.Request) {
	if s.opts.AAD == nil {
		writeError(w, http.StatusNotImplemented, "azure login is not configured")
		return
	}
	var req credentialsRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	token, err := s.opts.AAD.AuthenticatePassword(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, identity.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, "azure sign-in failed")
			return
		}
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	s.finishAzureLogin(w, r, token)
}

// handleDeviceInit starts a device-code sign-in and returns the code
// the user must enter.
func (s *Server) handleDeviceInit(w http.ResponseWriter, r *http.Request) {
	if s.opts.AAD == nil {
		writeError(w, http.StatusNotImplemented, "azure login is not configured")
		return
	}
	flow, err := s.opts.AAD.BeginDeviceFlow(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	s.flows.put(flow)
	writeJSON(w, http.StatusOK, flow)
}

// handleDevicePoll checks a pending device-code flow once.
func (s *Server) handleDevicePoll(w http.ResponseWriter, r *http.Request) {
	if s.opts.AAD == nil {
		writeError(w, http.StatusNotImplemented, "azure login is not configured")
		return
	}
	code := chi.URLParam(r, "code")
	flow, ok := s.flows.get(code)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown device code")
		return
	}
	token, err := s.opts.AAD.PollDeviceFlow(r.Context(), flow)
	switch {
	case errors.Is(err, identity.ErrAuthorizationPending):
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "pending"})
		return
	case errors.Is(err, identity.ErrDeviceFlowExpired):
		s.flows.remove(code)
		writeError(w, http.StatusGone, "device code expired")
		return
	case err != nil:
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	s.flows.remove(code)
	s.finishAzureLogin(w, r, token)
}

// handleAuthCallback completes the authorization-code sign-in: the web
// redirect lands here with ?code=..., which is exchanged for tokens.
func (s *Server) handleAuthCallback(w http.ResponseWriter, r *http.Request) {
	if s.opts.AAD == nil {
		writeError(w, http.StatusNotImplemented, "azure login is not configured")
		return
	}
	code := r.URL.Query().Get("code")
	if code == "" {
		writeError(w, http.StatusBadRequest, "missing authorization code")
		return
	}
	token, err := s.opts.AAD.ExchangeAuthCode(r.Context(), code)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	s.finishAzureLogin(w, r, token)
}

func (s *Server) finishAzureLogin(w http.ResponseWriter, r *http.Request, token *identity.Token) {
	profile, err := s.opts.AAD.FetchProfile(r.Context(), token.AccessToken)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	user, err := s.opts.Users.ResolveAzureUser(r.Context(), profile)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	session := s.sessions.Create(user)
	s.logger.Info("azure user logged in", "username", user.Username)
	writeJSON(w, http.StatusOK, s.sessionResponse(session))
}

// handleLogout ends the current session.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.sessions.Delete(bearerToken(r))
	writeJSON(w, http.StatusOK, map[string]string{"status": "logged out"})
}

// handleMe describes the current session.
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	session, _ := sessionFrom(r.Context())
	writeJSON(w, http.StatusOK, s.sessionResponse(session))
}

// flowRegistry keeps pending device-code flows between the initiate and
// poll requests.
type flowRegistry struct {
	mu    sync.Mutex
	flows map[string]*identity.DeviceFlow
}

func newFlowRegistry() *flowRegistry {
	return &flowRegistry{flows: make(map[string]*identity.DeviceFlow)}
}

func (f *flowRegistry) put(flow *identity.DeviceFlow) {
	f.mu.Lock()
	defer f.mu.Unlock()
	// Drop expired flows while we hold the lock.
	now := time.Now()
	for code, pending := range f.flows {
		if now.After(pending.ExpiresAt) {
			delete(f.flows, code)
		}
	}
	f.flows[flow.DeviceCode] = flow
}

func (f *flowRegistry) get(code string) (*identity.DeviceFlow, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	flow, ok := f.flows[code]
	return flow, ok
}

func (f *flowRegistry) remove(code string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.flows, code)
}
