package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/agoraworks/agora/pkg/agents"
	"github.com/agoraworks/agora/pkg/identity"
	"github.com/agoraworks/agora/pkg/jobs"
)

// userView is a user record without the password hash.
type userView struct {
	Username    string   `json:"username"`
	Role        string   `json:"role"`
	Permissions []string `json:"permissions"`
	Email       string   `json:"email,omitempty"`
	DisplayName string   `json:"display_name,omitempty"`
}

func userViewOf(u *identity.User) userView {
	return userView{
		Username:    u.Username,
		Role:        string(u.Role),
		Permissions: u.Permissions,
		Email:       u.Email,
		DisplayName: u.DisplayName,
	}
}

func (s *Server) handleAdminListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.opts.Users.List(r.Context())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	views := make([]userView, 0, len(users))
	for _, u := range users {
		views = append(views, userViewOf(u))
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": views})
}

type createUserRequest struct {
	Username    string   `json:"username"`
	Password    string   `json:"password"`
	Role        string   `json:"role"`
	Permissions []string `json:"permissions"`
	Email       string   `json:"email"`
	DisplayName string   `json:"display_name"`
}

func (s *Server) handleAdminCreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	user, err := s.opts.Users.Create(r.Context(), req.Username, req.Password, identity.Role(req.Role), req.Permissions)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if req.Email != "" || req.DisplayName != "" {
		user.Email = req.Email
		user.DisplayName = req.DisplayName
		if user, err = s.opts.Users.Update(r.Context(), user, ""); err != nil {
			writeStoreError(w, err)
			return
		}
	}
	s.logger.Info("user created", "username", user.Username, "role", user.Role)
	writeJSON(w, http.StatusCreated, userViewOf(user))
}

func (s *Server) handleAdminUpdateUser(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")
	existing, err := s.opts.Users.Get(r.Context(), username)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	var req createUserRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Role != "" {
		existing.Role = identity.Role(req.Role)
	}
	if req.Permissions != nil {
		existing.Permissions = req.Permissions
	}
	if req.Email != "" {
		existing.Email = req.Email
	}
	if req.DisplayName != "" {
		existing.DisplayName = req.DisplayName
	}
	if req.Password != "" {
		existing.PasswordHash = identity.HashPassword(req.Password)
	}
	updated, err := s.opts.Users.Update(r.Context(), existing, r.Header.Get("If-Match"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, userViewOf(updated))
}

func (s *Server) handleAdminDeleteUser(w http.ResponseWriter, r *http.Request) {
	session, _ := sessionFrom(r.Context())
	username := chi.URLParam(r, "username")
	if username == session.Username {
		writeError(w, http.StatusConflict, "cannot delete the current user")
		return
	}
	if err := s.opts.Users.Delete(r.Context(), username); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleAdminCreateAgent(w http.ResponseWriter, r *http.Request) {
	var a agents.Agent
	if err := decodeBody(r, &a); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	created, err := s.opts.Agents.Add(r.Context(), &a)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	s.logger.Info("agent created", "agent", created.ID)
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleAdminUpdateAgent(w http.ResponseWriter, r *http.Request) {
	var a agents.Agent
	if err := decodeBody(r, &a); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	a.ID = chi.URLParam(r, "id")
	updated, err := s.opts.Agents.Update(r.Context(), &a, r.Header.Get("If-Match"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleAdminDeleteAgent(w http.ResponseWriter, r *http.Request) {
	if err := s.opts.Agents.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) jobsConfigured(w http.ResponseWriter) bool {
	if s.opts.Jobs == nil {
		writeError(w, http.StatusNotImplemented, "jobs are not configured")
		return false
	}
	return true
}

func (s *Server) handleAdminListJobs(w http.ResponseWriter, r *http.Request) {
	if !s.jobsConfigured(w) {
		return
	}
	list, err := s.opts.Jobs.List(r.Context())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": list})
}

func (s *Server) handleAdminCreateJob(w http.ResponseWriter, r *http.Request) {
	if !s.jobsConfigured(w) {
		return
	}
	var j jobs.Job
	if err := decodeBody(r, &j); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.opts.Jobs.Create(r.Context(), &j); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, j)
}

func (s *Server) handleAdminUpdateJob(w http.ResponseWriter, r *http.Request) {
	if !s.jobsConfigured(w) {
		return
	}
	var j jobs.Job
	if err := decodeBody(r, &j); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	j.ID = chi.URLParam(r, "id")
	if err := s.opts.Jobs.Update(r.Context(), &j); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, j)
}

func (s *Server) handleAdminDeleteJob(w http.ResponseWriter, r *http.Request) {
	if !s.jobsConfigured(w) {
		return
	}
	if err := s.opts.Jobs.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// handleAdminJobPackage renders and downloads the job's WebJob ZIP.
func (s *Server) handleAdminJobPackage(w http.ResponseWriter, r *http.Request) {
	if !s.jobsConfigured(w) {
		return
	}
	id := chi.URLParam(r, "id")
	j, err := s.opts.Jobs.Get(r.Context(), id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	container, index := "", ""
	if a, err := s.opts.Agents.Get(r.Context(), j.AgentID); err == nil {
		container = agentContainer(a)
		index = a.SearchIndex
	}
	data, err := s.opts.Jobs.Package(r.Context(), id, container, index)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", `attachment; filename="`+id+`-webjob.zip"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
