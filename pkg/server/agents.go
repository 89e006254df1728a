package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/agoraworks/agora/pkg/agents"
)

// agentView is the agent record as exposed to non-admin callers; the
// storage connection string never leaves the server.
type agentView struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Icon        string   `json:"icon,omitempty"`
	Description string   `json:"description,omitempty"`
	Color       string   `json:"color,omitempty"`
	Categories  []string `json:"categories,omitempty"`
	Status      string   `json:"status"`
	AgentType   string   `json:"agent_type,omitempty"`
}

func viewOf(a *agents.Agent) agentView {
	return agentView{
		ID:          a.ID,
		Name:        a.Name,
		Icon:        a.Icon,
		Description: a.Description,
		Color:       a.Color,
		Categories:  a.Categories,
		Status:      a.Status,
		AgentType:   a.AgentType,
	}
}

// handleListAgents returns the active agents the session may access.
func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	session, _ := sessionFrom(r.Context())
	list, err := s.opts.Agents.ListActive(r.Context())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	views := make([]agentView, 0, len(list))
	for _, a := range list {
		if session.HasPermission(a.ID, "access") {
			views = append(views, viewOf(a))
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"agents": views})
}

// handleGetAgent returns one agent's dashboard view.
func (s *Server) handleGetAgent(w http.ResponseWriter, r *http.Request) {
	a, err := s.opts.Agents.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(a))
}

type chatRequest struct {
	Message string `json:"message"`
}

type chatResponse struct {
	Reply          string `json:"reply"`
	ThreadID       string `json:"thread_id"`
	ConversationID string `json:"conversation_id"`
}

// handleChat sends one user message to the agent and returns the
// rewritten assistant reply.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if s.opts.Chat == nil {
		writeError(w, http.StatusNotImplemented, "chat is not configured")
		return
	}
	session, _ := sessionFrom(r.Context())
	agentID := chi.URLParam(r, "id")

	var req chatRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}

	a, err := s.opts.Agents.Get(r.Context(), agentID)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if !a.IsActive() {
		writeError(w, http.StatusConflict, "agent is not active")
		return
	}

	state := session.Chat(agentID)
	if state.ThreadID == "" {
		threadID, err := s.opts.Chat.CreateThread(r.Context())
		if err != nil {
			writeError(w, http.StatusBadGateway, err.Error())
			return
		}
		state.ThreadID = threadID
		session.SetThread(agentID, threadID)
	}

	// Agents configured with SendUserInfo see who is asking; the visible
	// history keeps the message as typed.
	outbound := req.Message
	if a.SendUserInfo {
		outbound = fmt.Sprintf("[Kullanıcı: %s] %s", session.Username, req.Message)
	}
	reply, err := s.opts.Chat.Send(r.Context(), state.ThreadID, a.AgentID, outbound)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	now := time.Now().UTC()
	session.AppendMessages(agentID,
		ChatMessage{Role: "user", Content: req.Message, ThreadID: state.ThreadID, ConversationID: state.ConversationID, Timestamp: now},
		ChatMessage{Role: "assistant", Content: reply, ThreadID: state.ThreadID, ConversationID: state.ConversationID, Timestamp: time.Now().UTC()},
	)
	writeJSON(w, http.StatusOK, chatResponse{
		Reply:          reply,
		ThreadID:       state.ThreadID,
		ConversationID: state.ConversationID,
	})
}

// handleChatHistory returns the session's transient message history
// with an agent.
func (s *Server) handleChatHistory(w http.ResponseWriter, r *http.Request) {
	session, _ := sessionFrom(r.Context())
	msgs := session.Messages(chi.URLParam(r, "id"))
	if msgs == nil {
		msgs = []ChatMessage{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": msgs})
}

// handleChatReset starts a new conversation with an agent.
func (s *Server) handleChatReset(w http.ResponseWriter, r *http.Request) {
	session, _ := sessionFrom(r.Context())
	state := session.ResetChat(chi.URLParam(r, "id"))
	writeJSON(w, http.StatusOK, map[string]string{
		"conversation_id": state.ConversationID,
	})
}
