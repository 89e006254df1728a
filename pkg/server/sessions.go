package server

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/agoraworks/agora/pkg/identity"
)

// ChatMessage is one transient chat entry. History lives in memory for
// the session's lifetime only.
type ChatMessage struct {
	Role           string    `json:"role"`
	Content        string    `json:"content"`
	ThreadID       string    `json:"thread_id,omitempty"`
	ConversationID string    `json:"conversation_id,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// ChatState is a session's per-agent conversation state. Resetting a
// conversation rotates both the thread and the conversation id, so
// stale messages from the previous thread can never leak into the new
// one.
type ChatState struct {
	ThreadID       string
	ConversationID string
	Messages       []ChatMessage
}

// Session is one authenticated portal session.
type Session struct {
	Token       string
	Username    string
	Role        string
	Permissions []string
	CreatedAt   time.Time
	ExpiresAt   time.Time

	mu    sync.Mutex
	chats map[string]*ChatState
}

// HasPermission evaluates the user's permission for an agent action.
func (s *Session) HasPermission(agentID, action string) bool {
	u := identity.User{Username: s.Username, Role: identity.Role(s.Role), Permissions: s.Permissions}
	return u.HasPermission(agentID, action)
}

// Chat returns a snapshot of the session's conversation state for an
// agent, creating it on first use.
func (s *Session) Chat(agentID string) ChatState {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.chats[agentID]
	if !ok {
		state = &ChatState{ConversationID: uuid.NewString()}
		s.chats[agentID] = state
	}
	return ChatState{ThreadID: state.ThreadID, ConversationID: state.ConversationID}
}

// SetThread records the server-side thread backing an agent chat.
func (s *Session) SetThread(agentID, threadID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.chats[agentID]
	if !ok {
		state = &ChatState{ConversationID: uuid.NewString()}
		s.chats[agentID] = state
	}
	state.ThreadID = threadID
}

// ResetChat starts a fresh conversation with an agent.
func (s *Session) ResetChat(agentID string) ChatState {
	s.mu.Lock()
	defer s.mu.Unlock()
	state := &ChatState{ConversationID: uuid.NewString()}
	s.chats[agentID] = state
	return ChatState{ConversationID: state.ConversationID}
}

// AppendMessages records chat history under the session lock.
func (s *Session) AppendMessages(agentID string, msgs ...ChatMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.chats[agentID]
	if !ok {
		state = &ChatState{ConversationID: uuid.NewString()}
		s.chats[agentID] = state
	}
	state.Messages = append(state.Messages, msgs...)
}

// Messages returns a copy of the chat history for an agent.
func (s *Session) Messages(agentID string) []ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.chats[agentID]
	if !ok {
		return nil
	}
	out := make([]ChatMessage, len(state.Messages))
	copy(out, state.Messages)
	return out
}

// Registry tracks live sessions by token and expires them after the
// configured TTL.
type Registry struct {
	mu       sync.RWMutex
	ttl      time.Duration
	sessions map[string]*Session
	now      func() time.Time
}

// NewRegistry builds a session registry with the given TTL.
func NewRegistry(ttl time.Duration) *Registry {
	return &Registry{
		ttl:      ttl,
		sessions: make(map[string]*Session),
		now:      time.Now,
	}
}

// Create opens a session for an authenticated user.
func (r *Registry) Create(user *identity.User) *Session {
	return r.CreateWithToken(uuid.NewString(), user)
}

// CreateWithToken opens a session keyed by a caller-supplied token, used
// when an external bearer credential identifies the session.
func (r *Registry) CreateWithToken(token string, user *identity.User) *Session {
	now := r.now()
	s := &Session{
		Token:       token,
		Username:    user.Username,
		Role:        string(user.Role),
		Permissions: append([]string(nil), user.Permissions...),
		CreatedAt:   now,
		ExpiresAt:   now.Add(r.ttl),
		chats:       make(map[string]*ChatState),
	}
	r.mu.Lock()
	r.sessions[s.Token] = s
	r.mu.Unlock()
	return s
}

// Get returns a live session by token. Expired sessions are treated as
// absent and dropped.
func (r *Registry) Get(token string) (*Session, bool) {
	r.mu.RLock()
	s, ok := r.sessions[token]
	r.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if r.now().After(s.ExpiresAt) {
		r.Delete(token)
		return nil, false
	}
	return s, true
}

// Delete ends a session.
func (r *Registry) Delete(token string) {
	r.mu.Lock()
	delete(r.sessions, token)
	r.mu.Unlock()
}

// Len reports the number of tracked sessions, expired ones included.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// sweep drops expired sessions.
func (r *Registry) sweep() {
	now := r.now()
	r.mu.Lock()
	defer r.mu.Unlock()
	for token, s := range r.sessions {
		if now.After(s.ExpiresAt) {
			delete(r.sessions, token)
		}
	}
}

// StartSweeper expires sessions in the background until ctx ends.
func (r *Registry) StartSweeper(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.sweep()
			}
		}
	}()
}
