package agents

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/agoraworks/agora/pkg/store"
)

// Manager persists agent configurations, one JSON record per agent.
type Manager struct {
	agents store.Store
}

func NewManager(agents store.Store) *Manager {
	return &Manager{agents: agents}
}

func agentKey(id string) string {
	return id + ".json"
}

// Get returns the agent, store.ErrNotFound, or store.ErrInvalidData.
func (m *Manager) Get(ctx context.Context, id string) (*Agent, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: empty agent id", store.ErrInvalidData)
	}
	rec, err := m.agents.Get(ctx, agentKey(id))
	if err != nil {
		return nil, err
	}
	return decodeAgent(rec.Data)
}

// GetWithETag also returns the record's ETag for conditional updates.
func (m *Manager) GetWithETag(ctx context.Context, id string) (*Agent, string, error) {
	if id == "" {
		return nil, "", fmt.Errorf("%w: empty agent id", store.ErrInvalidData)
	}
	rec, err := m.agents.Get(ctx, agentKey(id))
	if err != nil {
		return nil, "", err
	}
	a, err := decodeAgent(rec.Data)
	if err != nil {
		return nil, "", err
	}
	return a, rec.ETag, nil
}

// List returns all decodable agents; malformed records are logged and
// skipped.
func (m *Manager) List(ctx context.Context) ([]*Agent, error) {
	entries, err := m.agents.List(ctx, "")
	if err != nil {
		return nil, err
	}
	agents := make([]*Agent, 0, len(entries))
	for _, entry := range entries {
		if !strings.HasSuffix(entry.Key, ".json") {
			continue
		}
		rec, err := m.agents.Get(ctx, entry.Key)
		if err != nil {
			slog.Warn("skipping unreadable agent record", "key", entry.Key, "error", err)
			continue
		}
		a, err := decodeAgent(rec.Data)
		if err != nil {
			slog.Warn("skipping malformed agent record", "key", entry.Key, "error", err)
			continue
		}
		agents = append(agents, a)
	}
	return agents, nil
}

// ListActive returns agents that should appear on the dashboard.
func (m *Manager) ListActive(ctx context.Context) ([]*Agent, error) {
	all, err := m.List(ctx)
	if err != nil {
		return nil, err
	}
	active := make([]*Agent, 0, len(all))
	for _, a := range all {
		if a.IsActive() {
			active = append(active, a)
		}
	}
	return active, nil
}

// Add stores a new agent, injecting timestamps and defaulting status to
// active and enabled to true. An existing id is a conflict.
func (m *Manager) Add(ctx context.Context, a *Agent) (*Agent, error) {
	if a.ID == "" {
		return nil, fmt.Errorf("%w: empty agent id", store.ErrInvalidData)
	}
	now := time.Now().UTC()
	a.CreatedAt = now
	a.UpdatedAt = now
	if a.Status == "" {
		a.Status = StatusActive
	}
	if a.Status == StatusActive {
		a.Enabled = true
	}
	data, err := encodeAgent(a)
	if err != nil {
		return nil, err
	}
	if _, err := m.agents.Put(ctx, agentKey(a.ID), data, &store.PutOptions{IfNoneMatchAny: true}); err != nil {
		return nil, err
	}
	slog.Info("agent added", "agent", a.ID, "name", a.Name)
	return a, nil
}

// Update overwrites an agent configuration, preserving CreatedAt. A
// non-empty etag makes the write conditional.
func (m *Manager) Update(ctx context.Context, a *Agent, etag string) (*Agent, error) {
	existing, err := m.Get(ctx, a.ID)
	if err != nil {
		return nil, err
	}
	a.CreatedAt = existing.CreatedAt
	a.UpdatedAt = time.Now().UTC()

	data, err := encodeAgent(a)
	if err != nil {
		return nil, err
	}
	var opts *store.PutOptions
	if etag != "" {
		opts = &store.PutOptions{IfMatch: etag}
	}
	if _, err := m.agents.Put(ctx, agentKey(a.ID), data, opts); err != nil {
		return nil, err
	}
	return a, nil
}

// Delete removes an agent configuration.
func (m *Manager) Delete(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("%w: empty agent id", store.ErrInvalidData)
	}
	if err := m.agents.Delete(ctx, agentKey(id)); err != nil {
		return err
	}
	slog.Info("agent deleted", "agent", id)
	return nil
}

// SetStatus flips an agent between active and inactive.
func (m *Manager) SetStatus(ctx context.Context, id, status string) (*Agent, error) {
	if status != StatusActive && status != StatusInactive {
		return nil, fmt.Errorf("%w: status %q", store.ErrInvalidData, status)
	}
	a, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	a.Status = status
	a.Enabled = status == StatusActive
	return m.Update(ctx, a, "")
}
