package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/agoraworks/agora/pkg/store"
)

// ErrInvalidCredentials is returned for a wrong username/password pair.
// It is deliberately indistinguishable between the two.
var ErrInvalidCredentials = errors.New("invalid credentials")

// Manager persists users in a store collection, one JSON record per user.
type Manager struct {
	users store.Store
}

func NewManager(users store.Store) *Manager {
	return &Manager{users: users}
}

func userKey(username string) string {
	return username + ".json"
}

// Get returns the user, store.ErrNotFound, or store.ErrInvalidData.
func (m *Manager) Get(ctx context.Context, username string) (*User, error) {
	if username == "" {
		return nil, fmt.Errorf("%w: empty username", store.ErrInvalidData)
	}
	rec, err := m.users.Get(ctx, userKey(username))
	if err != nil {
		return nil, err
	}
	return decodeUser(rec.Data)
}

// List returns all decodable users. Records that fail to decode are logged
// and skipped so one corrupt blob does not hide the rest.
func (m *Manager) List(ctx context.Context) ([]*User, error) {
	entries, err := m.users.List(ctx, "")
	if err != nil {
		return nil, err
	}
	users := make([]*User, 0, len(entries))
	for _, entry := range entries {
		if !strings.HasSuffix(entry.Key, ".json") {
			continue
		}
		rec, err := m.users.Get(ctx, entry.Key)
		if err != nil {
			slog.Warn("skipping unreadable user record", "key", entry.Key, "error", err)
			continue
		}
		u, err := decodeUser(rec.Data)
		if err != nil {
			slog.Warn("skipping malformed user record", "key", entry.Key, "error", err)
			continue
		}
		users = append(users, u)
	}
	return users, nil
}

// Create adds a new user. An existing username is a conflict. When
// permissions is nil the role's defaults apply.
func (m *Manager) Create(ctx context.Context, username, password string, role Role, permissions []string) (*User, error) {
	if username == "" {
		return nil, fmt.Errorf("%w: empty username", store.ErrInvalidData)
	}
	if password == "" {
		return nil, fmt.Errorf("%w: empty password", store.ErrInvalidData)
	}
	if permissions == nil {
		permissions = DefaultPermissions(role)
	}
	now := time.Now().UTC()
	u := &User{
		Username:     username,
		PasswordHash: HashPassword(password),
		Role:         role,
		Permissions:  permissions,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	data, err := encodeUser(u)
	if err != nil {
		return nil, err
	}
	if _, err := m.users.Put(ctx, userKey(username), data, &store.PutOptions{IfNoneMatchAny: true}); err != nil {
		return nil, err
	}
	slog.Info("user created", "username", username, "role", role)
	return u, nil
}

// Update overwrites a user record, preserving CreatedAt. The caller's ETag,
// when non-empty, makes the write conditional.
func (m *Manager) Update(ctx context.Context, u *User, etag string) (*User, error) {
	existing, err := m.Get(ctx, u.Username)
	if err != nil {
		return nil, err
	}
	u.CreatedAt = existing.CreatedAt
	u.UpdatedAt = time.Now().UTC()

	data, err := encodeUser(u)
	if err != nil {
		return nil, err
	}
	var opts *store.PutOptions
	if etag != "" {
		opts = &store.PutOptions{IfMatch: etag}
	}
	if _, err := m.users.Put(ctx, userKey(u.Username), data, opts); err != nil {
		return nil, err
	}
	return u, nil
}

// UpdatePermissions replaces the permission list.
func (m *Manager) UpdatePermissions(ctx context.Context, username string, permissions []string) (*User, error) {
	u, err := m.Get(ctx, username)
	if err != nil {
		return nil, err
	}
	u.Permissions = permissions
	return m.Update(ctx, u, "")
}

// Delete removes a user record.
func (m *Manager) Delete(ctx context.Context, username string) error {
	if username == "" {
		return fmt.Errorf("%w: empty username", store.ErrInvalidData)
	}
	if err := m.users.Delete(ctx, userKey(username)); err != nil {
		return err
	}
	slog.Info("user deleted", "username", username)
	return nil
}

// Authenticate verifies a local password login. Store availability problems
// surface as-is so callers do not mistake an outage for a bad password.
func (m *Manager) Authenticate(ctx context.Context, username, password string) (*User, error) {
	u, err := m.Get(ctx, username)
	if err != nil {
		if store.IsNotFound(err) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !u.CheckPassword(password) {
		return nil, ErrInvalidCredentials
	}
	return u, nil
}

// HasPermission loads the user and evaluates one agent/action pair. Any
// load failure is a denial.
func (m *Manager) HasPermission(ctx context.Context, username, agentID, action string) bool {
	if username == "" || agentID == "" {
		return false
	}
	u, err := m.Get(ctx, username)
	if err != nil {
		return false
	}
	return u.HasPermission(agentID, action)
}

// EnsureDefaultAdmin creates the named admin user when no admin exists yet.
// An empty password skips creation with a warning, matching the operational
// stance that admin credentials never have defaults.
func (m *Manager) EnsureDefaultAdmin(ctx context.Context, username, password string) error {
	users, err := m.List(ctx)
	if err != nil {
		return err
	}
	for _, u := range users {
		if u.Role == RoleAdmin {
			return nil
		}
	}
	if password == "" {
		slog.Warn("no admin user exists and no bootstrap password configured; create one with 'agora useradd'")
		return nil
	}
	_, err = m.Create(ctx, username, password, RoleAdmin, nil)
	if errors.Is(err, store.ErrConflict) {
		// Raced another instance bootstrapping the same admin.
		return nil
	}
	return err
}
