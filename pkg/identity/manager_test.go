package identity

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agoraworks/agora/pkg/store"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	users, err := store.NewMemoryProvider().Collection(context.Background(), "user-configs")
	require.NoError(t, err)
	return NewManager(users)
}

func TestManagerCreateGetDelete(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)

	created, err := m.Create(ctx, "ayse", "parola123", RoleStandard, nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultPermissions(RoleStandard), created.Permissions)
	assert.False(t, created.CreatedAt.IsZero())

	got, err := m.Get(ctx, "ayse")
	require.NoError(t, err)
	assert.Equal(t, "ayse", got.Username)
	assert.Equal(t, RoleStandard, got.Role)
	assert.Equal(t, created.PasswordHash, got.PasswordHash)

	// Duplicate username is a conflict, not an overwrite.
	_, err = m.Create(ctx, "ayse", "other", RoleAdmin, nil)
	assert.ErrorIs(t, err, store.ErrConflict)

	require.NoError(t, m.Delete(ctx, "ayse"))
	_, err = m.Get(ctx, "ayse")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestManagerAuthenticate(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)

	_, err := m.Create(ctx, "admin", "gizli", RoleAdmin, nil)
	require.NoError(t, err)

	u, err := m.Authenticate(ctx, "admin", "gizli")
	require.NoError(t, err)
	assert.Equal(t, RoleAdmin, u.Role)

	_, err = m.Authenticate(ctx, "admin", "yanlis")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	// Unknown user reads the same as a bad password.
	_, err = m.Authenticate(ctx, "kims", "gizli")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestManagerUpdatePreservesCreatedAt(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)

	created, err := m.Create(ctx, "ops", "parola", RoleManager, nil)
	require.NoError(t, err)

	updated, err := m.UpdatePermissions(ctx, "ops", []string{"scm:chat", "scm:upload"})
	require.NoError(t, err)
	assert.Equal(t, created.CreatedAt, updated.CreatedAt)
	assert.True(t, updated.UpdatedAt.After(created.UpdatedAt) || updated.UpdatedAt.Equal(created.UpdatedAt))
	assert.Equal(t, []string{"scm:chat", "scm:upload"}, updated.Permissions)
}

func TestManagerHasPermission(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)

	_, err := m.Create(ctx, "ayse", "p", RoleStandard, []string{"scm:chat"})
	require.NoError(t, err)

	assert.True(t, m.HasPermission(ctx, "ayse", "scm", "chat"))
	assert.False(t, m.HasPermission(ctx, "ayse", "it", "chat"))
	assert.False(t, m.HasPermission(ctx, "", "scm", "chat"))
	assert.False(t, m.HasPermission(ctx, "ayse", "", "chat"))
	assert.False(t, m.HasPermission(ctx, "nobody", "scm", "chat"))
}

func TestEnsureDefaultAdmin(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)

	// No password configured: nothing is created.
	require.NoError(t, m.EnsureDefaultAdmin(ctx, "admin", ""))
	_, err := m.Get(ctx, "admin")
	assert.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, m.EnsureDefaultAdmin(ctx, "admin", "bootstrap"))
	u, err := m.Get(ctx, "admin")
	require.NoError(t, err)
	assert.Equal(t, RoleAdmin, u.Role)

	// An existing admin short-circuits further bootstrapping.
	require.NoError(t, m.EnsureDefaultAdmin(ctx, "admin2", "other"))
	_, err = m.Get(ctx, "admin2")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestListSkipsMalformedRecords(t *testing.T) {
	ctx := context.Background()
	users, err := store.NewMemoryProvider().Collection(ctx, "user-configs")
	require.NoError(t, err)
	m := NewManager(users)

	_, err = m.Create(ctx, "ok", "p", RoleStandard, nil)
	require.NoError(t, err)
	_, err = users.Put(ctx, "bad.json", []byte("{broken"), nil)
	require.NoError(t, err)

	list, err := m.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "ok", list[0].Username)
}
