package agents

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agoraworks/agora/pkg/store"
)

func newTestManager(t *testing.T) (*Manager, store.Store) {
	t.Helper()
	s, err := store.NewMemoryProvider().Collection(context.Background(), "agent-configs")
	require.NoError(t, err)
	return NewManager(s), s
}

func TestAddGetDelete(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t)

	added, err := m.Add(ctx, &Agent{
		ID:          "scm",
		Name:        "Tedarik Zinciri",
		Icon:        "📦",
		SearchIndex: "scm-index",
		AgentType:   TypeDataAgent,
	})
	require.NoError(t, err)
	assert.Equal(t, StatusActive, added.Status)
	assert.True(t, added.Enabled)
	assert.False(t, added.CreatedAt.IsZero())

	got, err := m.Get(ctx, "scm")
	require.NoError(t, err)
	assert.Equal(t, "Tedarik Zinciri", got.Name)
	assert.Equal(t, "scm-index", got.SearchIndex)
	assert.True(t, got.IsActive())

	require.NoError(t, m.Delete(ctx, "scm"))
	_, err = m.Get(ctx, "scm")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestAddRejectsEmptyID(t *testing.T) {
	m, _ := newTestManager(t)
	_, err := m.Add(context.Background(), &Agent{Name: "adsız"})
	assert.ErrorIs(t, err, store.ErrInvalidData)
}

func TestUpdateIdempotentSerialization(t *testing.T) {
	ctx := context.Background()
	m, s := newTestManager(t)

	_, err := m.Add(ctx, &Agent{ID: "it", Name: "BT Destek"})
	require.NoError(t, err)

	payload := &Agent{ID: "it", Name: "BT Destek", Description: "yardım masası"}
	_, err = m.Update(ctx, payload, "")
	require.NoError(t, err)
	first, err := s.Get(ctx, "it.json")
	require.NoError(t, err)

	_, err = m.Update(ctx, payload, "")
	require.NoError(t, err)
	second, err := s.Get(ctx, "it.json")
	require.NoError(t, err)

	// Excluding timestamps the serialized records must match exactly.
	strip := func(data []byte) map[string]interface{} {
		var m map[string]interface{}
		require.NoError(t, json.Unmarshal(data, &m))
		delete(m, "created_at")
		delete(m, "updated_at")
		return m
	}
	assert.Equal(t, strip(first.Data), strip(second.Data))
}

func TestUpdatePreservesCreatedAt(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t)

	added, err := m.Add(ctx, &Agent{ID: "hr", Name: "İK"})
	require.NoError(t, err)

	updated, err := m.Update(ctx, &Agent{ID: "hr", Name: "İnsan Kaynakları"}, "")
	require.NoError(t, err)
	assert.Equal(t, added.CreatedAt, updated.CreatedAt)
}

func TestConditionalUpdateConflict(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t)

	_, err := m.Add(ctx, &Agent{ID: "fin", Name: "Finans"})
	require.NoError(t, err)

	_, etag, err := m.GetWithETag(ctx, "fin")
	require.NoError(t, err)

	// A concurrent writer rotates the tag.
	_, err = m.Update(ctx, &Agent{ID: "fin", Name: "Finans v2"}, "")
	require.NoError(t, err)

	_, err = m.Update(ctx, &Agent{ID: "fin", Name: "Finans v3"}, etag)
	assert.ErrorIs(t, err, store.ErrConflict)
}

func TestSetStatus(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t)

	_, err := m.Add(ctx, &Agent{ID: "scm", Name: "Tedarik"})
	require.NoError(t, err)

	a, err := m.SetStatus(ctx, "scm", StatusInactive)
	require.NoError(t, err)
	assert.False(t, a.IsActive())

	active, err := m.ListActive(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)

	_, err = m.SetStatus(ctx, "scm", "paused")
	assert.ErrorIs(t, err, store.ErrInvalidData)
}

func TestContainerNameFor(t *testing.T) {
	assert.Equal(t, "agent-scm", ContainerNameFor("scm"))
	assert.Equal(t, "agent-x-y-z", ContainerNameFor("x_y.z"))
	assert.Equal(t, "agent-bt-destek", ContainerNameFor("BT Destek"))

	// Long ids are clipped to 63 chars with no trailing hyphen.
	long := ContainerNameFor("a123456789b123456789c123456789d123456789e123456789f123456789-x")
	assert.LessOrEqual(t, len(long), 63)
	assert.NotEqual(t, byte('-'), long[len(long)-1])
}
