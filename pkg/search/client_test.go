package search

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := NewClient(srv.URL, "admin-key")
	require.NoError(t, err)
	return c
}

func TestCreateIndexSendsFixedSchema(t *testing.T) {
	var def IndexDefinition
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/indexes/scm-docs", r.URL.Path)
		assert.Equal(t, "admin-key", r.Header.Get("api-key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&def))
		w.WriteHeader(http.StatusCreated)
	}))
	require.NoError(t, c.CreateIndex(context.Background(), "scm-docs"))

	assert.Equal(t, "scm-docs", def.Name)
	fields := map[string]Field{}
	for _, f := range def.Fields {
		fields[f.Name] = f
	}
	assert.True(t, fields["id"].Key)
	assert.True(t, fields["content"].Searchable)
	assert.True(t, fields["metadata_storage_name"].Searchable)
	assert.True(t, fields["metadata_storage_name"].Filterable)
	assert.True(t, fields["metadata_storage_size"].Filterable)
}

func TestDeleteIndexToleratesMissing(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	assert.NoError(t, c.DeleteIndex(context.Background(), "gone"))
}

func TestIndexExists(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/indexes/present" {
			json.NewEncoder(w).Encode(map[string]string{"name": "present"})
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	ok, err := c.IndexExists(context.Background(), "present")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.IndexExists(context.Background(), "absent")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSearch(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/indexes/scm-docs/docs/search", r.URL.Path)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "rapor", body["search"])
		assert.Equal(t, "chunk_id,metadata_storage_name", body["select"])
		json.NewEncoder(w).Encode(map[string]any{"value": []map[string]any{
			{"chunk_id": "c1", "metadata_storage_name": "rapor.pdf"},
		}})
	}))
	docs, err := c.Search(context.Background(), "scm-docs", Query{
		Text:   "rapor",
		Select: []string{"chunk_id", "metadata_storage_name"},
	})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "c1", docs[0].ChunkID())
}

func TestDeleteDocuments(t *testing.T) {
	var body struct {
		Value []map[string]any `json:"value"`
	}
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/indexes/scm-docs/docs/index", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.WriteHeader(http.StatusOK)
	}))
	require.NoError(t, c.DeleteDocuments(context.Background(), "scm-docs", []string{"c1", "c2"}))
	require.Len(t, body.Value, 2)
	assert.Equal(t, "delete", body.Value[0]["@search.action"])
	assert.Equal(t, "c1", body.Value[0]["chunk_id"])
}

func TestDeleteDocumentsEmptyIsNoop(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected for empty batch")
	}))
	assert.NoError(t, c.DeleteDocuments(context.Background(), "scm-docs", nil))
}

func TestRunIndexerUsesNamingConvention(t *testing.T) {
	var path string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		w.WriteHeader(http.StatusAccepted)
	}))
	require.NoError(t, c.RunIndexer(context.Background(), "scm-docs"))
	assert.Equal(t, "/indexers/scm-docs-indexer/run", path)
}

func TestIndexerStatus(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/indexers/scm-docs-indexer/status", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]any{
			"status": "running",
			"lastResult": map[string]any{
				"status":       "success",
				"errorMessage": "",
			},
		})
	}))
	state, err := c.IndexerStatus(context.Background(), "scm-docs")
	require.NoError(t, err)
	assert.Equal(t, "running", state.Status)
	assert.Equal(t, "success", state.LastRunStatus)
}
