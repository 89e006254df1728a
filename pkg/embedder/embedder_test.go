package embedder

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/openai/deployments/text-embedding-ada-002/embeddings", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("api-key"))
		var body struct {
			Input []string `json:"input"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Len(t, body.Input, 2)
		// Return out of order to exercise index-based placement.
		json.NewEncoder(w).Encode(map[string]any{"data": []map[string]any{
			{"index": 1, "embedding": []float32{0.3, 0.4}},
			{"index": 0, "embedding": []float32{0.1, 0.2}},
		}})
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, "secret")
	require.NoError(t, err)
	vecs, err := c.Embed(context.Background(), []string{"bir", "iki"})
	require.NoError(t, err)
	require.Len(t, vecs, 2)
	assert.Equal(t, []float32{0.1, 0.2}, vecs[0])
	assert.Equal(t, []float32{0.3, 0.4}, vecs[1])
}

func TestEmbedEmptyInput(t *testing.T) {
	c, err := NewClient("https://example.openai.azure.com", "secret")
	require.NoError(t, err)
	vecs, err := c.Embed(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, vecs)
}

func TestEmbedServiceError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad key", http.StatusUnauthorized)
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, "wrong")
	require.NoError(t, err)
	_, err = c.Embed(context.Background(), []string{"x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 401")
}
