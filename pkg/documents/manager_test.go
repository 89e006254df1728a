package documents

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agoraworks/agora/pkg/search"
	"github.com/agoraworks/agora/pkg/store"
)

type fakeSearcher struct {
	docs        []search.Document
	searchErr   error
	deleted     [][]string
	deleteErr   error
	uploaded    []search.Document
	indexerRuns int
	indexerErr  error
}

func (f *fakeSearcher) Search(ctx context.Context, index string, q search.Query) ([]search.Document, error) {
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	var out []search.Document
	for _, d := range f.docs {
		title, _ := d["metadata_storage_name"].(string)
		if strings.Contains(strings.ToLower(title), strings.ToLower(q.Text)) {
			out = append(out, d)
		}
	}
	return out, nil
}

func (f *fakeSearcher) DeleteDocuments(ctx context.Context, index string, chunkIDs []string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, chunkIDs)
	return nil
}

func (f *fakeSearcher) UploadDocuments(ctx context.Context, index string, docs []search.Document) error {
	f.uploaded = append(f.uploaded, docs...)
	return nil
}

func (f *fakeSearcher) RunIndexer(ctx context.Context, index string) error {
	f.indexerRuns++
	return f.indexerErr
}

func newTestManager(t *testing.T, searcher Searcher) (*Manager, store.Provider) {
	t.Helper()
	provider := store.NewMemoryProvider()
	chunker, err := NewChunker(50, 10)
	if err != nil {
		t.Skipf("token encoding unavailable: %v", err)
	}
	m, err := NewManager(provider, searcher, WithChunker(chunker))
	require.NoError(t, err)
	return m, provider
}

func TestUploadDownloadRoundTrip(t *testing.T) {
	m, _ := newTestManager(t, &fakeSearcher{})
	ctx := context.Background()

	require.NoError(t, m.Upload(ctx, "agent-scm", "rapor.txt", []byte("içerik")))
	data, err := m.Download(ctx, "agent-scm", "rapor.txt")
	require.NoError(t, err)
	assert.Equal(t, []byte("içerik"), data)

	entries, err := m.List(ctx, "agent-scm")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "rapor.txt", entries[0].Key)
}

func TestUploadRejectsEmptyNames(t *testing.T) {
	m, _ := newTestManager(t, &fakeSearcher{})
	err := m.Upload(context.Background(), "", "x.txt", []byte("a"))
	assert.ErrorIs(t, err, store.ErrInvalidData)
}

func TestDeleteRunsCleanupCascade(t *testing.T) {
	searcher := &fakeSearcher{docs: []search.Document{
		{"chunk_id": "c1", "metadata_storage_name": "rapor.pdf"},
		{"chunk_id": "c2", "metadata_storage_name": "rapor.pdf"},
		{"chunk_id": "c3", "metadata_storage_name": "baska.pdf"},
	}}
	m, provider := newTestManager(t, searcher)
	ctx := context.Background()

	require.NoError(t, m.Upload(ctx, "agent-scm", "rapor.pdf", []byte("pdf bytes")))
	require.NoError(t, m.Delete(ctx, "agent-scm", "scm-docs", "rapor.pdf"))

	col, err := provider.Collection(ctx, "agent-scm")
	require.NoError(t, err)
	_, err = col.Get(ctx, "rapor.pdf")
	assert.ErrorIs(t, err, store.ErrNotFound)

	require.Len(t, searcher.deleted, 1)
	assert.ElementsMatch(t, []string{"c1", "c2"}, searcher.deleted[0])
	assert.Equal(t, 1, searcher.indexerRuns)
}

func TestDeleteBroadensWhenTitleMisses(t *testing.T) {
	// Chunks indexed under a path-qualified name are only found by the
	// broadened stem search.
	searcher := &fakeSearcher{docs: []search.Document{
		{"chunk_id": "c1", "metadata_storage_name": "docs/rapor (1).pdf"},
	}}
	m, _ := newTestManager(t, searcher)
	ctx := context.Background()

	require.NoError(t, m.Upload(ctx, "agent-scm", "rapor.pdf", []byte("pdf bytes")))
	require.NoError(t, m.Delete(ctx, "agent-scm", "scm-docs", "rapor.pdf"))

	require.Len(t, searcher.deleted, 1)
	assert.Equal(t, []string{"c1"}, searcher.deleted[0])
}

func TestDeleteReportsTierFailuresWithoutRollback(t *testing.T) {
	searcher := &fakeSearcher{
		searchErr:  errors.New("search down"),
		indexerErr: errors.New("indexer down"),
	}
	m, provider := newTestManager(t, searcher)
	ctx := context.Background()

	require.NoError(t, m.Upload(ctx, "agent-scm", "rapor.pdf", []byte("pdf bytes")))
	err := m.Delete(ctx, "agent-scm", "scm-docs", "rapor.pdf")
	require.Error(t, err)
	var cleanup *CleanupError
	require.ErrorAs(t, err, &cleanup)
	assert.Contains(t, err.Error(), "title cleanup")
	assert.Contains(t, err.Error(), "indexer run")

	// Blob stays deleted even though the index is now stale.
	col, err2 := provider.Collection(ctx, "agent-scm")
	require.NoError(t, err2)
	_, err2 = col.Get(ctx, "rapor.pdf")
	assert.ErrorIs(t, err2, store.ErrNotFound)
}

func TestDeleteSkipsCleanupWithoutIndex(t *testing.T) {
	searcher := &fakeSearcher{}
	m, _ := newTestManager(t, searcher)
	ctx := context.Background()

	require.NoError(t, m.Upload(ctx, "agent-scm", "rapor.pdf", []byte("pdf bytes")))
	require.NoError(t, m.Delete(ctx, "agent-scm", "", "rapor.pdf"))
	assert.Zero(t, searcher.indexerRuns)
	assert.Empty(t, searcher.deleted)
}

func TestIndexUploadsChunks(t *testing.T) {
	searcher := &fakeSearcher{}
	m, _ := newTestManager(t, searcher)

	text := strings.Repeat("kurumsal doküman içeriği ", 100)
	n, err := m.Index(context.Background(), "scm-docs", "rehber.txt", []byte(text))
	require.NoError(t, err)
	assert.Greater(t, n, 1)
	require.Len(t, searcher.uploaded, n)

	first := searcher.uploaded[0]
	assert.Equal(t, "rehber-0", first["chunk_id"])
	assert.Equal(t, "rehber.txt", first["metadata_storage_name"])
	assert.NotEmpty(t, first["content"])
}

type fakeEmbedder struct{ dims int }

func (f *fakeEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = make([]float32, f.dims)
	}
	return out, nil
}

func TestIndexAttachesVectors(t *testing.T) {
	searcher := &fakeSearcher{}
	provider := store.NewMemoryProvider()
	chunker, err := NewChunker(50, 10)
	if err != nil {
		t.Skipf("token encoding unavailable: %v", err)
	}
	m, err := NewManager(provider, searcher, WithChunker(chunker), WithEmbedder(&fakeEmbedder{dims: 4}))
	require.NoError(t, err)

	n, err := m.Index(context.Background(), "scm-docs", "not.txt", []byte("kısa içerik"))
	require.NoError(t, err)
	require.Equal(t, 1, n)
	assert.Len(t, searcher.uploaded[0]["content_vector"], 4)
}

func TestIndexRejectsUnknownFormat(t *testing.T) {
	m, _ := newTestManager(t, &fakeSearcher{})
	_, err := m.Index(context.Background(), "scm-docs", "binary.exe", []byte{0x4d, 0x5a})
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}
