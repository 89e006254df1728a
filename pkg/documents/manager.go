// Package documents manages an agent's source documents: blob storage,
// search-index population, and the cleanup cascade that keeps the two
// aligned on delete.
package documents

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/agoraworks/agora/pkg/embedder"
	"github.com/agoraworks/agora/pkg/search"
	"github.com/agoraworks/agora/pkg/store"
)

// Searcher is the search-service surface the manager depends on.
type Searcher interface {
	Search(ctx context.Context, index string, q search.Query) ([]search.Document, error)
	DeleteDocuments(ctx context.Context, index string, chunkIDs []string) error
	UploadDocuments(ctx context.Context, index string, docs []search.Document) error
	RunIndexer(ctx context.Context, index string) error
}

// Embedder is the optional embedding surface for the direct index path.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

var _ Searcher = (*search.Client)(nil)
var _ Embedder = (*embedder.Client)(nil)

// Manager drives the document lifecycle for agent containers.
type Manager struct {
	stores store.Provider
	search Searcher
	embed  Embedder
	logger *slog.Logger

	// The default chunker loads its token encoding on first use, so
	// deployments that never index directly skip the cost.
	chunker     *Chunker
	chunkerOnce sync.Once
	chunkerErr  error
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithEmbedder enables embedding vectors on the direct index path.
func WithEmbedder(e Embedder) ManagerOption {
	return func(m *Manager) { m.embed = e }
}

// WithChunker replaces the default chunker.
func WithChunker(c *Chunker) ManagerOption {
	return func(m *Manager) { m.chunker = c }
}

// WithLogger sets the manager logger.
func WithLogger(l *slog.Logger) ManagerOption {
	return func(m *Manager) { m.logger = l }
}

// NewManager builds a document manager over blob storage and search.
func NewManager(stores store.Provider, searcher Searcher, opts ...ManagerOption) (*Manager, error) {
	if stores == nil {
		return nil, errors.New("store provider is required")
	}
	m := &Manager{
		stores: stores,
		search: searcher,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

func (m *Manager) getChunker() (*Chunker, error) {
	m.chunkerOnce.Do(func() {
		if m.chunker == nil {
			m.chunker, m.chunkerErr = NewChunker(1000, 200)
		}
	})
	return m.chunker, m.chunkerErr
}

// Upload stores raw document bytes in the agent's container.
func (m *Manager) Upload(ctx context.Context, container, name string, data []byte) error {
	if container == "" || name == "" {
		return fmt.Errorf("%w: container and document name are required", store.ErrInvalidData)
	}
	col, err := m.stores.Collection(ctx, container)
	if err != nil {
		return fmt.Errorf("opening container %s: %w", container, err)
	}
	if _, err := col.Put(ctx, name, data, nil); err != nil {
		return fmt.Errorf("uploading %s: %w", name, err)
	}
	return nil
}

// List returns the documents in the agent's container.
func (m *Manager) List(ctx context.Context, container string) ([]store.Entry, error) {
	col, err := m.stores.Collection(ctx, container)
	if err != nil {
		return nil, fmt.Errorf("opening container %s: %w", container, err)
	}
	entries, err := col.List(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", container, err)
	}
	return entries, nil
}

// Download returns a document's bytes.
func (m *Manager) Download(ctx context.Context, container, name string) ([]byte, error) {
	col, err := m.stores.Collection(ctx, container)
	if err != nil {
		return nil, fmt.Errorf("opening container %s: %w", container, err)
	}
	rec, err := col.Get(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("downloading %s: %w", name, err)
	}
	return rec.Data, nil
}

// CleanupError reports index-cleanup tiers that failed after the blob
// was already deleted. Callers seeing it know the document is gone but
// the index may be stale.
type CleanupError struct {
	Index    string
	Document string
	Err      error
}

func (e *CleanupError) Error() string {
	return fmt.Sprintf("document %s deleted but index %s cleanup failed: %v", e.Document, e.Index, e.Err)
}

func (e *CleanupError) Unwrap() error { return e.Err }

// Delete removes a document from blob storage and then runs the
// three-tier index cleanup. The blob deletion is not rolled back if
// index cleanup fails; a CleanupError reports which tiers failed.
func (m *Manager) Delete(ctx context.Context, container, index, name string) error {
	col, err := m.stores.Collection(ctx, container)
	if err != nil {
		return fmt.Errorf("opening container %s: %w", container, err)
	}
	if err := col.Delete(ctx, name); err != nil {
		return fmt.Errorf("deleting %s: %w", name, err)
	}
	if index == "" || m.search == nil {
		return nil
	}
	if err := m.cleanupIndex(ctx, index, name); err != nil {
		return &CleanupError{Index: index, Document: name, Err: err}
	}
	return nil
}

// cleanupIndex is best effort: tier one deletes chunks matched by
// title, tier two triggers a reindex, tier three broadens the search
// when tier one removed nothing. Tiers do not undo each other.
func (m *Manager) cleanupIndex(ctx context.Context, index, name string) error {
	var failures []error

	removed, err := m.removeByTitle(ctx, index, name)
	if err != nil {
		m.logger.Warn("index cleanup: title search failed", "index", index, "document", name, "error", err)
		failures = append(failures, fmt.Errorf("title cleanup: %w", err))
	}

	if err := m.search.RunIndexer(ctx, index); err != nil {
		m.logger.Warn("index cleanup: indexer trigger failed", "index", index, "error", err)
		failures = append(failures, fmt.Errorf("indexer run: %w", err))
	}

	if removed == 0 {
		broadened, err := m.removeBroadened(ctx, index, name)
		if err != nil {
			m.logger.Warn("index cleanup: broadened search failed", "index", index, "document", name, "error", err)
			failures = append(failures, fmt.Errorf("broadened cleanup: %w", err))
		} else if broadened > 0 {
			m.logger.Info("index cleanup: broadened search removed chunks",
				"index", index, "document", name, "chunks", broadened)
		}
	}
	return errors.Join(failures...)
}

func (m *Manager) removeByTitle(ctx context.Context, index, name string) (int, error) {
	docs, err := m.search.Search(ctx, index, search.Query{
		Text:   name,
		Select: []string{"chunk_id", "metadata_storage_name"},
		Top:    1000,
	})
	if err != nil {
		return 0, err
	}
	var chunkIDs []string
	for _, d := range docs {
		if title, _ := d["metadata_storage_name"].(string); title == name {
			if id := d.ChunkID(); id != "" {
				chunkIDs = append(chunkIDs, id)
			}
		}
	}
	if len(chunkIDs) == 0 {
		return 0, nil
	}
	if err := m.search.DeleteDocuments(ctx, index, chunkIDs); err != nil {
		return 0, err
	}
	return len(chunkIDs), nil
}

// removeBroadened retries the cleanup with the bare document stem, so
// chunks indexed under path-qualified or re-encoded names still match.
func (m *Manager) removeBroadened(ctx context.Context, index, name string) (int, error) {
	stem := strings.TrimSuffix(name, filepath.Ext(name))
	if stem == "" {
		return 0, nil
	}
	docs, err := m.search.Search(ctx, index, search.Query{
		Text:   stem,
		Select: []string{"chunk_id", "metadata_storage_name"},
		Top:    1000,
	})
	if err != nil {
		return 0, err
	}
	var chunkIDs []string
	for _, d := range docs {
		title, _ := d["metadata_storage_name"].(string)
		if strings.Contains(strings.ToLower(title), strings.ToLower(stem)) {
			if id := d.ChunkID(); id != "" {
				chunkIDs = append(chunkIDs, id)
			}
		}
	}
	if len(chunkIDs) == 0 {
		return 0, nil
	}
	if err := m.search.DeleteDocuments(ctx, index, chunkIDs); err != nil {
		return 0, err
	}
	return len(chunkIDs), nil
}

// Index extracts, chunks, optionally embeds, and uploads a document
// straight into the search index, bypassing the indexer.
func (m *Manager) Index(ctx context.Context, index, name string, data []byte) (int, error) {
	if m.search == nil {
		return 0, errors.New("search client is not configured")
	}
	text, err := ExtractText(name, data)
	if err != nil {
		return 0, err
	}
	chunker, err := m.getChunker()
	if err != nil {
		return 0, fmt.Errorf("preparing chunker: %w", err)
	}
	chunks := chunker.Split(text)
	if len(chunks) == 0 {
		return 0, nil
	}

	var vectors [][]float32
	if m.embed != nil {
		vectors, err = m.embed.Embed(ctx, chunks)
		if err != nil {
			return 0, fmt.Errorf("embedding %s: %w", name, err)
		}
	}

	now := time.Now().UTC().Format(time.RFC3339)
	docs := make([]search.Document, 0, len(chunks))
	for i, chunk := range chunks {
		doc := search.Document{
			"id":                             uuid.NewString(),
			"chunk_id":                       fmt.Sprintf("%s-%d", strings.TrimSuffix(name, filepath.Ext(name)), i),
			"content":                        chunk,
			"metadata_storage_name":          name,
			"metadata_storage_size":          int64(len(data)),
			"metadata_storage_last_modified": now,
		}
		if vectors != nil {
			doc["content_vector"] = vectors[i]
		}
		docs = append(docs, doc)
	}
	if err := m.search.UploadDocuments(ctx, index, docs); err != nil {
		return 0, fmt.Errorf("indexing %s: %w", name, err)
	}
	return len(docs), nil
}
