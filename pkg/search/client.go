package search

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/agoraworks/agora/pkg/httpclient"
)

const defaultAPIVersion = "2023-11-01"

// Sentinel errors for index and indexer operations.
var (
	ErrIndexNotFound   = errors.New("search index not found")
	ErrIndexerNotFound = errors.New("search indexer not found")
)

// ServiceError is a non-2xx response from the search service.
type ServiceError struct {
	StatusCode int
	Message    string
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("search service: status %d: %s", e.StatusCode, e.Message)
}

// Client talks to one Azure Cognitive Search service with an admin key.
type Client struct {
	endpoint   string
	apiKey     string
	apiVersion string
	http       *httpclient.Client
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithAPIVersion overrides the api-version query parameter.
func WithAPIVersion(v string) Option {
	return func(c *Client) { c.apiVersion = v }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *httpclient.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithLogger sets the client logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// NewClient builds a search client for the given service endpoint.
func NewClient(endpoint, apiKey string, opts ...Option) (*Client, error) {
	if endpoint == "" {
		return nil, errors.New("search endpoint is required")
	}
	if apiKey == "" {
		return nil, errors.New("search admin key is required")
	}
	c := &Client{
		endpoint:   strings.TrimRight(endpoint, "/"),
		apiKey:     apiKey,
		apiVersion: defaultAPIVersion,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		c.http = httpclient.New(httpclient.WithTimeout(30 * time.Second))
	}
	return c, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	u := c.endpoint + path + "?api-version=" + url.QueryEscape(c.apiVersion)
	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("api-key", c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("search request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode == http.StatusNotFound {
		if strings.Contains(path, "/indexers/") {
			return ErrIndexerNotFound
		}
		return ErrIndexNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := strings.TrimSpace(string(data))
		var parsed struct {
			Error struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(data, &parsed) == nil && parsed.Error.Message != "" {
			msg = parsed.Error.Message
		}
		return &ServiceError{StatusCode: resp.StatusCode, Message: msg}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// CreateIndex creates (or updates) an index with the portal's fixed
// document schema.
func (c *Client) CreateIndex(ctx context.Context, name string) error {
	return c.CreateIndexFrom(ctx, DocumentIndexSchema(name))
}

// CreateIndexFrom creates (or updates) an index from a full definition.
func (c *Client) CreateIndexFrom(ctx context.Context, def IndexDefinition) error {
	if err := c.do(ctx, http.MethodPut, "/indexes/"+def.Name, def, nil); err != nil {
		return fmt.Errorf("creating index %s: %w", def.Name, err)
	}
	return nil
}

// DeleteIndex removes an index. Missing indexes are not an error.
func (c *Client) DeleteIndex(ctx context.Context, name string) error {
	err := c.do(ctx, http.MethodDelete, "/indexes/"+name, nil, nil)
	if err != nil && !errors.Is(err, ErrIndexNotFound) {
		return fmt.Errorf("deleting index %s: %w", name, err)
	}
	return nil
}

// IndexExists reports whether the index is present.
func (c *Client) IndexExists(ctx context.Context, name string) (bool, error) {
	err := c.do(ctx, http.MethodGet, "/indexes/"+name, nil, &struct{}{})
	if errors.Is(err, ErrIndexNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking index %s: %w", name, err)
	}
	return true, nil
}

// ListIndexes returns the names of all indexes on the service.
func (c *Client) ListIndexes(ctx context.Context) ([]string, error) {
	var resp struct {
		Value []struct {
			Name string `json:"name"`
		} `json:"value"`
	}
	if err := c.do(ctx, http.MethodGet, "/indexes", nil, &resp); err != nil {
		return nil, fmt.Errorf("listing indexes: %w", err)
	}
	names := make([]string, 0, len(resp.Value))
	for _, v := range resp.Value {
		names = append(names, v.Name)
	}
	return names, nil
}

// Search runs a query against an index.
func (c *Client) Search(ctx context.Context, index string, q Query) ([]Document, error) {
	body := map[string]any{"search": q.Text}
	if q.Filter != "" {
		body["filter"] = q.Filter
	}
	if len(q.Select) > 0 {
		body["select"] = strings.Join(q.Select, ",")
	}
	if q.Top > 0 {
		body["top"] = q.Top
	}
	var resp struct {
		Value []Document `json:"value"`
	}
	if err := c.do(ctx, http.MethodPost, "/indexes/"+index+"/docs/search", body, &resp); err != nil {
		return nil, fmt.Errorf("searching index %s: %w", index, err)
	}
	return resp.Value, nil
}

// DeleteDocuments removes documents from an index by chunk_id.
func (c *Client) DeleteDocuments(ctx context.Context, index string, chunkIDs []string) error {
	if len(chunkIDs) == 0 {
		return nil
	}
	actions := make([]map[string]any, 0, len(chunkIDs))
	for _, id := range chunkIDs {
		actions = append(actions, map[string]any{
			"@search.action": "delete",
			"chunk_id":       id,
		})
	}
	body := map[string]any{"value": actions}
	if err := c.do(ctx, http.MethodPost, "/indexes/"+index+"/docs/index", body, nil); err != nil {
		return fmt.Errorf("deleting %d documents from %s: %w", len(chunkIDs), index, err)
	}
	return nil
}

// UploadDocuments merges documents into an index.
func (c *Client) UploadDocuments(ctx context.Context, index string, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}
	actions := make([]map[string]any, 0, len(docs))
	for _, d := range docs {
		action := map[string]any{"@search.action": "mergeOrUpload"}
		for k, v := range d {
			action[k] = v
		}
		actions = append(actions, action)
	}
	body := map[string]any{"value": actions}
	if err := c.do(ctx, http.MethodPost, "/indexes/"+index+"/docs/index", body, nil); err != nil {
		return fmt.Errorf("uploading %d documents to %s: %w", len(docs), index, err)
	}
	return nil
}

// IndexerName derives the indexer name for an index.
func IndexerName(index string) string {
	return index + "-indexer"
}

// RunIndexer triggers an indexer run for the given index.
func (c *Client) RunIndexer(ctx context.Context, index string) error {
	name := IndexerName(index)
	if err := c.do(ctx, http.MethodPost, "/indexers/"+name+"/run", nil, nil); err != nil {
		return fmt.Errorf("running indexer %s: %w", name, err)
	}
	return nil
}

// IndexerStatus reports the last execution state of an index's indexer.
func (c *Client) IndexerStatus(ctx context.Context, index string) (*IndexerState, error) {
	name := IndexerName(index)
	var resp struct {
		Status     string `json:"status"`
		LastResult *struct {
			Status       string    `json:"status"`
			ErrorMessage string    `json:"errorMessage"`
			EndTime      time.Time `json:"endTime"`
		} `json:"lastResult"`
	}
	if err := c.do(ctx, http.MethodGet, "/indexers/"+name+"/status", nil, &resp); err != nil {
		return nil, fmt.Errorf("fetching indexer %s status: %w", name, err)
	}
	state := &IndexerState{Status: resp.Status}
	if resp.LastResult != nil {
		state.LastRunStatus = resp.LastResult.Status
		state.LastRunError = resp.LastResult.ErrorMessage
		state.LastRunEnded = resp.LastResult.EndTime
	}
	return state, nil
}
