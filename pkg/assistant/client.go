package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"

	"github.com/agoraworks/agora/pkg/httpclient"
)

const (
	defaultAPIVersion   = "2024-07-01-preview"
	defaultPollInterval = 500 * time.Millisecond
	defaultRunTimeout   = 5 * time.Minute

	// Scope for Azure AI project endpoints.
	agentsScope = "https://ml.azure.com/.default"
)

// ErrRunFailed reports a run that finished in a terminal non-completed
// state.
var ErrRunFailed = errors.New("run did not complete")

// ServiceError is a non-2xx response from the agents service. Status
// codes >= 500 are considered transient.
type ServiceError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *ServiceError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("agents service: %s (%s, status %d)", e.Message, e.Code, e.StatusCode)
	}
	return fmt.Sprintf("agents service: status %d: %s", e.StatusCode, e.Message)
}

// Transient reports whether retrying the request may succeed.
func (e *ServiceError) Transient() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// TokenProvider supplies bearer tokens for the agents endpoint.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// TokenProviderFunc adapts a function to TokenProvider.
type TokenProviderFunc func(ctx context.Context) (string, error)

func (f TokenProviderFunc) Token(ctx context.Context) (string, error) { return f(ctx) }

// CredentialTokenProvider wraps an azcore.TokenCredential.
func CredentialTokenProvider(cred azcore.TokenCredential) TokenProvider {
	return TokenProviderFunc(func(ctx context.Context) (string, error) {
		tok, err := cred.GetToken(ctx, policy.TokenRequestOptions{Scopes: []string{agentsScope}})
		if err != nil {
			return "", fmt.Errorf("acquiring agents token: %w", err)
		}
		return tok.Token, nil
	})
}

// Client talks to one Azure AI project's agents endpoint.
type Client struct {
	endpoint     string
	apiVersion   string
	tokens       TokenProvider
	http         *httpclient.Client
	pollInterval time.Duration
	runTimeout   time.Duration
	logger       *slog.Logger
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

// WithPollInterval sets the run polling interval.
func WithPollInterval(d time.Duration) Option {
	return func(c *Client) { c.pollInterval = d }
}

// WithRunTimeout bounds how long a run may stay non-terminal.
func WithRunTimeout(d time.Duration) Option {
	return func(c *Client) { c.runTimeout = d }
}

// WithLogger sets the client logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// NewClient builds a client for the given project endpoint.
func NewClient(endpoint string, tokens TokenProvider, opts ...Option) (*Client, error) {
	if endpoint == "" {
		return nil, errors.New("agents endpoint is required")
	}
	if tokens == nil {
		return nil, errors.New("token provider is required")
	}
	c := &Client{
		endpoint:     strings.TrimRight(endpoint, "/"),
		apiVersion:   defaultAPIVersion,
		tokens:       tokens,
		pollInterval: defaultPollInterval,
		runTimeout:   defaultRunTimeout,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		// SendMessage carries its own retry loop; the transport must
		// not add a second one.
		c.http = httpclient.New(httpclient.WithMaxRetries(0), httpclient.WithTimeout(60*time.Second))
	}
	return c, nil
}

func (c *Client) url(path string) string {
	return c.endpoint + path + "?api-version=" + url.QueryEscape(c.apiVersion)
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
	req, err := http.NewRequestWithContext(ctx, method, c.url(path), reader)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.send(req, out)
}

func (c *Client) send(req *http.Request, out any) error {
	token, err := c.tokens.Token(req.Context())
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("agents request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		svcErr := &ServiceError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(data))}
		var parsed apiError
		if json.Unmarshal(data, &parsed) == nil && parsed.Error.Message != "" {
			svcErr.Code = parsed.Error.Code
			svcErr.Message = parsed.Error.Message
		}
		return svcErr
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// CreateThread starts a new conversation thread. Failures surface
// immediately; callers are expected to report them, not mask them.
func (c *Client) CreateThread(ctx context.Context) (*Thread, error) {
	var thread Thread
	if err := c.do(ctx, http.MethodPost, "/threads", map[string]any{}, &thread); err != nil {
		return nil, fmt.Errorf("creating thread: %w", err)
	}
	return &thread, nil
}

// CreateMessage appends a user message to a thread.
func (c *Client) CreateMessage(ctx context.Context, threadID, role, content string) (*Message, error) {
	body := map[string]any{"role": role, "content": content}
	var msg Message
	if err := c.do(ctx, http.MethodPost, "/threads/"+threadID+"/messages", body, &msg); err != nil {
		return nil, fmt.Errorf("creating message: %w", err)
	}
	return &msg, nil
}

// CreateRun starts a run of the given agent on a thread.
func (c *Client) CreateRun(ctx context.Context, threadID, agentID string) (*Run, error) {
	body := map[string]any{"assistant_id": agentID}
	var run Run
	if err := c.do(ctx, http.MethodPost, "/threads/"+threadID+"/runs", body, &run); err != nil {
		return nil, fmt.Errorf("creating run: %w", err)
	}
	return &run, nil
}

// GetRun fetches the current state of a run.
func (c *Client) GetRun(ctx context.Context, threadID, runID string) (*Run, error) {
	var run Run
	if err := c.do(ctx, http.MethodGet, "/threads/"+threadID+"/runs/"+runID, nil, &run); err != nil {
		return nil, fmt.Errorf("fetching run: %w", err)
	}
	return &run, nil
}

// CreateAndProcessRun starts a run and polls it to a terminal state.
func (c *Client) CreateAndProcessRun(ctx context.Context, threadID, agentID string) (*Run, error) {
	run, err := c.CreateRun(ctx, threadID, agentID)
	if err != nil {
		return nil, err
	}
	deadline := time.Now().Add(c.runTimeout)
	for {
		switch run.Status {
		case RunStatusCompleted:
			return run, nil
		case RunStatusFailed, RunStatusCancelled, RunStatusExpired:
			detail := run.Status
			if run.LastError != nil {
				detail = fmt.Sprintf("%s: %s (%s)", run.Status, run.LastError.Message, run.LastError.Code)
			}
			return run, fmt.Errorf("%w: %s", ErrRunFailed, detail)
		}
		if time.Now().After(deadline) {
			return run, fmt.Errorf("%w: timed out in status %s", ErrRunFailed, run.Status)
		}
		select {
		case <-ctx.Done():
			return run, ctx.Err()
		case <-time.After(c.pollInterval):
		}
		run, err = c.GetRun(ctx, threadID, run.ID)
		if err != nil {
			return nil, err
		}
	}
}

// ListMessages returns the messages of a thread, newest first.
func (c *Client) ListMessages(ctx context.Context, threadID string) ([]Message, error) {
	var list listResponse[Message]
	if err := c.do(ctx, http.MethodGet, "/threads/"+threadID+"/messages", nil, &list); err != nil {
		return nil, fmt.Errorf("listing messages: %w", err)
	}
	return list.Data, nil
}

// GetFile resolves an uploaded file's metadata by ID.
func (c *Client) GetFile(ctx context.Context, fileID string) (*File, error) {
	var file File
	if err := c.do(ctx, http.MethodGet, "/files/"+fileID, nil, &file); err != nil {
		return nil, fmt.Errorf("fetching file %s: %w", fileID, err)
	}
	return &file, nil
}

// UploadFile uploads file content for agent use.
func (c *Client) UploadFile(ctx context.Context, filename string, content io.Reader) (*File, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("building upload: %w", err)
	}
	if _, err := io.Copy(part, content); err != nil {
		return nil, fmt.Errorf("buffering upload: %w", err)
	}
	if err := w.WriteField("purpose", "assistants"); err != nil {
		return nil, fmt.Errorf("building upload: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("building upload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url("/files"), &buf)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	var file File
	if err := c.send(req, &file); err != nil {
		return nil, fmt.Errorf("uploading file %s: %w", filename, err)
	}
	return &file, nil
}

// GetAgent fetches an agent definition.
func (c *Client) GetAgent(ctx context.Context, agentID string) (*AgentInfo, error) {
	var info AgentInfo
	if err := c.do(ctx, http.MethodGet, "/assistants/"+agentID, nil, &info); err != nil {
		return nil, fmt.Errorf("fetching agent %s: %w", agentID, err)
	}
	return &info, nil
}

// AttachCodeInterpreterFiles merges the given file IDs into the agent's
// code interpreter resources.
func (c *Client) AttachCodeInterpreterFiles(ctx context.Context, agentID string, fileIDs []string) error {
	info, err := c.GetAgent(ctx, agentID)
	if err != nil {
		return err
	}
	existing := map[string]bool{}
	if info.ToolResources != nil && info.ToolResources.CodeInterpreter != nil {
		for _, id := range info.ToolResources.CodeInterpreter.FileIDs {
			existing[id] = true
		}
	}
	merged := make([]string, 0, len(existing)+len(fileIDs))
	if info.ToolResources != nil && info.ToolResources.CodeInterpreter != nil {
		merged = append(merged, info.ToolResources.CodeInterpreter.FileIDs...)
	}
	for _, id := range fileIDs {
		if !existing[id] {
			merged = append(merged, id)
		}
	}
	body := map[string]any{
		"tool_resources": map[string]any{
			"code_interpreter": map[string]any{"file_ids": merged},
		},
	}
	if err := c.do(ctx, http.MethodPost, "/assistants/"+agentID, body, nil); err != nil {
		return fmt.Errorf("attaching files to agent %s: %w", agentID, err)
	}
	return nil
}

// ListVectorStoreFiles lists the file IDs attached to a vector store.
func (c *Client) ListVectorStoreFiles(ctx context.Context, vectorStoreID string) ([]File, error) {
	var list listResponse[File]
	if err := c.do(ctx, http.MethodGet, "/vector_stores/"+vectorStoreID+"/files", nil, &list); err != nil {
		return nil, fmt.Errorf("listing vector store files: %w", err)
	}
	return list.Data, nil
}

// sendBackoff is the exponential delay schedule between SendMessage
// attempts.
var sendBackoff = []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}

const maxSendAttempts = 3

// SendMessage posts a user message, runs the agent, and returns the
// latest assistant reply. Transient service failures are retried, up to
// three attempts in total; request errors are not retried.
func (c *Client) SendMessage(ctx context.Context, threadID, agentID, text string) (*Message, error) {
	var lastErr error
	for attempt := 0; attempt < maxSendAttempts; attempt++ {
		if attempt > 0 {
			c.logger.Warn("retrying message send",
				"thread_id", threadID,
				"attempt", attempt+1,
				"error", lastErr)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(sendBackoff[attempt-1]):
			}
		}
		msg, err := c.sendOnce(ctx, threadID, agentID, text)
		if err == nil {
			return msg, nil
		}
		lastErr = err
		var svcErr *ServiceError
		if errors.As(err, &svcErr) && svcErr.Transient() {
			continue
		}
		return nil, err
	}
	return nil, fmt.Errorf("sending message after %d attempts: %w", maxSendAttempts, lastErr)
}

func (c *Client) sendOnce(ctx context.Context, threadID, agentID, text string) (*Message, error) {
	if _, err := c.CreateMessage(ctx, threadID, "user", text); err != nil {
		return nil, err
	}
	if _, err := c.CreateAndProcessRun(ctx, threadID, agentID); err != nil {
		return nil, err
	}
	messages, err := c.ListMessages(ctx, threadID)
	if err != nil {
		return nil, err
	}
	for i := range messages {
		if messages[i].Role == "assistant" {
			return &messages[i], nil
		}
	}
	return nil, errors.New("run completed but produced no assistant message")
}

// TextValue returns the concatenated text blocks of a message.
func (m *Message) TextValue() string {
	var b strings.Builder
	for _, c := range m.Content {
		if c.Type == "text" && c.Text != nil {
			b.WriteString(c.Text.Value)
		}
	}
	return b.String()
}

// TextAnnotations returns all annotations across the text blocks.
func (m *Message) TextAnnotations() []Annotation {
	var out []Annotation
	for _, c := range m.Content {
		if c.Type == "text" && c.Text != nil {
			out = append(out, c.Text.Annotations...)
		}
	}
	return out
}
