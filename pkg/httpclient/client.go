package httpclient

import (
	"context"
	"log/slog"
	"math"
	"math/rand"
	"net/http"
	"strconv"
	"time"
)

// RetryStrategy decides how a failed request is retried.
type RetryStrategy int

const (
	NoRetry RetryStrategy = iota
	// BackoffRetry retries with exponential backoff and jitter.
	BackoffRetry
	// QuickRetry retries at most twice with short fixed delays, for
	// transient server errors that usually clear immediately.
	QuickRetry
)

// StrategyFunc maps an HTTP status code to a retry strategy.
type StrategyFunc func(statusCode int) RetryStrategy

// Client wraps http.Client with status-aware retries. All hand-rolled REST
// surfaces (Cognitive Search, AAD token endpoints, AI agent API, embeddings)
// go through it so retry behavior stays uniform.
type Client struct {
	client     *http.Client
	maxRetries int
	baseDelay  time.Duration
	strategy   StrategyFunc
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.client = hc }
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.client.Timeout = d }
}

func WithMaxRetries(n int) Option {
	return func(c *Client) { c.maxRetries = n }
}

func WithBaseDelay(d time.Duration) Option {
	return func(c *Client) { c.baseDelay = d }
}

func WithStrategy(fn StrategyFunc) Option {
	return func(c *Client) { c.strategy = fn }
}

func New(opts ...Option) *Client {
	c := &Client{
		client:     &http.Client{Timeout: 60 * time.Second},
		maxRetries: 3,
		baseDelay:  time.Second,
		strategy:   DefaultStrategy,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// DefaultStrategy retries rate limits and availability errors with backoff
// and common 5xx/timeout statuses quickly. Everything else is terminal.
func DefaultStrategy(statusCode int) RetryStrategy {
	switch statusCode {
	case http.StatusTooManyRequests, http.StatusServiceUnavailable:
		return BackoffRetry
	case http.StatusRequestTimeout,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusGatewayTimeout:
		return QuickRetry
	default:
		return NoRetry
	}
}

// Do executes the request, retrying per the configured strategy. The request
// body is recreated via GetBody on each attempt. Transport-level errors are
// retried with backoff; the request context bounds the whole loop.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	var lastResp *http.Response
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 && req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return nil, &RetryableError{Message: "recreating request body for retry", Err: err}
			}
			req.Body = body
		}

		resp, err := c.client.Do(req)
		if err != nil {
			if req.Context().Err() != nil {
				return nil, req.Context().Err()
			}
			lastResp, lastErr = nil, err
			if attempt < c.maxRetries {
				if !c.sleep(req.Context(), c.delay(BackoffRetry, attempt, "")) {
					return nil, req.Context().Err()
				}
				continue
			}
			break
		}

		if resp.StatusCode < 400 {
			return resp, nil
		}

		strategy := c.strategy(resp.StatusCode)
		if strategy == NoRetry || attempt >= c.maxRetries {
			return resp, nil
		}

		retryAfter := resp.Header.Get("Retry-After")
		delay := c.delay(strategy, attempt, retryAfter)
		if delay <= 0 {
			// Out of retries for this strategy; the caller reads the body.
			return resp, nil
		}
		resp.Body.Close()
		lastResp, lastErr = resp, nil
		slog.Debug("retrying request",
			"method", req.Method,
			"url", req.URL.Redacted(),
			"status", resp.StatusCode,
			"attempt", attempt+1,
			"delay", delay)
		if !c.sleep(req.Context(), delay) {
			return nil, req.Context().Err()
		}
	}

	if lastErr != nil {
		return nil, &RetryableError{
			Message: "max retries exceeded",
			Err:     lastErr,
		}
	}
	return lastResp, nil
}

func (c *Client) delay(strategy RetryStrategy, attempt int, retryAfter string) time.Duration {
	switch strategy {
	case BackoffRetry:
		if retryAfter != "" {
			if secs, err := strconv.Atoi(retryAfter); err == nil && secs > 0 {
				return time.Duration(secs) * time.Second
			}
		}
		exp := time.Duration(math.Pow(2, float64(attempt))) * c.baseDelay
		jitter := time.Duration(rand.Int63n(int64(c.baseDelay)/2 + 1))
		return exp + jitter
	case QuickRetry:
		if attempt >= 2 {
			return 0
		}
		return time.Duration(attempt+1) * c.baseDelay
	default:
		return 0
	}
}

func (c *Client) sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
