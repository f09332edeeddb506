// Package api provides the JSON REST client shared by the Clickup and
// Todoist repositories.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/basecamp/konnector/internal/output"
	"github.com/basecamp/konnector/internal/version"
)

const (
	defaultMaxRetries = 5
	defaultBaseDelay  = 1 * time.Second
	maxJitter         = 100 * time.Millisecond
)

// Config identifies a remote API and how to authenticate against it.
type Config struct {
	// Platform names the API in errors, logs and hooks.
	Platform string
	BaseURL  string
	Token    string
	// AuthScheme prefixes the token in the Authorization header.
	// Clickup personal tokens are sent bare, Todoist uses "Bearer".
	AuthScheme string
}

// Client is an HTTP client for a JSON REST API.
type Client struct {
	httpClient *http.Client
	cfg        Config
	hooks      GatingHooks
	logger     *slog.Logger
	maxRetries int
	baseDelay  time.Duration
}

// Response wraps an API response.
type Response struct {
	Data       json.RawMessage
	StatusCode int
	Headers    http.Header
}

// UnmarshalData unmarshals the response data into the given value.
func (r *Response) UnmarshalData(v any) error {
	return json.Unmarshal(r.Data, v)
}

// Option configures a Client.
type Option func(*Client)

// WithHooks installs observability and gating hooks.
func WithHooks(hooks ...Hooks) Option {
	return func(c *Client) { c.hooks = ChainHooks(hooks...) }
}

// WithLogger sets the logger used for request debugging.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithRetry sets the attempt budget and the first backoff delay.
func WithRetry(maxRetries int, baseDelay time.Duration) Option {
	return func(c *Client) {
		c.maxRetries = max(maxRetries, 1)
		c.baseDelay = baseDelay
	}
}

// NewClient creates a new API client.
func NewClient(cfg Config, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		cfg:        cfg,
		hooks:      ChainHooks(),
		logger:     slog.New(slog.DiscardHandler),
		maxRetries: defaultMaxRetries,
		baseDelay:  defaultBaseDelay,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Platform returns the configured platform name.
func (c *Client) Platform() string {
	return c.cfg.Platform
}

// Operation runs fn as one named operation: gates are consulted first, then
// start/end hooks bracket the call.
func (c *Client) Operation(ctx context.Context, op OperationInfo, fn func(context.Context) error) error {
	op.Platform = c.cfg.Platform

	ctx, err := c.hooks.OnOperationGate(ctx, op)
	if err != nil {
		return err
	}

	start := time.Now()
	ctx = c.hooks.OnOperationStart(ctx, op)
	err = fn(ctx)
	c.hooks.OnOperationEnd(ctx, op, err, time.Since(start))
	return err
}

// Get performs a GET request.
func (c *Client) Get(ctx context.Context, path string) (*Response, error) {
	return c.doRequest(ctx, http.MethodGet, path, nil)
}

// Post performs a POST request with a JSON body.
func (c *Client) Post(ctx context.Context, path string, body any) (*Response, error) {
	return c.doRequest(ctx, http.MethodPost, path, body)
}

// Create performs a POST that creates a resource. It is retried only after
// a 429: any other failure may come after the platform stored the resource,
// and a retry would duplicate it.
func (c *Client) Create(ctx context.Context, path string, body any) (*Response, error) {
	return c.do(ctx, http.MethodPost, path, body, true)
}

// Put performs a PUT request with a JSON body.
func (c *Client) Put(ctx context.Context, path string, body any) (*Response, error) {
	return c.doRequest(ctx, http.MethodPut, path, body)
}

// Delete performs a DELETE request.
func (c *Client) Delete(ctx context.Context, path string) (*Response, error) {
	return c.doRequest(ctx, http.MethodDelete, path, nil)
}

func (c *Client) doRequest(ctx context.Context, method, path string, body any) (*Response, error) {
	return c.do(ctx, method, path, body, false)
}

func (c *Client) do(ctx context.Context, method, path string, body any, creates bool) (*Response, error) {
	var bodyBytes []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal body: %w", err)
		}
		bodyBytes = b
	}

	url := c.buildURL(path)
	var lastErr error

	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		info := RequestInfo{Platform: c.cfg.Platform, Method: method, URL: url, Attempt: attempt}
		resp, err := c.singleRequest(ctx, info, bodyBytes)
		if err == nil {
			return resp, nil
		}

		var apiErr *output.Error
		if !errors.As(err, &apiErr) || !apiErr.Retryable {
			return nil, err
		}
		if creates && apiErr.Code != output.CodeRateLimit {
			return nil, err
		}
		lastErr = err
		if attempt == c.maxRetries {
			break
		}

		delay := max(c.backoffDelay(attempt), apiErr.RetryAfter)
		c.hooks.OnRetry(ctx, info, attempt, err)
		c.logger.Debug("retrying request",
			"platform", c.cfg.Platform, "method", method, "url", url,
			"attempt", attempt, "delay", delay, "error", err)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}

	return nil, fmt.Errorf("request failed after %d attempts: %w", c.maxRetries, lastErr)
}

func (c *Client) singleRequest(ctx context.Context, info RequestInfo, body []byte) (*Response, error) {
	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, info.Method, info.URL, bodyReader)
	if err != nil {
		return nil, err
	}

	if c.cfg.AuthScheme != "" {
		req.Header.Set("Authorization", c.cfg.AuthScheme+" "+c.cfg.Token)
	} else {
		req.Header.Set("Authorization", c.cfg.Token)
	}
	req.Header.Set("User-Agent", version.UserAgent())
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	ctx = c.hooks.OnRequestStart(ctx, info)
	start := time.Now()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		netErr := output.ErrNetwork(err)
		c.hooks.OnRequestEnd(ctx, info, RequestResult{Duration: time.Since(start), Retryable: true, Error: netErr})
		return nil, netErr
	}
	defer resp.Body.Close()

	respBody, readErr := io.ReadAll(resp.Body)
	result, err := c.checkResponse(info, resp, respBody)
	if err == nil && readErr != nil {
		err = fmt.Errorf("failed to read response: %w", readErr)
	}

	res := RequestResult{
		StatusCode: resp.StatusCode,
		Duration:   time.Since(start),
		RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		Error:      err,
	}
	var apiErr *output.Error
	if errors.As(err, &apiErr) {
		res.Retryable = apiErr.Retryable
	}
	c.hooks.OnRequestEnd(ctx, info, res)

	c.logger.Debug("request",
		"platform", c.cfg.Platform, "method", info.Method, "url", info.URL,
		"status", resp.StatusCode, "attempt", info.Attempt, "duration", res.Duration)

	if err != nil {
		return nil, err
	}
	return result, nil
}

// checkResponse maps an HTTP status to a response or a structured error.
func (c *Client) checkResponse(info RequestInfo, resp *http.Response, body []byte) (*Response, error) {
	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated, http.StatusNoContent:
		return &Response{
			Data:       body,
			StatusCode: resp.StatusCode,
			Headers:    resp.Header,
		}, nil

	case http.StatusTooManyRequests: // 429
		return nil, output.ErrRateLimit(parseRetryAfter(resp.Header.Get("Retry-After")))

	case http.StatusUnauthorized: // 401
		return nil, output.ErrAuth(c.cfg.Platform)

	case http.StatusForbidden: // 403
		return nil, output.ErrForbidden(fmt.Sprintf("%s denied access to %s", c.cfg.Platform, info.URL))

	case http.StatusNotFound: // 404
		return nil, output.ErrNotFound(c.cfg.Platform+" resource", info.URL)

	case http.StatusInternalServerError: // 500
		return nil, output.ErrAPI(500, fmt.Sprintf("%s server error (500)", c.cfg.Platform))

	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout: // 502, 503, 504
		return nil, &output.Error{
			Code:       output.CodeAPI,
			Message:    fmt.Sprintf("%s gateway error (%d)", c.cfg.Platform, resp.StatusCode),
			HTTPStatus: resp.StatusCode,
			Retryable:  true,
		}

	default:
		var apiErr struct {
			Err     string `json:"err"`
			Error   string `json:"error"`
			Message string `json:"message"`
		}
		if json.Unmarshal(body, &apiErr) == nil {
			msg := apiErr.Err
			if msg == "" {
				msg = apiErr.Error
			}
			if msg == "" {
				msg = apiErr.Message
			}
			if msg != "" {
				return nil, output.ErrAPI(resp.StatusCode, msg)
			}
		}
		if text := strings.TrimSpace(string(body)); text != "" && len(text) < 200 {
			return nil, output.ErrAPI(resp.StatusCode, text)
		}
		return nil, output.ErrAPI(resp.StatusCode, fmt.Sprintf("Request failed (HTTP %d)", resp.StatusCode))
	}
}

func (c *Client) buildURL(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return strings.TrimSuffix(c.cfg.BaseURL, "/") + path
}

func (c *Client) backoffDelay(attempt int) time.Duration {
	// Exponential backoff: base * 2^(attempt-1)
	delay := c.baseDelay * time.Duration(1<<(attempt-1))

	if c.baseDelay > 0 {
		delay += time.Duration(rand.Int63n(int64(maxJitter))) //nolint:gosec // G404: Jitter doesn't need crypto rand
	}

	return delay
}

// parseRetryAfter parses the Retry-After header value.
func parseRetryAfter(header string) int {
	if header == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(header); err == nil {
		return seconds
	}
	return 0
}
