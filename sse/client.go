package sse

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/lens-research/loupe"
)

// Interface compliance check.
var _ loupe.Transport = (*Client)(nil)

// Client implements [loupe.Transport] for the backend's event-stream API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *zap.Logger
}

// Option configures a [Client].
type Option func(*Client)

// WithBaseURL sets the backend base URL. Useful for testing with httptest.
func WithBaseURL(url string) Option {
	return func(c *Client) { c.baseURL = url }
}

// WithAPIKey sets the bearer token sent with each request.
func WithAPIKey(key string) Option {
	return func(c *Client) { c.apiKey = key }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLogger sets the operator logger. Defaults to a nop logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// New creates a new [Client].
func New(opts ...Option) *Client {
	c := &Client{
		baseURL:    defaultBaseURL,
		httpClient: http.DefaultClient,
		logger:     zap.NewNop(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Open validates the request, POSTs it to the chat stream endpoint, and
// returns a [loupe.Stream] over the server-sent events.
func (c *Client) Open(ctx context.Context, req loupe.Request) (loupe.Stream, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("sse: %w", err)
	}

	body, err := json.Marshal(buildRequestBody(req))
	if err != nil {
		return nil, fmt.Errorf("sse: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+chatPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("sse: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("sse: open: %w", loupe.ErrAborted)
		}
		return nil, &loupe.StreamError{Code: loupe.CodeConnectionError, Message: err.Error()}
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, parseHTTPError(resp)
	}

	c.logger.Debug("stream opened",
		zap.String("session_id", req.SessionID),
		zap.Bool("resume", req.Resume != nil))
	return newStream(ctx, resp.Body), nil
}

// parseHTTPError maps a non-200 response to a *loupe.StreamError, taking
// the code from the response body when the backend supplies one.
func parseHTTPError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	var payload sseError
	if err := json.Unmarshal(data, &payload); err == nil && payload.Code != "" {
		return &loupe.StreamError{Code: payload.Code, Message: payload.Error}
	}
	msg := payload.Error
	if msg == "" {
		msg = fmt.Sprintf("unexpected status %d", resp.StatusCode)
	}
	code := loupe.CodeInternalError
	if resp.StatusCode == http.StatusForbidden {
		code = loupe.CodeForbidden
	}
	return &loupe.StreamError{Code: code, Message: msg}
}
