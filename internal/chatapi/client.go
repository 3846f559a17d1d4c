// Package chatapi implements transcript.Transport against the chat backend,
// over a streaming HTTP POST or a WebSocket.
package chatapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/openrufus/rufus/internal/logger"
	"github.com/openrufus/rufus/internal/transcript"
	"github.com/openrufus/rufus/pkg/httpext"
	"github.com/rs/zerolog"
)

const (
	DefaultPath   = "/api/chat"
	DefaultWSPath = "/api/chat/ws"

	maxErrorBody = 4 * 1024
)

// ErrNotConfigured is returned when no base URL was given.
var ErrNotConfigured = errors.New("chat API URL is not configured")

// StatusError is a non-2xx response from the backend.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if body, ok := httpext.ParseError([]byte(e.Body)); ok {
		return fmt.Sprintf("chat request failed (%d): %s", e.StatusCode, body.Message())
	}
	return fmt.Sprintf("chat request failed (%d %s)", e.StatusCode, http.StatusText(e.StatusCode))
}

// Client posts chat requests and returns the streamed response body.
type Client struct {
	baseURL    string
	path       string
	httpClient *http.Client
	log        zerolog.Logger
}

type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client. Its Timeout should be zero; a
// timeout there bounds the whole stream, not just the first byte.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(client *Client) {
		client.httpClient = c
	}
}

func WithLogger(l zerolog.Logger) ClientOption {
	return func(client *Client) {
		client.log = l
	}
}

// WithPath overrides the request path.
func WithPath(path string) ClientOption {
	return func(client *Client) {
		client.path = path
	}
}

func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		path:       DefaultPath,
		httpClient: &http.Client{},
		log:        logger.For(logger.TRANSPORT),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Open sends req and returns the response body once the status line is in.
func (c *Client) Open(ctx context.Context, req transcript.ChatRequest) (io.ReadCloser, error) {
	if c.baseURL == "" {
		return nil, ErrNotConfigured
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal chat request: %w", err)
	}

	url := c.baseURL + c.path
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	c.log.Debug().
		Str("url", url).
		Int("history", len(req.RecentHistory)).
		Msg("Opening chat stream")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("send chat request: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		c.log.Warn().
			Int("status", resp.StatusCode).
			Str("body", string(body)).
			Msg("Chat backend rejected request")
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	return resp.Body, nil
}
