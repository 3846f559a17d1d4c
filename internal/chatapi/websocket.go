package chatapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/openrufus/rufus/internal/logger"
	"github.com/openrufus/rufus/internal/transcript"
	"github.com/rs/zerolog"
)

const wsWriteWait = 10 * time.Second

// WSTransport opens chat streams over a WebSocket. The request is sent as
// one JSON text message; every text message that follows carries one or
// more "data: " frames, and a normal close ends the stream.
type WSTransport struct {
	url    string
	dialer *websocket.Dialer
	header http.Header
	log    zerolog.Logger
}

type WSOption func(*WSTransport)

func WithDialer(d *websocket.Dialer) WSOption {
	return func(t *WSTransport) {
		t.dialer = d
	}
}

// WithHeader adds headers to the handshake request.
func WithHeader(h http.Header) WSOption {
	return func(t *WSTransport) {
		t.header = h.Clone()
	}
}

func WithWSLogger(l zerolog.Logger) WSOption {
	return func(t *WSTransport) {
		t.log = l
	}
}

// NewWSTransport derives the socket URL from an http(s) base URL.
func NewWSTransport(baseURL string, opts ...WSOption) *WSTransport {
	t := &WSTransport{
		url:    websocketURL(baseURL),
		dialer: websocket.DefaultDialer,
		log:    logger.For(logger.TRANSPORT),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func websocketURL(baseURL string) string {
	base := strings.TrimSuffix(baseURL, "/")
	if base == "" {
		return ""
	}
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base + DefaultWSPath
}

func (t *WSTransport) Open(ctx context.Context, req transcript.ChatRequest) (io.ReadCloser, error) {
	if t.url == "" {
		return nil, ErrNotConfigured
	}

	t.log.Debug().Str("url", t.url).Msg("Dialing chat socket")

	conn, resp, err := t.dialer.DialContext(ctx, t.url, t.header)
	if err != nil {
		if resp != nil {
			defer resp.Body.Close()
			body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
			t.log.Warn().Int("status", resp.StatusCode).Msg("Chat socket handshake rejected")
			return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
		}
		return nil, fmt.Errorf("dial chat socket: %w", err)
	}

	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	if err := conn.WriteJSON(req); err != nil {
		conn.Close()
		return nil, fmt.Errorf("write chat request: %w", err)
	}

	return &wsBody{conn: conn, log: t.log}, nil
}

// wsBody adapts a socket to io.ReadCloser, one message at a time.
type wsBody struct {
	conn *websocket.Conn
	log  zerolog.Logger

	mu       sync.Mutex
	leftover []byte

	closeOnce sync.Once
	closeErr  error
}

func (b *wsBody) Read(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for len(b.leftover) == 0 {
		kind, msg, err := b.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return 0, io.EOF
			}
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) && closeErr.Text != "" {
				return 0, fmt.Errorf("chat socket closed: %s", closeErr.Text)
			}
			return 0, err
		}
		if kind != websocket.TextMessage {
			b.log.Debug().Int("type", kind).Msg("Skipping non-text socket message")
			continue
		}
		b.leftover = msg
	}

	n := copy(p, b.leftover)
	b.leftover = b.leftover[n:]
	return n, nil
}

// Close may be called concurrently with a blocked Read.
func (b *wsBody) Close() error {
	b.closeOnce.Do(func() {
		_ = b.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		b.closeErr = b.conn.Close()
	})
	return b.closeErr
}
