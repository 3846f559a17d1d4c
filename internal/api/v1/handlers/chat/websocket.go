package chat

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/openrufus/rufus/internal/connections"
	"github.com/openrufus/rufus/internal/services/chat"
	"github.com/openrufus/rufus/internal/stream"
)

// readerDrain bounds how long the handler waits for the peer to
// acknowledge the final close frame.
const readerDrain = time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// TODO: check Origin against a configured allow list once the widget host is known
		return true
	},
}

// HandleChatWebSocket serves one chat turn over a socket. The first text
// message is the chat request; each reply frame is sent as its own text
// message and a normal close marks the end of the stream.
func HandleChatWebSocket(chatService chat.Service, manager *connections.Manager, w http.ResponseWriter, r *http.Request) {
	requestID := uuid.NewString()
	log := requestLogger(r, requestID)

	conn, err := upgrader.Upgrade(w, r, http.Header{"X-Request-ID": []string{requestID}})
	if err != nil {
		log.Warn().Err(err).Msg("Failed to upgrade chat socket")
		return
	}
	defer conn.Close()

	manager.AddConnection(conn, requestID)
	defer manager.RemoveConnection(conn)

	timeouts := manager.GetTimeouts()
	conn.SetReadLimit(maxRequestBody)
	_ = conn.SetReadDeadline(time.Now().Add(timeouts.PongWait))

	closeWith := func(code int, text string) {
		msg := websocket.FormatCloseMessage(code, text)
		if err := conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(timeouts.WriteWait)); err != nil {
			log.Debug().Err(err).Msg("Failed to send close frame")
		}
	}

	_, body, err := conn.ReadMessage()
	if err != nil {
		log.Warn().Err(err).Msg("Failed to read chat request")
		return
	}

	req, msg, err := decodeRequest(body)
	if err != nil {
		log.Warn().Err(err).Msg("Rejected chat request")
		closeWith(websocket.CloseUnsupportedData, msg)
		return
	}

	log.Info().
		Int("history", len(req.RecentHistory)).
		Msg("Received chat request over socket")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// The reader only serves control frames from here on. Any read error,
	// including the peer's close frame, ends the turn.
	readerDone := make(chan struct{})
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(timeouts.PongWait))
	})
	go func() {
		defer close(readerDone)
		defer cancel()
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	go func() {
		ticker := time.NewTicker(timeouts.PingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(timeouts.WriteWait)); err != nil {
					cancel()
					return
				}
			}
		}
	}()

	frames := 0
	emit := func(p stream.Payload) error {
		line, err := stream.Encode(p)
		if err != nil {
			return err
		}
		_ = conn.SetWriteDeadline(time.Now().Add(timeouts.WriteWait))
		if err := conn.WriteMessage(websocket.TextMessage, line); err != nil {
			return err
		}
		frames++
		return nil
	}

	// Streaming is the only mode on a socket.
	req.Stream = nil

	if err := chatService.StreamChat(ctx, req, emit); err != nil {
		if ctx.Err() != nil {
			log.Info().Int("frames", frames).Msg("Client went away mid-stream")
			return
		}
		log.Error().Err(err).Msg("Chat stream failed")
		if emitErr := emit(stream.Payload{Error: err.Error()}); emitErr != nil {
			log.Warn().Err(emitErr).Msg("Failed to send error frame")
		}
	}

	closeWith(websocket.CloseNormalClosure, "")

	select {
	case <-readerDone:
	case <-time.After(readerDrain):
	}

	log.Info().Int("frames", frames).Msg("Chat socket completed")
}
