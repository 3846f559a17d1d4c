package chat

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/openrufus/rufus/internal/logger"
	"github.com/openrufus/rufus/internal/services/chat"
	"github.com/openrufus/rufus/internal/services/chat/models"
	"github.com/openrufus/rufus/internal/stream"
	"github.com/openrufus/rufus/pkg/httpext"
	"github.com/rs/zerolog"
)

const maxRequestBody = 1 << 20

// use a single instance of Validate, it caches struct info
var validate = validator.New(validator.WithRequiredStructEnabled())

// decodeRequest parses and validates a chat request body. The returned
// message is safe to show to the client.
func decodeRequest(body []byte) (models.ChatRequest, string, error) {
	var req models.ChatRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return req, "Invalid request format", err
	}
	if err := validate.Struct(req); err != nil {
		return req, fmt.Sprintf("Invalid request: %v", err), err
	}
	if req.Trimmed() == "" {
		return req, "user_message_content cannot be empty", fmt.Errorf("blank user message")
	}
	return req, "", nil
}

func requestLogger(r *http.Request, requestID string) zerolog.Logger {
	return logger.For(logger.HANDLER).With().
		Str("request_id", requestID).
		Str("client_ip", r.RemoteAddr).
		Logger()
}

// HandleChat answers POST /api/chat. Streaming requests get an event
// stream of "data: " frames; others get a single JSON body.
func HandleChat(chatService chat.Service, w http.ResponseWriter, r *http.Request) {
	requestID := uuid.NewString()
	w.Header().Set("X-Request-ID", requestID)
	log := requestLogger(r, requestID)

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err != nil {
		log.Warn().Err(err).Msg("Failed to read request body")
		httpext.JsonError(w, "Invalid request format", http.StatusBadRequest)
		return
	}

	req, msg, err := decodeRequest(body)
	if err != nil {
		log.Warn().Err(err).Msg("Rejected chat request")
		httpext.JsonError(w, msg, http.StatusBadRequest)
		return
	}

	log.Info().
		Int("history", len(req.RecentHistory)).
		Bool("stream", req.Streaming()).
		Msg("Received chat request")

	if !req.Streaming() {
		content, err := chatService.CompleteChat(r.Context(), req)
		if err != nil {
			log.Error().Err(err).Msg("Failed to process chat")
			httpext.JsonError(w, "Failed to process chat", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(models.ChatResponse{Content: content}); err != nil {
			log.Error().Err(err).Msg("Failed to encode response")
		}
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		log.Error().Msg("Response writer does not support streaming")
		httpext.JsonError(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	frames := 0
	emit := func(p stream.Payload) error {
		line, err := stream.Encode(p)
		if err != nil {
			return err
		}
		if _, err := w.Write(line); err != nil {
			return err
		}
		flusher.Flush()
		frames++
		return nil
	}

	if err := chatService.StreamChat(r.Context(), req, emit); err != nil {
		if r.Context().Err() != nil {
			log.Info().Int("frames", frames).Msg("Client went away mid-stream")
			return
		}
		log.Error().Err(err).Msg("Chat stream failed")
		if emitErr := emit(stream.Payload{Error: err.Error()}); emitErr != nil {
			log.Warn().Err(emitErr).Msg("Failed to send error frame")
		}
		return
	}

	log.Info().Int("frames", frames).Msg("Chat stream completed")
}
