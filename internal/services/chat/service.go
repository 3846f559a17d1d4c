package chat

import (
	"context"
	"errors"

	"github.com/openrufus/rufus/internal/services/chat/models"
	"github.com/openrufus/rufus/internal/stream"
)

// ErrTooManyToolRounds stops a conversation where the model keeps asking
// for tools.
var ErrTooManyToolRounds = errors.New("too many tool rounds")

// Emitter receives stream payloads in order. A returned error aborts the
// completion.
type Emitter func(stream.Payload) error

// Service defines the interface for chat operations
type Service interface {
	// StreamChat streams assistant deltas, tool announcements and tool
	// results for one user turn.
	StreamChat(ctx context.Context, req models.ChatRequest, emit Emitter) error
	// CompleteChat returns the final assistant text for one user turn.
	CompleteChat(ctx context.Context, req models.ChatRequest) (string, error)
}
