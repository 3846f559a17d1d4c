// Package transcript owns the ordered list of chat turns and drives one
// streaming request at a time against a Transport.
package transcript

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/openrufus/rufus/internal/logger"
	"github.com/openrufus/rufus/internal/stream"
	"github.com/rs/zerolog"
)

// DefaultTimeout is how long a session waits for its first byte.
const DefaultTimeout = 5 * time.Second

// User-visible error messages.
const (
	MessageTimeout    = "The request took too long. Please try again."
	MessageProcessing = "An error occurred while processing the response."
	MessageUnknown    = "An unknown error occurred."
)

var (
	// ErrSessionActive is returned by SendMessage while another request is in flight.
	ErrSessionActive = errors.New("a chat request is already in flight")
	// ErrFirstByteTimeout is the cancellation cause when nothing arrives in time.
	ErrFirstByteTimeout = errors.New("no response before the first-byte timeout")
	// ErrCancelled is the cancellation cause of Store.Cancel.
	ErrCancelled = errors.New("chat request cancelled")
)

// ChatRequest is the body sent to the chat backend.
type ChatRequest struct {
	RecentHistory      []Message `json:"recent_history"`
	UserMessageContent string    `json:"user_message_content"`
	Stream             bool      `json:"stream"`
}

// Transport opens a streaming chat request. Cancelling ctx must abort any
// pending read on the returned body.
type Transport interface {
	Open(ctx context.Context, req ChatRequest) (io.ReadCloser, error)
}

// State is the lifecycle of the latest session.
type State int

const (
	StateIdle State = iota
	StateSending
	StateStreaming
	StateCompleted
	StateFailed
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSending:
		return "sending"
	case StateStreaming:
		return "streaming"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Terminal reports whether s ends a session.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// Snapshot is a consistent copy of everything the UI reads.
type Snapshot struct {
	Messages        []Message
	VisibleMessages []Message
	IsLoading       bool
	Error           string
	IsMinimized     bool
	ShowErrorModal  bool
	State           State
}

// Store is the single source of truth for a conversation.
type Store struct {
	transport Transport
	timeout   time.Duration
	log       zerolog.Logger
	onCancel  func(cause error) // set by WithCancelHook

	mu             sync.RWMutex
	messages       []Message
	isLoading      bool
	err            string
	isMinimized    bool
	showErrorModal bool
	state          State
	generation     uint64
	active         *session
}

type Option func(*Store)

// WithTimeout overrides the first-byte timeout.
func WithTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.timeout = d
		}
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(s *Store) {
		s.log = l
	}
}

// WithCancelHook registers fn to run once per aborted session with the
// cause, ErrCancelled or ErrFirstByteTimeout.
func WithCancelHook(fn func(cause error)) Option {
	return func(s *Store) {
		s.onCancel = fn
	}
}

// WithMessages seeds the transcript.
func WithMessages(messages ...Message) Option {
	return func(s *Store) {
		s.messages = cloneMessages(messages)
	}
}

func NewStore(transport Transport, opts ...Option) *Store {
	s := &Store{
		transport: transport,
		timeout:   DefaultTimeout,
		log:       logger.For(logger.TRANSCRIPT),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SendMessage appends text as a user turn and streams the assistant's reply
// into the transcript. It blocks until the session ends. Whitespace-only
// text is ignored. Failures are reported through Error and ShowErrorModal;
// the only error returned is ErrSessionActive.
func (s *Store) SendMessage(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	reqCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	id := uuid.NewString()
	sess := &session{
		id:       id,
		log:      s.log.With().Str("session_id", id).Logger(),
		cancel:   cancel,
		onCancel: s.onCancel,
	}

	req, err := s.begin(sess, text)
	if err != nil {
		return err
	}
	sess.log.Info().Int("history", len(req.RecentHistory)).Msg("Chat session started")

	state, msg := s.run(reqCtx, sess, req)
	s.finish(sess, state, msg)

	sess.log.Info().Stringer("state", state).Str("error", msg).Msg("Chat session finished")
	return nil
}

func (s *Store) begin(sess *session, text string) (ChatRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active != nil {
		return ChatRequest{}, ErrSessionActive
	}

	history := cloneMessages(s.messages)

	s.err = ""
	s.showErrorModal = false
	s.isLoading = true
	s.state = StateSending

	s.messages = append(s.messages, UserMessage(text), AssistantMessage(""))
	sess.openIndex = len(s.messages) - 1
	sess.generation = s.generation
	s.active = sess

	return ChatRequest{
		RecentHistory:      history,
		UserMessageContent: text,
		Stream:             true,
	}, nil
}

// run is the session's read loop. It races the next transport step against
// the first-byte timer and cancellation, and returns the terminal state and
// the error message to surface, if any.
func (s *Store) run(ctx context.Context, sess *session, req ChatRequest) (State, string) {
	results := make(chan readResult)
	go pump(ctx, s.transport, req, results)

	timer := time.NewTimer(s.timeout)
	defer timer.Stop()
	firstByte := timer.C

	decoder := stream.NewDecoder()

	for {
		select {
		case <-firstByte:
			firstByte = nil
			sess.log.Warn().Dur("timeout", s.timeout).Msg("No response before timeout")
			sess.abort(ErrFirstByteTimeout)

		case <-ctx.Done():
			return cancelOutcome(context.Cause(ctx))

		case res := <-results:
			if ctx.Err() != nil {
				return cancelOutcome(context.Cause(ctx))
			}

			switch {
			case res.opened:
				s.setState(sess, StateStreaming)

			case res.chunk != nil:
				if firstByte != nil {
					timer.Stop()
					firstByte = nil
				}
				if stop := s.consume(ctx, sess, decoder.Decode(res.chunk)); stop {
					if ctx.Err() != nil {
						return cancelOutcome(context.Cause(ctx))
					}
					return StateFailed, ""
				}

			case errors.Is(res.err, io.EOF):
				if stop := s.consume(ctx, sess, decoder.Flush()); stop {
					if ctx.Err() != nil {
						return cancelOutcome(context.Cause(ctx))
					}
					return StateFailed, ""
				}
				return StateCompleted, ""

			default:
				if ctx.Err() != nil {
					return cancelOutcome(context.Cause(ctx))
				}
				sess.log.Error().Err(res.err).Msg("Chat transport failed")
				return StateFailed, transportMessage(res.err)
			}
		}
	}
}

func cancelOutcome(cause error) (State, string) {
	if errors.Is(cause, ErrFirstByteTimeout) {
		return StateFailed, MessageTimeout
	}
	return StateCancelled, ""
}

func transportMessage(err error) string {
	if err == nil || err.Error() == "" {
		return MessageUnknown
	}
	return err.Error()
}

// consume applies events in order. It reports true when the loop must stop,
// either on a terminal event or because the session was cancelled.
func (s *Store) consume(ctx context.Context, sess *session, events iter.Seq[stream.Event]) bool {
	for ev := range events {
		if ctx.Err() != nil {
			return true
		}

		switch ev.Kind {
		case stream.EventMalformed, stream.EventUnknown, stream.EventError:
			sess.log.Warn().Err(ev.Err()).Stringer("kind", ev.Kind).Msg("Chat stream reported a problem")
		default:
			sess.log.Trace().Stringer("kind", ev.Kind).Msg("Chat stream event")
		}

		if s.apply(sess, ev) {
			return true
		}
	}
	return false
}

// apply mutates the transcript for one event and reports whether it was
// terminal. Writes are skipped when the transcript was cleared after the
// session began.
func (s *Store) apply(sess *session, ev stream.Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	live := sess.generation == s.generation

	switch ev.Kind {
	case stream.EventAssistantDelta:
		sess.acc.WriteString(ev.Text)
		if live {
			s.messages[sess.openIndex].Content = PlainContent(sess.acc.String())
		}

	case stream.EventToolCalls:
		if live {
			s.messages[sess.openIndex].ToolCalls = append([]stream.ToolCall(nil), ev.ToolCalls...)
		}

	case stream.EventToolResult:
		if live {
			// An untouched placeholder gives way to the tool turn; one that
			// announced tool calls stays.
			if open := s.messages[sess.openIndex]; open.IsPlaceholder() && len(open.ToolCalls) == 0 {
				s.messages = append(s.messages[:sess.openIndex], s.messages[sess.openIndex+1:]...)
			}
			s.messages = append(s.messages,
				ToolMessage(ev.Content, ev.ToolCallID, ev.Name),
				AssistantMessage(""),
			)
			sess.openIndex = len(s.messages) - 1
		}
		sess.acc.Reset()

	case stream.EventError:
		s.raise(ev.Text)
		return true

	default:
		s.raise(MessageProcessing)
	}

	return false
}

// raise sets the error message and the modal flag. Callers hold s.mu.
func (s *Store) raise(msg string) {
	s.err = msg
	s.showErrorModal = true
}

func (s *Store) setState(sess *session, state State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == sess {
		s.state = state
	}
}

func (s *Store) finish(sess *session, state State, errMsg string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if errMsg != "" {
		s.raise(errMsg)
	}

	if sess.generation == s.generation {
		if n := len(s.messages); n > 0 && n-1 == sess.openIndex && s.messages[n-1].IsPlaceholder() {
			s.messages = s.messages[:n-1]
		}
	}

	s.isLoading = false
	s.state = state
	s.active = nil
}

// Cancel aborts the in-flight session, if any. It is safe to call at any
// time and any number of times.
func (s *Store) Cancel() {
	s.mu.RLock()
	sess := s.active
	s.mu.RUnlock()

	if sess != nil {
		sess.abort(ErrCancelled)
	}
}

// ClearMessages empties the transcript. An in-flight session keeps running
// but stops writing turns.
func (s *Store) ClearMessages() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = nil
	s.generation++
}

func (s *Store) ToggleMinimize() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.isMinimized = !s.isMinimized
}

// DismissError hides the error modal but keeps the error message.
func (s *Store) DismissError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.showErrorModal = false
}

func (s *Store) Messages() []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneMessages(s.messages)
}

func (s *Store) VisibleMessages() []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Visible(s.messages)
}

func (s *Store) IsLoading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isLoading
}

func (s *Store) Error() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}

func (s *Store) IsMinimized() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isMinimized
}

func (s *Store) ShowErrorModal() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.showErrorModal
}

func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Active reports whether a session is in flight.
func (s *Store) Active() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active != nil
}

func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		Messages:        cloneMessages(s.messages),
		VisibleMessages: Visible(s.messages),
		IsLoading:       s.isLoading,
		Error:           s.err,
		IsMinimized:     s.isMinimized,
		ShowErrorModal:  s.showErrorModal,
		State:           s.state,
	}
}
