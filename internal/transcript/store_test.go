package transcript

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type transportFunc func(ctx context.Context, req ChatRequest) (io.ReadCloser, error)

func (f transportFunc) Open(ctx context.Context, req ChatRequest) (io.ReadCloser, error) {
	return f(ctx, req)
}

// chunkBody returns one scripted chunk per Read.
type chunkBody struct {
	chunks [][]byte
}

func (b *chunkBody) Read(p []byte) (int, error) {
	if len(b.chunks) == 0 {
		return 0, io.EOF
	}
	n := copy(p, b.chunks[0])
	b.chunks[0] = b.chunks[0][n:]
	if len(b.chunks[0]) == 0 {
		b.chunks = b.chunks[1:]
	}
	return n, nil
}

func (b *chunkBody) Close() error { return nil }

func scripted(chunks ...string) transportFunc {
	return func(context.Context, ChatRequest) (io.ReadCloser, error) {
		body := &chunkBody{}
		for _, c := range chunks {
			body.chunks = append(body.chunks, []byte(c))
		}
		return body, nil
	}
}

// piped hands the test the writing end of the response body.
func piped() (transportFunc, *io.PipeWriter) {
	pr, pw := io.Pipe()
	return func(context.Context, ChatRequest) (io.ReadCloser, error) {
		return pr, nil
	}, pw
}

type cancelCounter struct {
	n     atomic.Int32
	cause atomic.Value
}

func countCancels() (Option, *cancelCounter) {
	c := &cancelCounter{}
	return WithCancelHook(func(cause error) {
		c.n.Add(1)
		c.cause.Store(cause)
	}), c
}

func (c *cancelCounter) Load() int32 { return c.n.Load() }

func sendAsync(t *testing.T, s *Store, text string) <-chan error {
	t.Helper()
	done := make(chan error, 1)
	go func() {
		done <- s.SendMessage(context.Background(), text)
	}()
	return done
}

func waitDone(t *testing.T, done <-chan error) {
	t.Helper()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("SendMessage did not return")
	}
}

func TestSendMessageScenarios(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		chunks    []string
		wantState State
		wantError string
		wantModal bool
		check     func(t *testing.T, messages []Message)
	}{
		{
			name:  "streamed deltas build one assistant turn",
			input: "hello",
			chunks: []string{
				"data: {\"role\":\"assistant\",\"content\":\"hi\"}\n\n",
				"data: {\"role\":\"assistant\",\"content\":\" there\"}\n\n",
			},
			wantState: StateCompleted,
			check: func(t *testing.T, messages []Message) {
				require.Len(t, messages, 2)
				assert.Equal(t, UserMessage("hello"), messages[0])
				assert.Equal(t, AssistantMessage("hi there"), messages[1])
			},
		},
		{
			name:      "server error surfaces verbatim",
			input:     "hello",
			chunks:    []string{"data: {\"error\":\"rate limited\"}\n\n"},
			wantState: StateFailed,
			wantError: "rate limited",
			wantModal: true,
			check: func(t *testing.T, messages []Message) {
				require.Len(t, messages, 1)
				assert.Equal(t, RoleUser, messages[0].Role)
			},
		},
		{
			name:  "tool result without a delta leaves no placeholder",
			input: "find shirts",
			chunks: []string{
				"data: {\"role\":\"tool\",\"content\":[{\"id\":1}],\"tool_call_id\":\"c1\",\"name\":\"search\"}\n\n",
			},
			wantState: StateCompleted,
			check: func(t *testing.T, messages []Message) {
				require.Len(t, messages, 2)
				assert.Equal(t, RoleUser, messages[0].Role)

				tool := messages[1]
				assert.Equal(t, RoleTool, tool.Role)
				assert.Equal(t, "c1", tool.ToolCallID)
				assert.Equal(t, "search", tool.Name)
				assert.Equal(t, ContentList, tool.Content.Kind())
				assert.JSONEq(t, `{"json":{"items":[{"id":1}]}}`, mustJSON(t, tool.Content))
			},
		},
		{
			name:  "back to back tool results",
			input: "find shirts",
			chunks: []string{
				"data: {\"role\":\"tool\",\"content\":[{\"id\":1}],\"tool_call_id\":\"c1\",\"name\":\"search\"}\n\n" +
					"data: {\"role\":\"tool\",\"content\":\"none\",\"tool_call_id\":\"c2\",\"name\":\"search\"}\n\n",
				"data: {\"role\":\"assistant\",\"content\":\"Here you go.\"}\n\n",
			},
			wantState: StateCompleted,
			check: func(t *testing.T, messages []Message) {
				require.Len(t, messages, 4)
				assert.Equal(t, RoleTool, messages[1].Role)
				assert.Equal(t, "c1", messages[1].ToolCallID)
				assert.Equal(t, RoleTool, messages[2].Role)
				assert.Equal(t, "c2", messages[2].ToolCallID)
				assert.Equal(t, AssistantMessage("Here you go."), messages[3])
			},
		},
		{
			name:  "full tool round",
			input: "find shirts",
			chunks: []string{
				"data: {\"role\":\"assistant\",\"toolCalls\":[{\"id\":\"c1\",\"type\":\"function\",\"function\":{\"name\":\"item_search\",\"arguments\":\"{}\"}}]}\n\n",
				"data: {\"role\":\"tool\",\"content\":{\"count\":0},\"tool_call_id\":\"c1\",\"name\":\"item_search\"}\n\n",
				"data: {\"role\":\"assistant\",\"content\":\"Nothing \"}\n\ndata: {\"role\":\"assistant\",\"content\":\"found.\"}\n\n",
			},
			wantState: StateCompleted,
			check: func(t *testing.T, messages []Message) {
				require.Len(t, messages, 4)

				announce := messages[1]
				assert.Equal(t, RoleAssistant, announce.Role)
				assert.True(t, announce.Content.Empty())
				require.Len(t, announce.ToolCalls, 1)
				assert.Equal(t, "item_search", announce.ToolCalls[0].Function.Name)

				assert.Equal(t, ContentStructured, messages[2].Content.Kind())
				assert.Equal(t, AssistantMessage("Nothing found."), messages[3])

				visible := Visible(messages)
				require.Len(t, visible, 3)
				assert.Equal(t, RoleTool, visible[1].Role)
			},
		},
		{
			name:  "malformed line is reported and decoding continues",
			input: "hello",
			chunks: []string{
				"data: {oops\n\n",
				"data: {\"role\":\"assistant\",\"content\":\"still here\"}\n\n",
			},
			wantState: StateCompleted,
			wantError: MessageProcessing,
			wantModal: true,
			check: func(t *testing.T, messages []Message) {
				require.Len(t, messages, 2)
				assert.Equal(t, "still here", messages[1].Content.Text())
			},
		},
		{
			name:  "unknown role is reported and decoding continues",
			input: "hello",
			chunks: []string{
				"data: {\"role\":\"system\",\"content\":\"x\"}\n\ndata: {\"role\":\"assistant\",\"content\":\"ok\"}\n\n",
			},
			wantState: StateCompleted,
			wantError: MessageProcessing,
			wantModal: true,
			check: func(t *testing.T, messages []Message) {
				require.Len(t, messages, 2)
				assert.Equal(t, "ok", messages[1].Content.Text())
			},
		},
		{
			name:  "lines after an error in the same chunk are discarded",
			input: "hello",
			chunks: []string{
				"data: {\"role\":\"assistant\",\"content\":\"part\"}\n\ndata: {\"error\":\"boom\"}\n\ndata: {\"role\":\"assistant\",\"content\":\"ignored\"}\n\n",
				"data: {\"role\":\"assistant\",\"content\":\"also ignored\"}\n\n",
			},
			wantState: StateFailed,
			wantError: "boom",
			wantModal: true,
			check: func(t *testing.T, messages []Message) {
				require.Len(t, messages, 2)
				assert.Equal(t, "part", messages[1].Content.Text())
			},
		},
		{
			name:      "empty stream removes the placeholder",
			input:     "hello",
			wantState: StateCompleted,
			check: func(t *testing.T, messages []Message) {
				require.Len(t, messages, 1)
				assert.Equal(t, RoleUser, messages[0].Role)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewStore(scripted(tt.chunks...), WithTimeout(time.Second))

			require.NoError(t, s.SendMessage(context.Background(), tt.input))

			snap := s.Snapshot()
			assert.Equal(t, tt.wantState, snap.State)
			assert.Equal(t, tt.wantError, snap.Error)
			assert.Equal(t, tt.wantModal, snap.ShowErrorModal)
			assert.False(t, snap.IsLoading)
			assert.False(t, s.Active())
			assertNoEmptyAssistant(t, snap.Messages)
			tt.check(t, snap.Messages)
		})
	}
}

// assertNoEmptyAssistant fails on any assistant turn that has neither text
// nor announced tool calls.
func assertNoEmptyAssistant(t *testing.T, messages []Message) {
	t.Helper()
	for i, m := range messages {
		if m.IsPlaceholder() && len(m.ToolCalls) == 0 {
			assert.Failf(t, "empty assistant turn", "index %d of %d", i, len(messages))
		}
	}
}

func TestToolOnlyReplyHistory(t *testing.T) {
	var requests []ChatRequest
	replies := []string{
		"data: {\"role\":\"tool\",\"content\":[{\"id\":1}],\"tool_call_id\":\"c1\",\"name\":\"item_search\"}\n\n",
		"data: {\"role\":\"assistant\",\"content\":\"ok\"}\n\n",
	}
	s := NewStore(transportFunc(func(_ context.Context, req ChatRequest) (io.ReadCloser, error) {
		requests = append(requests, req)
		return &chunkBody{chunks: [][]byte{[]byte(replies[len(requests)-1])}}, nil
	}))

	require.NoError(t, s.SendMessage(context.Background(), "hats"))
	require.NoError(t, s.SendMessage(context.Background(), "thanks"))

	require.Len(t, requests, 2)
	history := requests[1].RecentHistory
	require.Len(t, history, 2)
	assert.Equal(t, RoleUser, history[0].Role)
	assert.Equal(t, RoleTool, history[1].Role)
	assertNoEmptyAssistant(t, s.Messages())
}

func TestSendMessageIgnoresBlankInput(t *testing.T) {
	var opened atomic.Bool
	s := NewStore(transportFunc(func(context.Context, ChatRequest) (io.ReadCloser, error) {
		opened.Store(true)
		return &chunkBody{}, nil
	}))

	for _, text := range []string{"", "   ", "\n\t"} {
		require.NoError(t, s.SendMessage(context.Background(), text))
	}

	assert.False(t, opened.Load())
	assert.Empty(t, s.Messages())
	assert.Equal(t, StateIdle, s.State())
}

func TestSendMessageRequest(t *testing.T) {
	var got ChatRequest
	s := NewStore(transportFunc(func(_ context.Context, req ChatRequest) (io.ReadCloser, error) {
		got = req
		return &chunkBody{}, nil
	}), WithMessages(UserMessage("earlier"), AssistantMessage("reply")))

	require.NoError(t, s.SendMessage(context.Background(), "next"))

	assert.True(t, got.Stream)
	assert.Equal(t, "next", got.UserMessageContent)
	assert.Equal(t, []Message{UserMessage("earlier"), AssistantMessage("reply")}, got.RecentHistory)
}

func TestSendMessageTransportFailure(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantMsg string
	}{
		{name: "error text is surfaced", err: errors.New("connection refused"), wantMsg: "connection refused"},
		{name: "empty error falls back", err: errors.New(""), wantMsg: MessageUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewStore(transportFunc(func(context.Context, ChatRequest) (io.ReadCloser, error) {
				return nil, tt.err
			}))

			require.NoError(t, s.SendMessage(context.Background(), "hello"))

			assert.Equal(t, StateFailed, s.State())
			assert.Equal(t, tt.wantMsg, s.Error())
			assert.True(t, s.ShowErrorModal())
			assert.False(t, s.IsLoading())
			assert.Equal(t, []Message{UserMessage("hello")}, s.Messages())
		})
	}
}

func TestSendMessageFirstByteTimeout(t *testing.T) {
	transport, pw := piped()
	defer pw.Close()

	hook, cancels := countCancels()
	s := NewStore(transport, WithTimeout(20*time.Millisecond), hook)

	start := time.Now()
	require.NoError(t, s.SendMessage(context.Background(), "hello"))

	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, StateFailed, s.State())
	assert.Equal(t, MessageTimeout, s.Error())
	assert.True(t, s.ShowErrorModal())
	assert.False(t, s.IsLoading())
	assert.Equal(t, int32(1), cancels.Load())
	assert.Equal(t, ErrFirstByteTimeout, cancels.cause.Load())
	assert.Equal(t, []Message{UserMessage("hello")}, s.Messages())

	s.Cancel()
	assert.Equal(t, int32(1), cancels.Load())
}

func TestFirstChunkDisarmsTimeout(t *testing.T) {
	transport, pw := piped()
	s := NewStore(transport, WithTimeout(20*time.Millisecond))

	go func() {
		_, _ = pw.Write([]byte("data: {\"role\":\"assistant\",\"content\":\"slow\"}\n\n"))
		time.Sleep(80 * time.Millisecond)
		_, _ = pw.Write([]byte("data: {\"role\":\"assistant\",\"content\":\" but fine\"}\n\n"))
		_ = pw.Close()
	}()

	require.NoError(t, s.SendMessage(context.Background(), "hello"))

	assert.Equal(t, StateCompleted, s.State())
	assert.Empty(t, s.Error())
	assert.Equal(t, AssistantMessage("slow but fine"), s.Messages()[1])
}

func TestCancel(t *testing.T) {
	transport, pw := piped()
	defer pw.Close()

	hook, cancels := countCancels()
	s := NewStore(transport, WithTimeout(time.Second), hook)

	done := sendAsync(t, s, "hello")
	_, err := pw.Write([]byte("data: {\"role\":\"assistant\",\"content\":\"partial\"}\n\n"))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		msgs := s.Messages()
		return len(msgs) == 2 && msgs[1].Content.Text() == "partial"
	}, time.Second, 5*time.Millisecond)

	s.Cancel()
	s.Cancel()
	waitDone(t, done)

	assert.Equal(t, StateCancelled, s.State())
	assert.Empty(t, s.Error())
	assert.False(t, s.ShowErrorModal())
	assert.False(t, s.IsLoading())
	assert.Equal(t, int32(1), cancels.Load())
	assert.Equal(t, ErrCancelled, cancels.cause.Load())
	assert.Equal(t, AssistantMessage("partial"), s.Messages()[1])
}

func TestCancelAfterCompletionIsNoop(t *testing.T) {
	hook, cancels := countCancels()
	s := NewStore(scripted("data: {\"role\":\"assistant\",\"content\":\"done\"}\n\n"), hook)

	require.NoError(t, s.SendMessage(context.Background(), "hello"))
	before := s.Snapshot()

	s.Cancel()
	s.Cancel()

	assert.Equal(t, before, s.Snapshot())
	assert.Zero(t, cancels.Load())
}

func TestParentContextCancel(t *testing.T) {
	transport, pw := piped()
	defer pw.Close()

	s := NewStore(transport, WithTimeout(time.Second))
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- s.SendMessage(ctx, "hello") }()

	require.Eventually(t, s.Active, time.Second, 5*time.Millisecond)
	cancel()
	waitDone(t, done)

	assert.Equal(t, StateCancelled, s.State())
	assert.False(t, s.ShowErrorModal())
}

func TestSecondSendWhileActive(t *testing.T) {
	transport, pw := piped()
	defer pw.Close()

	s := NewStore(transport, WithTimeout(time.Second))
	done := sendAsync(t, s, "first")

	require.Eventually(t, s.Active, time.Second, 5*time.Millisecond)
	assert.ErrorIs(t, s.SendMessage(context.Background(), "second"), ErrSessionActive)
	assert.Len(t, s.Messages(), 2)

	s.Cancel()
	waitDone(t, done)
	assert.False(t, s.Active())
}

func TestClearMessagesMidFlight(t *testing.T) {
	transport, pw := piped()
	s := NewStore(transport, WithTimeout(time.Second))

	done := sendAsync(t, s, "hello")
	_, err := pw.Write([]byte("data: {\"role\":\"assistant\",\"content\":\"a\"}\n\n"))
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		msgs := s.Messages()
		return len(msgs) == 2 && msgs[1].Content.Text() == "a"
	}, time.Second, 5*time.Millisecond)

	s.ClearMessages()

	_, err = pw.Write([]byte("data: {\"role\":\"tool\",\"content\":\"x\",\"tool_call_id\":\"c\",\"name\":\"n\"}\n\ndata: {\"role\":\"assistant\",\"content\":\"b\"}\n\n"))
	require.NoError(t, err)
	require.NoError(t, pw.Close())
	waitDone(t, done)

	assert.Empty(t, s.Messages())
	assert.Equal(t, StateCompleted, s.State())
	assert.False(t, s.IsLoading())
}

func TestErrorModalLifecycle(t *testing.T) {
	s := NewStore(scripted(
		"data: {broken\n\n",
		"data: {\"role\":\"assistant\",\"content\":\"ok\"}\n\ndata: also broken\n\n",
	))

	require.NoError(t, s.SendMessage(context.Background(), "hello"))
	require.True(t, s.ShowErrorModal())

	s.DismissError()
	assert.False(t, s.ShowErrorModal())
	assert.Equal(t, MessageProcessing, s.Error())

	s.transport = scripted("data: {\"role\":\"assistant\",\"content\":\"clean\"}\n\n")
	require.NoError(t, s.SendMessage(context.Background(), "again"))
	assert.Empty(t, s.Error())
	assert.False(t, s.ShowErrorModal())
}

func TestToggleMinimize(t *testing.T) {
	s := NewStore(scripted())
	assert.False(t, s.IsMinimized())
	s.ToggleMinimize()
	assert.True(t, s.IsMinimized())
	s.ToggleMinimize()
	assert.False(t, s.IsMinimized())
}

func TestMessagesReturnsCopy(t *testing.T) {
	s := NewStore(scripted(), WithMessages(UserMessage("a")))

	msgs := s.Messages()
	msgs[0] = UserMessage("mutated")

	assert.Equal(t, UserMessage("a"), s.Messages()[0])
}

func TestLoadingDuringSession(t *testing.T) {
	transport, pw := piped()
	s := NewStore(transport, WithTimeout(time.Second))

	done := sendAsync(t, s, "hello")
	require.Eventually(t, s.Active, time.Second, 5*time.Millisecond)
	assert.True(t, s.IsLoading())
	require.Eventually(t, func() bool { return s.State() == StateStreaming }, time.Second, 5*time.Millisecond)

	require.NoError(t, pw.Close())
	waitDone(t, done)

	assert.False(t, s.IsLoading())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "streaming", StateStreaming.String())
	assert.Equal(t, "state(42)", State(42).String())
	assert.True(t, StateCancelled.Terminal())
	assert.False(t, StateSending.Terminal())
}
