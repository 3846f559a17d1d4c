// Package stream decodes the chat backend's line-oriented event stream.
//
// Each event line has the form
//
//	data: {"role":"assistant","content":"hi"}
//
// and chunks handed to a Decoder need not align with line boundaries.
// The package has no knowledge of transcripts: it only turns bytes into
// typed events, and the reverse for servers producing the stream.
package stream

import (
	"encoding/json"
	"fmt"
)

// EventKind classifies a decoded line.
type EventKind int

const (
	// EventAssistantDelta carries a text fragment of the open assistant turn.
	EventAssistantDelta EventKind = iota + 1
	// EventToolCalls announces pending tool invocations.
	EventToolCalls
	// EventToolResult carries one tool's raw result.
	EventToolResult
	// EventError is a server-signaled failure. It ends decoding.
	EventError
	// EventMalformed is a data line whose payload is not a JSON object.
	EventMalformed
	// EventUnknown is a well-formed payload matching no known shape.
	EventUnknown
)

func (k EventKind) String() string {
	switch k {
	case EventAssistantDelta:
		return "assistant_delta"
	case EventToolCalls:
		return "tool_calls"
	case EventToolResult:
		return "tool_result"
	case EventError:
		return "error"
	case EventMalformed:
		return "malformed"
	case EventUnknown:
		return "unknown"
	default:
		return fmt.Sprintf("event_kind(%d)", int(k))
	}
}

// FunctionCall names the function a tool call targets.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments,omitempty"`
}

// ToolCall is one pending tool invocation announced by the assistant.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type,omitempty"`
	Function FunctionCall `json:"function"`
}

// Event is one decoded line.
type Event struct {
	Kind EventKind

	// Text is the delta fragment for EventAssistantDelta and the server
	// message for EventError.
	Text string

	// ToolCalls is set for EventToolCalls.
	ToolCalls []ToolCall

	// Content, ToolCallID and Name are set for EventToolResult. Content is
	// the tool's raw JSON result, untouched.
	Content    json.RawMessage
	ToolCallID string
	Name       string

	// Role is the role seen on an EventUnknown payload, if any.
	Role string

	// Raw is the full source line.
	Raw string

	// ParseErr is set for EventMalformed.
	ParseErr error
}

// Terminal reports whether no further events follow this one.
func (e Event) Terminal() bool {
	return e.Kind == EventError
}

// Err converts failure events into errors. It returns nil for the others.
func (e Event) Err() error {
	switch e.Kind {
	case EventError:
		return &ServerError{Message: e.Text}
	case EventMalformed:
		return &MalformedError{Line: e.Raw, Err: e.ParseErr}
	case EventUnknown:
		return &UnknownEventError{Role: e.Role, Line: e.Raw}
	default:
		return nil
	}
}

// ServerError is an error reported by the backend inside the stream.
type ServerError struct {
	Message string
}

func (e *ServerError) Error() string {
	return e.Message
}

// MalformedError is a data line that could not be parsed.
type MalformedError struct {
	Line string
	Err  error
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("malformed event %q: %v", e.Line, e.Err)
}

func (e *MalformedError) Unwrap() error {
	return e.Err
}

// UnknownEventError is a parsed payload with an unrecognized shape.
type UnknownEventError struct {
	Role string
	Line string
}

func (e *UnknownEventError) Error() string {
	if e.Role != "" {
		return fmt.Sprintf("unknown event with role %q", e.Role)
	}
	return fmt.Sprintf("unknown event %q", e.Line)
}
