package transcript

import (
	"encoding/json"
	"fmt"

	"github.com/openrufus/rufus/internal/stream"
)

// Role is the author of a transcript turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Valid reports whether r is one of the three known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleTool:
		return true
	}
	return false
}

func (r *Role) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("role: %w", err)
	}
	if !Role(s).Valid() {
		return fmt.Errorf("unrecognized role %q", s)
	}
	*r = Role(s)
	return nil
}

// ContentKind tells how a message's content is shaped on the wire.
type ContentKind int

const (
	// ContentPlain is user or assistant text, rendered as a JSON string.
	ContentPlain ContentKind = iota
	// ContentText is a tool result coerced to text: {"text": "..."}.
	ContentText
	// ContentList is a tool result that was a JSON array: {"json": {"items": [...]}}.
	ContentList
	// ContentStructured is any other structured tool result: {"json": value}.
	ContentStructured
)

func (k ContentKind) String() string {
	switch k {
	case ContentPlain:
		return "plain"
	case ContentText:
		return "text"
	case ContentList:
		return "list"
	case ContentStructured:
		return "structured"
	default:
		return fmt.Sprintf("content_kind(%d)", int(k))
	}
}

// Content is a message body. The zero value is empty plain text.
type Content struct {
	kind ContentKind
	text string
	data json.RawMessage
}

// PlainContent wraps user or assistant text.
func PlainContent(s string) Content {
	return Content{kind: ContentPlain, text: s}
}

func (c Content) Kind() ContentKind {
	return c.kind
}

// Text returns the text of plain and text contents.
func (c Content) Text() string {
	return c.text
}

// JSON returns a copy of the structured value of list and structured
// contents. For lists it is the original array.
func (c Content) JSON() json.RawMessage {
	if c.data == nil {
		return nil
	}
	return append(json.RawMessage(nil), c.data...)
}

// Items decodes the records of a list content.
func (c Content) Items() ([]json.RawMessage, error) {
	if c.kind != ContentList {
		return nil, fmt.Errorf("content is %s, not list", c.kind)
	}
	var items []json.RawMessage
	if err := json.Unmarshal(c.data, &items); err != nil {
		return nil, fmt.Errorf("decode list items: %w", err)
	}
	return items, nil
}

// Empty reports whether a plain content has no text. Tool contents are
// never empty.
func (c Content) Empty() bool {
	return c.kind == ContentPlain && c.text == ""
}

// String renders the content for display.
func (c Content) String() string {
	switch c.kind {
	case ContentPlain, ContentText:
		return c.text
	default:
		return string(c.data)
	}
}

func (c Content) MarshalJSON() ([]byte, error) {
	switch c.kind {
	case ContentPlain:
		return json.Marshal(c.text)
	case ContentText:
		return json.Marshal(struct {
			Text string `json:"text"`
		}{c.text})
	case ContentList:
		return json.Marshal(map[string]map[string]json.RawMessage{
			"json": {"items": c.data},
		})
	case ContentStructured:
		return json.Marshal(struct {
			JSON json.RawMessage `json:"json"`
		}{c.data})
	default:
		return nil, fmt.Errorf("unknown content kind %d", c.kind)
	}
}

// Message is one transcript turn.
type Message struct {
	Role       Role              `json:"role"`
	Content    Content           `json:"content"`
	ToolCallID string            `json:"tool_call_id,omitempty"`
	Name       string            `json:"name,omitempty"`
	ToolCalls  []stream.ToolCall `json:"toolCalls,omitempty"`
}

// UserMessage builds a user turn.
func UserMessage(text string) Message {
	return Message{Role: RoleUser, Content: PlainContent(text)}
}

// AssistantMessage builds an assistant turn.
func AssistantMessage(text string) Message {
	return Message{Role: RoleAssistant, Content: PlainContent(text)}
}

// ToolMessage builds a tool turn from a raw tool result.
func ToolMessage(raw json.RawMessage, toolCallID, name string) Message {
	return Message{
		Role:       RoleTool,
		Content:    NormalizeToolContent(raw),
		ToolCallID: toolCallID,
		Name:       name,
	}
}

// IsPlaceholder reports whether m is an assistant turn with no text yet.
func (m Message) IsPlaceholder() bool {
	return m.Role == RoleAssistant && m.Content.Empty()
}

func (m Message) clone() Message {
	if m.ToolCalls != nil {
		m.ToolCalls = append([]stream.ToolCall(nil), m.ToolCalls...)
	}
	return m
}

func cloneMessages(messages []Message) []Message {
	out := make([]Message, len(messages))
	for i, m := range messages {
		out[i] = m.clone()
	}
	return out
}

// Visible filters messages down to what a reader should see: every user
// and tool turn, and assistant turns that have text.
func Visible(messages []Message) []Message {
	out := make([]Message, 0, len(messages))
	for _, m := range messages {
		if m.Role == RoleAssistant && m.Content.Empty() {
			continue
		}
		out = append(out, m.clone())
	}
	return out
}
