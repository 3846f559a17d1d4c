package stream

import (
	"bytes"
	"encoding/json"
	"iter"
	"strconv"
	"strings"
)

// DataPrefix starts every event line.
const DataPrefix = "data: "

// frame is the union of every payload shape the backend emits. Both the
// snake_case and camelCase spellings of the tool fields are accepted.
type frame struct {
	Role            string          `json:"role"`
	Content         json.RawMessage `json:"content"`
	ToolCalls       []ToolCall      `json:"toolCalls"`
	ToolCallsSnake  []ToolCall      `json:"tool_calls"`
	ToolCallID      string          `json:"tool_call_id"`
	ToolCallIDCamel string          `json:"toolCallId"`
	Name            string          `json:"name"`
	Error           json.RawMessage `json:"error"`
}

func present(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null"))
}

// rawText returns a JSON string unquoted, or any other JSON value verbatim.
func rawText(raw json.RawMessage) (string, bool) {
	if !present(raw) {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, true
	}
	return string(bytes.TrimSpace(raw)), false
}

// errorText reports the error carried by the frame. Falsy values (null,
// false, 0 and "") mean no error; any other value is one.
func (f *frame) errorText() (string, bool) {
	text, isString := rawText(f.Error)
	if isString || text == "" {
		return text, text != ""
	}
	if text == "false" {
		return "", false
	}
	if n, err := strconv.ParseFloat(text, 64); err == nil && n == 0 {
		return "", false
	}
	return text, true
}

func (f *frame) contentText() (string, bool) {
	text, isString := rawText(f.Content)
	return text, isString
}

func (f *frame) hasContent() bool {
	text, isString := rawText(f.Content)
	if isString {
		return text != ""
	}
	return present(f.Content)
}

func (f *frame) toolCalls() []ToolCall {
	if f.ToolCalls != nil {
		return f.ToolCalls
	}
	return f.ToolCallsSnake
}

func (f *frame) toolCallID() string {
	if f.ToolCallID != "" {
		return f.ToolCallID
	}
	return f.ToolCallIDCamel
}

// ParseLine decodes a single line. It reports false for lines that are not
// event lines (keep-alives, comments, other SSE fields); every data line
// yields an event, malformed ones included.
func ParseLine(line string) (Event, bool) {
	line = strings.TrimSuffix(line, "\r")
	if !strings.HasPrefix(line, DataPrefix) {
		return Event{}, false
	}

	var f frame
	if err := json.Unmarshal([]byte(line[len(DataPrefix):]), &f); err != nil {
		return Event{Kind: EventMalformed, Raw: line, ParseErr: err}, true
	}

	return classify(line, &f), true
}

func classify(line string, f *frame) Event {
	if msg, ok := f.errorText(); ok {
		return Event{Kind: EventError, Text: msg, Raw: line}
	}

	switch f.Role {
	case "assistant":
		if text, isString := f.contentText(); isString && text != "" {
			return Event{Kind: EventAssistantDelta, Text: text, Raw: line}
		}
		if calls := f.toolCalls(); calls != nil && !f.hasContent() {
			return Event{Kind: EventToolCalls, ToolCalls: calls, Raw: line}
		}
	case "tool":
		return Event{
			Kind:       EventToolResult,
			Content:    f.Content,
			ToolCallID: f.toolCallID(),
			Name:       f.Name,
			Raw:        line,
		}
	}

	return Event{Kind: EventUnknown, Role: f.Role, Raw: line}
}

// Decoder splits chunks into lines and parses them. It holds at most the
// partial line left over from the previous chunk. A Decoder serves a single
// stream and cannot be restarted.
type Decoder struct {
	pending []byte
	done    bool
}

func NewDecoder() *Decoder {
	return &Decoder{}
}

// Done reports whether the decoder has seen an error event or been flushed.
func (d *Decoder) Done() bool {
	return d.done
}

// Decode returns the events for every complete line in chunk, in order.
// The sequence is lazy and must be consumed before the next call. An error
// event ends it and discards the remaining lines of the chunk; a trailing
// partial line is kept for the next chunk.
func (d *Decoder) Decode(chunk []byte) iter.Seq[Event] {
	return func(yield func(Event) bool) {
		if d.done {
			return
		}

		buf := make([]byte, 0, len(d.pending)+len(chunk))
		buf = append(buf, d.pending...)
		buf = append(buf, chunk...)
		d.pending = nil

		for {
			i := bytes.IndexByte(buf, '\n')
			if i < 0 {
				break
			}
			line := string(buf[:i])
			buf = buf[i+1:]

			ev, ok := ParseLine(line)
			if !ok {
				continue
			}
			if ev.Terminal() {
				d.done = true
				yield(ev)
				return
			}
			if !yield(ev) {
				d.pending = append([]byte(nil), buf...)
				return
			}
		}

		if len(buf) > 0 {
			d.pending = append([]byte(nil), buf...)
		}
	}
}

// Flush decodes the leftover partial line at end of stream and closes the
// decoder.
func (d *Decoder) Flush() iter.Seq[Event] {
	return func(yield func(Event) bool) {
		if d.done {
			return
		}
		d.done = true

		line := string(d.pending)
		d.pending = nil
		if ev, ok := ParseLine(line); ok {
			yield(ev)
		}
	}
}
