package stream

import (
	"encoding/json"
	"fmt"
)

// Payload is the JSON object carried by an event line.
type Payload struct {
	Role       string     `json:"role,omitempty"`
	Content    any        `json:"content,omitempty"`
	ToolCalls  []ToolCall `json:"toolCalls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	Name       string     `json:"name,omitempty"`
	Error      string     `json:"error,omitempty"`
}

// Encode renders p as one event line followed by a blank separator line.
func Encode(p Payload) ([]byte, error) {
	body, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal event payload: %w", err)
	}

	line := make([]byte, 0, len(DataPrefix)+len(body)+2)
	line = append(line, DataPrefix...)
	line = append(line, body...)
	line = append(line, '\n', '\n')
	return line, nil
}
