package models

import (
	"encoding/json"
	"strings"
)

// HistoryMessage is one transcript turn as sent by the client. Content is
// a string for user and assistant turns and a wrapped tool result for tool
// turns.
type HistoryMessage struct {
	Role       string          `json:"role" validate:"required,oneof=user assistant tool"`
	Content    json.RawMessage `json:"content"`
	ToolCallID string          `json:"tool_call_id,omitempty"`
	Name       string          `json:"name,omitempty"`
	ToolCalls  json.RawMessage `json:"toolCalls,omitempty"`
}

// Text returns the content when it is a JSON string.
func (m HistoryMessage) Text() (string, bool) {
	var s string
	if err := json.Unmarshal(m.Content, &s); err != nil {
		return "", false
	}
	return s, true
}

// ChatRequest is the body of POST /api/chat.
type ChatRequest struct {
	RecentHistory      []HistoryMessage `json:"recent_history" validate:"omitempty,dive"`
	UserMessageContent string           `json:"user_message_content" validate:"required,max=8000"`
	Stream             *bool            `json:"stream,omitempty"`
}

// Streaming defaults to true when the field is absent.
func (r ChatRequest) Streaming() bool {
	return r.Stream == nil || *r.Stream
}

// Trimmed reports the user text without surrounding whitespace.
func (r ChatRequest) Trimmed() string {
	return strings.TrimSpace(r.UserMessageContent)
}

// ChatResponse is the body returned when streaming is off.
type ChatResponse struct {
	Content string `json:"content"`
}

// ChatConfig carries model settings for one completion.
type ChatConfig struct {
	Model       string
	Temperature float32
	MaxTokens   int
}
