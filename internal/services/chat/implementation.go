package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	openaiinfra "github.com/openrufus/rufus/internal/infrastructure/openai"
	"github.com/openrufus/rufus/internal/logger"
	"github.com/openrufus/rufus/internal/services/chat/models"
	"github.com/openrufus/rufus/internal/services/tools"
	"github.com/openrufus/rufus/internal/stream"
	"github.com/sashabaranov/go-openai"
)

const maxToolRounds = 5

type Implementation struct {
	mu           sync.RWMutex
	client       *openai.Client
	toolService  *tools.Service
	toolExecutor *tools.ToolExecutor
	systemPrompt *models.SystemPrompt
	config       models.ChatConfig
}

func NewService(
	openAIService *openaiinfra.Service,
	toolService *tools.Service,
	toolExecutor *tools.ToolExecutor,
	config models.ChatConfig,
) (*Implementation, error) {
	if openAIService == nil {
		return nil, fmt.Errorf("OpenAI service is required")
	}
	if config.Model == "" {
		return nil, fmt.Errorf("model is required")
	}

	return &Implementation{
		client:       openAIService.GetClient(),
		toolService:  toolService,
		toolExecutor: toolExecutor,
		systemPrompt: models.DefaultSystemPrompt(),
		config:       config,
	}, nil
}

// buildMessages prepends the system prompt and keeps only the text turns of
// the client history; tool turns are display-only on the client side.
func (s *Implementation) buildMessages(req models.ChatRequest) []openai.ChatCompletionMessage {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.RecentHistory)+2)
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: s.systemPrompt.String(),
	})

	for _, msg := range req.RecentHistory {
		if msg.Role != openai.ChatMessageRoleUser && msg.Role != openai.ChatMessageRoleAssistant {
			continue
		}
		text, ok := msg.Text()
		if !ok || text == "" {
			continue
		}
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    msg.Role,
			Content: text,
		})
	}

	return append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.UserMessageContent,
	})
}

func (s *Implementation) request(messages []openai.ChatCompletionMessage, streaming bool) openai.ChatCompletionRequest {
	req := openai.ChatCompletionRequest{
		Model:       s.config.Model,
		Messages:    messages,
		Temperature: s.config.Temperature,
		MaxTokens:   s.config.MaxTokens,
		Stream:      streaming,
	}
	if s.toolService != nil && s.toolExecutor != nil {
		req.Tools = s.toolService.GetTools()
	}
	return req
}

func (s *Implementation) StreamChat(ctx context.Context, req models.ChatRequest, emit Emitter) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	log := logger.For(logger.CHAT)
	messages := s.buildMessages(req)

	log.Debug().Int("message_count", len(messages)).Msg("Streaming chat completion")

	for round := 0; round < maxToolRounds; round++ {
		content, calls, err := s.streamRound(ctx, messages, emit)
		if err != nil {
			return err
		}

		if len(calls) == 0 {
			log.Debug().Int("rounds", round+1).Msg("Chat completion finished")
			return nil
		}

		if err := emit(stream.Payload{Role: openai.ChatMessageRoleAssistant, ToolCalls: toStreamCalls(calls)}); err != nil {
			return err
		}

		messages = append(messages, openai.ChatCompletionMessage{
			Role:      openai.ChatMessageRoleAssistant,
			Content:   content,
			ToolCalls: calls,
		})

		results, err := s.toolExecutor.ExecuteAll(ctx, calls)
		if err != nil {
			log.Error().Err(err).Msg("Tool execution failed")
			return err
		}

		for _, result := range results {
			if err := emit(stream.Payload{
				Role:       openai.ChatMessageRoleTool,
				Content:    result.Content,
				ToolCallID: result.ToolCallID,
				Name:       result.Name,
			}); err != nil {
				return err
			}
			messages = append(messages, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    string(result.Content),
				ToolCallID: result.ToolCallID,
				Name:       result.Name,
			})
		}
	}

	log.Warn().Int("rounds", maxToolRounds).Msg("Giving up after repeated tool calls")
	return ErrTooManyToolRounds
}

// streamRound runs one completion, forwarding text deltas as they arrive
// and assembling tool calls from their fragments.
func (s *Implementation) streamRound(
	ctx context.Context,
	messages []openai.ChatCompletionMessage,
	emit Emitter,
) (string, []openai.ToolCall, error) {
	resp, err := s.client.CreateChatCompletionStream(ctx, s.request(messages, true))
	if err != nil {
		return "", nil, fmt.Errorf("failed to start chat completion: %w", err)
	}
	defer resp.Close()

	var content strings.Builder
	var calls []openai.ToolCall

	for {
		chunk, err := resp.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", nil, fmt.Errorf("chat completion stream failed: %w", err)
		}
		if len(chunk.Choices) == 0 {
			continue
		}

		delta := chunk.Choices[0].Delta
		if delta.Content != "" {
			content.WriteString(delta.Content)
			if err := emit(stream.Payload{Role: openai.ChatMessageRoleAssistant, Content: delta.Content}); err != nil {
				return "", nil, err
			}
		}

		for _, fragment := range delta.ToolCalls {
			calls = mergeToolCall(calls, fragment)
		}
	}

	return content.String(), calls, nil
}

// mergeToolCall folds a streamed fragment into the call at its index.
func mergeToolCall(calls []openai.ToolCall, fragment openai.ToolCall) []openai.ToolCall {
	idx := len(calls) - 1
	if fragment.Index != nil {
		idx = *fragment.Index
	} else if fragment.ID != "" || idx < 0 {
		idx = len(calls)
	}

	for len(calls) <= idx {
		calls = append(calls, openai.ToolCall{Type: openai.ToolTypeFunction})
	}

	call := &calls[idx]
	if fragment.ID != "" {
		call.ID = fragment.ID
	}
	if fragment.Type != "" {
		call.Type = fragment.Type
	}
	call.Function.Name += fragment.Function.Name
	call.Function.Arguments += fragment.Function.Arguments
	return calls
}

func toStreamCalls(calls []openai.ToolCall) []stream.ToolCall {
	out := make([]stream.ToolCall, len(calls))
	for i, call := range calls {
		out[i] = stream.ToolCall{
			ID:   call.ID,
			Type: string(call.Type),
			Function: stream.FunctionCall{
				Name:      call.Function.Name,
				Arguments: call.Function.Arguments,
			},
		}
	}
	return out
}

func (s *Implementation) CompleteChat(ctx context.Context, req models.ChatRequest) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	log := logger.For(logger.CHAT)
	messages := s.buildMessages(req)

	for round := 0; round < maxToolRounds; round++ {
		resp, err := s.client.CreateChatCompletion(ctx, s.request(messages, false))
		if err != nil {
			log.Error().Err(err).Msg("Failed to get chat completion")
			return "", fmt.Errorf("failed to get chat completion: %w", err)
		}

		if len(resp.Choices) == 0 {
			return "", fmt.Errorf("no response choices returned")
		}

		message := resp.Choices[0].Message
		if len(message.ToolCalls) == 0 {
			return message.Content, nil
		}

		messages = append(messages, message)

		results, err := s.toolExecutor.ExecuteAll(ctx, message.ToolCalls)
		if err != nil {
			return "", err
		}
		for _, result := range results {
			messages = append(messages, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    string(result.Content),
				ToolCallID: result.ToolCallID,
				Name:       result.Name,
			})
		}
	}

	return "", ErrTooManyToolRounds
}
