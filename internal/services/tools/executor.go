package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/openrufus/rufus/internal/infrastructure/itemsearch"
	"github.com/openrufus/rufus/internal/logger"
	"github.com/openrufus/rufus/internal/services/tools/models"
	"github.com/sashabaranov/go-openai"
	"golang.org/x/sync/errgroup"
)

const ItemSearchTool = "item_search"

// Result is the outcome of one tool call, ready to be sent to the client
// and fed back to the model.
type Result struct {
	ToolCallID string
	Name       string
	Content    json.RawMessage
}

type ToolExecutor struct {
	itemSearch *itemsearch.Service
	cache      Cache
	ttl        time.Duration
}

func NewToolExecutor(itemSearch *itemsearch.Service, cache Cache, ttl time.Duration) *ToolExecutor {
	if cache == nil {
		cache = NewMemoryCache()
	}
	return &ToolExecutor{
		itemSearch: itemSearch,
		cache:      cache,
		ttl:        ttl,
	}
}

// ExecuteToolCall runs one tool and returns its raw JSON result.
func (e *ToolExecutor) ExecuteToolCall(ctx context.Context, tool openai.ToolCall) (json.RawMessage, error) {
	log := logger.For(logger.TOOLS)
	log.Info().Str("tool", tool.Function.Name).Str("tool_call_id", tool.ID).Msg("Executing tool call")

	if tool.Type != "" && tool.Type != openai.ToolTypeFunction {
		return nil, fmt.Errorf("unsupported tool type %q", tool.Type)
	}

	switch tool.Function.Name {
	case ItemSearchTool:
		var params models.ItemSearchParams
		if err := json.Unmarshal([]byte(tool.Function.Arguments), &params); err != nil {
			log.Error().Err(err).Str("arguments", tool.Function.Arguments).Msg("Failed to parse item search parameters")
			return nil, fmt.Errorf("invalid parameters: %w", err)
		}
		return e.searchItems(ctx, params)

	default:
		return nil, fmt.Errorf("unknown function: %s", tool.Function.Name)
	}
}

// ExecuteAll runs calls concurrently and returns results in call order.
func (e *ToolExecutor) ExecuteAll(ctx context.Context, calls []openai.ToolCall) ([]Result, error) {
	results := make([]Result, len(calls))

	g, gctx := errgroup.WithContext(ctx)
	for i, call := range calls {
		g.Go(func() error {
			content, err := e.ExecuteToolCall(gctx, call)
			if err != nil {
				return fmt.Errorf("tool %s failed: %w", call.Function.Name, err)
			}
			results[i] = Result{
				ToolCallID: call.ID,
				Name:       call.Function.Name,
				Content:    content,
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (e *ToolExecutor) searchItems(ctx context.Context, params models.ItemSearchParams) (json.RawMessage, error) {
	if e.itemSearch == nil {
		return nil, fmt.Errorf("item search is not available")
	}

	log := logger.For(logger.TOOLS)
	key := ItemSearchTool + ":" + strings.ToLower(params.Name) + ":" + strings.ToUpper(params.Category)

	if cached, ok, err := e.cache.Get(ctx, key); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Tool cache lookup failed")
	} else if ok {
		log.Debug().Str("key", key).Msg("Tool cache hit")
		return cached, nil
	}

	result, err := e.itemSearch.Search(ctx, itemsearch.Query{Name: params.Name, Category: params.Category})
	if err != nil {
		return nil, fmt.Errorf("item search failed: %w", err)
	}

	// Empty results may be upstream failures; don't pin them.
	if string(result) == "[]" {
		return result, nil
	}
	if err := e.cache.Set(ctx, key, result, e.ttl); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Tool cache store failed")
	}

	return result, nil
}
