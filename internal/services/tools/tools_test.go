package tools

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/openrufus/rufus/internal/infrastructure/itemsearch"
	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func itemCall(id, args string) openai.ToolCall {
	return openai.ToolCall{
		ID:   id,
		Type: openai.ToolTypeFunction,
		Function: openai.FunctionCall{
			Name:      ItemSearchTool,
			Arguments: args,
		},
	}
}

func TestNewService(t *testing.T) {
	svc, err := NewService("", itemsearch.NewServiceWithConfig("", ""))
	require.NoError(t, err)

	tools := svc.GetTools()
	require.Len(t, tools, 1)
	assert.Equal(t, openai.ToolTypeFunction, tools[0].Type)
	assert.Equal(t, ItemSearchTool, tools[0].Function.Name)
	assert.NotEmpty(t, tools[0].Function.Description)

	svc, err = NewService("", nil)
	require.NoError(t, err)
	assert.Empty(t, svc.GetTools())

	_, err = NewService("does/not/exist.json", nil)
	assert.Error(t, err)
}

func TestExecuteToolCall(t *testing.T) {
	executor := NewToolExecutor(itemsearch.NewServiceWithConfig("", ""), NewMemoryCache(), time.Minute)

	tests := []struct {
		name    string
		call    openai.ToolCall
		wantErr string
	}{
		{name: "item search", call: itemCall("c1", `{"name":"jeans","category":"apparel"}`)},
		{name: "bad arguments", call: itemCall("c2", `{"name":`), wantErr: "invalid parameters"},
		{
			name:    "unknown function",
			call:    openai.ToolCall{ID: "c3", Type: openai.ToolTypeFunction, Function: openai.FunctionCall{Name: "nope"}},
			wantErr: "unknown function: nope",
		},
		{
			name:    "unsupported type",
			call:    openai.ToolCall{ID: "c4", Type: "retrieval", Function: openai.FunctionCall{Name: ItemSearchTool}},
			wantErr: "unsupported tool type",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := executor.ExecuteToolCall(context.Background(), tt.call)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)

			var items []itemsearch.Item
			require.NoError(t, json.Unmarshal(got, &items))
			assert.Len(t, items, len(itemsearch.SampleCatalog))
		})
	}
}

func TestExecuteToolCallUsesCache(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(`{"content":[{"id":9}]}`))
	}))
	defer srv.Close()

	executor := NewToolExecutor(itemsearch.NewServiceWithConfig(srv.URL, ""), NewMemoryCache(), time.Minute)

	for range 3 {
		got, err := executor.ExecuteToolCall(context.Background(), itemCall("c", `{"name":"Cap","category":"accessories"}`))
		require.NoError(t, err)
		assert.JSONEq(t, `[{"id":9}]`, string(got))
	}
	assert.Equal(t, int32(1), hits.Load())
}

func TestExecuteToolCallSkipsCachingEmptyResults(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	executor := NewToolExecutor(itemsearch.NewServiceWithConfig(srv.URL, ""), nil, time.Minute)

	for range 2 {
		got, err := executor.ExecuteToolCall(context.Background(), itemCall("c", `{"name":"x","category":"y"}`))
		require.NoError(t, err)
		assert.JSONEq(t, `[]`, string(got))
	}
	assert.Equal(t, int32(2), hits.Load())
}

func TestExecuteAllKeepsOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("name") == "slow" {
			time.Sleep(30 * time.Millisecond)
		}
		_, _ = w.Write([]byte(`{"content":[{"name":"` + r.URL.Query().Get("name") + `"}]}`))
	}))
	defer srv.Close()

	executor := NewToolExecutor(itemsearch.NewServiceWithConfig(srv.URL, ""), nil, 0)

	results, err := executor.ExecuteAll(context.Background(), []openai.ToolCall{
		itemCall("a", `{"name":"slow","category":"c"}`),
		itemCall("b", `{"name":"fast","category":"c"}`),
	})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].ToolCallID)
	assert.JSONEq(t, `[{"name":"slow"}]`, string(results[0].Content))
	assert.Equal(t, "b", results[1].ToolCallID)
	assert.Equal(t, ItemSearchTool, results[1].Name)

	_, err = executor.ExecuteAll(context.Background(), []openai.ToolCall{itemCall("x", `nope`)})
	assert.Error(t, err)
}

func TestMemoryCacheExpiry(t *testing.T) {
	cache := NewMemoryCache()
	now := time.Unix(1000, 0)
	cache.now = func() time.Time { return now }

	ctx := context.Background()
	require.NoError(t, cache.Set(ctx, "k", json.RawMessage(`[1]`), time.Minute))
	require.NoError(t, cache.Set(ctx, "forever", json.RawMessage(`[2]`), 0))

	got, ok, err := cache.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.JSONEq(t, `[1]`, string(got))

	now = now.Add(time.Minute)
	_, ok, err = cache.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, _ = cache.Get(ctx, "forever")
	assert.True(t, ok)

	_, ok, _ = cache.Get(ctx, "missing")
	assert.False(t, ok)
}

func TestNewCacheFallsBackToMemory(t *testing.T) {
	_, ok := NewCache(nil).(*MemoryCache)
	assert.True(t, ok)
}
