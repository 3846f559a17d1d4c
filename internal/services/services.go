package services

import (
	"fmt"
	"sync"

	"github.com/openrufus/rufus/internal/config"
	"github.com/openrufus/rufus/internal/infrastructure/itemsearch"
	"github.com/openrufus/rufus/internal/infrastructure/openai"
	"github.com/openrufus/rufus/internal/infrastructure/redis"
	"github.com/openrufus/rufus/internal/services/chat"
	"github.com/openrufus/rufus/internal/services/chat/models"
	"github.com/openrufus/rufus/internal/services/tools"
	"github.com/rs/zerolog/log"
)

var (
	// Mutex for thread-safe initialization
	servicesMu sync.RWMutex
)

type Services struct {
	chatService       *chat.Implementation
	itemSearchService *itemsearch.Service
	openAIService     *openai.Service
	redisService      *redis.Service
	toolService       *tools.Service
	toolExecutor      *tools.ToolExecutor
}

// InitializeServices initializes all required services
func InitializeServices() (*Services, error) {
	servicesMu.Lock()
	defer servicesMu.Unlock()

	log.Info().Msg("Initializing core services")

	// Redis is optional; tool results are cached in memory without it
	redisService := redis.NewService()
	cache := tools.NewCache(redisService)
	log.Info().Bool("redis", redisService != nil).Msg("Initialized tool cache")

	itemSearchService := itemsearch.NewService()

	toolService, err := tools.NewService(config.GetToolsConfigPath(), itemSearchService)
	if err != nil {
		log.Error().Err(err).Msg("Failed to load tool definitions")
		return nil, fmt.Errorf("failed to initialize tool service: %w", err)
	}
	toolExecutor := tools.NewToolExecutor(itemSearchService, cache, config.GetItemCacheTTL())
	log.Info().Msg("Initialized tool service")

	openAIService := openai.NewService()
	if openAIService == nil {
		return nil, fmt.Errorf("OpenAI service is required - set OPENAI_KEY")
	}

	chatService, err := chat.NewService(openAIService, toolService, toolExecutor, models.ChatConfig{
		Model:       config.GetModelID(),
		Temperature: config.GetModelTemperature(),
		MaxTokens:   config.GetModelMaxTokens(),
	})
	if err != nil {
		log.Error().Err(err).Msg("Failed to initialize chat service - required for message processing")
		return nil, fmt.Errorf("failed to initialize chat service: %w", err)
	}
	log.Info().Str("model", config.GetModelID()).Msg("Initialized chat service")

	log.Info().Msg("All services initialized successfully")

	return &Services{
		chatService:       chatService,
		itemSearchService: itemSearchService,
		openAIService:     openAIService,
		redisService:      redisService,
		toolService:       toolService,
		toolExecutor:      toolExecutor,
	}, nil
}

// GetChatService returns the chat service
func (s *Services) GetChatService() chat.Service {
	return s.chatService
}

// GetToolService returns the tool service
func (s *Services) GetToolService() *tools.Service {
	return s.toolService
}

// Close releases connections held by the services.
func (s *Services) Close() error {
	if s.redisService != nil {
		return s.redisService.Close()
	}
	return nil
}
