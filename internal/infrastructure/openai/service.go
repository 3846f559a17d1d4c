package openai

import (
	"sync"

	"github.com/openrufus/rufus/internal/config"
	"github.com/rs/zerolog/log"
	"github.com/sashabaranov/go-openai"
)

type Service struct {
	mu     sync.RWMutex
	client *openai.Client
}

// NewService returns nil when no API key is configured.
func NewService() *Service {
	log.Info().Msg("Initialising OpenAI service")
	key := config.GetOpenAIKey()

	if key == "" {
		log.Warn().Msg("OpenAI service not configured - OPENAI_KEY missing")
		return nil
	}

	return NewServiceWithConfig(key, config.GetOpenAIBaseURL())
}

// NewServiceWithConfig builds a client against baseURL, or the public API
// when baseURL is empty.
func NewServiceWithConfig(key, baseURL string) *Service {
	cfg := openai.DefaultConfig(key)
	if baseURL != "" {
		cfg.BaseURL = baseURL
		log.Info().Str("base_url", baseURL).Msg("Using custom OpenAI base URL")
	}

	return &Service{
		client: openai.NewClientWithConfig(cfg),
	}
}

func (s *Service) GetClient() *openai.Client {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.client
}
