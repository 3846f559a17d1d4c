package tools

import (
	"sync"

	"github.com/openrufus/rufus/internal/config"
	"github.com/openrufus/rufus/internal/infrastructure/itemsearch"
	"github.com/openrufus/rufus/internal/logger"
	"github.com/sashabaranov/go-openai"
)

// Service holds the tool definitions advertised to the model.
type Service struct {
	tools []openai.Tool
	mu    sync.RWMutex
}

// NewService loads definitions from configPath (embedded defaults when
// empty) and keeps the ones whose backing service is available.
func NewService(configPath string, itemSearch *itemsearch.Service) (*Service, error) {
	log := logger.For(logger.TOOLS)

	toolsConfig, err := config.LoadToolsConfig(configPath)
	if err != nil {
		return nil, err
	}

	var tools []openai.Tool
	for _, toolDef := range toolsConfig.Tools {
		switch toolDef.Name {
		case ItemSearchTool:
			if itemSearch == nil {
				log.Warn().Str("tool", toolDef.Name).Msg("Skipping tool without a backing service")
				continue
			}
		default:
			log.Warn().Str("tool", toolDef.Name).Msg("Skipping unknown tool definition")
			continue
		}

		tools = append(tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        toolDef.Name,
				Description: toolDef.Description,
				Parameters:  toolDef.Parameters,
			},
		})
	}

	log.Info().Int("count", len(tools)).Msg("Loaded tool definitions")

	return &Service{
		tools: tools,
	}, nil
}

func (s *Service) GetTools() []openai.Tool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tools
}
