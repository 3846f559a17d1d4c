package config

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
)

//go:embed tools.json
var defaultToolsJSON []byte

type ToolDefinition struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"`
}

type ToolsConfig struct {
	Tools []ToolDefinition `json:"tools"`
}

// GetToolsConfigPath returns an optional override for the embedded tool definitions
func GetToolsConfigPath() string {
	return GetEnvOrDefault("TOOLS_CONFIG_PATH", "")
}

// LoadToolsConfig reads tool definitions from configPath, or the embedded
// defaults when configPath is empty.
func LoadToolsConfig(configPath string) (*ToolsConfig, error) {
	data := defaultToolsJSON
	if configPath != "" {
		var err error
		data, err = os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read tools config: %w", err)
		}
	}

	var config ToolsConfig
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse tools config: %w", err)
	}

	return &config, nil
}
