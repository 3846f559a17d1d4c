package config

import "time"

func GetPort() string {
	return GetEnvOrDefault("PORT", "8000")
}

func GetEnvironment() string {
	return GetEnvOrDefault("ENVIRONMENT", "local")
}

func GetLogLevel() string {
	return GetEnvOrDefault("LOG_LEVEL", "info")
}

// GetOpenAIKey returns the current OpenAI key
func GetOpenAIKey() string {
	value := GetEnvOrDefault("OPENAI_KEY", "")
	if value == "" {
		value = GetEnvOrDefault("OPENAI_API_KEY", "")
	}
	return value
}

// GetOpenAIBaseURL returns an optional override for the OpenAI API endpoint
func GetOpenAIBaseURL() string {
	return GetEnvOrDefault("OPENAI_BASE_URL", "")
}

func GetModelID() string {
	return GetEnvOrDefault("MODEL_ID", "gpt-4o-mini")
}

func GetModelTemperature() float32 {
	return parseEnvFloat("MODEL_TEMPERATURE", 0.3)
}

func GetModelMaxTokens() int {
	return parseEnvInt("MODEL_MAX_TOKENS", 1024*2)
}

func GetItemSearchAPIURL() string {
	return GetEnvOrDefault("ITEM_SEARCH_API_URL", "")
}

func GetItemSearchAPIKey() string {
	return GetEnvOrDefault("ITEM_SEARCH_API_KEY", "")
}

func GetRedisURL() string {
	return GetEnvOrDefault("REDIS_URL", "")
}

func GetRedisPassword() string {
	return GetEnvOrDefault("REDIS_PASSWORD", "")
}

// GetItemCacheTTL returns how long item search results stay cached
func GetItemCacheTTL() time.Duration {
	return parseEnvDuration("ITEM_CACHE_TTL", 10*time.Minute)
}
