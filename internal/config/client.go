package config

import (
	"strings"
	"time"
)

// DefaultFirstByteTimeout bounds the wait for the first streamed byte.
const DefaultFirstByteTimeout = 5 * time.Second

// Transport names accepted by CHAT_TRANSPORT.
const (
	TransportHTTP      = "http"
	TransportWebSocket = "ws"
)

// GetChatAPIURL returns the base URL of the chat backend
func GetChatAPIURL() string {
	return strings.TrimSuffix(GetEnvOrDefault("CHAT_API_URL", "http://localhost:8000"), "/")
}

// GetFirstByteTimeout returns how long a session waits for the first byte
func GetFirstByteTimeout() time.Duration {
	return parseEnvDuration("CHAT_FIRST_BYTE_TIMEOUT", DefaultFirstByteTimeout)
}

// GetChatTransport returns the configured client transport, http or ws
func GetChatTransport() string {
	switch strings.ToLower(GetEnvOrDefault("CHAT_TRANSPORT", TransportHTTP)) {
	case TransportWebSocket, "websocket":
		return TransportWebSocket
	default:
		return TransportHTTP
	}
}
