package httpext

import (
	"encoding/json"
	"net/http"

	"github.com/openrufus/rufus/internal/logger"
)

// ErrorResponse is the JSON body of every non-2xx API response.
type ErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
	ErrorURI         string `json:"error_uri,omitempty"`
}

// Message returns the most specific human readable text in the response.
func (e ErrorResponse) Message() string {
	if e.ErrorDescription != "" {
		return e.Error + ": " + e.ErrorDescription
	}
	return e.Error
}

// ParseError decodes an error body. It reports false when the body is not
// a JSON error object.
func ParseError(body []byte) (ErrorResponse, bool) {
	var resp ErrorResponse
	if err := json.Unmarshal(body, &resp); err != nil || resp.Error == "" {
		return ErrorResponse{}, false
	}
	return resp, true
}

// JsonError writes a JSON error response with the specified status code
func JsonError(w http.ResponseWriter, message string, code int) {
	JsonErrorWithDetails(w, code, ErrorResponse{Error: message})
}

// JsonErrorWithDetails writes a JSON error response carrying an optional
// description and URI.
func JsonErrorWithDetails(w http.ResponseWriter, code int, resp ErrorResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log := logger.For(logger.HANDLER)
		log.Error().Err(err).Int("status", code).Msg("Failed to encode error response")
	}
}
