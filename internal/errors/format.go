package errors

import (
	"encoding/json"
	"net/http"
)

// ErrorFormat selects which client protocol's error envelope an APIError
// is rendered in.
type ErrorFormat int

const (
	FormatOpenAI ErrorFormat = iota
	FormatAnthropic
	FormatGemini
)

// ToJSON renders the error in the given protocol's envelope.
func (e *APIError) ToJSON(format ErrorFormat) ([]byte, error) {
	switch format {
	case FormatAnthropic:
		return e.toAnthropicJSON()
	case FormatGemini:
		return e.toGeminiJSON()
	default:
		return e.toOpenAIJSON()
	}
}

func (e *APIError) toOpenAIJSON() ([]byte, error) {
	body := map[string]interface{}{
		"message": e.Message,
		"type":    e.Type,
		"code":    e.Code,
	}
	if e.RetryAfterSec > 0 {
		body["retry_after"] = e.RetryAfterSec
	}
	return json.Marshal(map[string]interface{}{"error": body})
}

func (e *APIError) toAnthropicJSON() ([]byte, error) {
	return json.Marshal(map[string]interface{}{
		"type": "error",
		"error": map[string]interface{}{
			"type":    e.anthropicType(),
			"message": e.Message,
		},
	})
}

func (e *APIError) anthropicType() string {
	switch e.HTTPStatus {
	case http.StatusBadRequest, http.StatusRequestEntityTooLarge:
		return "invalid_request_error"
	case http.StatusUnauthorized:
		return "authentication_error"
	case http.StatusForbidden:
		return "permission_error"
	case http.StatusNotFound:
		return "not_found_error"
	case http.StatusTooManyRequests:
		return "rate_limit_error"
	case 529:
		return "overloaded_error"
	default:
		return "api_error"
	}
}

func (e *APIError) toGeminiJSON() ([]byte, error) {
	return json.Marshal(map[string]interface{}{
		"error": map[string]interface{}{
			"code":    e.HTTPStatus,
			"message": e.Message,
			"status":  e.geminiStatus(),
		},
	})
}

func (e *APIError) geminiStatus() string {
	switch e.HTTPStatus {
	case http.StatusBadRequest, http.StatusRequestEntityTooLarge:
		return "INVALID_ARGUMENT"
	case http.StatusUnauthorized:
		return "UNAUTHENTICATED"
	case http.StatusForbidden:
		return "PERMISSION_DENIED"
	case http.StatusNotFound:
		return "NOT_FOUND"
	case http.StatusTooManyRequests:
		return "RESOURCE_EXHAUSTED"
	case http.StatusServiceUnavailable, 529:
		return "UNAVAILABLE"
	default:
		return "INTERNAL"
	}
}
