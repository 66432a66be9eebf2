// Package errors defines the proxy's error taxonomy and the three wire
// encodings client protocols expect. Every error a handler returns is an
// *APIError; the HTTP status decides retry behavior in the pipeline and
// the client's path decides which JSON shape it is rendered in.
package errors

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// APIError is the single error currency of the request path.
type APIError struct {
	HTTPStatus int
	Code       string
	Type       string
	Message    string
	// RetryAfterSec is surfaced to the client on rate-limit responses.
	RetryAfterSec int
}

// New constructs an APIError.
func New(status int, code, typ, message string) *APIError {
	return &APIError{HTTPStatus: status, Code: code, Type: typ, Message: message}
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s (%d): %s", e.Code, e.HTTPStatus, e.Message)
}

// WithMessage returns a copy with the message replaced.
func (e *APIError) WithMessage(message string) *APIError {
	clone := *e
	clone.Message = message
	return &clone
}

// WithRetryAfter returns a copy carrying a retry hint.
func (e *APIError) WithRetryAfter(seconds int) *APIError {
	clone := *e
	clone.RetryAfterSec = seconds
	return &clone
}

// Taxonomy sentinels. Upstream-derived errors go through MapHTTPError
// instead, so the upstream message survives.
var (
	// AuthFailed is the client-facing 401 for a bad or missing API key.
	AuthFailed = New(http.StatusUnauthorized, "invalid_api_key", "authentication_error",
		"Invalid or missing API key")

	// UnknownModel: the router found no mapping rule, wildcard, builtin
	// entry, or passthrough prefix for the requested model.
	UnknownModel = New(http.StatusBadRequest, "unknown_model", "invalid_request_error",
		"Unknown model: no mapping rule found")

	// NoEligibleAccount: the eligible set (not disabled, not quarantined,
	// circuit closed, usage_ratio < 1.0) is empty.
	NoEligibleAccount = New(http.StatusServiceUnavailable, "no_eligible_account", "server_error",
		"No eligible credential available for this request")

	// UpstreamOverloaded mirrors Anthropic's 529: retryable, no circuit
	// cost.
	UpstreamOverloaded = New(529, "overloaded_error", "overloaded_error",
		"Upstream is overloaded")

	// ClientCancelled: the client went away mid-request. Never retried.
	ClientCancelled = New(499, "client_cancelled", "invalid_request_error",
		"Client closed the connection")

	// ConfigError: the server cannot act because of its own configuration.
	ConfigError = New(http.StatusInternalServerError, "config_error", "server_error",
		"Server configuration error")
)

// PersistenceError wraps a log-sink or store failure. It never affects a
// request's outcome; callers log it and move on.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence: %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// MapHTTPError converts an upstream HTTP status plus body into the
// client-facing APIError, preserving the upstream message when one can be
// extracted.
func MapHTTPError(statusCode int, upstreamBody []byte) *APIError {
	msg := extractUpstreamMessage(upstreamBody)

	switch statusCode {
	case http.StatusBadRequest:
		return New(statusCode, "invalid_request_error", "invalid_request_error", orDefault(msg, "Invalid request"))
	case http.StatusUnauthorized:
		return New(statusCode, "invalid_api_key", "authentication_error", orDefault(msg, "Invalid authentication"))
	case http.StatusForbidden:
		return New(statusCode, "permission_denied", "permission_error", orDefault(msg, "Permission denied"))
	case http.StatusNotFound:
		return New(statusCode, "not_found", "invalid_request_error", orDefault(msg, "Resource not found"))
	case http.StatusRequestEntityTooLarge:
		return New(statusCode, "request_too_large", "invalid_request_error", orDefault(msg, "Request body too large"))
	case http.StatusTooManyRequests:
		return New(statusCode, "rate_limit_exceeded", "rate_limit_error", orDefault(msg, "Rate limit exceeded")).
			WithRetryAfter(retryAfterFrom(upstreamBody))
	case 529:
		return UpstreamOverloaded.WithMessage(orDefault(msg, UpstreamOverloaded.Message))
	case http.StatusInternalServerError:
		return New(statusCode, "server_error", "server_error", orDefault(msg, "Internal server error"))
	case http.StatusBadGateway:
		return New(statusCode, "bad_gateway", "server_error", orDefault(msg, "Bad gateway"))
	case http.StatusServiceUnavailable:
		return New(statusCode, "service_unavailable", "server_error", orDefault(msg, "Service temporarily unavailable"))
	case http.StatusGatewayTimeout:
		return New(statusCode, "timeout", "timeout_error", orDefault(msg, "Request timeout"))
	default:
		return New(statusCode, "unknown_error", "server_error", orDefault(msg, fmt.Sprintf("HTTP %d error", statusCode)))
	}
}

// TransportError maps a network-level failure (no HTTP status ever
// arrived) to the client-facing 502.
func TransportError(err error) *APIError {
	return New(http.StatusBadGateway, "upstream_unreachable", "api_error", err.Error())
}

func extractUpstreamMessage(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	var payload map[string]interface{}
	if err := json.Unmarshal(body, &payload); err == nil {
		if errObj, ok := payload["error"].(map[string]interface{}); ok {
			if msg, ok := errObj["message"].(string); ok && msg != "" {
				return msg
			}
		}
	}
	msg := string(body)
	if len(msg) > 200 {
		msg = msg[:200] + "..."
	}
	return msg
}

func retryAfterFrom(body []byte) int {
	var payload struct {
		Error struct {
			RetryAfter int `json:"retry_after"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		return payload.Error.RetryAfter
	}
	return 0
}

func orDefault(s, fallback string) string {
	if s != "" {
		return s
	}
	return fallback
}
