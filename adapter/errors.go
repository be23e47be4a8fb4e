package adapter

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/skosovsky/llmrelay"
)

// StatusKind maps an HTTP status to the taxonomy sentinel. 408 counts as a transport
// timeout; 5xx answers are provider errors and are not retried.
func StatusKind(status int) error {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return llmrelay.ErrAuthentication
	case status == http.StatusTooManyRequests:
		return llmrelay.ErrRateLimited
	case status == http.StatusRequestTimeout:
		return llmrelay.ErrTransport
	default:
		return llmrelay.ErrProvider
	}
}

// NewProviderError builds the error for a non-2xx answer. body is the raw response body;
// its provider message is used when decodable.
func NewProviderError(provider llmrelay.ProviderID, status int, body string, cause error) *llmrelay.ProviderError {
	return &llmrelay.ProviderError{
		Provider:   provider,
		StatusCode: status,
		Message:    DecodeMessage(body),
		Kind:       StatusKind(status),
		Cause:      cause,
	}
}

// RequestError wraps a failure that produced no HTTP status. A configuration error
// raised by the transport (e.g. missing local proxy) is returned as is.
func RequestError(provider llmrelay.ProviderID, err error) error {
	var cfgErr *llmrelay.ConfigurationError
	if errors.As(err, &cfgErr) {
		return cfgErr
	}
	var pe *llmrelay.ProviderError
	if errors.As(err, &pe) {
		return pe
	}
	return &llmrelay.ProviderError{Provider: provider, Kind: llmrelay.ErrTransport, Cause: err}
}

// maxMessageLen caps a provider message carried in errors.
const maxMessageLen = 500

// DecodeMessage extracts a human-readable message from an error body. Recognized shapes:
// {"error":{"message":…}}, {"error":"…"}, {"message":…}, {"detail":…}. Otherwise the
// trimmed body itself, shortened, is returned.
func DecodeMessage(body string) string {
	body = strings.TrimSpace(body)
	if body == "" {
		return ""
	}
	var envelope struct {
		Error   json.RawMessage `json:"error"`
		Message string          `json:"message"`
		Detail  string          `json:"detail"`
	}
	if err := json.Unmarshal([]byte(body), &envelope); err != nil {
		return shorten(body)
	}
	if len(envelope.Error) > 0 {
		var nested struct {
			Message string `json:"message"`
			Code    any    `json:"code"`
		}
		if json.Unmarshal(envelope.Error, &nested) == nil && nested.Message != "" {
			if code, ok := nested.Code.(string); ok && code != "" && !strings.Contains(nested.Message, code) {
				return shorten(code + ": " + nested.Message)
			}
			return shorten(nested.Message)
		}
		var s string
		if json.Unmarshal(envelope.Error, &s) == nil && s != "" {
			return shorten(s)
		}
	}
	if envelope.Message != "" {
		return shorten(envelope.Message)
	}
	if envelope.Detail != "" {
		return shorten(envelope.Detail)
	}
	return shorten(body)
}

func shorten(s string) string {
	if r := []rune(s); len(r) > maxMessageLen {
		return string(r[:maxMessageLen]) + "..."
	}
	return s
}
