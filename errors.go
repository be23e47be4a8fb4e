package llmrelay

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors of the invocation layer.
// All use prefix "llmrelay:" for identification. Callers should use errors.Is/errors.As.
var (
	ErrConfiguration       = errors.New("llmrelay: provider is not configured")
	ErrAuthentication      = errors.New("llmrelay: provider rejected the credentials")
	ErrRateLimited         = errors.New("llmrelay: provider rate limit reached")
	ErrTransport           = errors.New("llmrelay: network failure or timeout")
	ErrEmptyResponse       = errors.New("llmrelay: provider returned an empty response")
	ErrMalformedJSON       = errors.New("llmrelay: response does not contain valid JSON")
	ErrValidation          = errors.New("llmrelay: response failed validation")
	ErrProvider            = errors.New("llmrelay: provider request failed")
	ErrUnsupportedProvider = errors.New("llmrelay: unsupported provider")
	ErrProxyUnavailable    = errors.New("llmrelay: CORS proxy unavailable")
)

// ConfigurationError reports missing or invalid provider settings. It is fatal: no retry.
type ConfigurationError struct {
	Provider ProviderID
	Problems []string
	Err      error // optional cause, e.g. ErrProxyUnavailable
}

// Error implements error.
func (e *ConfigurationError) Error() string {
	var b strings.Builder
	b.WriteString("llmrelay: ")
	if e.Provider != "" {
		fmt.Fprintf(&b, "provider %s is not usable", e.Provider.DisplayName())
	} else {
		b.WriteString("invalid configuration")
	}
	if len(e.Problems) > 0 {
		b.WriteString(": ")
		b.WriteString(strings.Join(e.Problems, "; "))
	}
	return b.String()
}

// Unwrap exposes ErrConfiguration and the optional cause.
func (e *ConfigurationError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrConfiguration}
	}
	return []error{ErrConfiguration, e.Err}
}

// ProviderError is a non-2xx answer (or transport failure) annotated with provider context.
// Kind is one of ErrAuthentication, ErrRateLimited, ErrTransport or ErrProvider.
type ProviderError struct {
	Provider   ProviderID
	StatusCode int    // 0 when no HTTP response was received
	Message    string // provider-supplied message when decodable
	Kind       error
	Cause      error
}

// Error implements error. The message names the provider and suggests a fix.
func (e *ProviderError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "llmrelay: %s request failed", e.Provider.DisplayName())
	if e.StatusCode > 0 {
		fmt.Fprintf(&b, " with status %d", e.StatusCode)
	}
	switch {
	case e.Message != "":
		b.WriteString(": ")
		b.WriteString(e.Message)
	case e.Cause != nil:
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	if hint := e.hint(); hint != "" {
		fmt.Fprintf(&b, " (%s)", hint)
	}
	return b.String()
}

func (e *ProviderError) hint() string {
	switch {
	case errors.Is(e.Kind, ErrAuthentication):
		return "check the API key in the provider settings"
	case errors.Is(e.Kind, ErrRateLimited):
		return "rate limit reached, wait a moment and try again"
	case errors.Is(e.Kind, ErrTransport):
		return "check the network connection or the provider base URL"
	case e.StatusCode >= 500:
		return "provider-side error, try again later"
	}
	return ""
}

// HTTPStatus returns the HTTP status code (0 when unknown).
func (e *ProviderError) HTTPStatus() int { return e.StatusCode }

// Unwrap exposes the kind sentinel and the underlying cause.
func (e *ProviderError) Unwrap() []error {
	kind := e.Kind
	if kind == nil {
		kind = ErrProvider
	}
	if e.Cause == nil {
		return []error{kind}
	}
	return []error{kind, e.Cause}
}

// EmptyResponseError reports a completion without content together with the
// provider-stated finish reason, so callers can tell a refusal from a token limit.
type EmptyResponseError struct {
	Provider     ProviderID
	FinishReason string
}

// Error implements error.
func (e *EmptyResponseError) Error() string {
	msg := fmt.Sprintf("llmrelay: %s returned an empty response", e.Provider.DisplayName())
	if e.FinishReason != "" {
		msg += fmt.Sprintf(" (finish reason %q)", e.FinishReason)
	}
	return msg + ": " + e.Remediation()
}

// Remediation returns a plain-language suggestion based on the finish reason.
func (e *EmptyResponseError) Remediation() string {
	switch strings.ToLower(e.FinishReason) {
	case "content_filter", "safety", "refusal", "recitation", "blocklist", "prohibited_content", "spii":
		return "the provider refused the content, rephrase the request"
	case "length", "max_tokens":
		return "the token limit was reached, raise the limit or simplify the prompt"
	case "tool_calls":
		return "the model answered with a tool call instead of text"
	case "", "stop", "end_turn":
		return "the provider gave no explanation, try again or switch model"
	default:
		return "unexpected finish reason, check the request parameters"
	}
}

// Unwrap returns ErrEmptyResponse.
func (e *EmptyResponseError) Unwrap() error { return ErrEmptyResponse }

// MalformedJSONError reports that every extraction candidate failed to parse.
type MalformedJSONError struct {
	Provider  ProviderID
	Truncated bool   // text looks like a JSON object cut short
	Excerpt   string // first characters of the text for non-JSON answers
}

// Error implements error.
func (e *MalformedJSONError) Error() string {
	if e.Truncated {
		return fmt.Sprintf("llmrelay: %s returned truncated JSON: the answer looks valid but incomplete, "+
			"reduce the prompt complexity or increase the token limit", e.Provider.DisplayName())
	}
	return fmt.Sprintf("llmrelay: %s did not return JSON: %q", e.Provider.DisplayName(), e.Excerpt)
}

// Unwrap returns ErrMalformedJSON.
func (e *MalformedJSONError) Unwrap() error { return ErrMalformedJSON }

// ValidationError lists the domain post-conditions a parsed response failed.
// Attempts is set when the self-critique budget was exhausted.
type ValidationError struct {
	Issues   []string
	Attempts int
}

// Error implements error.
func (e *ValidationError) Error() string {
	var b strings.Builder
	b.WriteString("llmrelay: response failed validation")
	if e.Attempts > 0 {
		fmt.Fprintf(&b, " after %d attempts", e.Attempts)
	}
	if len(e.Issues) > 0 {
		b.WriteString(": ")
		b.WriteString(strings.Join(e.Issues, "; "))
	}
	return b.String()
}

// Unwrap returns ErrValidation.
func (e *ValidationError) Unwrap() error { return ErrValidation }

// UserMessage returns the message suitable for end users: the most specific typed error
// in the chain, without the package prefix. Wrapping context added by callers is dropped.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var (
		ce  *ConfigurationError
		pe  *ProviderError
		ee  *EmptyResponseError
		me  *MalformedJSONError
		ve  *ValidationError
		msg = err.Error()
	)
	switch {
	case errors.As(err, &ce):
		msg = ce.Error()
	case errors.As(err, &pe):
		msg = pe.Error()
	case errors.As(err, &ee):
		msg = ee.Error()
	case errors.As(err, &me):
		msg = me.Error()
	case errors.As(err, &ve):
		msg = ve.Error()
	}
	return strings.TrimPrefix(msg, "llmrelay: ")
}

var errorKinds = []struct {
	target error
	name   string
}{
	{ErrConfiguration, "configuration"},
	{ErrAuthentication, "authentication"},
	{ErrRateLimited, "rate_limited"},
	{ErrTransport, "transport"},
	{ErrEmptyResponse, "empty_response"},
	{ErrMalformedJSON, "malformed_json"},
	{ErrValidation, "validation"},
	{context.Canceled, "canceled"},
	{context.DeadlineExceeded, "deadline_exceeded"},
}

// ErrorKind returns a stable, low-cardinality label for err, suitable for metrics and
// span attributes: "configuration", "authentication", "rate_limited", "transport",
// "empty_response", "malformed_json", "validation", "canceled", "deadline_exceeded",
// or "provider" for anything else. Nil yields "".
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range errorKinds {
		if errors.Is(err, k.target) {
			return k.name
		}
	}
	return "provider"
}

// Compile-time checks that the typed errors implement error.
var (
	_ error = (*ConfigurationError)(nil)
	_ error = (*ProviderError)(nil)
	_ error = (*EmptyResponseError)(nil)
	_ error = (*MalformedJSONError)(nil)
	_ error = (*ValidationError)(nil)
)
