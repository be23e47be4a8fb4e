// Package anthropic implements llmrelay.Provider for the Anthropic Messages API.
//
// The system instruction travels in the dedicated "system" field, never as a message.
// Anthropic has no native JSON mode: the textual schema added by the prompt compiler
// is the only steering, so responses always go through jsonrepair.
//
// Browsers cannot call the API directly; pass an *http.Client built from
// transport.Router.RoundTripper with WithHTTPClient to route through a proxy.
package anthropic
