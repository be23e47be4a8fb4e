// Package ollama implements llmrelay.Provider for a local Ollama server (POST /api/chat,
// non-streaming). An API key is optional and sent as a bearer token when set, for
// servers placed behind an authenticating reverse proxy.
package ollama
