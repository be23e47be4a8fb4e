// Package proxy serves the server side of the transport routes: the same-origin proxy
// a deployed front end posts to (/api/llm-proxy?provider=<id>) and the local companion
// proxy for Anthropic (/api/anthropic/test, /api/anthropic/messages).
//
// The proxy adds the provider's authentication headers, forwards the JSON body
// unchanged and relays the upstream status and body. Keys never appear in logs.
package proxy
