// Package llmrelay is a resilient invocation layer for ten LLM providers.
// It turns a request ("generate JSON matching this schema") into the provider's
// wire call, routes restricted providers through a proxy when required, and turns
// frequently malformed model output back into validated structured data.
//
// The root package holds the shared vocabulary: provider ids and configs, the
// Provider contract, request/response types and the error taxonomy. Concrete
// adapters live under adapter/, the call pipeline under service/.
package llmrelay
