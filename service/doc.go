// Package service is the llmrelay invocation layer: it owns the adapter cache and runs
// the call pipeline
//
//	prompt.Compile → retry → transport router → adapter → jsonrepair → validate
//
// with the self-critique loop on top for callers that supply a post-condition checker.
//
// The Service reads configuration from a ConfigSource (configstore.Store satisfies it)
// and subscribes to its changes at construction. A change to the active provider, model,
// credentials or options invalidates every cached adapter; the next call builds a fresh
// one. Calls may run concurrently; the layer imposes no serialization. Batches that
// should be spaced to stay under provider rate limits use Sequence.
package service
