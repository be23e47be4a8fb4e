// Package adapter holds what the provider adapters share: request and configuration
// checks, HTTP failure classification, model parameter extraction and the default
// GenerateJSON (GenerateContent followed by JSON extraction). Implementations live in
// provider-specific subpackages.
package adapter
