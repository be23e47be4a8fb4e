// Package openai implements llmrelay.Provider for the OpenAI-compatible chat completions
// family: OpenAI, Mistral, DeepSeek, Qwen, xAI, Groq and LM Studio.
//
// Model-family quirks are normalized here: the token limit field, fixed temperature for
// reasoning models, gpt-5 reasoning parameters and whether native JSON mode
// (response_format json_object) is sent. Providers without native JSON mode rely on the
// textual schema added by package prompt.
package openai
