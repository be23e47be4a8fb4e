// Package gemini implements llmrelay.Provider for the Google Gemini API via genai.
//
// Requests carry a native responseSchema (simplified, see Simplify) together with the
// application/json MIME type. When a schema-constrained call fails for a reason other
// than credentials, quota or network, GenerateJSON retries once without the native
// schema, embedding it in the system instruction, and reports the original error if
// that also fails.
package gemini
