// Package prompt compiles a generic request into the text sent to a model when a JSON
// answer is expected.
//
// The compiler is provider-agnostic: it appends a raw-JSON-only instruction and the
// indented schema to the user prompt, and extends the system instruction with a format
// reminder exactly once. Adapters with a native structured-output mode still receive the
// textual contract.
package prompt
