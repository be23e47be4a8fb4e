package prompt

import (
	"encoding/json"
	"strings"

	"github.com/skosovsky/llmrelay"
)

// ReminderMarker identifies a system instruction that already carries the format reminder.
const ReminderMarker = "follow these format rules"

const strictInstruction = `IMPORTANT: reply STRICTLY with valid JSON and nothing else.
- Do not start with explanatory text
- Do not end with comments
- Return only the raw JSON, without markdown fences
- Make sure the JSON is well formed and valid`

const reminder = `You MUST ` + ReminderMarker + `:
1. Reply ONLY with valid JSON
2. No text before or after the JSON
3. No explanation or commentary
4. The JSON must be well formed and parsable
5. Match the provided schema exactly when one is given`

const feedbackHeader = "Feedback to address (your previous answer had these problems):"

// UserPrompt appends the JSON-only instruction and, when schema is set, its indented
// rendering.
func UserPrompt(prompt string, schema llmrelay.Schema) string {
	var b strings.Builder
	b.WriteString(prompt)
	b.WriteString("\n\n")
	b.WriteString(strictInstruction)
	if len(schema) == 0 {
		return b.String()
	}
	text, err := RenderSchema(schema)
	if err != nil {
		b.WriteString("\nFollow the provided JSON schema.")
		return b.String()
	}
	b.WriteString("\n\nExpected JSON schema:\n")
	b.WriteString(text)
	b.WriteString("\n\nRespond only with JSON that matches this schema exactly.")
	return b.String()
}

// SystemInstruction extends system with the format reminder. Without a schema system is
// returned as is; when it already contains ReminderMarker it is not extended again.
func SystemInstruction(system string, schema llmrelay.Schema) string {
	switch {
	case len(schema) == 0:
		return system
	case strings.TrimSpace(system) == "":
		return reminder
	case strings.Contains(system, ReminderMarker):
		return system
	}
	return system + "\n\n" + reminder
}

// Compile returns a copy of req with both texts augmented. The user prompt always gets
// the JSON-only instruction; the system instruction only when a schema is present.
func Compile(req llmrelay.Request) llmrelay.Request {
	return req.
		WithUserPrompt(UserPrompt(req.UserPrompt, req.ResponseSchema)).
		WithSystemInstruction(SystemInstruction(req.SystemInstruction, req.ResponseSchema))
}

// WithFeedback appends a block listing issues verbatim, one per line. No issues returns
// prompt unchanged.
func WithFeedback(prompt string, issues []string) string {
	if len(issues) == 0 {
		return prompt
	}
	var b strings.Builder
	b.WriteString(prompt)
	b.WriteString("\n\n")
	b.WriteString(feedbackHeader)
	for _, issue := range issues {
		b.WriteString("\n- ")
		b.WriteString(issue)
	}
	return b.String()
}

// RenderSchema renders schema as two-space indented JSON.
func RenderSchema(schema llmrelay.Schema) (string, error) {
	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
