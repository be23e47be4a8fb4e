package jsonrepair

import (
	"regexp"
	"strings"
	"unicode"
)

// Strategy generates zero or more candidate substrings from the trimmed response text.
// Strategies are pure: same input, same output.
type Strategy struct {
	Name     string
	Generate func(text string) []string
}

// Strategy names, in default order.
const (
	StrategyTrimmed   = "trimmed"
	StrategyWrap      = "wrap-property"
	StrategyTruncated = "close-truncated"
	StrategyProse     = "prose-wrapped"
	StrategyJSONFence = "json-fence"
	StrategyAnyFence  = "any-fence"
	StrategyObject    = "balanced-object"
	StrategyArray     = "array-span"
)

var (
	barePropertyRe = regexp.MustCompile(`^"[^"]+"\s*:`)
	jsonFenceRe    = regexp.MustCompile("(?is)```json\\s*(.*?)\\s*```")
	anyFenceRe     = regexp.MustCompile("(?s)```[A-Za-z0-9_-]*\\s*(.*?)\\s*```")
	proseRes       = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(?:voici|here is|here's|result|résultat|response)[^{]*(\{[\s\S]*\})`),
		regexp.MustCompile(`:\s*(\{[\s\S]*\})`),
	}
)

// DefaultStrategies returns the standard ordered strategy list.
// Prose recovery is included only when prose is true (used for providers that tend to
// surround JSON with commentary).
func DefaultStrategies(prose bool) []Strategy {
	out := []Strategy{
		{Name: StrategyTrimmed, Generate: func(text string) []string { return []string{text} }},
		{Name: StrategyWrap, Generate: wrapBareProperty},
		{Name: StrategyTruncated, Generate: closeTruncated},
	}
	if prose {
		out = append(out, Strategy{Name: StrategyProse, Generate: proseWrapped})
	}
	return append(out,
		Strategy{Name: StrategyJSONFence, Generate: jsonFence},
		Strategy{Name: StrategyAnyFence, Generate: anyFence},
		Strategy{Name: StrategyObject, Generate: firstBalancedObject},
		Strategy{Name: StrategyArray, Generate: widestArray},
	)
}

// wrapBareProperty turns `"key": value, ...` into `{"key": value, ...}`.
func wrapBareProperty(text string) []string {
	if !barePropertyRe.MatchString(text) {
		return nil
	}
	return []string{"{" + text + "}"}
}

// closeTruncated completes an object or array that opens but never closes.
// The first candidate drops an incomplete trailing line before closing, the second
// closes the text in place.
func closeTruncated(text string) []string {
	if !strings.HasPrefix(text, "{") && !strings.HasPrefix(text, "[") {
		return nil
	}
	var out []string
	if dropped, ok := dropIncompleteLine(text); ok {
		if s, ok := closeOpen(dropped); ok {
			out = append(out, s)
		}
	}
	if s, ok := closeOpen(text); ok {
		out = append(out, s)
	}
	return out
}

// dropIncompleteLine removes the last line when it does not end on a value boundary.
// Single-line text is left alone.
func dropIncompleteLine(text string) (string, bool) {
	idx := strings.LastIndexByte(text, '\n')
	if idx < 0 {
		return "", false
	}
	last := strings.TrimSpace(text[idx+1:])
	if last == "" || strings.HasSuffix(last, `"`) || strings.HasSuffix(last, ",") ||
		strings.HasSuffix(last, "}") || strings.HasSuffix(last, "]") {
		return "", false
	}
	return text[:idx], true
}

// closeOpen appends the closers still open at the end of text, ending an unterminated
// string and removing a dangling comma first. It reports false when nothing is open.
func closeOpen(text string) (string, bool) {
	var stack []byte
	inString, escaped := false, false
	for i := 0; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			stack = append(stack, '}')
		case '[':
			stack = append(stack, ']')
		case '}', ']':
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		}
	}
	if len(stack) == 0 && !inString {
		return "", false
	}
	var b strings.Builder
	b.Grow(len(text) + len(stack) + 2)
	out := text
	if inString {
		if escaped {
			out = out[:len(out)-1]
		}
		out += `"`
	}
	out = strings.TrimRightFunc(out, unicode.IsSpace)
	out = strings.TrimSuffix(out, ",")
	b.WriteString(out)
	if strings.HasSuffix(out, ":") {
		b.WriteString("null")
	}
	for i := len(stack) - 1; i >= 0; i-- {
		b.WriteByte(stack[i])
	}
	return b.String(), true
}

func proseWrapped(text string) []string {
	var out []string
	for _, re := range proseRes {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			if len(m) > 1 && m[1] != "" {
				out = append(out, m[1])
			}
		}
	}
	return out
}

func jsonFence(text string) []string {
	if m := jsonFenceRe.FindStringSubmatch(text); len(m) > 1 {
		return []string{m[1]}
	}
	return nil
}

// anyFence only applies when there is no ```json fence.
func anyFence(text string) []string {
	if jsonFenceRe.MatchString(text) {
		return nil
	}
	if m := anyFenceRe.FindStringSubmatch(text); len(m) > 1 {
		return []string{m[1]}
	}
	return nil
}

// firstBalancedObject returns the first {...} span whose braces balance, ignoring
// braces inside strings.
func firstBalancedObject(text string) []string {
	start, depth := -1, 0
	inString, escaped := false, false
	for i := 0; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			if depth > 0 {
				inString = true
			}
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth > 0 {
				depth--
				if depth == 0 {
					return []string{text[start : i+1]}
				}
			}
		}
	}
	return nil
}

func widestArray(text string) []string {
	start := strings.IndexByte(text, '[')
	end := strings.LastIndexByte(text, ']')
	if start < 0 || end <= start {
		return nil
	}
	return []string{text[start : end+1]}
}
