package validate

import (
	"fmt"
	"html"
	"regexp"
	"strings"
)

// MaxResponseSize is the largest raw response accepted, in bytes.
const MaxResponseSize = 100_000

var slashReplacer = strings.NewReplacer("/", "&#x2F;")

type threat struct {
	name string
	re   *regexp.Regexp
}

var threats = []threat{
	{"script injection", regexp.MustCompile(`(?is)<script[\s\S]*?>[\s\S]*?</script>`)},
	{"javascript URL", regexp.MustCompile(`(?i)javascript:`)},
	{"event handler injection", regexp.MustCompile(`(?i)\bon\w+\s*=`)},
	{"code evaluation", regexp.MustCompile(`(?i)eval\s*\(`)},
	{"document manipulation", regexp.MustCompile(`(?i)document\.(?:writeln|write|cookie)`)},
	{"window manipulation", regexp.MustCompile(`(?i)window\.(?:location|open)`)},
	{"iframe injection", regexp.MustCompile(`(?is)<iframe[\s\S]*?>`)},
	{"object injection", regexp.MustCompile(`(?is)<object[\s\S]*?>`)},
	{"embed injection", regexp.MustCompile(`(?is)<embed[\s\S]*?>`)},
}

// Size reports an issue when text exceeds MaxResponseSize.
func Size(text string) []string {
	if len(text) > MaxResponseSize {
		return []string{fmt.Sprintf("response is too large (%d bytes, maximum %d)", len(text), MaxResponseSize)}
	}
	return nil
}

// DetectInjection names every threat pattern found in s.
func DetectInjection(s string) []string {
	var found []string
	for _, t := range threats {
		if t.re.MatchString(s) {
			found = append(found, t.name)
		}
	}
	return found
}

// Sanitize returns a copy of v with every string, map keys included, scrubbed of
// injection patterns. Non-string scalars are returned as is.
func Sanitize(v any) any {
	switch n := v.(type) {
	case string:
		return scrub(n)
	case []any:
		out := make([]any, len(n))
		for i, item := range n {
			out[i] = Sanitize(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(n))
		for k, item := range n {
			out[scrub(k)] = Sanitize(item)
		}
		return out
	default:
		return v
	}
}

func scrub(s string) string {
	for _, t := range threats {
		if t.re.MatchString(s) {
			s = t.re.ReplaceAllString(s, "")
		}
	}
	return s
}

// EscapeHTML escapes s for embedding in HTML, slashes included.
func EscapeHTML(s string) string {
	return slashReplacer.Replace(html.EscapeString(s))
}
