package jsonrepair

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/skosovsky/llmrelay"
)

// excerptLen is how much of a non-JSON answer is quoted in the error.
const excerptLen = 300

var schemaKeyRe = regexp.MustCompile(`"[A-Za-z_][\w-]*"\s*:`)

// Candidate is one substring proposed by a strategy.
type Candidate struct {
	Strategy string
	Text     string
}

// Result is a successful extraction.
type Result struct {
	Value    any
	Strategy string // name of the strategy whose candidate parsed
}

// Repaired reports whether the value required modifying the text rather than slicing it.
func (r Result) Repaired() bool {
	return r.Strategy == StrategyWrap || r.Strategy == StrategyTruncated
}

type options struct {
	strategies []Strategy
	custom     bool
	prose      bool
	schemaKeys []string
	schemaType string
}

// Option configures extraction.
type Option func(*options)

// WithProseRecovery enables the prose-wrapped strategy (JSON introduced by "here is…").
func WithProseRecovery() Option {
	return func(o *options) { o.prose = true }
}

// WithStrategies replaces the strategy list entirely.
func WithStrategies(s ...Strategy) Option {
	return func(o *options) { o.strategies, o.custom = s, true }
}

// WithSchemaKeys adds property names that mark a cut-off answer as truncated JSON.
func WithSchemaKeys(keys []string) Option {
	return func(o *options) { o.schemaKeys = keys }
}

// WithSchemaType sets the top-level JSON type the answer must have ("object", "array").
// For "array" the array span is tried before the first balanced object. Without a type
// the opener that appears first in the text decides.
func WithSchemaType(typ string) Option {
	return func(o *options) { o.schemaType = typ }
}

func buildOptions(opts []Option) *options {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.strategies == nil {
		o.strategies = DefaultStrategies(o.prose)
	}
	return o
}

// Candidates returns the ordered, deduplicated candidate list for text.
func Candidates(text string, opts ...Option) []Candidate {
	o := buildOptions(opts)
	trimmed := strings.TrimSpace(text)
	return candidates(trimmed, o.ordered(trimmed))
}

// ordered returns the strategies for trimmed. Custom lists are used as given; the
// default list moves the array span ahead of prose and object recovery when an array
// is expected.
func (o *options) ordered(trimmed string) []Strategy {
	if o.custom || !o.wantsArray(trimmed) {
		return o.strategies
	}
	arrayAt, firstObject := -1, -1
	for i, s := range o.strategies {
		switch s.Name {
		case StrategyArray:
			arrayAt = i
		case StrategyProse, StrategyObject:
			if firstObject < 0 {
				firstObject = i
			}
		}
	}
	if arrayAt < 0 || firstObject < 0 || arrayAt < firstObject {
		return o.strategies
	}
	out := make([]Strategy, 0, len(o.strategies))
	out = append(out, o.strategies[:firstObject]...)
	out = append(out, o.strategies[arrayAt])
	out = append(out, o.strategies[firstObject:arrayAt]...)
	return append(out, o.strategies[arrayAt+1:]...)
}

func (o *options) wantsArray(trimmed string) bool {
	switch o.schemaType {
	case "array":
		return true
	case "":
		arr, obj := strings.IndexByte(trimmed, '['), strings.IndexByte(trimmed, '{')
		return arr >= 0 && (obj < 0 || arr < obj)
	}
	return false
}

func candidates(trimmed string, strategies []Strategy) []Candidate {
	if trimmed == "" {
		return nil
	}
	seen := make(map[string]bool)
	var out []Candidate
	for _, s := range strategies {
		for _, c := range s.Generate(trimmed) {
			c = strings.TrimSpace(c)
			if c == "" || seen[c] {
				continue
			}
			seen[c] = true
			out = append(out, Candidate{Strategy: s.Name, Text: c})
		}
	}
	return out
}

// Parse runs the strategies and returns the first candidate that parses.
// Empty text yields *llmrelay.EmptyResponseError; no parsable candidate yields
// *llmrelay.MalformedJSONError with a truncated-vs-prose diagnosis.
func Parse(provider llmrelay.ProviderID, text string, opts ...Option) (Result, error) {
	o := buildOptions(opts)
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return Result{}, &llmrelay.EmptyResponseError{Provider: provider}
	}
	for _, c := range candidates(trimmed, o.ordered(trimmed)) {
		var v any
		if err := json.Unmarshal([]byte(c.Text), &v); err == nil {
			return Result{Value: v, Strategy: c.Strategy}, nil
		}
	}
	return Result{}, diagnose(provider, trimmed, o.schemaKeys)
}

// Extract is Parse returning only the value.
func Extract(provider llmrelay.ProviderID, text string, opts ...Option) (any, error) {
	r, err := Parse(provider, text, opts...)
	if err != nil {
		return nil, err
	}
	return r.Value, nil
}

// LooksTruncated reports whether trimmed text is an object cut short: it opens with '{',
// does not close, and carries schema-like keys.
func LooksTruncated(trimmed string, schemaKeys []string) bool {
	if !strings.HasPrefix(trimmed, "{") || strings.HasSuffix(trimmed, "}") {
		return false
	}
	if schemaKeyRe.MatchString(trimmed) {
		return true
	}
	for _, k := range schemaKeys {
		if strings.Contains(trimmed, `"`+k+`"`) {
			return true
		}
	}
	return false
}

func diagnose(provider llmrelay.ProviderID, trimmed string, schemaKeys []string) error {
	if LooksTruncated(trimmed, schemaKeys) {
		return &llmrelay.MalformedJSONError{Provider: provider, Truncated: true}
	}
	excerpt := trimmed
	if r := []rune(excerpt); len(r) > excerptLen {
		excerpt = string(r[:excerptLen]) + "..."
	}
	return &llmrelay.MalformedJSONError{Provider: provider, Excerpt: excerpt}
}
