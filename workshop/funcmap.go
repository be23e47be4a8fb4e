package workshop

import (
	"encoding/json"
	"reflect"
	"text/template"
	"text/template/parse"
	"unicode/utf8"

	"github.com/skosovsky/llmrelay"
)

func funcMap(tc llmrelay.TokenCounter) template.FuncMap {
	if tc == nil {
		tc = &llmrelay.CharFallbackCounter{}
	}
	return template.FuncMap{
		"truncate_chars":  truncateChars,
		"truncate_tokens": makeTruncateTokens(tc),
		"to_json":         toJSON,
	}
}

// truncateChars truncates text to at most maxChars runes.
func truncateChars(text string, maxChars int) string {
	if maxChars <= 0 {
		return ""
	}
	if utf8.RuneCountInString(text) <= maxChars {
		return text
	}
	return string([]rune(text)[:maxChars])
}

// makeTruncateTokens truncates to the longest prefix within maxTokens, by binary search.
func makeTruncateTokens(tc llmrelay.TokenCounter) func(string, int) (string, error) {
	return func(text string, maxTokens int) (string, error) {
		if maxTokens <= 0 {
			return "", nil
		}
		n, err := tc.Count(text)
		if err != nil {
			return "", err
		}
		if n <= maxTokens {
			return text, nil
		}
		runes := []rune(text)
		lo, hi := 0, len(runes)
		for lo < hi {
			mid := (lo + hi + 1) / 2
			n, _ = tc.Count(string(runes[:mid]))
			if n <= maxTokens {
				lo = mid
			} else {
				hi = mid - 1
			}
		}
		return string(runes[:lo]), nil
	}
}

// toJSON renders v as compact JSON; project data is embedded in prompts this way.
func toJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// templateVars lists the top-level fields a template reads (".context" gives
// "context"). Fields inside range and with bodies refer to the element, not the root,
// and are skipped.
func templateVars(tree *parse.Tree) []string {
	if tree == nil || tree.Root == nil {
		return nil
	}
	seen := make(map[string]bool)
	var out []string
	walk(tree.Root, func(n parse.Node) {
		if fn, ok := n.(*parse.FieldNode); ok && len(fn.Ident) > 0 && !seen[fn.Ident[0]] {
			seen[fn.Ident[0]] = true
			out = append(out, fn.Ident[0])
		}
	})
	return out
}

func walk(node parse.Node, visit func(parse.Node)) {
	if node == nil || (reflect.ValueOf(node).Kind() == reflect.Pointer && reflect.ValueOf(node).IsNil()) {
		return
	}
	visit(node)
	switch n := node.(type) {
	case *parse.ListNode:
		for _, c := range n.Nodes {
			walk(c, visit)
		}
	case *parse.ActionNode:
		walk(n.Pipe, visit)
	case *parse.PipeNode:
		for _, c := range n.Cmds {
			walk(c, visit)
		}
	case *parse.CommandNode:
		for _, a := range n.Args {
			walk(a, visit)
		}
	case *parse.IfNode:
		walk(n.Pipe, visit)
		walk(n.List, visit)
		walk(n.ElseList, visit)
	case *parse.RangeNode:
		walk(n.Pipe, visit)
		walk(n.ElseList, visit)
	case *parse.WithNode:
		walk(n.Pipe, visit)
		walk(n.ElseList, visit)
	}
}
