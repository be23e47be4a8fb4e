package validate

import (
	"fmt"
	"slices"
	"strings"
	"unicode/utf8"
)

// Checker inspects a parsed value and returns issues; nil means valid.
type Checker func(v any) []string

// Allowed enum values of the workshop steps.
var (
	Severities      = []string{"Critique", "Élevée", "Moyenne", "Faible"}
	RiskSourceTypes = []string{"Humaine", "Technique", "Environnementale"}
	Likelihoods     = []string{"Élevée", "Moyenne", "Faible"}
	MeasureTypes    = []string{"Préventive", "Détective", "Corrective"}
)

// MinDescriptionLength is the shortest accepted step 4 description, in characters.
const MinDescriptionLength = 50

// ForStep returns the structural checker of workshop step n (1 to 5).
func ForStep(n int) Checker {
	switch n {
	case 1:
		return Step1
	case 2:
		return Step2
	case 3:
		return Step3
	case 4:
		return Step4
	case 5:
		return Step5
	default:
		return func(any) []string { return []string{fmt.Sprintf("workshop step %d is not recognized", n)} }
	}
}

// All runs every checker and concatenates their issues.
func All(checks ...Checker) Checker {
	return func(v any) []string {
		var issues []string
		for _, c := range checks {
			if c != nil {
				issues = append(issues, c(v)...)
			}
		}
		return issues
	}
}

// MinItems requires the array at a dotted path ("" for the root) to hold at least n items.
func MinItems(path string, n int) Checker {
	return func(v any) []string {
		items, ok := lookup(v, path).([]any)
		name := path
		if name == "" {
			name = "response"
		}
		if !ok {
			return []string{fmt.Sprintf("%s must be an array", name)}
		}
		if len(items) < n {
			return []string{fmt.Sprintf("%s must contain at least %d items (got %d)", name, n, len(items))}
		}
		return nil
	}
}

// RequireFields requires the root object to carry every field with a non-empty value.
func RequireFields(fields ...string) Checker {
	return func(v any) []string {
		obj, ok := v.(map[string]any)
		if !ok {
			return []string{"response must be an object"}
		}
		var issues []string
		for _, f := range fields {
			if isBlank(obj[f]) {
				issues = append(issues, fmt.Sprintf("field %q is missing or empty", f))
			}
		}
		return issues
	}
}

// Step1 checks the study framing: context, security baseline, business values and
// dreaded events, each event tied to a known business value.
func Step1(v any) []string {
	obj, ok := v.(map[string]any)
	if !ok {
		return []string{"step 1: response must be an object"}
	}
	var issues []string
	for _, f := range []string{"context", "securityBaseline", "businessValues", "dreadedEvents"} {
		if _, ok := obj[f]; !ok {
			issues = append(issues, fmt.Sprintf("step 1: field %q is missing", f))
		}
	}

	known := make(map[string]bool)
	values, ok := obj["businessValues"].([]any)
	if !ok || len(values) == 0 {
		issues = append(issues, "step 1: businessValues must be a non-empty array")
	}
	for i, item := range values {
		bv, _ := item.(map[string]any)
		name := str(bv, "name")
		if name == "" {
			issues = append(issues, fmt.Sprintf("step 1: business value %d has no name", i+1))
			continue
		}
		known[name] = true
		if str(bv, "description") == "" {
			issues = append(issues, fmt.Sprintf("step 1: business value %d (%q) has no description", i+1, name))
		}
	}

	events, ok := obj["dreadedEvents"].([]any)
	if !ok || len(events) == 0 {
		issues = append(issues, "step 1: dreadedEvents must be a non-empty array")
	}
	for i, item := range events {
		de, _ := item.(map[string]any)
		name, severity, ref := str(de, "name"), str(de, "severity"), str(de, "businessValueName")
		if name == "" || severity == "" || ref == "" {
			issues = append(issues, fmt.Sprintf("step 1: dreaded event %d is incomplete (name, severity and businessValueName are required)", i+1))
			continue
		}
		if !slices.Contains(Severities, severity) {
			issues = append(issues, fmt.Sprintf("step 1: dreaded event %d has invalid severity %q, valid values: %s", i+1, severity, strings.Join(Severities, ", ")))
		}
		if len(known) > 0 && !known[ref] {
			issues = append(issues, fmt.Sprintf("step 1: dreaded event %d refers to unknown business value %q", i+1, ref))
		}
	}
	return issues
}

// Step2 checks the risk source list.
func Step2(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return []string{"step 2: response must be an array"}
	}
	if len(items) == 0 {
		return []string{"step 2: no risk source was generated"}
	}
	var issues []string
	for i, item := range items {
		rs, _ := item.(map[string]any)
		name := str(rs, "name")
		label := fmt.Sprintf("step 2: risk source %d", i+1)
		if name != "" {
			label += fmt.Sprintf(" (%q)", name)
		} else {
			issues = append(issues, label+" has no name")
		}
		if str(rs, "description") == "" {
			issues = append(issues, label+" has no description")
		}
		issues = append(issues, enumIssue(label, "type", str(rs, "type"), RiskSourceTypes)...)
	}
	return issues
}

// Step3 checks the strategic scenarios.
func Step3(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return []string{"step 3: response must be an array"}
	}
	var issues []string
	for i, item := range items {
		sc, _ := item.(map[string]any)
		label := fmt.Sprintf("step 3: scenario %d", i+1)
		for _, f := range []string{"riskSourceId", "dreadedEventId", "description"} {
			if str(sc, f) == "" {
				issues = append(issues, fmt.Sprintf("%s has no %s", label, f))
			}
		}
		issues = append(issues, enumIssue(label, "likelihood", str(sc, "likelihood"), Likelihoods)...)
	}
	return issues
}

// Step4 checks the operational scenario description.
func Step4(v any) []string {
	obj, ok := v.(map[string]any)
	if !ok {
		return []string{"step 4: response must be an object"}
	}
	desc, ok := obj["description"].(string)
	if !ok {
		return []string{"step 4: description is missing or not a string"}
	}
	if utf8.RuneCountInString(desc) < MinDescriptionLength {
		return []string{fmt.Sprintf("step 4: description is too short (minimum %d characters)", MinDescriptionLength)}
	}
	return nil
}

// Step5 checks the security measures.
func Step5(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return []string{"step 5: response must be an array"}
	}
	if len(items) == 0 {
		return []string{"step 5: no security measure was generated"}
	}
	var issues []string
	for i, item := range items {
		m, _ := item.(map[string]any)
		label := fmt.Sprintf("step 5: measure %d", i+1)
		issues = append(issues, enumIssue(label, "type", str(m, "type"), MeasureTypes)...)
		if str(m, "description") == "" {
			issues = append(issues, label+" has no description")
		}
	}
	return issues
}

func enumIssue(label, field, value string, allowed []string) []string {
	if value == "" {
		return []string{fmt.Sprintf("%s has no %s", label, field)}
	}
	if !slices.Contains(allowed, value) {
		return []string{fmt.Sprintf("%s has invalid %s %q, valid values: %s", label, field, value, strings.Join(allowed, ", "))}
	}
	return nil
}

// str returns the trimmed string at key, or "" when absent or not a string.
func str(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return strings.TrimSpace(s)
}

func isBlank(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(x) == ""
	case []any:
		return len(x) == 0
	case map[string]any:
		return len(x) == 0
	}
	return false
}

func lookup(v any, path string) any {
	if path == "" {
		return v
	}
	for _, part := range strings.Split(path, ".") {
		m, ok := v.(map[string]any)
		if !ok {
			return nil
		}
		v = m[part]
	}
	return v
}
