package workshop

import (
	"bytes"
	"fmt"
	"maps"
	"slices"
	"sort"
	"strings"
	"text/template"

	"github.com/skosovsky/llmrelay"
	"github.com/skosovsky/llmrelay/critique"
	"github.com/skosovsky/llmrelay/validate"
)

// Step is one parsed workshop manifest. Fields must not be mutated after parsing;
// Registry hands out clones.
type Step struct {
	ID          string
	Number      int // 1 to 5 for workshop steps, 0 for free-form prompts
	Title       string
	Description string
	System      string
	Schema      llmrelay.Schema
	Required    []string       // explicit variables first, then those read by the template
	Defaults    map[string]any // used when the caller omits a variable
	MinItems    map[string]int // dotted path ("" for the root) to minimum array length
	tpl         *template.Template
}

// Render executes the prompt template with vars over the step defaults. A missing
// variable fails with *VariableError before anything is rendered.
func (s *Step) Render(vars map[string]any) (llmrelay.Request, error) {
	merged := maps.Clone(s.Defaults)
	if merged == nil {
		merged = make(map[string]any, len(vars))
	}
	maps.Copy(merged, vars)
	for _, name := range s.Required {
		if _, ok := merged[name]; !ok {
			return llmrelay.Request{}, &VariableError{Variable: name, Step: s.ID, Err: ErrMissingVariable}
		}
	}
	var buf bytes.Buffer
	if err := s.tpl.Execute(&buf, merged); err != nil {
		return llmrelay.Request{}, fmt.Errorf("%w: %s: %w", ErrTemplateRender, s.ID, err)
	}
	return llmrelay.Request{
		SystemInstruction: s.System,
		UserPrompt:        strings.TrimSpace(buf.String()),
		ResponseSchema:    s.Schema,
	}, nil
}

// Checker returns the post-conditions for the self-critique loop: the structural
// checks of the workshop step, if any, followed by the min_items conditions in path
// order.
func (s *Step) Checker() critique.CheckFunc {
	var checks []validate.Checker
	if s.Number >= 1 && s.Number <= 5 {
		checks = append(checks, validate.ForStep(s.Number))
	}
	paths := slices.Collect(maps.Keys(s.MinItems))
	sort.Strings(paths)
	for _, p := range paths {
		checks = append(checks, validate.MinItems(p, s.MinItems[p]))
	}
	if len(checks) == 0 {
		return nil
	}
	return critique.CheckFunc(validate.All(checks...))
}

// clone copies the slices and maps so callers cannot alter a registry entry. The
// parsed template is shared; it is safe for concurrent Execute.
func (s *Step) clone() *Step {
	out := *s
	out.Required = slices.Clone(s.Required)
	out.Defaults = maps.Clone(s.Defaults)
	out.MinItems = maps.Clone(s.MinItems)
	if s.Schema != nil {
		out.Schema = llmrelay.Schema(maps.Clone(map[string]any(s.Schema)))
	}
	return &out
}
