package workshop

import (
	"fmt"
	"io/fs"
	"os"
	"slices"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"

	"github.com/skosovsky/llmrelay"
	"github.com/skosovsky/llmrelay/internal/cast"
)

// fileManifest is the YAML shape of one step.
type fileManifest struct {
	ID          string `yaml:"id"`
	Step        int    `yaml:"step"`
	Title       string `yaml:"title"`
	Description string `yaml:"description"`
	Variables   struct {
		Required []string       `yaml:"required"`
		Defaults map[string]any `yaml:"defaults"`
	} `yaml:"variables"`
	System         string         `yaml:"system"`
	Prompt         string         `yaml:"prompt"`
	ResponseSchema map[string]any `yaml:"response_schema"`
	PostConditions struct {
		MinItems map[string]any `yaml:"min_items"`
	} `yaml:"post_conditions"`
}

// ParseBytes parses a YAML manifest into a Step. tc backs truncate_tokens; nil means
// llmrelay.CharFallbackCounter.
func ParseBytes(data []byte, tc llmrelay.TokenCounter) (*Step, error) {
	var m fileManifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidManifest, err)
	}
	return buildStep(&m, tc)
}

// ParseFile reads and parses a manifest file.
func ParseFile(path string, tc llmrelay.TokenCounter) (*Step, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path is chosen by the operator
	if err != nil {
		return nil, fmt.Errorf("workshop: read file: %w", err)
	}
	return ParseBytes(data, tc)
}

// ParseFS reads and parses a manifest from fsys.
func ParseFS(fsys fs.FS, name string, tc llmrelay.TokenCounter) (*Step, error) {
	data, err := fs.ReadFile(fsys, name)
	if err != nil {
		return nil, fmt.Errorf("workshop: read fs: %w", err)
	}
	return ParseBytes(data, tc)
}

func buildStep(m *fileManifest, tc llmrelay.TokenCounter) (*Step, error) {
	if m.ID == "" {
		return nil, fmt.Errorf("%w: missing id", ErrInvalidManifest)
	}
	if m.Step < 0 {
		return nil, fmt.Errorf("%w: %s: negative step number", ErrInvalidManifest, m.ID)
	}
	if strings.TrimSpace(m.Prompt) == "" {
		return nil, fmt.Errorf("%w: %s: missing prompt", ErrInvalidManifest, m.ID)
	}
	tpl, err := template.New(m.ID).Funcs(funcMap(tc)).Option("missingkey=error").Parse(m.Prompt)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrTemplateParse, m.ID, err)
	}
	minItems := make(map[string]int, len(m.PostConditions.MinItems))
	for path, raw := range m.PostConditions.MinItems {
		n, ok := cast.ToInt64(raw)
		if !ok || n < 0 {
			return nil, fmt.Errorf("%w: %s: min_items %q must be a non-negative integer", ErrInvalidManifest, m.ID, path)
		}
		minItems[path] = int(n)
	}

	required := slices.Clone(m.Variables.Required)
	for _, name := range templateVars(tpl.Tree) {
		if !slices.Contains(required, name) {
			required = append(required, name)
		}
	}
	var schema llmrelay.Schema
	if len(m.ResponseSchema) > 0 {
		schema = llmrelay.Schema(m.ResponseSchema)
	}
	return &Step{
		ID:          m.ID,
		Number:      m.Step,
		Title:       m.Title,
		Description: strings.TrimSpace(m.Description),
		System:      strings.TrimSpace(m.System),
		Schema:      schema,
		Required:    required,
		Defaults:    m.Variables.Defaults,
		MinItems:    minItems,
		tpl:         tpl,
	}, nil
}
