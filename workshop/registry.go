package workshop

import (
	"cmp"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"slices"
	"strings"

	"github.com/skosovsky/llmrelay"
)

//go:embed steps/*.yaml
var embedded embed.FS

// Registry holds every step parsed at construction. It is read-only afterwards and
// safe for concurrent use.
type Registry struct {
	byID     map[string]*Step
	byNumber map[int]*Step
}

// Option configures New.
type Option func(*options)

type options struct {
	counter llmrelay.TokenCounter
}

// WithTokenCounter backs truncate_tokens. Default llmrelay.CharFallbackCounter.
func WithTokenCounter(tc llmrelay.TokenCounter) Option {
	return func(o *options) { o.counter = tc }
}

// Default returns the registry of the embedded step manifests.
func Default(opts ...Option) (*Registry, error) {
	return New(embedded, "steps", opts...)
}

// New walks fsys under root and parses every .yaml or .yml file. Ids and non-zero step
// numbers must be unique.
func New(fsys fs.FS, root string, opts ...Option) (*Registry, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	r := &Registry{byID: make(map[string]*Step), byNumber: make(map[int]*Step)}
	err := fs.WalkDir(fsys, root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || (path.Ext(p) != ".yaml" && path.Ext(p) != ".yml") {
			return nil
		}
		step, err := ParseFS(fsys, p, o.counter)
		if err != nil {
			return fmt.Errorf("%s: %w", p, err)
		}
		if _, dup := r.byID[step.ID]; dup {
			return fmt.Errorf("%s: %w: duplicate id %q", p, ErrInvalidManifest, step.ID)
		}
		if _, dup := r.byNumber[step.Number]; dup && step.Number > 0 {
			return fmt.Errorf("%s: %w: duplicate step %d", p, ErrInvalidManifest, step.Number)
		}
		r.byID[step.ID] = step
		if step.Number > 0 {
			r.byNumber[step.Number] = step
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

// Get returns the step with the given id.
func (r *Registry) Get(id string) (*Step, error) {
	if s, ok := r.byID[strings.TrimSpace(id)]; ok {
		return s.clone(), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrStepNotFound, id)
}

// Step returns workshop step n.
func (r *Registry) Step(n int) (*Step, error) {
	if s, ok := r.byNumber[n]; ok {
		return s.clone(), nil
	}
	return nil, fmt.Errorf("%w: step %d", ErrStepNotFound, n)
}

// Steps lists all steps, numbered steps first in order, then free-form ones by id.
func (r *Registry) Steps() []*Step {
	out := make([]*Step, 0, len(r.byID))
	for _, s := range r.byID {
		out = append(out, s.clone())
	}
	slices.SortFunc(out, func(a, b *Step) int {
		an, bn := a.Number, b.Number
		if an == 0 {
			an = 1 << 30
		}
		if bn == 0 {
			bn = 1 << 30
		}
		return cmp.Or(cmp.Compare(an, bn), strings.Compare(a.ID, b.ID))
	})
	return out
}
