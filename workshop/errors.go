package workshop

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidManifest = errors.New("workshop: invalid manifest")
	ErrStepNotFound    = errors.New("workshop: step not found")
	ErrMissingVariable = errors.New("workshop: missing variable")
	ErrTemplateParse   = errors.New("workshop: template parse error")
	ErrTemplateRender  = errors.New("workshop: template render error")
)

// VariableError names the variable a step prompt could not be rendered without.
type VariableError struct {
	Variable string
	Step     string
	Err      error
}

func (e *VariableError) Error() string {
	return fmt.Sprintf("workshop: step %q: variable %q: %v", e.Step, e.Variable, e.Err)
}

func (e *VariableError) Unwrap() error { return e.Err }
