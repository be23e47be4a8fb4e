// Package critique runs bounded re-generation driven by structural post-conditions.
//
// A Loop moves through the states Attempt, Validate, Succeed and FailExhausted. Each
// failed validation re-prompts with the original prompt plus the issues of the attempt
// that just failed. After MaxAttempts the loop fails with *llmrelay.ValidationError and
// never returns the invalid value.
package critique

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/skosovsky/llmrelay"
	"github.com/skosovsky/llmrelay/prompt"
)

// MaxAttempts is the fixed generation budget.
const MaxAttempts = 3

// State is a loop state.
type State int

const (
	StateAttempt State = iota + 1
	StateValidate
	StateSucceed
	StateFailExhausted
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateAttempt:
		return "attempt"
	case StateValidate:
		return "validate"
	case StateSucceed:
		return "succeed"
	case StateFailExhausted:
		return "fail_exhausted"
	default:
		return "unknown"
	}
}

// Transition describes one state change. Prompt is set when entering StateAttempt.
// Issues holds the problems that led to the change, if any.
type Transition struct {
	From    State
	To      State
	Attempt int // 1-based
	Prompt  string
	Issues  []string
}

// GenerateFunc runs the full generation chain for req. A returned
// *llmrelay.ValidationError counts as failed validation; any other error ends the loop.
type GenerateFunc func(ctx context.Context, req llmrelay.Request) (any, error)

// CheckFunc inspects a parsed value and returns human-readable issues.
type CheckFunc func(value any) []string

// Loop is safe for concurrent use; it holds no per-run state.
type Loop struct {
	logger       *slog.Logger
	onTransition func(Transition)
}

// Option configures a Loop.
type Option func(*Loop)

// WithLogger sets the logger. Nil means slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(lp *Loop) { lp.logger = l }
}

// WithTransition registers a hook called on every state change.
func WithTransition(fn func(Transition)) Option {
	return func(lp *Loop) { lp.onTransition = fn }
}

// New returns a Loop.
func New(opts ...Option) *Loop {
	l := &Loop{}
	for _, opt := range opts {
		opt(l)
	}
	if l.logger == nil {
		l.logger = slog.Default()
	}
	return l
}

// Run generates until check reports no issues or the budget is spent.
// A nil check accepts any value.
func (l *Loop) Run(ctx context.Context, req llmrelay.Request, generate GenerateFunc, check CheckFunc) (any, error) {
	original := req.UserPrompt
	var issues []string
	from := State(0)
	for attempt := 1; attempt <= MaxAttempts; attempt++ {
		current := req.WithUserPrompt(prompt.WithFeedback(original, issues))
		l.transition(ctx, Transition{From: from, To: StateAttempt, Attempt: attempt, Prompt: current.UserPrompt, Issues: issues})

		value, err := generate(ctx, current)
		var verr *llmrelay.ValidationError
		if err != nil && !errors.As(err, &verr) {
			return nil, err
		}
		l.transition(ctx, Transition{From: StateAttempt, To: StateValidate, Attempt: attempt})
		switch {
		case verr != nil:
			issues = verr.Issues
			if len(issues) == 0 {
				issues = []string{strings.TrimPrefix(verr.Error(), "llmrelay: ")}
			}
		case check != nil:
			issues = check(value)
		default:
			issues = nil
		}
		if len(issues) == 0 {
			l.transition(ctx, Transition{From: StateValidate, To: StateSucceed, Attempt: attempt})
			return value, nil
		}
		from = StateValidate
		if attempt < MaxAttempts {
			l.logger.InfoContext(ctx, "llmrelay.critique_retry", "attempt", attempt, "issues", len(issues))
		}
	}
	l.transition(ctx, Transition{From: StateValidate, To: StateFailExhausted, Attempt: MaxAttempts, Issues: issues})
	return nil, &llmrelay.ValidationError{Issues: issues, Attempts: MaxAttempts}
}

func (l *Loop) transition(ctx context.Context, t Transition) {
	l.logger.DebugContext(ctx, "llmrelay.critique_transition",
		"from", t.From.String(), "to", t.To.String(), "attempt", t.Attempt)
	if l.onTransition != nil {
		l.onTransition(t)
	}
}
