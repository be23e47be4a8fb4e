// Package retry wraps a single provider call with bounded exponential backoff.
//
// Failures are classified before anything is retried: authentication and configuration
// problems propagate at once, rate limits and transport failures are retried, and
// everything else fails fast.
package retry

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"net"
	"strings"
	"time"

	"github.com/skosovsky/llmrelay"
)

// Policy bounds a retried call. MaxAttempts counts every call, the first included.
type Policy struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	BackoffFactor float64
}

// DefaultPolicy is 3 attempts, 1s initial delay, doubling.
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: 3, InitialDelay: time.Second, BackoffFactor: 2}
}

// Delay returns the wait before retry n (0-based): InitialDelay * BackoffFactor^n.
func (p Policy) Delay(n int) time.Duration {
	factor := p.BackoffFactor
	if factor <= 0 {
		factor = 1
	}
	return time.Duration(float64(p.InitialDelay) * math.Pow(factor, float64(n)))
}

func (p Policy) attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

// Class is the retry decision for an error.
type Class int

const (
	// NonRetryable errors fail fast.
	NonRetryable Class = iota
	// Fatal errors can never succeed on retry (credentials, configuration).
	Fatal
	// Retryable errors are transient (rate limit, network, timeout).
	Retryable
)

// String implements fmt.Stringer.
func (c Class) String() string {
	switch c {
	case Fatal:
		return "fatal"
	case Retryable:
		return "retryable"
	default:
		return "non-retryable"
	}
}

type statusCoder interface {
	HTTPStatus() int
}

// Classify decides how err is retried. Typed errors are classified by kind and status;
// message matching applies only to errors that carry neither.
func Classify(err error) Class {
	switch {
	case err == nil:
		return NonRetryable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return NonRetryable
	case errors.Is(err, llmrelay.ErrAuthentication), errors.Is(err, llmrelay.ErrConfiguration):
		return Fatal
	case errors.Is(err, llmrelay.ErrRateLimited), errors.Is(err, llmrelay.ErrTransport):
		return Retryable
	}
	var sc statusCoder
	if errors.As(err, &sc) && sc.HTTPStatus() > 0 {
		switch code := sc.HTTPStatus(); {
		case code == 401 || code == 403:
			return Fatal
		case code == 429:
			return Retryable
		}
		return NonRetryable
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return Retryable
	}
	if isTyped(err) {
		return NonRetryable
	}
	return classifyMessage(err.Error())
}

func isTyped(err error) bool {
	return errors.Is(err, llmrelay.ErrProvider) || errors.Is(err, llmrelay.ErrEmptyResponse) ||
		errors.Is(err, llmrelay.ErrMalformedJSON) || errors.Is(err, llmrelay.ErrValidation)
}

func classifyMessage(msg string) Class {
	lower := strings.ToLower(msg)
	if strings.Contains(msg, "401") || strings.Contains(msg, "403") ||
		strings.Contains(lower, "api key") || strings.Contains(msg, "CORS") {
		return Fatal
	}
	if strings.Contains(msg, "429") || strings.Contains(lower, "rate") ||
		strings.Contains(lower, "timeout") || strings.Contains(lower, "network") {
		return Retryable
	}
	return NonRetryable
}

type options struct {
	logger *slog.Logger
	sleep  func(context.Context, time.Duration) error
	name   string
}

// Option configures Do.
type Option func(*options)

// WithLogger sets the logger used for retry notices. Nil means slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithSleep replaces the context-aware wait between attempts.
func WithSleep(fn func(context.Context, time.Duration) error) Option {
	return func(o *options) { o.sleep = fn }
}

// WithName labels log lines (usually the provider id).
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// Do calls fn until it succeeds, fails with a non-retryable error, or the policy is
// exhausted. The last error is returned unchanged.
func Do(ctx context.Context, p Policy, fn func(context.Context) error, opts ...Option) error {
	_, err := DoValue(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	}, opts...)
	return err
}

// DoValue is Do for calls returning a value.
func DoValue[T any](ctx context.Context, p Policy, fn func(context.Context) (T, error), opts ...Option) (T, error) {
	o := options{sleep: SleepContext}
	for _, opt := range opts {
		opt(&o)
	}
	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}

	var zero T
	total := p.attempts()
	for attempt := 0; ; attempt++ {
		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		class := Classify(err)
		if class != Retryable || attempt+1 >= total || ctx.Err() != nil {
			if class == Retryable && attempt+1 >= total {
				logger.WarnContext(ctx, "llmrelay.retry_exhausted", "name", o.name, "attempts", total, "error", err)
			}
			return zero, err
		}
		wait := p.Delay(attempt)
		logger.InfoContext(ctx, "llmrelay.retry",
			"name", o.name,
			"attempt", attempt+1,
			"max_attempts", total,
			"retry_in_ms", wait.Milliseconds(),
			"error", err,
		)
		if serr := o.sleep(ctx, wait); serr != nil {
			return zero, serr
		}
	}
}

// SleepContext waits for d or until ctx is done.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
