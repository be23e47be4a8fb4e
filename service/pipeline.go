package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"github.com/skosovsky/llmrelay"
	"github.com/skosovsky/llmrelay/critique"
	"github.com/skosovsky/llmrelay/prompt"
	"github.com/skosovsky/llmrelay/retry"
	"github.com/skosovsky/llmrelay/validate"
)

// GenerateContent compiles req, sends it to the active provider with retries and returns
// the raw text. Usage is estimated when the provider reports none. A response larger
// than validate.MaxResponseSize fails with *llmrelay.ValidationError.
func (s *Service) GenerateContent(ctx context.Context, req llmrelay.Request) (*llmrelay.Response, error) {
	p, err := s.Provider()
	if err != nil {
		return nil, err
	}
	log := s.callLogger(p)
	compiled := prompt.Compile(req)
	resp, err := retry.DoValue(ctx, s.policy, func(ctx context.Context) (*llmrelay.Response, error) {
		return p.GenerateContent(ctx, compiled)
	}, s.retryOptions(log, p.ID())...)
	if err != nil {
		log.WarnContext(ctx, "llmrelay.generate_content_failed", "error", err)
		return nil, err
	}
	if issues := validate.Size(resp.Text); len(issues) > 0 {
		return nil, &llmrelay.ValidationError{Issues: issues}
	}
	if resp.Usage == nil {
		u, err := llmrelay.EstimateUsage(s.counter, compiled.SystemInstruction+compiled.UserPrompt, resp.Text)
		if err != nil {
			u = &llmrelay.Usage{Estimated: true}
		}
		resp.Usage = u
	}
	log.InfoContext(ctx, "llmrelay.generate_content", "finish_reason", resp.FinishReason,
		"total_tokens", resp.Usage.TotalTokens, "estimated", resp.Usage.Estimated)
	return resp, nil
}

// GenerateJSON is the caller contract: it asks the active provider for JSON matching
// schema and returns the parsed, sanitized value. Failures are typed errors from the
// llmrelay taxonomy; llmrelay.UserMessage renders them for end users.
func (s *Service) GenerateJSON(ctx context.Context, userPrompt, systemInstruction string, schema llmrelay.Schema) (any, error) {
	return s.Generate(ctx, llmrelay.Request{
		SystemInstruction: systemInstruction,
		UserPrompt:        userPrompt,
		ResponseSchema:    schema,
	})
}

// Generate runs the JSON pipeline for req: compile, retry around the adapter's
// GenerateJSON, schema plausibility check, sanitization. Schema violations fail with
// *llmrelay.ValidationError.
func (s *Service) Generate(ctx context.Context, req llmrelay.Request) (any, error) {
	p, err := s.Provider()
	if err != nil {
		return nil, err
	}
	return s.generate(ctx, p, s.callLogger(p), req, s.policy)
}

func (s *Service) generate(ctx context.Context, p llmrelay.Provider, log *slog.Logger, req llmrelay.Request, policy retry.Policy) (any, error) {
	compiled := prompt.Compile(req)
	v, err := retry.DoValue(ctx, policy, func(ctx context.Context) (any, error) {
		return p.GenerateJSON(ctx, compiled)
	}, s.retryOptions(log, p.ID())...)
	if err != nil {
		log.WarnContext(ctx, "llmrelay.generate_json_failed", "error", err)
		return nil, err
	}
	issues, err := validate.Schema(req.ResponseSchema, v)
	if err != nil {
		log.WarnContext(ctx, "llmrelay.schema_check_skipped", "error", err)
	}
	if len(issues) > 0 {
		log.InfoContext(ctx, "llmrelay.schema_mismatch", "issues", len(issues))
		return nil, &llmrelay.ValidationError{Issues: issues}
	}
	log.InfoContext(ctx, "llmrelay.generate_json")
	return validate.Sanitize(v), nil
}

// GenerateValidated runs Generate inside the self-critique loop: while check (and the
// schema check) report issues, the prompt is re-sent with a feedback block, up to
// critique.MaxAttempts generations. Only *llmrelay.ValidationError drives a new attempt.
func (s *Service) GenerateValidated(ctx context.Context, req llmrelay.Request, check critique.CheckFunc, opts ...critique.Option) (any, error) {
	p, err := s.Provider()
	if err != nil {
		return nil, err
	}
	log := s.callLogger(p)
	loop := critique.New(append([]critique.Option{critique.WithLogger(log)}, opts...)...)
	v, err := loop.Run(ctx, req, func(ctx context.Context, r llmrelay.Request) (any, error) {
		return s.generate(ctx, p, log, r, s.policy)
	}, check)
	var verr *llmrelay.ValidationError
	if errors.As(err, &verr) {
		log.WarnContext(ctx, "llmrelay.critique_exhausted", "issues", len(verr.Issues))
	}
	return v, err
}

// callLogger tags one call with a correlation id.
func (s *Service) callLogger(p llmrelay.Provider) *slog.Logger {
	return s.logger.With("call_id", uuid.NewString(), "provider", p.ID())
}

func (s *Service) retryOptions(log *slog.Logger, id llmrelay.ProviderID) []retry.Option {
	opts := []retry.Option{retry.WithLogger(log), retry.WithName(string(id))}
	if s.sleep != nil {
		opts = append(opts, retry.WithSleep(s.sleep))
	}
	return opts
}
