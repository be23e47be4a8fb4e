// Package otelrelay decorates a llmrelay.Provider with OpenTelemetry spans.
//
// Plug it into the service with service.WithProviderWrapper(otelrelay.Wrapper()).
// Prompts and responses are never recorded, only sizes, usage and error kinds.
package otelrelay

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/skosovsky/llmrelay"
)

const instrumentationName = "github.com/skosovsky/llmrelay/ext/otelrelay"

// Attribute keys set on every span.
const (
	AttrProvider         = attribute.Key("llm.provider")
	AttrModel            = attribute.Key("llm.model")
	AttrPromptChars      = attribute.Key("llm.prompt.chars")
	AttrHasSchema        = attribute.Key("llm.request.schema")
	AttrFinishReason     = attribute.Key("llm.response.finish_reason")
	AttrPromptTokens     = attribute.Key("llm.usage.prompt_tokens")
	AttrCompletionTokens = attribute.Key("llm.usage.completion_tokens")
	AttrTotalTokens      = attribute.Key("llm.usage.total_tokens")
	AttrErrorKind        = attribute.Key("llm.error.kind")
	AttrHTTPStatus       = attribute.Key("http.response.status_code")
)

var _ llmrelay.Provider = (*Provider)(nil)

// Provider traces every call of the wrapped provider.
type Provider struct {
	next   llmrelay.Provider
	tracer trace.Tracer
}

// Option configures Wrap.
type Option func(*config)

type config struct {
	tp trace.TracerProvider
}

// WithTracerProvider sets the tracer provider. Default otel.GetTracerProvider().
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *config) { c.tp = tp }
}

// Wrap returns p decorated with spans.
func Wrap(p llmrelay.Provider, opts ...Option) *Provider {
	c := config{}
	for _, opt := range opts {
		opt(&c)
	}
	if c.tp == nil {
		c.tp = otel.GetTracerProvider()
	}
	return &Provider{next: p, tracer: c.tp.Tracer(instrumentationName)}
}

// Wrapper adapts Wrap to service.WithProviderWrapper.
func Wrapper(opts ...Option) func(llmrelay.Provider) llmrelay.Provider {
	return func(p llmrelay.Provider) llmrelay.Provider { return Wrap(p, opts...) }
}

// ID implements llmrelay.Provider.
func (p *Provider) ID() llmrelay.ProviderID { return p.next.ID() }

// Unwrap returns the decorated provider.
func (p *Provider) Unwrap() llmrelay.Provider { return p.next }

// GenerateContent implements llmrelay.Provider.
func (p *Provider) GenerateContent(ctx context.Context, req llmrelay.Request) (*llmrelay.Response, error) {
	ctx, span := p.start(ctx, "llmrelay.generate_content", req)
	defer span.End()
	resp, err := p.next.GenerateContent(ctx, req)
	if err != nil {
		recordError(span, err)
		return nil, err
	}
	if resp.Model != "" {
		span.SetAttributes(AttrModel.String(resp.Model))
	}
	if resp.FinishReason != "" {
		span.SetAttributes(AttrFinishReason.String(resp.FinishReason))
	}
	if u := resp.Usage; u != nil {
		span.SetAttributes(
			AttrPromptTokens.Int64(u.PromptTokens),
			AttrCompletionTokens.Int64(u.CompletionTokens),
			AttrTotalTokens.Int64(u.TotalTokens),
		)
	}
	span.SetStatus(codes.Ok, "")
	return resp, nil
}

// GenerateJSON implements llmrelay.Provider.
func (p *Provider) GenerateJSON(ctx context.Context, req llmrelay.Request) (any, error) {
	ctx, span := p.start(ctx, "llmrelay.generate_json", req)
	defer span.End()
	v, err := p.next.GenerateJSON(ctx, req)
	if err != nil {
		recordError(span, err)
		return nil, err
	}
	span.SetStatus(codes.Ok, "")
	return v, nil
}

func (p *Provider) start(ctx context.Context, name string, req llmrelay.Request) (context.Context, trace.Span) {
	return p.tracer.Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			AttrProvider.String(string(p.next.ID())),
			AttrPromptChars.Int(len(req.SystemInstruction)+len(req.UserPrompt)),
			AttrHasSchema.Bool(len(req.ResponseSchema) > 0),
		),
	)
}

func recordError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, llmrelay.UserMessage(err))
	span.SetAttributes(AttrErrorKind.String(llmrelay.ErrorKind(err)))
	var sc interface{ HTTPStatus() int }
	if errors.As(err, &sc) && sc.HTTPStatus() > 0 {
		span.SetAttributes(AttrHTTPStatus.Int(sc.HTTPStatus()))
	}
}
