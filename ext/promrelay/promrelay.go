// Package promrelay decorates a llmrelay.Provider with Prometheus metrics.
//
// Plug it into the service with service.WithProviderWrapper(m.Wrapper()), where m comes
// from New. Labels are bounded: provider id, operation, and the error kind of
// llmrelay.ErrorKind ("ok" on success).
package promrelay

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/skosovsky/llmrelay"
)

const namespace = "llmrelay"

// Operation label values.
const (
	OpGenerateContent = "generate_content"
	OpGenerateJSON    = "generate_json"
)

// Metrics holds the collectors shared by every wrapped provider.
type Metrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	tokens   *prometheus.CounterVec
}

// New creates the collectors and registers them with reg. Nil reg means
// prometheus.DefaultRegisterer.
func New(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_requests_total",
			Help:      "Provider calls by provider, operation and outcome.",
		}, []string{"provider", "operation", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provider_request_duration_seconds",
			Help:      "Latency of provider calls.",
			Buckets:   []float64{0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"provider", "operation"}),
		tokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_tokens_total",
			Help:      "Tokens reported (or estimated) by providers.",
		}, []string{"provider", "direction"}),
	}
	for _, c := range []prometheus.Collector{m.requests, m.duration, m.tokens} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Wrap returns p decorated with m.
func (m *Metrics) Wrap(p llmrelay.Provider) *Provider {
	return &Provider{next: p, m: m, now: time.Now}
}

// Wrapper adapts Wrap to service.WithProviderWrapper.
func (m *Metrics) Wrapper() func(llmrelay.Provider) llmrelay.Provider {
	return func(p llmrelay.Provider) llmrelay.Provider { return m.Wrap(p) }
}

var _ llmrelay.Provider = (*Provider)(nil)

// Provider records metrics for every call of the wrapped provider.
type Provider struct {
	next llmrelay.Provider
	m    *Metrics
	now  func() time.Time
}

// ID implements llmrelay.Provider.
func (p *Provider) ID() llmrelay.ProviderID { return p.next.ID() }

// Unwrap returns the decorated provider.
func (p *Provider) Unwrap() llmrelay.Provider { return p.next }

// GenerateContent implements llmrelay.Provider.
func (p *Provider) GenerateContent(ctx context.Context, req llmrelay.Request) (*llmrelay.Response, error) {
	start := p.now()
	resp, err := p.next.GenerateContent(ctx, req)
	p.observe(OpGenerateContent, start, err)
	if err == nil && resp.Usage != nil {
		id := string(p.next.ID())
		p.m.tokens.WithLabelValues(id, "prompt").Add(float64(resp.Usage.PromptTokens))
		p.m.tokens.WithLabelValues(id, "completion").Add(float64(resp.Usage.CompletionTokens))
	}
	return resp, err
}

// GenerateJSON implements llmrelay.Provider.
func (p *Provider) GenerateJSON(ctx context.Context, req llmrelay.Request) (any, error) {
	start := p.now()
	v, err := p.next.GenerateJSON(ctx, req)
	p.observe(OpGenerateJSON, start, err)
	return v, err
}

func (p *Provider) observe(op string, start time.Time, err error) {
	id := string(p.next.ID())
	outcome := "ok"
	if err != nil {
		outcome = llmrelay.ErrorKind(err)
	}
	p.m.requests.WithLabelValues(id, op, outcome).Inc()
	p.m.duration.WithLabelValues(id, op).Observe(p.now().Sub(start).Seconds())
}
