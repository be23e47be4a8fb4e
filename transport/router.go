package transport

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/skosovsky/llmrelay"
)

// Paths served by the proxies (see package proxy).
const (
	SameOriginProxyPath = "/api/llm-proxy"
	CompanionTestPath   = "/api/anthropic/test"
	CompanionProxyPath  = "/api/anthropic/messages"
)

// DefaultCompanionURL is where the local companion proxy listens.
const DefaultCompanionURL = "http://localhost:3001"

// DefaultProbeTimeout bounds the companion availability check.
const DefaultProbeTimeout = 500 * time.Millisecond

var restricted = []llmrelay.ProviderID{
	llmrelay.Anthropic, llmrelay.OpenAI, llmrelay.Mistral, llmrelay.DeepSeek,
	llmrelay.Qwen, llmrelay.XAI, llmrelay.Groq,
}

// IsRestricted reports whether p rejects browser-origin requests.
func IsRestricted(p llmrelay.ProviderID) bool {
	return slices.Contains(restricted, p)
}

// Restricted returns the CORS-restricted providers.
func Restricted() []llmrelay.ProviderID {
	return slices.Clone(restricted)
}

// Mode is how a call reaches the provider.
type Mode int

const (
	Direct Mode = iota
	SameOriginProxy
	CompanionProxy
)

// String implements fmt.Stringer.
func (m Mode) String() string {
	switch m {
	case SameOriginProxy:
		return "same-origin-proxy"
	case CompanionProxy:
		return "companion-proxy"
	default:
		return "direct"
	}
}

// Route is a routing decision. URL is the effective endpoint.
type Route struct {
	Mode Mode
	URL  *url.URL
}

// Router routes provider calls. It is safe for concurrent use.
type Router struct {
	detector     Detector
	companion    *url.URL
	probeTimeout time.Duration
	probeClient  *http.Client
	logger       *slog.Logger
}

// Option configures a Router.
type Option func(*Router)

// WithCompanionURL sets the local companion proxy base URL. Invalid values are ignored.
func WithCompanionURL(raw string) Option {
	return func(r *Router) {
		if u, err := url.Parse(strings.TrimSuffix(raw, "/")); err == nil && u.Scheme != "" {
			r.companion = u
		}
	}
}

// WithProbeTimeout sets the companion probe timeout. Non-positive values are ignored.
func WithProbeTimeout(d time.Duration) Option {
	return func(r *Router) {
		if d > 0 {
			r.probeTimeout = d
		}
	}
}

// WithProbeClient sets the HTTP client used for probing. Nil is ignored.
func WithProbeClient(c *http.Client) Option {
	return func(r *Router) {
		if c != nil {
			r.probeClient = c
		}
	}
}

// WithLogger sets the logger. Nil means slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(r *Router) { r.logger = l }
}

// NewRouter returns a Router using d for environment detection. Nil d means Standalone.
func NewRouter(d Detector, opts ...Option) *Router {
	if d == nil {
		d = StaticDetector{Kind: Standalone}
	}
	companion, _ := url.Parse(DefaultCompanionURL)
	r := &Router{
		detector:     d,
		companion:    companion,
		probeTimeout: DefaultProbeTimeout,
		probeClient:  http.DefaultClient,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	return r
}

// Route decides how a call to target reaches provider. Unrestricted providers and the
// Standalone environment always go direct. A Local anthropic call without a running
// companion proxy fails with *llmrelay.ConfigurationError wrapping ErrProxyUnavailable.
func (r *Router) Route(ctx context.Context, provider llmrelay.ProviderID, target *url.URL) (Route, error) {
	direct := Route{Mode: Direct, URL: target}
	if !IsRestricted(provider) {
		return direct, nil
	}
	env := r.detector.Detect(ctx)
	switch env.Kind {
	case Deployed:
		if env.Origin == nil {
			return Route{}, &llmrelay.ConfigurationError{Provider: provider, Problems: []string{"deployed environment has no origin for the proxy"}}
		}
		u := endpoint(env.Origin, SameOriginProxyPath)
		u.RawQuery = url.Values{"provider": {string(provider)}}.Encode()
		return Route{Mode: SameOriginProxy, URL: u}, nil
	case Local:
		if provider != llmrelay.Anthropic {
			r.logger.WarnContext(ctx, "llmrelay.direct_call_may_hit_cors", "provider", provider)
			return direct, nil
		}
		if !r.Probe(ctx) {
			return Route{}, &llmrelay.ConfigurationError{
				Provider: provider,
				Problems: []string{fmt.Sprintf(
					"CORS blocks direct calls and the local proxy at %s is not running, start it with `relayctl proxy` in another terminal",
					r.companion)},
				Err: llmrelay.ErrProxyUnavailable,
			}
		}
		return Route{Mode: CompanionProxy, URL: endpoint(r.companion, CompanionProxyPath)}, nil
	}
	return direct, nil
}

// Probe reports whether the companion proxy answers its test endpoint within the probe
// timeout.
func (r *Router) Probe(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, r.probeTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint(r.companion, CompanionTestPath).String(), nil)
	if err != nil {
		return false
	}
	resp, err := r.probeClient.Do(req) // #nosec G107 -- companion URL comes from configuration
	if err != nil {
		r.logger.DebugContext(ctx, "llmrelay.companion_probe_failed", "error", err)
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

// endpoint returns base with path appended to its path. The result always has a rooted
// path, so it can be sent as a request URL without re-parsing.
func endpoint(base *url.URL, path string) *url.URL {
	u := *base
	u.User = nil
	u.Path = strings.TrimSuffix(u.Path, "/") + path
	u.RawPath = ""
	u.RawQuery = ""
	u.Fragment = ""
	return &u
}

// RoundTripper returns a transport that applies Route to every request for provider.
// Nil base means http.DefaultTransport.
func (r *Router) RoundTripper(provider llmrelay.ProviderID, base http.RoundTripper) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return &routingTransport{router: r, provider: provider, base: base}
}

type routingTransport struct {
	router   *Router
	provider llmrelay.ProviderID
	base     http.RoundTripper
}

func (t *routingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	route, err := t.router.Route(req.Context(), t.provider, req.URL)
	if err != nil {
		if req.Body != nil {
			_ = req.Body.Close()
		}
		return nil, err
	}
	if route.Mode == Direct {
		return t.base.RoundTrip(req)
	}
	out := req.Clone(req.Context())
	out.URL = route.URL
	out.Host = ""
	if route.Mode == SameOriginProxy {
		key := out.Header.Get("X-Api-Key")
		if key == "" {
			key = out.Header.Get("Authorization")
		}
		out.Header.Del("Authorization")
		out.Header.Set("X-Api-Key", key)
		out.Method = http.MethodPost
	}
	t.router.logger.DebugContext(req.Context(), "llmrelay.routed",
		"provider", t.provider, "mode", route.Mode.String(), "url", route.URL.String())
	return t.base.RoundTrip(out)
}
