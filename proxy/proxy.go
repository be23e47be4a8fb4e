package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"github.com/skosovsky/llmrelay"
	"github.com/skosovsky/llmrelay/adapter/anthropic"
	"github.com/skosovsky/llmrelay/adapter/openai"
	"github.com/skosovsky/llmrelay/transport"
)

// AnthropicVersion is sent when the caller does not choose one.
const AnthropicVersion = "2023-06-01"

// DefaultMaxBodyBytes bounds a forwarded request body.
const DefaultMaxBodyBytes = 50 << 20

// DefaultAddr is where the companion proxy listens.
const DefaultAddr = "localhost:3001"

const requestIDHeader = "X-Request-Id"

// Server forwards browser calls to CORS-restricted providers. Safe for concurrent use.
type Server struct {
	upstreams map[llmrelay.ProviderID]string
	anthropic string // base of the companion routes, e.g. https://api.anthropic.com/v1
	client    *http.Client
	maxBody   int64
	logger    *slog.Logger
	registry  *prometheus.Registry
	metrics   *metrics
}

type metrics struct {
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

// MetricsPath serves Prometheus metrics when WithMetrics is set.
const MetricsPath = "/metrics"

// Option configures a Server.
type Option func(*Server)

// WithUpstream overrides the endpoint requests for provider are forwarded to. For
// Anthropic it also moves the companion routes to the same host.
func WithUpstream(provider llmrelay.ProviderID, endpoint string) Option {
	return func(s *Server) {
		s.upstreams[provider] = endpoint
		if provider == llmrelay.Anthropic {
			s.anthropic = strings.TrimSuffix(endpoint, "/messages")
		}
	}
}

// WithHTTPClient sets the client for upstream calls. Nil is ignored.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Server) {
		if c != nil {
			s.client = c
		}
	}
}

// WithMaxBodyBytes bounds request bodies. Non-positive values are ignored.
func WithMaxBodyBytes(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxBody = n
		}
	}
}

// WithLogger sets the logger. Nil means slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithMetrics counts forwarded requests in reg and serves reg on MetricsPath.
func WithMetrics(reg *prometheus.Registry) Option {
	return func(s *Server) { s.registry = reg }
}

// New returns a Server forwarding to the public endpoints of every CORS-restricted
// provider.
func New(opts ...Option) *Server {
	s := &Server{
		upstreams: make(map[llmrelay.ProviderID]string),
		anthropic: anthropic.DefaultBaseURL + "/v1",
		client:    &http.Client{Timeout: 3 * time.Minute},
		maxBody:   DefaultMaxBodyBytes,
	}
	for _, id := range transport.Restricted() {
		if id == llmrelay.Anthropic {
			s.upstreams[id] = s.anthropic + "/messages"
			continue
		}
		s.upstreams[id] = openai.APIBase(id, "") + "/chat/completions"
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.registry != nil {
		m, err := newMetrics(s.registry)
		if err != nil {
			s.logger.Warn("llmrelay.proxy_metrics_disabled", "error", err)
		}
		s.metrics = m
	}
	return s
}

func newMetrics(reg prometheus.Registerer) (*metrics, error) {
	m := &metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "llmrelay",
			Subsystem: "proxy",
			Name:      "requests_total",
			Help:      "Forwarded requests by provider and upstream status (\"error\" when the upstream was unreachable).",
		}, []string{"provider", "code"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "llmrelay",
			Subsystem: "proxy",
			Name:      "upstream_duration_seconds",
			Help:      "Time until the upstream answered.",
			Buckets:   prometheus.ExponentialBuckets(0.25, 2, 10),
		}, []string{"provider"}),
	}
	for _, c := range []prometheus.Collector{m.requests, m.latency} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *metrics) observe(provider llmrelay.ProviderID, code string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(string(provider), code).Inc()
	if code != "error" {
		m.latency.WithLabelValues(string(provider)).Observe(elapsed.Seconds())
	}
}

// Handler returns the routes wrapped in CORS and request-id handling.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(transport.SameOriginProxyPath, s.handleProxy)
	mux.HandleFunc("GET "+transport.CompanionTestPath, s.handleCompanionTest)
	mux.HandleFunc("POST /api/anthropic/{endpoint...}", s.handleCompanion)
	if s.metrics != nil {
		mux.Handle("GET "+MetricsPath, promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	}
	return s.withRequestID(corsPolicy.Handler(mux))
}

// ListenAndServe serves Handler on addr until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("proxy: listen on %s: %w", addr, err)
	}
	s.logger.InfoContext(ctx, "llmrelay.proxy_listening", "addr", ln.Addr().String())

	done := make(chan struct{})
	go func() {
		defer close(done)
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	err = srv.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		<-done
		return nil
	}
	return err
}

// Providers lists the providers the same-origin route accepts, sorted.
func (s *Server) Providers() []string {
	out := make([]string, 0, len(s.upstreams))
	for id := range s.upstreams {
		out = append(out, string(id))
	}
	slices.Sort(out)
	return out
}

func (s *Server) handleProxy(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"error": "Method not allowed"})
		return
	}
	raw := r.URL.Query().Get("provider")
	if raw == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Provider parameter is required"})
		return
	}
	provider := llmrelay.ProviderID(raw)
	target, ok := s.upstreams[provider]
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":              "Unsupported provider: " + raw,
			"supportedProviders": s.Providers(),
		})
		return
	}
	key := r.Header.Get("X-Api-Key")
	if key == "" {
		key = r.Header.Get("Authorization")
	}
	if strings.TrimSpace(key) == "" {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "API key is required"})
		return
	}

	h := http.Header{}
	h.Set("Content-Type", "application/json")
	if provider == llmrelay.Anthropic {
		h.Set("X-Api-Key", strings.TrimPrefix(key, "Bearer "))
		h.Set("Anthropic-Version", versionOr(r.Header.Get("Anthropic-Version")))
	} else {
		if !strings.HasPrefix(key, "Bearer ") {
			key = "Bearer " + key
		}
		h.Set("Authorization", key)
	}
	s.forward(w, r, provider, target, h)
}

func (s *Server) handleCompanionTest(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "message": "Anthropic proxy is running"})
}

func (s *Server) handleCompanion(w http.ResponseWriter, r *http.Request) {
	endpoint := strings.Trim(r.PathValue("endpoint"), "/")
	if endpoint == "" {
		endpoint = "messages"
	}
	key := strings.TrimPrefix(r.Header.Get("X-Api-Key"), "Bearer ")
	if key == "" {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "API key is required"})
		return
	}
	h := http.Header{}
	h.Set("Content-Type", "application/json")
	h.Set("X-Api-Key", key)
	h.Set("Anthropic-Version", versionOr(r.Header.Get("Anthropic-Version")))
	if beta := r.Header.Get("Anthropic-Beta"); beta != "" {
		h.Set("Anthropic-Beta", beta)
	}
	s.forward(w, r, llmrelay.Anthropic, s.anthropic+"/"+endpoint, h)
}

func (s *Server) forward(w http.ResponseWriter, r *http.Request, provider llmrelay.ProviderID, target string, h http.Header) {
	ctx := r.Context()
	log := s.logger.With("request_id", w.Header().Get(requestIDHeader), "provider", provider)

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]any{"error": "Request body too large"})
			return
		}
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Cannot read request body"})
		return
	}
	if !json.Valid(body) {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Request body must be JSON"})
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		s.internalError(w, log, err)
		return
	}
	req.Header = h
	log.DebugContext(ctx, "llmrelay.proxy_forward", "url", target, llmrelay.RedactHeaders(h))

	start := time.Now()
	resp, err := s.client.Do(req) // #nosec G107 -- targets come from the upstream table
	if err != nil {
		s.metrics.observe(provider, "error", 0)
		s.internalError(w, log, err)
		return
	}
	defer func() { _ = resp.Body.Close() }()
	s.metrics.observe(provider, strconv.Itoa(resp.StatusCode), time.Since(start))

	if ct := resp.Header.Get("Content-Type"); ct != "" {
		w.Header().Set("Content-Type", ct)
	} else {
		w.Header().Set("Content-Type", "application/json")
	}
	w.WriteHeader(resp.StatusCode)
	n, copyErr := io.Copy(w, resp.Body)
	attrs := []any{"status", resp.StatusCode, "bytes", n, "latency_ms", time.Since(start).Milliseconds()}
	switch {
	case copyErr != nil:
		log.WarnContext(ctx, "llmrelay.proxy_copy_failed", append(attrs, "error", copyErr)...)
	case resp.StatusCode >= 400:
		log.WarnContext(ctx, "llmrelay.proxy_upstream_error", attrs...)
	default:
		log.InfoContext(ctx, "llmrelay.proxy_forwarded", attrs...)
	}
}

func (s *Server) internalError(w http.ResponseWriter, log *slog.Logger, err error) {
	log.Error("llmrelay.proxy_failed", "error", err)
	writeJSON(w, http.StatusInternalServerError, map[string]any{
		"error":   "Internal proxy error",
		"message": err.Error(),
	})
}

func (s *Server) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r)
	})
}

var corsPolicy = cors.New(cors.Options{
	AllowedOrigins: []string{"*"},
	AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
	AllowedHeaders: []string{"Content-Type", "Authorization", "X-Api-Key", "Anthropic-Version"},
	ExposedHeaders: []string{requestIDHeader},
})

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func versionOr(v string) string {
	if v == "" {
		return AnthropicVersion
	}
	return v
}
