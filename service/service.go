package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/skosovsky/llmrelay"
	"github.com/skosovsky/llmrelay/adapter"
	"github.com/skosovsky/llmrelay/retry"
	"github.com/skosovsky/llmrelay/transport"
)

// DefaultTimeout bounds one provider HTTP call when no client is supplied.
const DefaultTimeout = 3 * time.Minute

// ConfigSource is the read side of the configuration store.
type ConfigSource interface {
	Get() llmrelay.Config
	Subscribe(fn func(llmrelay.Config)) (unsubscribe func())
}

// Service runs provider calls for the active configuration. Safe for concurrent use.
type Service struct {
	src         ConfigSource
	unsubscribe func()
	factory     Factory
	router      *transport.Router
	httpClient  *http.Client
	policy      retry.Policy
	sleep       func(context.Context, time.Duration) error
	counter     llmrelay.TokenCounter
	wraps       []func(llmrelay.Provider) llmrelay.Provider
	logger      *slog.Logger

	mu    sync.RWMutex
	cache map[cacheKey]llmrelay.Provider
	gen   uint64 // bumped on every configuration change
	sf    singleflight.Group
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger. Default slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithRouter routes CORS-restricted providers through r.
func WithRouter(r *transport.Router) Option {
	return func(s *Service) { s.router = r }
}

// WithHTTPClient sets the base HTTP client for provider calls.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Service) {
		if c != nil {
			s.httpClient = c
		}
	}
}

// WithRetryPolicy sets the retry policy. Default retry.DefaultPolicy().
func WithRetryPolicy(p retry.Policy) Option {
	return func(s *Service) { s.policy = p }
}

// WithSleep replaces the backoff sleep (tests).
func WithSleep(fn func(context.Context, time.Duration) error) Option {
	return func(s *Service) { s.sleep = fn }
}

// WithFactory replaces DefaultFactory.
func WithFactory(f Factory) Option {
	return func(s *Service) {
		if f != nil {
			s.factory = f
		}
	}
}

// WithTokenCounter sets the counter used to estimate usage when a provider reports none.
func WithTokenCounter(tc llmrelay.TokenCounter) Option {
	return func(s *Service) { s.counter = tc }
}

// WithProviderWrapper decorates every adapter after construction (tracing, metrics).
// Wrappers apply in option order, the first one innermost.
func WithProviderWrapper(fn func(llmrelay.Provider) llmrelay.Provider) Option {
	return func(s *Service) {
		if fn != nil {
			s.wraps = append(s.wraps, fn)
		}
	}
}

// New returns a Service reading src and subscribes to its changes. Call Close to
// unsubscribe. Panics if src is nil.
func New(src ConfigSource, opts ...Option) *Service {
	if src == nil {
		panic("service: ConfigSource must not be nil")
	}
	s := &Service{
		src:     src,
		factory: DefaultFactory,
		policy:  retry.DefaultPolicy(),
		counter: &llmrelay.CharFallbackCounter{},
		cache:   make(map[cacheKey]llmrelay.Provider),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.httpClient == nil {
		s.httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	s.unsubscribe = src.Subscribe(s.onConfigChange)
	return s
}

// Close unsubscribes from the configuration source. It does not cancel running calls.
func (s *Service) Close() {
	s.unsubscribe()
}

// cacheKey identifies an adapter by everything it was built from.
type cacheKey struct {
	provider llmrelay.ProviderID
	model    string
	baseURL  string
	apiKey   string
	options  string
}

func keyOf(pc llmrelay.ProviderConfig) cacheKey {
	k := cacheKey{provider: pc.Provider, model: pc.Model, baseURL: pc.BaseURL, apiKey: pc.APIKey}
	if len(pc.Options) > 0 {
		// fmt prints maps with sorted keys.
		k.options = fmt.Sprint(pc.Options)
	}
	return k
}

// String is the loggable form; the key is redacted.
func (k cacheKey) String() string {
	return fmt.Sprintf("%s|%s|%s|%s|%s", k.provider, k.model, k.baseURL, llmrelay.RedactKey(k.apiKey), k.options)
}

// flight identifies concurrent constructions. Keys sharing a redacted form must not
// share a build, so the full key is hashed.
func (k cacheKey) flight() string {
	sum := sha256.Sum256([]byte(k.apiKey))
	return fmt.Sprintf("%s|%s|%s|%s|%s", k.provider, k.model, k.baseURL, hex.EncodeToString(sum[:]), k.options)
}

// onConfigChange drops every cached adapter not built from the new active settings.
func (s *Service) onConfigChange(cfg llmrelay.Config) {
	pc, _ := cfg.Active()
	keep := keyOf(pc)
	s.mu.Lock()
	s.gen++
	evicted := 0
	for k := range s.cache {
		if k != keep {
			delete(s.cache, k)
			evicted++
		}
	}
	s.mu.Unlock()
	if evicted > 0 {
		s.logger.Info("llmrelay.adapter_cache_invalidated", "provider", pc.Provider, "model", pc.Model, "evicted", evicted)
	}
}

// Active returns the active provider settings, failing with *llmrelay.ConfigurationError
// when they cannot be used.
func (s *Service) Active() (llmrelay.ProviderConfig, error) {
	cfg := s.src.Get()
	if _, err := llmrelay.ParseProviderID(string(cfg.Provider)); err != nil {
		return llmrelay.ProviderConfig{}, &llmrelay.ConfigurationError{Problems: []string{err.Error()}, Err: llmrelay.ErrUnsupportedProvider}
	}
	pc, ok := cfg.Active()
	if !ok {
		pc = llmrelay.ProviderConfig{Provider: cfg.Provider}
	}
	if err := adapter.CheckConfig(pc); err != nil {
		return llmrelay.ProviderConfig{}, err
	}
	return pc, nil
}

// Provider returns the cached adapter for the active configuration, creating it on
// first use. Concurrent first calls share one construction.
func (s *Service) Provider() (llmrelay.Provider, error) {
	pc, err := s.Active()
	if err != nil {
		return nil, err
	}
	return s.providerFor(pc)
}

func (s *Service) providerFor(pc llmrelay.ProviderConfig) (llmrelay.Provider, error) {
	key := keyOf(pc)
	s.mu.RLock()
	p, ok := s.cache[key]
	s.mu.RUnlock()
	if ok {
		return p, nil
	}
	v, err, _ := s.sf.Do(key.flight(), func() (any, error) {
		s.mu.RLock()
		p, ok := s.cache[key]
		gen := s.gen
		s.mu.RUnlock()
		if ok {
			return p, nil
		}
		p, err := s.build(pc)
		if err != nil {
			return nil, err
		}
		s.mu.Lock()
		if s.gen == gen {
			s.cache[key] = p
		}
		s.mu.Unlock()
		s.logger.Debug("llmrelay.adapter_created", "key", key.String())
		return p, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(llmrelay.Provider), nil
}

// build constructs an uncached adapter for pc.
func (s *Service) build(pc llmrelay.ProviderConfig) (llmrelay.Provider, error) {
	p, err := s.factory(pc.Clone(), s.clientFor(pc.Provider), s.logger)
	if err != nil {
		return nil, err
	}
	for _, wrap := range s.wraps {
		p = wrap(p)
	}
	return p, nil
}

// clientFor returns the HTTP client for provider, routed when a router is set and the
// provider is CORS-restricted.
func (s *Service) clientFor(provider llmrelay.ProviderID) *http.Client {
	if s.router == nil || !transport.IsRestricted(provider) {
		return s.httpClient
	}
	c := *s.httpClient
	c.Transport = s.router.RoundTripper(provider, s.httpClient.Transport)
	return &c
}

// cached reports the number of cached adapters.
func (s *Service) cached() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.cache)
}
