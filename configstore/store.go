package configstore

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/skosovsky/llmrelay"
)

// ErrInvalidFile is returned when a configuration file cannot be decoded.
var ErrInvalidFile = errors.New("configstore: invalid configuration file")

// Store holds the current configuration and publishes changes. Safe for concurrent use.
type Store struct {
	mu        sync.RWMutex
	cfg       llmrelay.Config
	listeners map[int]func(llmrelay.Config)
	nextID    int
	logger    *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger. Default slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// New returns a Store holding a copy of cfg. Providers missing from cfg get their defaults.
func New(cfg llmrelay.Config, opts ...Option) *Store {
	s := &Store{cfg: withDefaults(cfg), listeners: make(map[int]func(llmrelay.Config))}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

func withDefaults(cfg llmrelay.Config) llmrelay.Config {
	out := cfg.Clone()
	if out.Provider == "" {
		out.Provider = DefaultProvider
	}
	for _, id := range llmrelay.Providers() {
		if _, ok := out.Providers[id]; !ok {
			pc, _ := DefaultFor(id)
			out.Providers[id] = pc
		}
	}
	return out
}

// Get returns a deep copy of the current configuration.
func (s *Store) Get() llmrelay.Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.Clone()
}

// Active returns the selected provider's settings.
func (s *Store) Active() llmrelay.ProviderConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pc, _ := s.cfg.Active()
	return pc.Clone()
}

// Set replaces the whole configuration and notifies subscribers.
func (s *Store) Set(cfg llmrelay.Config) error {
	if err := checkProviders(cfg); err != nil {
		return err
	}
	s.mu.Lock()
	s.cfg = withDefaults(cfg)
	s.mu.Unlock()
	s.notify()
	return nil
}

// Update applies fn to a copy of the configuration, stores the result and notifies
// subscribers. A result naming an unknown provider is rejected and nothing changes.
func (s *Store) Update(fn func(*llmrelay.Config)) error {
	s.mu.Lock()
	next := s.cfg.Clone()
	fn(&next)
	if err := checkProviders(next); err != nil {
		s.mu.Unlock()
		return err
	}
	s.cfg = withDefaults(next)
	s.mu.Unlock()
	s.notify()
	return nil
}

// Select makes id the active provider.
func (s *Store) Select(id llmrelay.ProviderID) error {
	return s.Update(func(c *llmrelay.Config) { c.Provider = id })
}

// SetProvider overlays the non-empty fields of pc on the settings of provider id.
func (s *Store) SetProvider(id llmrelay.ProviderID, pc llmrelay.ProviderConfig) error {
	return s.Update(func(c *llmrelay.Config) {
		next := merge(c.Providers[id], pc.Clone())
		next.Provider = id
		c.Providers[id] = next
	})
}

// Subscribe registers fn to receive a snapshot after every change. fn runs on the
// goroutine that made the change. The returned func unsubscribes.
func (s *Store) Subscribe(fn func(llmrelay.Config)) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.listeners, id)
			s.mu.Unlock()
		})
	}
}

// Validate checks the active provider's settings. It returns *llmrelay.ConfigurationError
// listing every problem, or nil.
func (s *Store) Validate() error {
	return Validate(s.Get())
}

// Validate checks the active provider of cfg.
func Validate(cfg llmrelay.Config) error {
	if _, err := llmrelay.ParseProviderID(string(cfg.Provider)); err != nil {
		return &llmrelay.ConfigurationError{Problems: []string{err.Error()}, Err: llmrelay.ErrUnsupportedProvider}
	}
	pc, ok := cfg.Active()
	if !ok {
		pc = llmrelay.ProviderConfig{Provider: cfg.Provider}
	}
	if problems := pc.Validate(); len(problems) > 0 {
		return &llmrelay.ConfigurationError{Provider: cfg.Provider, Problems: problems}
	}
	return nil
}

func (s *Store) notify() {
	s.mu.RLock()
	snapshot := s.cfg.Clone()
	fns := make([]func(llmrelay.Config), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.mu.RUnlock()
	s.logger.Debug("llmrelay.config_changed", "provider", snapshot.Provider, "listeners", len(fns))
	for _, fn := range fns {
		fn(snapshot.Clone())
	}
}

func checkProviders(cfg llmrelay.Config) error {
	if cfg.Provider != "" {
		if _, err := llmrelay.ParseProviderID(string(cfg.Provider)); err != nil {
			return err
		}
	}
	for id := range cfg.Providers {
		if _, err := llmrelay.ParseProviderID(string(id)); err != nil {
			return err
		}
	}
	return nil
}
