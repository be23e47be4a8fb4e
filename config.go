package llmrelay

import (
	"maps"
	"strings"
)

// ProviderConfig holds credentials and model selection for one provider.
// Options may carry overrides read by adapter.ExtractModelConfig
// ("temperature", "max_tokens", "top_p", "stop").
type ProviderConfig struct {
	Provider ProviderID     `yaml:"-" json:"-"`
	APIKey   string         `yaml:"api_key,omitempty" json:"apiKey,omitempty"`
	BaseURL  string         `yaml:"base_url,omitempty" json:"baseUrl,omitempty"`
	Model    string         `yaml:"model,omitempty" json:"model,omitempty"`
	Options  map[string]any `yaml:"options,omitempty" json:"options,omitempty"`
}

// Validate returns human-readable problems that prevent a call. Empty means usable.
// Cloud providers need an API key, local providers a base URL; every provider needs a model.
func (c ProviderConfig) Validate() []string {
	var problems []string
	name := c.Provider.DisplayName()
	if c.Provider.IsLocal() {
		if strings.TrimSpace(c.BaseURL) == "" {
			problems = append(problems, name+" base URL is missing")
		}
	} else if strings.TrimSpace(c.APIKey) == "" {
		problems = append(problems, name+" API key is missing")
	}
	if strings.TrimSpace(c.Model) == "" {
		problems = append(problems, name+" model is not set")
	}
	return problems
}

// Clone returns a copy with its own Options map.
func (c ProviderConfig) Clone() ProviderConfig {
	if c.Options != nil {
		c.Options = maps.Clone(c.Options)
	}
	return c
}

// Config is the snapshot published by the configuration store: the selected provider and
// the settings of every known provider.
type Config struct {
	Provider  ProviderID
	Providers map[ProviderID]ProviderConfig
}

// Active returns the selected provider's settings. ok is false when none are registered.
func (c Config) Active() (ProviderConfig, bool) {
	pc, ok := c.Providers[c.Provider]
	if ok {
		pc.Provider = c.Provider
	}
	return pc, ok
}

// Clone returns a deep copy so readers can never observe later mutations.
func (c Config) Clone() Config {
	out := Config{Provider: c.Provider, Providers: make(map[ProviderID]ProviderConfig, len(c.Providers))}
	for id, pc := range c.Providers {
		pc = pc.Clone()
		pc.Provider = id
		out.Providers[id] = pc
	}
	return out
}
