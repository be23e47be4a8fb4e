package configstore

import (
	"fmt"
	"io/fs"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/skosovsky/llmrelay"
)

// fileConfig is the YAML shape of a configuration file.
type fileConfig struct {
	Provider  string                             `yaml:"provider"`
	Providers map[string]llmrelay.ProviderConfig `yaml:"providers"`
}

// Parse decodes YAML data and overlays it on Default. Unknown provider names fail.
// A Gemini model carrying the retired "-latest" suffix is cleaned.
func Parse(data []byte) (llmrelay.Config, error) {
	var f fileConfig
	if err := yaml.Unmarshal(data, &f); err != nil {
		return llmrelay.Config{}, fmt.Errorf("%w: %w", ErrInvalidFile, err)
	}
	cfg := Default()
	if f.Provider != "" {
		id, err := llmrelay.ParseProviderID(f.Provider)
		if err != nil {
			return llmrelay.Config{}, fmt.Errorf("%w: provider: %w", ErrInvalidFile, err)
		}
		cfg.Provider = id
	}
	for name, pc := range f.Providers {
		id, err := llmrelay.ParseProviderID(name)
		if err != nil {
			return llmrelay.Config{}, fmt.Errorf("%w: providers: %w", ErrInvalidFile, err)
		}
		cfg.Providers[id] = merge(cfg.Providers[id], pc)
	}
	cleanGeminiModel(&cfg)
	return cfg, nil
}

// LoadFile reads and parses a configuration file.
func LoadFile(path string) (llmrelay.Config, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path is chosen by the operator
	if err != nil {
		return llmrelay.Config{}, fmt.Errorf("configstore: read file: %w", err)
	}
	return Parse(data)
}

// LoadFS reads and parses a configuration file from fsys.
func LoadFS(fsys fs.FS, name string) (llmrelay.Config, error) {
	data, err := fs.ReadFile(fsys, name)
	if err != nil {
		return llmrelay.Config{}, fmt.Errorf("configstore: read fs: %w", err)
	}
	return Parse(data)
}

// Marshal encodes cfg as YAML. With redact, API keys are masked with llmrelay.RedactKey.
func Marshal(cfg llmrelay.Config, redact bool) ([]byte, error) {
	f := fileConfig{Provider: string(cfg.Provider), Providers: make(map[string]llmrelay.ProviderConfig, len(cfg.Providers))}
	for id, pc := range cfg.Providers {
		if redact {
			pc.APIKey = llmrelay.RedactKey(pc.APIKey)
		}
		f.Providers[string(id)] = pc
	}
	return yaml.Marshal(f)
}

// EnvPrefix is the prefix of provider-specific environment variables, e.g.
// ANTHROPIC_API_KEY or LMSTUDIO_BASE_URL.
func EnvPrefix(id llmrelay.ProviderID) string {
	return strings.ToUpper(string(id)) + "_"
}

// EnvMap converts os.Environ()-style entries to a map.
func EnvMap(environ []string) map[string]string {
	out := make(map[string]string, len(environ))
	for _, kv := range environ {
		if k, v, ok := strings.Cut(kv, "="); ok {
			out[k] = v
		}
	}
	return out
}

// ApplyEnv overlays environment settings on cfg and returns the result:
// LLMRELAY_PROVIDER selects the provider; <PROVIDER>_API_KEY, <PROVIDER>_BASE_URL and
// <PROVIDER>_MODEL override one provider. API_KEY is accepted as the Gemini key.
// An unknown LLMRELAY_PROVIDER value fails.
func ApplyEnv(cfg llmrelay.Config, env map[string]string) (llmrelay.Config, error) {
	cfg = cfg.Clone()
	if p := strings.TrimSpace(env["LLMRELAY_PROVIDER"]); p != "" {
		id, err := llmrelay.ParseProviderID(p)
		if err != nil {
			return llmrelay.Config{}, fmt.Errorf("configstore: LLMRELAY_PROVIDER: %w", err)
		}
		cfg.Provider = id
	}
	for _, id := range llmrelay.Providers() {
		prefix := EnvPrefix(id)
		override := llmrelay.ProviderConfig{
			APIKey:  env[prefix+"API_KEY"],
			BaseURL: env[prefix+"BASE_URL"],
			Model:   env[prefix+"MODEL"],
		}
		if id == llmrelay.Gemini && override.APIKey == "" {
			override.APIKey = env["API_KEY"]
		}
		pc := merge(cfg.Providers[id], override)
		pc.Provider = id
		cfg.Providers[id] = pc
	}
	cleanGeminiModel(&cfg)
	return cfg, nil
}

func cleanGeminiModel(cfg *llmrelay.Config) {
	if pc, ok := cfg.Providers[llmrelay.Gemini]; ok && strings.Contains(pc.Model, "-latest") {
		pc.Model = strings.Replace(pc.Model, "-latest", "", 1)
		cfg.Providers[llmrelay.Gemini] = pc
	}
}
