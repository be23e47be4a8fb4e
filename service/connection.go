package service

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/skosovsky/llmrelay"
	"github.com/skosovsky/llmrelay/adapter"
	"github.com/skosovsky/llmrelay/internal/table"
	"github.com/skosovsky/llmrelay/retry"
)

// DefaultProbeConcurrency bounds TestAll fan-out.
const DefaultProbeConcurrency = 4

const (
	probeSystem = "You are a connectivity check. Answer with JSON only."
	probePrompt = `Reply with {"status": "ok"}.`
)

var probeSchema = llmrelay.Schema{
	"type": "object",
	"properties": map[string]any{
		"status": map[string]any{"type": "string", "enum": []any{"ok"}},
	},
	"required": []any{"status"},
}

// ConnectionResult is the outcome of one connectivity probe.
type ConnectionResult struct {
	Provider llmrelay.ProviderID
	Model    string
	Latency  time.Duration
	OK       bool
	Err      error
}

// TestConnection probes the active provider.
func (s *Service) TestConnection(ctx context.Context) ConnectionResult {
	cfg := s.src.Get()
	pc, ok := cfg.Active()
	if !ok {
		pc = llmrelay.ProviderConfig{Provider: cfg.Provider}
	}
	return s.TestProvider(ctx, pc)
}

// TestProvider sends a tiny JSON request through a fresh, uncached adapter for pc and
// checks the model answered {"status":"ok"}. The probe is not retried.
func (s *Service) TestProvider(ctx context.Context, pc llmrelay.ProviderConfig) ConnectionResult {
	res := ConnectionResult{Provider: pc.Provider, Model: pc.Model}
	if _, err := llmrelay.ParseProviderID(string(pc.Provider)); err != nil {
		res.Err = err
		return res
	}
	if err := adapter.CheckConfig(pc); err != nil {
		res.Err = err
		return res
	}
	p, err := s.build(pc)
	if err != nil {
		res.Err = err
		return res
	}
	log := s.callLogger(p)
	start := time.Now()
	v, err := s.generate(ctx, p, log, llmrelay.Request{
		SystemInstruction: probeSystem,
		UserPrompt:        probePrompt,
		ResponseSchema:    probeSchema,
	}, retry.Policy{MaxAttempts: 1})
	res.Latency = time.Since(start)
	if err != nil {
		res.Err = err
		return res
	}
	obj, _ := v.(map[string]any)
	status, _ := obj["status"].(string)
	if !strings.EqualFold(status, "ok") {
		res.Err = fmt.Errorf("%w: %s answered %v instead of status ok", llmrelay.ErrValidation, pc.Provider.DisplayName(), v)
		return res
	}
	res.OK = true
	return res
}

// TestAll probes ids concurrently (every provider when ids is empty). Results follow
// the order of ids. Providers missing from the configuration are reported as failures.
func (s *Service) TestAll(ctx context.Context, ids []llmrelay.ProviderID) []ConnectionResult {
	cfg := s.src.Get()
	if len(ids) == 0 {
		ids = llmrelay.Providers()
	}
	results := make([]ConnectionResult, len(ids))
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(DefaultProbeConcurrency)
	for i, id := range ids {
		g.Go(func() error {
			pc, ok := cfg.Providers[id]
			var r ConnectionResult
			if !ok {
				r = ConnectionResult{Provider: id, Err: &llmrelay.ConfigurationError{
					Provider: id,
					Problems: []string{id.DisplayName() + " is not configured"},
				}}
			} else {
				pc.Provider = id
				r = s.TestProvider(gctx, pc)
			}
			mu.Lock()
			results[i] = r
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// Configured lists the providers of cfg that pass configuration checks, in
// llmrelay.Providers order.
func Configured(cfg llmrelay.Config) []llmrelay.ProviderID {
	var out []llmrelay.ProviderID
	for _, id := range llmrelay.Providers() {
		pc, ok := cfg.Providers[id]
		if !ok {
			continue
		}
		pc.Provider = id
		if adapter.CheckConfig(pc) == nil {
			out = append(out, id)
		}
	}
	return out
}

// WriteResults prints results as an aligned table.
func WriteResults(w io.Writer, results []ConnectionResult) error {
	t := table.New(w, "PROVIDER", "MODEL", "LATENCY", "RESULT")
	for _, r := range results {
		outcome := "ok"
		if !r.OK {
			outcome = "failed: " + llmrelay.UserMessage(r.Err)
		}
		t.Append([]string{r.Provider.DisplayName(), r.Model, r.Latency.Round(time.Millisecond).String(), outcome})
	}
	t.Render()
	return nil
}
