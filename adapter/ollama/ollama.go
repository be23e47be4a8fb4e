package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"

	"github.com/skosovsky/llmrelay"
	"github.com/skosovsky/llmrelay/adapter"
)

// Defaults applied when ProviderConfig.Options does not override them.
const (
	DefaultBaseURL           = "http://localhost:11434"
	DefaultModel             = "llama3.3"
	DefaultNumPredict  int64 = 4000
	DefaultTemperature       = 0.2
)

// Adapter talks to the Ollama chat endpoint through the official api client.
type Adapter struct {
	model   string
	baseURL *url.URL
	params  adapter.ModelParams
	client  *api.Client
	logger  *slog.Logger
}

// Option configures an Adapter.
type Option func(*options)

type options struct {
	httpClient *http.Client
	logger     *slog.Logger
}

// WithHTTPClient sets the HTTP client. The bearer key, if any, is added on top of it.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// WithLogger sets the logger. Default slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// New returns an Adapter for cfg. A missing or unparsable base URL fails with
// *llmrelay.ConfigurationError.
func New(cfg llmrelay.ProviderConfig, opts ...Option) (*Adapter, error) {
	cfg.Provider = llmrelay.Ollama
	if err := adapter.CheckConfig(cfg); err != nil {
		return nil, err
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, &llmrelay.ConfigurationError{
			Provider: llmrelay.Ollama,
			Problems: []string{"Ollama base URL " + cfg.BaseURL + " is not a valid URL"},
			Err:      err,
		}
	}
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	hc := o.httpClient
	if hc == nil {
		hc = &http.Client{}
	}
	clone := *hc
	clone.Transport = statusTransport{key: cfg.APIKey, base: hc.Transport}
	return &Adapter{
		model:   cfg.Model,
		baseURL: base,
		params:  adapter.ExtractModelConfig(cfg.Options),
		client:  api.NewClient(base, &clone),
		logger:  o.logger,
	}, nil
}

// statusTransport adds the optional bearer key and stores the answer's HTTP status in
// the holder installed by withStatus. The api client drops the status for some errors.
type statusTransport struct {
	key  string
	base http.RoundTripper
}

type statusKey struct{}

func withStatus(ctx context.Context) (context.Context, *int) {
	status := new(int)
	return context.WithValue(ctx, statusKey{}, status), status
}

func (t statusTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	if t.key != "" {
		req = req.Clone(req.Context())
		req.Header.Set("Authorization", "Bearer "+t.key)
	}
	resp, err := base.RoundTrip(req)
	if status, ok := req.Context().Value(statusKey{}).(*int); ok && resp != nil {
		*status = resp.StatusCode
	}
	return resp, err
}

// ID implements llmrelay.Provider.
func (a *Adapter) ID() llmrelay.ProviderID { return llmrelay.Ollama }

// Model returns the configured model name.
func (a *Adapter) Model() string { return a.model }

// BaseURL returns the server root.
func (a *Adapter) BaseURL() string { return a.baseURL.String() }

// ChatRequest builds the non-streaming /api/chat request for req.
func (a *Adapter) ChatRequest(req llmrelay.Request) *api.ChatRequest {
	stream := false
	messages := make([]api.Message, 0, 2)
	if req.SystemInstruction != "" {
		messages = append(messages, api.Message{Role: "system", Content: req.SystemInstruction})
	}
	messages = append(messages, api.Message{Role: "user", Content: req.UserPrompt})
	options := map[string]any{
		"temperature": a.params.TemperatureOr(DefaultTemperature),
		"num_predict": a.params.MaxTokensOr(DefaultNumPredict),
	}
	if a.params.TopP != nil {
		options["top_p"] = *a.params.TopP
	}
	if a.params.TopK != nil {
		options["top_k"] = int(*a.params.TopK)
	}
	if len(a.params.Stop) > 0 {
		options["stop"] = a.params.Stop
	}
	out := &api.ChatRequest{
		Model:    a.model,
		Messages: messages,
		Stream:   &stream,
		Options:  options,
	}
	if len(req.ResponseSchema) > 0 {
		out.Format = json.RawMessage(`"json"`)
	}
	return out
}

// GenerateContent implements llmrelay.Provider.
func (a *Adapter) GenerateContent(ctx context.Context, req llmrelay.Request) (*llmrelay.Response, error) {
	if err := adapter.CheckRequest(llmrelay.Ollama, req); err != nil {
		return nil, err
	}
	a.logger.DebugContext(ctx, "llmrelay.request", "provider", llmrelay.Ollama, "model", a.model, "base_url", a.baseURL.String())
	var final api.ChatResponse
	var text strings.Builder
	ctx, status := withStatus(ctx)
	err := a.client.Chat(ctx, a.ChatRequest(req), func(r api.ChatResponse) error {
		text.WriteString(r.Message.Content)
		if r.Done {
			final = r
		}
		return nil
	})
	if err != nil {
		return nil, a.wrapError(err, *status)
	}
	content := text.String()
	if err := adapter.EmptyIfBlank(llmrelay.Ollama, content, final.DoneReason); err != nil {
		return nil, err
	}
	resp := &llmrelay.Response{
		Text:         content,
		FinishReason: final.DoneReason,
		Provider:     llmrelay.Ollama,
		Model:        a.model,
	}
	if final.Model != "" {
		resp.Model = final.Model
	}
	if p, c := int64(final.PromptEvalCount), int64(final.EvalCount); p > 0 || c > 0 {
		resp.Usage = &llmrelay.Usage{PromptTokens: p, CompletionTokens: c, TotalTokens: p + c}
	}
	return resp, nil
}

// GenerateJSON implements llmrelay.Provider.
func (a *Adapter) GenerateJSON(ctx context.Context, req llmrelay.Request) (any, error) {
	return adapter.GenerateJSON(ctx, a, req)
}

func (a *Adapter) wrapError(err error, status int) error {
	var se api.StatusError
	if errors.As(err, &se) {
		pe := adapter.NewProviderError(llmrelay.Ollama, se.StatusCode, "", err)
		pe.Message = se.ErrorMessage
		if pe.Message == "" {
			pe.Message = se.Status
		}
		return pe
	}
	if status >= http.StatusBadRequest {
		pe := adapter.NewProviderError(llmrelay.Ollama, status, "", err)
		pe.Message = err.Error()
		return pe
	}
	wrapped := adapter.RequestError(llmrelay.Ollama, err)
	if pe, ok := wrapped.(*llmrelay.ProviderError); ok && pe.StatusCode == 0 && !isContextErr(err) {
		pe.Message = "cannot reach " + a.baseURL.String() + ", check that Ollama is running and reachable"
	}
	return wrapped
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

var _ llmrelay.Provider = (*Adapter)(nil)
