package anthropic

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/skosovsky/llmrelay"
	"github.com/skosovsky/llmrelay/adapter"
)

// Defaults applied when ProviderConfig.Options does not override them.
const (
	DefaultBaseURL           = "https://api.anthropic.com"
	DefaultMaxTokens   int64 = 4000
	DefaultTemperature       = 0.2
)

// Adapter talks to the Anthropic Messages API.
type Adapter struct {
	model   string
	baseURL string
	params  adapter.ModelParams
	client  anthropic.Client
	logger  *slog.Logger
}

// Option configures an Adapter.
type Option func(*options)

type options struct {
	httpClient *http.Client
	logger     *slog.Logger
}

// WithHTTPClient sets the HTTP client, e.g. one routed through the CORS proxy.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// WithLogger sets the logger. Default slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// New returns an Adapter for cfg. Missing API key or model fails with *llmrelay.ConfigurationError.
func New(cfg llmrelay.ProviderConfig, opts ...Option) (*Adapter, error) {
	cfg.Provider = llmrelay.Anthropic
	if err := adapter.CheckConfig(cfg); err != nil {
		return nil, err
	}
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = DefaultBaseURL
	}
	// The SDK appends v1/messages itself.
	base = strings.TrimSuffix(strings.TrimSuffix(base, "/v1/messages"), "/v1")
	clientOpts := []option.RequestOption{
		option.WithBaseURL(base),
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if o.httpClient != nil {
		clientOpts = append(clientOpts, option.WithHTTPClient(o.httpClient))
	}
	return &Adapter{
		model:   cfg.Model,
		baseURL: base,
		params:  adapter.ExtractModelConfig(cfg.Options),
		client:  anthropic.NewClient(clientOpts...),
		logger:  o.logger,
	}, nil
}

// ID implements llmrelay.Provider.
func (a *Adapter) ID() llmrelay.ProviderID { return llmrelay.Anthropic }

// Model returns the configured model name.
func (a *Adapter) Model() string { return a.model }

// BaseURL returns the API root without the /v1 suffix.
func (a *Adapter) BaseURL() string { return a.baseURL }

// Params builds the Messages API request for req.
func (a *Adapter) Params(req llmrelay.Request) anthropic.MessageNewParams {
	p := anthropic.MessageNewParams{
		Model:       anthropic.Model(a.model),
		MaxTokens:   a.params.MaxTokensOr(DefaultMaxTokens),
		Temperature: anthropic.Float(a.params.TemperatureOr(DefaultTemperature)),
		Messages:    []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock(req.UserPrompt))},
	}
	if req.SystemInstruction != "" {
		p.System = []anthropic.TextBlockParam{{Text: req.SystemInstruction}}
	}
	if a.params.TopP != nil {
		p.TopP = anthropic.Float(*a.params.TopP)
	}
	if a.params.TopK != nil {
		p.TopK = anthropic.Int(int64(*a.params.TopK))
	}
	if len(a.params.Stop) > 0 {
		p.StopSequences = a.params.Stop
	}
	return p
}

// GenerateContent implements llmrelay.Provider.
func (a *Adapter) GenerateContent(ctx context.Context, req llmrelay.Request) (*llmrelay.Response, error) {
	if err := adapter.CheckRequest(llmrelay.Anthropic, req); err != nil {
		return nil, err
	}
	a.logger.DebugContext(ctx, "llmrelay.request", "provider", llmrelay.Anthropic, "model", a.model)
	msg, err := a.client.Messages.New(ctx, a.Params(req))
	if err != nil {
		return nil, wrapError(err)
	}
	var b strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	text := b.String()
	reason := string(msg.StopReason)
	if err := adapter.EmptyIfBlank(llmrelay.Anthropic, text, reason); err != nil {
		return nil, err
	}
	resp := &llmrelay.Response{
		Text:         text,
		FinishReason: reason,
		Provider:     llmrelay.Anthropic,
		Model:        string(msg.Model),
	}
	if u := msg.Usage; u.InputTokens > 0 || u.OutputTokens > 0 {
		resp.Usage = &llmrelay.Usage{
			PromptTokens:     u.InputTokens,
			CompletionTokens: u.OutputTokens,
			TotalTokens:      u.InputTokens + u.OutputTokens,
		}
	}
	return resp, nil
}

// GenerateJSON implements llmrelay.Provider.
func (a *Adapter) GenerateJSON(ctx context.Context, req llmrelay.Request) (any, error) {
	return adapter.GenerateJSON(ctx, a, req)
}

func wrapError(err error) error {
	var apiErr *anthropic.Error
	if !errors.As(err, &apiErr) {
		return adapter.RequestError(llmrelay.Anthropic, err)
	}
	return adapter.NewProviderError(llmrelay.Anthropic, apiErr.StatusCode, apiErr.RawJSON(), nil)
}

var _ llmrelay.Provider = (*Adapter)(nil)
