package openai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"

	"github.com/skosovsky/llmrelay"
	"github.com/skosovsky/llmrelay/adapter"
)

// Adapter calls one OpenAI-compatible provider with a fixed model.
type Adapter struct {
	id      llmrelay.ProviderID
	model   string
	baseURL string
	params  adapter.ModelParams
	quirks  Quirks
	client  openai.Client
	logger  *slog.Logger
}

type settings struct {
	httpClient *http.Client
	logger     *slog.Logger
}

// Option configures an Adapter.
type Option func(*settings)

// WithHTTPClient sets the HTTP client (usually carrying the transport router). Nil is ignored.
func WithHTTPClient(c *http.Client) Option {
	return func(s *settings) {
		if c != nil {
			s.httpClient = c
		}
	}
}

// WithLogger sets the logger. Nil means slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *settings) { s.logger = l }
}

// New returns an Adapter for cfg. It fails with *llmrelay.ConfigurationError when cfg is
// incomplete and with llmrelay.ErrUnsupportedProvider for providers outside the family.
func New(cfg llmrelay.ProviderConfig, opts ...Option) (*Adapter, error) {
	if !Supports(cfg.Provider) {
		return nil, fmt.Errorf("%w: %q is not OpenAI-compatible", llmrelay.ErrUnsupportedProvider, cfg.Provider)
	}
	if err := adapter.CheckConfig(cfg); err != nil {
		return nil, err
	}
	s := settings{httpClient: http.DefaultClient}
	for _, opt := range opts {
		opt(&s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	base := APIBase(cfg.Provider, cfg.BaseURL)
	clientOpts := []option.RequestOption{
		option.WithBaseURL(base),
		option.WithHTTPClient(s.httpClient),
		option.WithMaxRetries(0),
	}
	if cfg.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(cfg.APIKey))
	}
	return &Adapter{
		id:      cfg.Provider,
		model:   cfg.Model,
		baseURL: base,
		params:  adapter.ExtractModelConfig(cfg.Options),
		quirks:  QuirksFor(cfg.Provider, cfg.Model),
		client:  openai.NewClient(clientOpts...),
		logger:  s.logger,
	}, nil
}

// ID implements llmrelay.Provider.
func (a *Adapter) ID() llmrelay.ProviderID { return a.id }

// Model returns the configured model.
func (a *Adapter) Model() string { return a.model }

// BaseURL returns the versioned API base the adapter calls.
func (a *Adapter) BaseURL() string { return a.baseURL }

// Params builds the chat completion parameters for req.
func (a *Adapter) Params(req llmrelay.Request) openai.ChatCompletionNewParams {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, 2)
	if req.SystemInstruction != "" {
		messages = append(messages, openai.SystemMessage(req.SystemInstruction))
	}
	messages = append(messages, openai.UserMessage(req.UserPrompt))

	p := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(a.model), //nolint:unconvert // ChatModel is a distinct type
		Messages: messages,
	}
	defMax := int64(DefaultCompatMaxTokens)
	if a.id == llmrelay.OpenAI {
		defMax = DefaultMaxTokens
	}
	maxTokens := a.params.MaxTokensOr(defMax)
	if a.quirks.CompletionTokens {
		p.MaxCompletionTokens = openai.Int(maxTokens)
	} else {
		p.MaxTokens = openai.Int(maxTokens)
	}
	if a.quirks.FixedTemperature {
		p.Temperature = openai.Float(1)
	} else {
		p.Temperature = openai.Float(a.params.TemperatureOr(DefaultTemperature))
	}
	if len(a.params.Stop) > 0 {
		p.Stop = openai.ChatCompletionNewParamsStopUnion{OfStringArray: a.params.Stop}
	}
	if a.quirks.Reasoning {
		p.ReasoningEffort = shared.ReasoningEffortMedium
		p.Verbosity = openai.ChatCompletionNewParamsVerbosityMedium
		return p
	}
	if a.params.TopP != nil {
		p.TopP = openai.Float(*a.params.TopP)
	}
	if a.quirks.NativeJSON && len(req.ResponseSchema) > 0 {
		p.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		}
	}
	return p
}

// GenerateContent implements llmrelay.Provider.
func (a *Adapter) GenerateContent(ctx context.Context, req llmrelay.Request) (*llmrelay.Response, error) {
	if err := adapter.CheckRequest(a.id, req); err != nil {
		return nil, err
	}
	a.logger.DebugContext(ctx, "llmrelay.request", "provider", a.id, "model", a.model, "native_json", a.quirks.NativeJSON)
	completion, err := a.client.Chat.Completions.New(ctx, a.Params(req))
	if err != nil {
		return nil, a.wrapError(err)
	}
	if len(completion.Choices) == 0 {
		return nil, &llmrelay.EmptyResponseError{Provider: a.id}
	}
	choice := completion.Choices[0]
	reason := choice.FinishReason
	if choice.Message.Content == "" && choice.Message.Refusal != "" {
		reason = "refusal"
	}
	if err := adapter.EmptyIfBlank(a.id, choice.Message.Content, reason); err != nil {
		return nil, err
	}
	resp := &llmrelay.Response{
		Text:         choice.Message.Content,
		FinishReason: choice.FinishReason,
		Provider:     a.id,
		Model:        completion.Model,
	}
	if u := completion.Usage; u.PromptTokens > 0 || u.CompletionTokens > 0 {
		resp.Usage = &llmrelay.Usage{
			PromptTokens:     u.PromptTokens,
			CompletionTokens: u.CompletionTokens,
			TotalTokens:      u.TotalTokens,
		}
	}
	return resp, nil
}

// GenerateJSON implements llmrelay.Provider.
func (a *Adapter) GenerateJSON(ctx context.Context, req llmrelay.Request) (any, error) {
	return adapter.GenerateJSON(ctx, a, req)
}

func (a *Adapter) wrapError(err error) error {
	var apiErr *openai.Error
	if !errors.As(err, &apiErr) {
		return adapter.RequestError(a.id, err)
	}
	raw := apiErr.RawJSON()
	pe := adapter.NewProviderError(a.id, apiErr.StatusCode, raw, nil)
	if pe.Message == "" {
		pe.Message = apiErr.Message
	}
	if a.id == llmrelay.Qwen && apiErr.StatusCode == http.StatusForbidden {
		if msg := qwenAccessMessage(raw, a.model); msg != "" {
			pe.Message = msg
		}
	}
	return pe
}

// qwenAccessMessage explains DashScope model access denials.
func qwenAccessMessage(body, model string) string {
	switch {
	case strings.Contains(body, "AccessDenied.Unpurchased"):
		return fmt.Sprintf("your account has no access to model %s, activate it on the DashScope console or use qwen-turbo", model)
	case strings.Contains(body, "Model.AccessDenied"):
		return fmt.Sprintf("model %s is not available to this API key, try qwen-turbo or qwen-plus", model)
	}
	return ""
}

var _ llmrelay.Provider = (*Adapter)(nil)
