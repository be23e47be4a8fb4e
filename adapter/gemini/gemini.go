package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strings"

	"google.golang.org/genai"

	"github.com/skosovsky/llmrelay"
	"github.com/skosovsky/llmrelay/adapter"
	"github.com/skosovsky/llmrelay/prompt"
	"github.com/skosovsky/llmrelay/retry"
)

// Generation defaults applied when ProviderConfig.Options does not override them.
const (
	DefaultBaseURL           = "https://generativelanguage.googleapis.com"
	DefaultAPIVersion        = "v1beta"
	DefaultMaxTokens   int64 = 32000
	DefaultTemperature       = 0.2
	DefaultTopP              = 0.8
	DefaultTopK              = 40
)

// Adapter talks to the Gemini generateContent endpoint.
type Adapter struct {
	model   string
	baseURL string
	params  adapter.ModelParams
	client  *genai.Client
	logger  *slog.Logger
}

// Option configures an Adapter.
type Option func(*options)

type options struct {
	httpClient *http.Client
	logger     *slog.Logger
}

// WithHTTPClient sets the HTTP client used by genai.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// WithLogger sets the logger. Default slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// CleanModel strips the "-latest" alias suffix the API no longer accepts.
func CleanModel(model string) string {
	return strings.Replace(model, "-latest", "", 1)
}

// New returns an Adapter for cfg.
func New(cfg llmrelay.ProviderConfig, opts ...Option) (*Adapter, error) {
	cfg.Provider = llmrelay.Gemini
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
	base = strings.TrimSuffix(base, "/"+DefaultAPIVersion)
	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: o.httpClient,
		HTTPOptions: genai.HTTPOptions{
			BaseURL:    base + "/",
			APIVersion: DefaultAPIVersion,
		},
	})
	if err != nil {
		return nil, &llmrelay.ConfigurationError{Provider: llmrelay.Gemini, Problems: []string{err.Error()}, Err: err}
	}
	return &Adapter{
		model:   CleanModel(cfg.Model),
		baseURL: base,
		params:  adapter.ExtractModelConfig(cfg.Options),
		client:  client,
		logger:  o.logger,
	}, nil
}

// ID implements llmrelay.Provider.
func (a *Adapter) ID() llmrelay.ProviderID { return llmrelay.Gemini }

// Model returns the model name sent to the API, without "-latest".
func (a *Adapter) Model() string { return a.model }

// Config builds the generation config for req. A schema that cannot be converted is
// left out and reported through the logger.
func (a *Adapter) Config(ctx context.Context, req llmrelay.Request) *genai.GenerateContentConfig {
	temp := float32(a.params.TemperatureOr(DefaultTemperature))
	topP := float32(DefaultTopP)
	if a.params.TopP != nil {
		topP = float32(*a.params.TopP)
	}
	topK := float32(DefaultTopK)
	if a.params.TopK != nil {
		topK = float32(*a.params.TopK)
	}
	maxTokens := a.params.MaxTokensOr(DefaultMaxTokens)
	if maxTokens > math.MaxInt32 {
		maxTokens = math.MaxInt32
	}
	cfg := &genai.GenerateContentConfig{
		Temperature:     &temp,
		TopP:            &topP,
		TopK:            &topK,
		MaxOutputTokens: int32(maxTokens),
		StopSequences:   a.params.Stop,
	}
	if req.SystemInstruction != "" {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{genai.NewPartFromText(req.SystemInstruction)}}
	}
	if len(req.ResponseSchema) > 0 {
		cfg.ResponseMIMEType = "application/json"
		schema, err := toGenaiSchema(Simplify(req.ResponseSchema))
		if err != nil {
			a.logger.WarnContext(ctx, "llmrelay.gemini_schema_skipped", "error", err)
		} else {
			cfg.ResponseSchema = schema
		}
	}
	return cfg
}

// GenerateContent implements llmrelay.Provider.
func (a *Adapter) GenerateContent(ctx context.Context, req llmrelay.Request) (*llmrelay.Response, error) {
	if err := adapter.CheckRequest(llmrelay.Gemini, req); err != nil {
		return nil, err
	}
	a.logger.DebugContext(ctx, "llmrelay.request", "provider", llmrelay.Gemini, "model", a.model,
		"native_schema", len(req.ResponseSchema) > 0)
	contents := []*genai.Content{genai.NewContentFromText(req.UserPrompt, genai.RoleUser)}
	out, err := a.client.Models.GenerateContent(ctx, a.model, contents, a.Config(ctx, req))
	if err != nil {
		return nil, wrapError(err)
	}
	return a.parse(out)
}

func (a *Adapter) parse(out *genai.GenerateContentResponse) (*llmrelay.Response, error) {
	if len(out.Candidates) == 0 {
		reason := ""
		if out.PromptFeedback != nil {
			reason = string(out.PromptFeedback.BlockReason)
		}
		return nil, &llmrelay.EmptyResponseError{Provider: llmrelay.Gemini, FinishReason: reason}
	}
	cand := out.Candidates[0]
	reason := string(cand.FinishReason)
	switch cand.FinishReason {
	case genai.FinishReasonSafety, genai.FinishReasonRecitation:
		return nil, &llmrelay.EmptyResponseError{Provider: llmrelay.Gemini, FinishReason: reason}
	case "", genai.FinishReasonStop, genai.FinishReasonMaxTokens:
	default:
		return nil, &llmrelay.ProviderError{
			Provider: llmrelay.Gemini,
			Kind:     llmrelay.ErrProvider,
			Message:  fmt.Sprintf("generation stopped with unexpected status %s, check the request parameters", reason),
		}
	}
	var b strings.Builder
	if cand.Content != nil {
		for _, part := range cand.Content.Parts {
			if part != nil && !part.Thought {
				b.WriteString(part.Text)
			}
		}
	}
	text := b.String()
	if err := adapter.EmptyIfBlank(llmrelay.Gemini, text, reason); err != nil {
		return nil, err
	}
	resp := &llmrelay.Response{
		Text:         text,
		FinishReason: reason,
		Provider:     llmrelay.Gemini,
		Model:        a.model,
	}
	if out.ModelVersion != "" {
		resp.Model = out.ModelVersion
	}
	if u := out.UsageMetadata; u != nil && (u.PromptTokenCount > 0 || u.CandidatesTokenCount > 0) {
		resp.Usage = &llmrelay.Usage{
			PromptTokens:     int64(u.PromptTokenCount),
			CompletionTokens: int64(u.CandidatesTokenCount),
			TotalTokens:      int64(u.TotalTokenCount),
		}
	}
	return resp, nil
}

// GenerateJSON implements llmrelay.Provider with a schema-less fallback.
func (a *Adapter) GenerateJSON(ctx context.Context, req llmrelay.Request) (any, error) {
	v, err := adapter.GenerateJSON(ctx, a, req)
	if err == nil || len(req.ResponseSchema) == 0 || !fallbackAllowed(ctx, err) {
		return v, err
	}
	a.logger.WarnContext(ctx, "llmrelay.gemini_schema_fallback", "error", err)
	fallback := req.WithoutSchema().WithSystemInstruction(fallbackInstruction(req))
	fv, ferr := adapter.GenerateJSON(ctx, a, fallback)
	if ferr != nil {
		a.logger.WarnContext(ctx, "llmrelay.gemini_fallback_failed", "error", ferr)
		return nil, err
	}
	return fv, nil
}

// fallbackAllowed is false when a second call cannot help: cancelled context,
// rejected credentials, quota or network failures.
func fallbackAllowed(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	return retry.Classify(err) == retry.NonRetryable
}

func fallbackInstruction(req llmrelay.Request) string {
	rendered, err := prompt.RenderSchema(req.ResponseSchema)
	if err != nil {
		rendered = "(see the schema in the prompt)"
	}
	var b strings.Builder
	if req.SystemInstruction != "" {
		b.WriteString(req.SystemInstruction)
		b.WriteString("\n\n")
	}
	b.WriteString("IMPORTANT: answer only with a valid JSON object that matches exactly this structure:\n")
	b.WriteString(rendered)
	b.WriteString("\n\nDo not add any text before or after the JSON.")
	return b.String()
}

func wrapError(err error) error {
	var apiErr genai.APIError
	if !errors.As(err, &apiErr) {
		return adapter.RequestError(llmrelay.Gemini, err)
	}
	pe := adapter.NewProviderError(llmrelay.Gemini, apiErr.Code, "", err)
	pe.Message = apiErr.Message
	if apiErr.Status != "" && !strings.Contains(pe.Message, apiErr.Status) {
		pe.Message = apiErr.Status + ": " + pe.Message
	}
	if apiErr.Code == http.StatusBadRequest && strings.Contains(apiErr.Message, "API key not valid") {
		pe.Kind = llmrelay.ErrAuthentication
	}
	return pe
}

var _ llmrelay.Provider = (*Adapter)(nil)
