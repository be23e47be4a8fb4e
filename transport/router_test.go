package transport

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/skosovsky/llmrelay"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

func env(t *testing.T, origin string) StaticDetector {
	t.Helper()
	e, err := DetectEnvironment(origin)
	require.NoError(t, err)
	return StaticDetector(e)
}

func TestDetectEnvironment(t *testing.T) {
	t.Parallel()
	tests := []struct {
		origin string
		want   Kind
	}{
		{"", Standalone},
		{"http://localhost:5173", Local},
		{"http://127.0.0.1:8080", Local},
		{"http://192.168.1.20:3000", Local},
		{"https://risk.example.com", Deployed},
	}
	for _, tt := range tests {
		t.Run(tt.want.String()+tt.origin, func(t *testing.T) {
			t.Parallel()
			e, err := DetectEnvironment(tt.origin)
			require.NoError(t, err)
			assert.Equal(t, tt.want, e.Kind)
		})
	}
	_, err := DetectEnvironment("not a url")
	require.Error(t, err)
}

func TestRoute_UnrestrictedNeverProxied(t *testing.T) {
	t.Parallel()
	target := mustURL(t, "http://localhost:11434/api/chat")
	for _, origin := range []string{"", "http://localhost:5173", "https://risk.example.com"} {
		r := NewRouter(env(t, origin), WithProbeClient(&http.Client{Transport: failingTransport{t}}))
		for _, p := range llmrelay.Providers() {
			if IsRestricted(p) {
				continue
			}
			route, err := r.Route(context.Background(), p, target)
			require.NoError(t, err)
			assert.Equal(t, Direct, route.Mode)
			assert.Same(t, target, route.URL)
		}
	}
}

type failingTransport struct{ t *testing.T }

func (f failingTransport) RoundTrip(*http.Request) (*http.Response, error) {
	f.t.Error("unexpected network call")
	return nil, io.EOF
}

func TestRoute_Deployed(t *testing.T) {
	t.Parallel()
	r := NewRouter(env(t, "https://risk.example.com/"))
	route, err := r.Route(context.Background(), llmrelay.Mistral, mustURL(t, "https://api.mistral.ai/v1/chat/completions"))
	require.NoError(t, err)
	assert.Equal(t, SameOriginProxy, route.Mode)
	assert.Equal(t, "https://risk.example.com/api/llm-proxy?provider=mistral", route.URL.String())
}

func TestRoute_StandaloneDirect(t *testing.T) {
	t.Parallel()
	r := NewRouter(nil)
	route, err := r.Route(context.Background(), llmrelay.Anthropic, mustURL(t, "https://api.anthropic.com/v1/messages"))
	require.NoError(t, err)
	assert.Equal(t, Direct, route.Mode)
}

func TestRoute_LocalOtherRestrictedDirect(t *testing.T) {
	t.Parallel()
	r := NewRouter(env(t, "http://localhost:5173"), WithProbeClient(&http.Client{Transport: failingTransport{t}}))
	route, err := r.Route(context.Background(), llmrelay.OpenAI, mustURL(t, "https://api.openai.com/v1/chat/completions"))
	require.NoError(t, err)
	assert.Equal(t, Direct, route.Mode)
}

func TestRoute_LocalAnthropicCompanion(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, CompanionTestPath, r.URL.Path)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}))
	defer srv.Close()

	r := NewRouter(env(t, "http://localhost:5173"), WithCompanionURL(srv.URL), WithProbeClient(srv.Client()))
	route, err := r.Route(context.Background(), llmrelay.Anthropic, mustURL(t, "https://api.anthropic.com/v1/messages"))
	require.NoError(t, err)
	assert.Equal(t, CompanionProxy, route.Mode)
	assert.Equal(t, srv.URL+CompanionProxyPath, route.URL.String())
}

func TestRoute_RootedPaths(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		base string
		path string
		want string
	}{
		{"bare origin", "https://risk.example.com", SameOriginProxyPath, "https://risk.example.com/api/llm-proxy"},
		{"trailing slash", "https://risk.example.com/", SameOriginProxyPath, "https://risk.example.com/api/llm-proxy"},
		{"mounted prefix", "https://risk.example.com/tools/", CompanionProxyPath, "https://risk.example.com/tools/api/anthropic/messages"},
		{"query dropped", "http://localhost:3001?x=1#f", CompanionTestPath, "http://localhost:3001/api/anthropic/test"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			u := endpoint(mustURL(t, tt.base), tt.path)
			assert.True(t, strings.HasPrefix(u.Path, "/"), u.Path)
			assert.Equal(t, tt.want, u.String())
		})
	}

	r := NewRouter(StaticDetector{Kind: Deployed, Origin: mustURL(t, "https://risk.example.com")})
	route, err := r.Route(context.Background(), llmrelay.Mistral, mustURL(t, "https://api.mistral.ai/v1/chat/completions"))
	require.NoError(t, err)
	assert.Equal(t, SameOriginProxyPath, route.URL.Path)
	assert.Equal(t, "https://risk.example.com/api/llm-proxy?provider=mistral", route.URL.String())
}

func TestRoute_LocalAnthropicCompanionDown(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {}))
	down := srv.URL
	srv.Close()

	r := NewRouter(env(t, "http://127.0.0.1:5173"), WithCompanionURL(down))
	_, err := r.Route(context.Background(), llmrelay.Anthropic, mustURL(t, "https://api.anthropic.com/v1/messages"))
	require.ErrorIs(t, err, llmrelay.ErrProxyUnavailable)
	require.ErrorIs(t, err, llmrelay.ErrConfiguration)
	assert.Contains(t, err.Error(), "CORS")
	assert.Contains(t, err.Error(), "relayctl proxy")
}

func TestProbe_Timeout(t *testing.T) {
	t.Parallel()
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	r := NewRouter(nil, WithCompanionURL(srv.URL), WithProbeClient(srv.Client()), WithProbeTimeout(50*time.Millisecond))
	start := time.Now()
	assert.False(t, r.Probe(context.Background()))
	assert.Less(t, time.Since(start), time.Second)
}

func TestRoundTripper_SameOriginProxy(t *testing.T) {
	t.Parallel()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, SameOriginProxyPath, r.URL.Path)
		assert.Equal(t, "groq", r.URL.Query().Get("provider"))
		assert.Equal(t, "Bearer gsk-test", r.Header.Get("X-Api-Key"))
		assert.Empty(t, r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"model":"llama"}`, string(body))
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	router := NewRouter(StaticDetector{Kind: Deployed, Origin: mustURL(t, srv.URL)})
	client := &http.Client{Transport: router.RoundTripper(llmrelay.Groq, srv.Client().Transport)}
	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost,
		"https://api.groq.com/openai/v1/chat/completions", strings.NewReader(`{"model":"llama"}`))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer gsk-test")

	resp, err := client.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int32(1), hits.Load())
	assert.Equal(t, "Bearer gsk-test", req.Header.Get("Authorization"), "caller request must not be mutated")
}

func TestRoundTripper_DirectPassThrough(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	router := NewRouter(StaticDetector{Kind: Deployed, Origin: mustURL(t, "https://risk.example.com")})
	client := &http.Client{Transport: router.RoundTripper(llmrelay.Ollama, srv.Client().Transport)}
	resp, err := client.Post(srv.URL+"/api/chat", "application/json", strings.NewReader(`{}`))
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRoundTripper_RouteErrorSurfaces(t *testing.T) {
	t.Parallel()
	router := NewRouter(StaticDetector{Kind: Deployed})
	client := &http.Client{Transport: router.RoundTripper(llmrelay.XAI, failingTransport{t})}
	_, err := client.Post("https://api.x.ai/v1/chat/completions", "application/json", strings.NewReader(`{}`))
	require.ErrorIs(t, err, llmrelay.ErrConfiguration)
}

func TestRestricted(t *testing.T) {
	t.Parallel()
	assert.Len(t, Restricted(), 7)
	assert.False(t, IsRestricted(llmrelay.Gemini))
	assert.False(t, IsRestricted(llmrelay.LMStudio))
	assert.True(t, IsRestricted(llmrelay.Qwen))
}
