// Package transport decides per call whether a provider is reached directly or through a
// proxy, and applies that decision as an http.RoundTripper.
//
// Providers that reject browser-origin requests are routed through a same-origin proxy
// when the caller runs in a deployed environment, or through a local companion proxy in
// local development. Routing depends only on the provider and the detected environment,
// never on request content.
package transport

import (
	"context"
	"fmt"
	"net/url"
	"strings"
)

// Kind classifies where the invocation layer runs.
type Kind int

const (
	// Standalone is a process with no browser origin: no CORS applies.
	Standalone Kind = iota
	// Local is a browser origin on a developer machine or LAN.
	Local
	// Deployed is any other browser origin.
	Deployed
)

// String implements fmt.Stringer.
func (k Kind) String() string {
	switch k {
	case Local:
		return "local"
	case Deployed:
		return "deployed"
	default:
		return "standalone"
	}
}

// Environment is the detected execution environment.
type Environment struct {
	Kind   Kind
	Origin *url.URL // nil for Standalone
}

// DetectEnvironment classifies origin (e.g. "https://app.example.com").
// Empty origin is Standalone; localhost, 127.0.0.1 and 192.168.x.x hosts are Local.
func DetectEnvironment(origin string) (Environment, error) {
	origin = strings.TrimSpace(origin)
	if origin == "" {
		return Environment{Kind: Standalone}, nil
	}
	u, err := url.Parse(strings.TrimSuffix(origin, "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return Environment{}, fmt.Errorf("transport: invalid origin %q", origin)
	}
	host := u.Hostname()
	if host == "localhost" || host == "127.0.0.1" || strings.Contains(host, "192.168.") {
		return Environment{Kind: Local, Origin: u}, nil
	}
	return Environment{Kind: Deployed, Origin: u}, nil
}

// Detector reports the environment. It is the only input to routing besides the provider.
type Detector interface {
	Detect(ctx context.Context) Environment
}

// StaticDetector always reports the same environment.
type StaticDetector Environment

var _ Detector = StaticDetector{}

// Detect implements Detector.
func (d StaticDetector) Detect(context.Context) Environment { return Environment(d) }
