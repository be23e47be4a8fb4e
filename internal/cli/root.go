// Package cli implements the relayctl commands.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/skosovsky/llmrelay"
	"github.com/skosovsky/llmrelay/configstore"
	"github.com/skosovsky/llmrelay/ext/otelrelay"
	"github.com/skosovsky/llmrelay/ext/promrelay"
	"github.com/skosovsky/llmrelay/service"
	"github.com/skosovsky/llmrelay/transport"
)

// app holds the global flags and the dependencies tests replace.
type app struct {
	out     io.Writer
	errOut  io.Writer
	environ []string

	configPath string
	provider   string
	logFormat  string
	logLevel   string
	origin     string
	companion  string
	trace      bool
	metrics    bool

	factory service.Factory // nil means service.DefaultFactory
	logger  *slog.Logger
}

// NewRootCommand returns the relayctl command tree writing to out and errOut and
// reading settings from environ (os.Environ() format).
func NewRootCommand(out, errOut io.Writer, environ []string) *cobra.Command {
	return newRoot(&app{out: out, errOut: errOut, environ: environ})
}

func newRoot(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "relayctl",
		Short:         "Call LLM providers through the llmrelay invocation layer",
		Long:          "relayctl sends prompts to the configured LLM provider, probes provider connectivity and runs the CORS proxy.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			logger, err := newLogger(a.errOut, a.logFormat, a.logLevel)
			if err != nil {
				return err
			}
			a.logger = logger
			return nil
		},
	}
	root.SetOut(a.out)
	root.SetErr(a.errOut)

	flags := root.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "configuration file (default $LLMRELAY_CONFIG)")
	flags.StringVar(&a.provider, "provider", "", "override the active provider")
	flags.StringVar(&a.logFormat, "log-format", "text", "log format: text or json")
	flags.StringVar(&a.logLevel, "log-level", "warn", "log level: debug, info, warn or error")
	flags.StringVar(&a.origin, "origin", "", "browser origin to route as (empty for direct calls)")
	flags.StringVar(&a.companion, "companion-url", transport.DefaultCompanionURL, "local companion proxy URL")
	flags.BoolVar(&a.trace, "trace", false, "print OpenTelemetry spans of provider calls to stderr")
	flags.BoolVar(&a.metrics, "metrics", false, "print Prometheus metrics to stderr on exit (proxy: serve /metrics)")

	root.AddCommand(
		newGenerateCmd(a),
		newTestCmd(a),
		newProxyCmd(a),
		newConfigCmd(a),
		newStepsCmd(a),
	)
	return root
}

// Execute runs relayctl with the process arguments and returns the exit code.
func Execute(ctx context.Context) int {
	root := NewRootCommand(os.Stdout, os.Stderr, os.Environ())
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "relayctl:", llmrelay.UserMessage(err))
		return 1
	}
	return 0
}

func newLogger(w io.Writer, format, level string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid --log-level %q", level)
	}
	opts := &slog.HandlerOptions{Level: lvl}
	switch strings.ToLower(format) {
	case "text", "":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("invalid --log-format %q (text or json)", format)
	}
}

// loadConfig builds the configuration: defaults, then the file, then the environment,
// then --provider.
func (a *app) loadConfig() (llmrelay.Config, error) {
	env := configstore.EnvMap(a.environ)
	cfg := configstore.Default()
	path := a.configPath
	if path == "" {
		path = env["LLMRELAY_CONFIG"]
	}
	if path != "" {
		loaded, err := configstore.LoadFile(path)
		if err != nil {
			return llmrelay.Config{}, err
		}
		cfg = loaded
	}
	cfg, err := configstore.ApplyEnv(cfg, env)
	if err != nil {
		return llmrelay.Config{}, err
	}
	if a.provider != "" {
		id, err := llmrelay.ParseProviderID(a.provider)
		if err != nil {
			return llmrelay.Config{}, &llmrelay.ConfigurationError{Problems: []string{err.Error()}, Err: llmrelay.ErrUnsupportedProvider}
		}
		cfg.Provider = id
	}
	return cfg, nil
}

// newService returns a Service over a fresh store. The caller must call the returned
// close func.
func (a *app) newService() (*service.Service, *configstore.Store, func(), error) {
	cfg, err := a.loadConfig()
	if err != nil {
		return nil, nil, nil, err
	}
	env, err := transport.DetectEnvironment(a.origin)
	if err != nil {
		return nil, nil, nil, err
	}
	router := transport.NewRouter(transport.StaticDetector(env),
		transport.WithCompanionURL(a.companion),
		transport.WithLogger(a.logger))
	store := configstore.New(cfg, configstore.WithLogger(a.logger))
	opts := []service.Option{service.WithLogger(a.logger), service.WithRouter(router)}
	if a.factory != nil {
		opts = append(opts, service.WithFactory(a.factory))
	}
	var shutdown []func()
	if a.trace {
		exp, err := stdouttrace.New(stdouttrace.WithWriter(a.errOut), stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, nil, nil, fmt.Errorf("trace exporter: %w", err)
		}
		tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
		shutdown = append(shutdown, func() { _ = tp.Shutdown(context.Background()) })
		opts = append(opts, service.WithProviderWrapper(otelrelay.Wrapper(otelrelay.WithTracerProvider(tp))))
	}
	if a.metrics {
		reg := prometheus.NewRegistry()
		m, err := promrelay.New(reg)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("metrics: %w", err)
		}
		shutdown = append(shutdown, func() {
			if err := writeMetrics(a.errOut, reg); err != nil {
				a.logger.Warn("llmrelay.metrics_dump_failed", "error", err)
			}
		})
		opts = append(opts, service.WithProviderWrapper(m.Wrapper()))
	}
	svc := service.New(store, opts...)
	return svc, store, func() {
		svc.Close()
		for _, fn := range shutdown {
			fn()
		}
	}, nil
}
