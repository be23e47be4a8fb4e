package cli

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/skosovsky/llmrelay/proxy"
)

func newProxyCmd(a *app) *cobra.Command {
	var (
		addr    string
		maxBody int64
	)
	cmd := &cobra.Command{
		Use:   "proxy",
		Short: "Run the CORS proxy for browser front ends",
		Long: `Serve /api/llm-proxy for deployed front ends and the /api/anthropic companion
routes for local development until interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts := []proxy.Option{proxy.WithLogger(a.logger), proxy.WithMaxBodyBytes(maxBody)}
			if a.metrics {
				reg := prometheus.NewRegistry()
				reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
				opts = append(opts, proxy.WithMetrics(reg))
			}
			return proxy.New(opts...).ListenAndServe(cmd.Context(), addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", proxy.DefaultAddr, "listen address")
	cmd.Flags().Int64Var(&maxBody, "max-body", proxy.DefaultMaxBodyBytes, "maximum request body in bytes")
	return cmd
}
