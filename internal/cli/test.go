package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/skosovsky/llmrelay"
	"github.com/skosovsky/llmrelay/service"
)

func newTestCmd(a *app) *cobra.Command {
	var (
		all     bool
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "test [provider...]",
		Short: "Probe provider connectivity with a tiny JSON request",
		Long: `Probe the active provider, the named providers, or with --all every provider whose
configuration is complete. Exits non-zero when a probe fails.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := make([]llmrelay.ProviderID, 0, len(args))
			for _, arg := range args {
				id, err := llmrelay.ParseProviderID(arg)
				if err != nil {
					return err
				}
				ids = append(ids, id)
			}
			svc, store, closeFn, err := a.newService()
			if err != nil {
				return err
			}
			defer closeFn()

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			var results []service.ConnectionResult
			switch {
			case all:
				configured := service.Configured(store.Get())
				if len(configured) == 0 {
					return &llmrelay.ConfigurationError{Problems: []string{"no provider is fully configured"}}
				}
				results = svc.TestAll(ctx, configured)
			case len(ids) > 0:
				results = svc.TestAll(ctx, ids)
			default:
				results = []service.ConnectionResult{svc.TestConnection(ctx)}
			}
			if err := service.WriteResults(cmd.OutOrStdout(), results); err != nil {
				return err
			}
			failed := 0
			for _, r := range results {
				if !r.OK {
					failed++
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d connection tests failed", failed, len(results))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "probe every configured provider")
	cmd.Flags().DurationVar(&timeout, "timeout", time.Minute, "overall probe timeout")
	return cmd
}
