package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/skosovsky/llmrelay/configstore"
)

func newConfigCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the effective configuration",
	}
	cmd.AddCommand(newConfigValidateCmd(a), newConfigShowCmd(a))
	return cmd
}

func newConfigValidateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the active provider's settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			if err := configstore.Validate(cfg); err != nil {
				return err
			}
			pc, _ := cfg.Active()
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s is ready (model %s)\n", cfg.Provider.DisplayName(), pc.Model)
			return err
		},
	}
}

func newConfigShowCmd(a *app) *cobra.Command {
	var showKeys bool
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			data, err := configstore.Marshal(cfg, !showKeys)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
	cmd.Flags().BoolVar(&showKeys, "show-keys", false, "print API keys in clear")
	return cmd
}
