package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/skosovsky/llmrelay/internal/table"
	"github.com/skosovsky/llmrelay/workshop"
)

func newStepsCmd(_ *app) *cobra.Command {
	return &cobra.Command{
		Use:   "steps",
		Short: "List the embedded workshop steps",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			reg, err := workshop.Default()
			if err != nil {
				return err
			}
			t := table.New(cmd.OutOrStdout(), "STEP", "ID", "TITLE", "VARIABLES")
			for _, s := range reg.Steps() {
				n := "-"
				if s.Number > 0 {
					n = fmt.Sprint(s.Number)
				}
				t.Append([]string{n, s.ID, s.Title, strings.Join(s.Required, ", ")})
			}
			t.Render()
			return nil
		},
	}
}
