package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/DukeRupert/cropbatch/internal/domain"
	"github.com/spf13/cobra"
)

func newRatiosCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ratios",
		Short: "List the supported aspect ratios",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tRATIO\tDEFAULT")
			for _, ar := range domain.AspectRatios() {
				def := ""
				if ar.ID == domain.DefaultAspectRatioID {
					def = "*"
				}
				fmt.Fprintf(w, "%s\t%.4f\t%s\n", ar.ID, ar.Ratio, def)
			}
			return w.Flush()
		},
	}
}
