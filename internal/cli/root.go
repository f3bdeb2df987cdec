// Package cli implements the cropctl command tree.
package cli

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cropctl",
		Short: "Batch crop and convert images from the command line",
		Long: `cropctl runs the cropbatch pipeline without a browser.

Each file gets the largest centered crop for its aspect ratio unless a
manifest says otherwise, and is written as <name>_cropped.<ext>.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Load .env file if present (ignore errors)
			_ = godotenv.Load()
		},
	}

	cmd.AddCommand(newCropCmd())
	cmd.AddCommand(newRatiosCmd())

	return cmd
}
