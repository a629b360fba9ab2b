package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rohmanhakim/catalog-crawler/internal/build"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Prints the version of catalog-crawler.",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "catalog-crawler %s (built %s)\n", build.FullVersion(), build.BuildTime)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
