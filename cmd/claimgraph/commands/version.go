package commands

import (
	"fmt"
	goruntime "runtime"

	"github.com/spf13/cobra"
)

// Version is set at build time with -ldflags "-X ...commands.Version=v1.2.3".
var Version = "dev"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "claimgraph %s\n", Version)
		if verbose {
			fmt.Fprintf(cmd.OutOrStdout(), "  go: %s\n", goruntime.Version())
		}
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
