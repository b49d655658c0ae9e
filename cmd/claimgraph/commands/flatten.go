package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agenthands/claimgraph/internal/core/model"
)

var flattenCmd = &cobra.Command{
	Use:   "flatten <claim_id>",
	Short: "Print the flattened view of one claim",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext(cmd)
		defer cancel()

		rt, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer rt.Close(ctx)

		view, err := rt.pipeline.Flatten(ctx, args[0])
		if errors.Is(err, model.ErrClaimNotFound) {
			return fmt.Errorf("claim %s: %w", args[0], err)
		}
		if err != nil {
			return err
		}
		printJSON(cmd.OutOrStdout(), view)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(flattenCmd)
}
