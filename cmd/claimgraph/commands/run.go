package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/agenthands/claimgraph/internal/core/model"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Load all vertices, then link all edges",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext(cmd)
		defer cancel()

		rt, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer rt.Close(ctx)

		summary, err := rt.pipeline.Run(ctx)
		if summary != nil {
			printJSON(cmd.OutOrStdout(), summary)
		}
		return err
	},
}

var verticesCmd = &cobra.Command{
	Use:   "vertices",
	Short: "Load vertices from the input directories",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext(cmd)
		defer cancel()

		rt, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer rt.Close(ctx)

		if err := rt.store.BuildIndices(ctx, rt.cfg.Entities()); err != nil {
			rt.log.Warn("index creation failed, continuing", "error", err)
		}
		reports, err := rt.pipeline.LoadVertices(ctx)
		printJSON(cmd.OutOrStdout(), model.Summary{Vertices: reports})
		return err
	},
}

var edgesCmd = &cobra.Command{
	Use:   "edges",
	Short: "Link edges between existing vertices",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext(cmd)
		defer cancel()

		rt, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer rt.Close(ctx)

		reports, err := rt.pipeline.LinkAll(ctx)
		printJSON(cmd.OutOrStdout(), model.Summary{Rules: reports})
		return err
	},
}

func printJSON(w io.Writer, v any) {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "failed to encode output: %v\n", err)
	}
}

func init() {
	rootCmd.AddCommand(runCmd, verticesCmd, edgesCmd)
}
