package commands

import (
	"github.com/spf13/cobra"

	"github.com/agenthands/claimgraph/internal/server"
)

var addr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve flattened claim views over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext(cmd)
		defer cancel()

		rt, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer rt.Close(ctx)

		listen := rt.cfg.Server.Addr
		if addr != "" {
			listen = addr
		}
		return server.NewServer(rt.pipeline, rt.log).Run(ctx, listen)
	},
}

func init() {
	serveCmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
	rootCmd.AddCommand(serveCmd)
}
