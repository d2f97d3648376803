package cmd

import (
	"github.com/spf13/cobra"
)

const defaultListen = ":9120"

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start a routing session with the status server",
	Long: `Start a routing session like 'run' and serve its status over HTTP:

  /status        session state and counters
  /api/stats     router statistics
  /api/channels  channel tables and endpoint identifiers
  /api/config    resolved configuration
  /healthz       liveness
  /readyz        200 while the router is running
  /metrics       Prometheus metrics

The server prints its local network URL for access from other machines.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		listen, _ := cmd.Flags().GetString("listen")
		if !cmd.Flags().Changed("listen") && cfg.Server.Listen != "" {
			listen = cfg.Server.Listen
		}
		return runSession(cmd.Context(), listen)
	},
}

func init() {
	serveCmd.Flags().String("listen", defaultListen, "address for the status server")
}
