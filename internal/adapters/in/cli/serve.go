package cli

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/bnema/berth/internal/app"
)

// newServeCmd creates the serve command.
func newServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the berth manager",
		Long: `Run the berth manager: the HTTP API, the runtime monitor and the
optional state persister. Stops cleanly on SIGINT or SIGTERM.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return app.Run(ctx, configPath, app.BuildInfo{Version: Version, Commit: Commit})
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	return cmd
}
