package main

import (
	"github.com/spf13/cobra"

	"subforge/internal/daemonrun"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	var logLevel string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the subforge daemon in the foreground",
		Long: `Serve the HTTP API on paths.api_bind and run submitted batches.

Only one daemon may serve per log directory. At start the daemon marks tasks
left unfinished by a previous run as failed, removes stale scratch
directories, and prunes old task logs.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return daemonrun.Run(cmd.Context(), cfg, daemonrun.Options{LogLevel: logLevel})
		},
	}
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Override logging.level for this process")
	return cmd
}
