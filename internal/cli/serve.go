package cli

import (
	"github.com/spf13/cobra"

	"stockpos/internal/config"
	"stockpos/internal/server"
)

func newServeCmd() *cobra.Command {
	var port string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.AppEnv
			if port != "" {
				cfg.Port = port
			}
			ctx, stop := signalContext(cmd.Context())
			defer stop()
			return server.Run(ctx, cfg)
		},
	}
	cmd.Flags().StringVar(&port, "port", "", "listen port (overrides PORT)")
	return cmd
}
