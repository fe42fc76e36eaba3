package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"stockpos/internal/config"
	"stockpos/internal/logger"
)

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "stockpos",
		Short:         "Inventory and point-of-sale server",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			config.Load()
			l, err := logger.New(config.AppEnv.LogLevel, config.AppEnv.LogFormat)
			if err != nil {
				return fmt.Errorf("logger: %w", err)
			}
			logger.Set(l)
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			logger.Sync()
		},
	}

	root.AddCommand(
		newServeCmd(),
		newSeedAdminCmd(),
		newEnsureIndexesCmd(),
	)
	return root
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
