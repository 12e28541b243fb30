package app

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func init() { //nolint: gochecknoinits
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(syncCmd)
}

var startCmd = &cobra.Command{
	Use:    "start",
	Short:  "Start the userman service with the recurring directory sync",
	PreRun: setup,
	RunE: func(_ *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		err := newDaemon().Run(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}

		return err
	},
}

var syncCmd = &cobra.Command{
	Use:    "sync",
	Short:  "Sync all active directories once and exit",
	PreRun: setup,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return newDaemon().Userman().SyncAllDirectories(cmd.Context())
	},
}
