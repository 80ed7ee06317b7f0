package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/runboard/runboard/cmd/runboard/cmd"
	"github.com/runboard/runboard/internal/logger"

	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "runboard",
		Short:         "Sync running activities and inspect the dataset",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(cmd.SyncCmd())
	rootCmd.AddCommand(cmd.GoalCmd())
	rootCmd.AddCommand(cmd.StatsCmd())
	rootCmd.AddCommand(cmd.MigrateCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	logger.Flush()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		var exitErr *cmd.ExitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.Code)
		}
		os.Exit(1)
	}
}
