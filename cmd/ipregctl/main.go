package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	rootCmd := &cobra.Command{
		Use:   "ipregctl",
		Short: "Maintenance commands for the IP inventory",
	}
	rootCmd.AddCommand(cmdCollect)
	rootCmd.AddCommand(cmdCleanup)
	rootCmd.AddCommand(cmdReleaseOld)
	rootCmd.AddCommand(cmdReassignVLANs)
	rootCmd.AddCommand(cmdBackfillHistory)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
