package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/tidewell/pulse"
)

var metricsCmd = &cobra.Command{
	Use:   "metrics [user-id]",
	Short: "Show a user's wellness aggregate",
	Long: `Display the per-user aggregate maintained after successful syncs:
streak days, last assessment date, and the most recent stress level.

Values come from Harbor when reachable; otherwise the last local snapshot
is shown, clearly marked as a fallback.

Example:
  pulse metrics alice`,
	Args: cobra.ExactArgs(1),
	RunE: runMetrics,
}

func runMetrics(cmd *cobra.Command, args []string) error {
	client, err := pulse.New(loadConfig())
	if err != nil {
		return fmt.Errorf("initialize client: %w", err)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	var metrics *pulse.UserMetrics
	err = runWithSpinner(cmd.OutOrStdout(), "Fetching metrics", func() error {
		var fetchErr error
		metrics, fetchErr = client.Metrics(ctx, args[0])
		return fetchErr
	})
	if err != nil {
		return fmt.Errorf("get metrics: %w", err)
	}

	return outputMetrics(cmd, metrics)
}
