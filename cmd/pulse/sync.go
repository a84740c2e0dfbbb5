package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/tidewell/pulse"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Drain queued check-ins to Harbor",
	Long: `Transmit all locally queued assessments to the Harbor backend.

Records are sent oldest-first, one at a time; each is removed from the
queue only after Harbor confirms acceptance. Records past the attempt
ceiling are included, since this is an explicit user-triggered sync.

Example:
  pulse sync`,
	RunE: runSync,
}

func runSync(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	if cfg.HarborURL == "" {
		return fmt.Errorf("HARBOR_URL not configured")
	}

	client, err := pulse.New(cfg)
	if err != nil {
		return fmt.Errorf("initialize client: %w", err)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	defer cancel()

	start := time.Now()

	var result *pulse.DrainResult
	err = runWithSpinner(cmd.OutOrStdout(), "Syncing with Harbor", func() error {
		var syncErr error
		result, syncErr = client.SyncNow(ctx)
		return syncErr
	})
	if err != nil {
		return fmt.Errorf("sync: %w", err)
	}

	return outputSyncResult(cmd, result, time.Since(start))
}

// connectionSummary renders the monitor state for status output.
func connectionSummary(state pulse.ConnectionState) string {
	switch {
	case state.Reachable:
		return "reachable"
	case state.Degraded:
		return "degraded (proceeding in offline mode)"
	default:
		return "unreachable"
	}
}
