package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/tidewell/pulse"
)

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Show the local sync queue",
	Long: `Display queued assessments awaiting transmission to Harbor.

Example:
  pulse queue
  pulse queue --list
  pulse queue --health`,
	RunE: runQueue,
}

var (
	queueList   bool
	queueHealth bool
)

func init() {
	queueCmd.Flags().BoolVar(&queueList, "list", false, "List individual queued records")
	queueCmd.Flags().BoolVar(&queueHealth, "health", false, "Include a live Harbor health check")
}

func runQueue(cmd *cobra.Command, args []string) error {
	client, err := pulse.New(loadConfig())
	if err != nil {
		return fmt.Errorf("initialize client: %w", err)
	}
	defer client.Close()

	stats, err := client.Stats()
	if err != nil {
		return fmt.Errorf("get stats: %w", err)
	}

	if outputJSON && !queueList && !queueHealth {
		return outputAsJSON(cmd, stats)
	}

	out := cmd.OutOrStdout()
	printInfo(out, "Local sync queue")
	printKeyValue(out, "Queued:", "%d", stats.Queued)
	if stats.Stalled > 0 {
		printWarning(out, "Stalled: %d (need attention; retry with 'pulse sync')", stats.Stalled)
	} else {
		printKeyValue(out, "Stalled:", "%d", stats.Stalled)
	}
	printKeyValue(out, "Schema version:", "%s", stats.SchemaVersion)

	if !stats.LastSync.IsZero() {
		printKeyValue(out, "Last sync:", "%s (%s ago)",
			stats.LastSync.Format(time.RFC3339),
			time.Since(stats.LastSync).Round(time.Minute))
	} else {
		printKeyValue(out, "Last sync:", "never")
	}

	if queueList {
		queued, err := client.QueuedAssessments()
		if err != nil {
			return fmt.Errorf("list queue: %w", err)
		}

		fmt.Fprintln(out)
		for _, a := range queued {
			line := fmt.Sprintf("%s  user=%s  score=%.1f  created=%s  attempts=%d",
				a.LocalID, a.UserID, a.CombinedScore,
				a.CreatedAt.Format(time.RFC3339), a.AttemptCount)
			if a.AttemptCount >= 10 {
				printWarning(out, "%s  [needs attention]", line)
			} else {
				fmt.Fprintln(out, line)
			}
			if a.Notes != "" {
				printMuted(out, "    %s", renderMarkdown(a.Notes))
			}
		}
	}

	if queueHealth {
		fmt.Fprintln(out)
		printInfo(out, "Health check")

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		health := client.HealthCheck(ctx)

		if health.Healthy {
			printSuccess(out, "Status: healthy")
		} else {
			printError(out, "Status: unhealthy")
		}
		printKeyValue(out, "Store OK:", "%v", health.StoreOK)
		printKeyValue(out, "Harbor reachable:", "%v", health.HarborReachable)
		printKeyValue(out, "Connection:", "%s", connectionSummary(client.ConnectionState()))

		if health.Error != "" {
			printMuted(out, "Error: %s", health.Error)
		}
	}

	return nil
}
