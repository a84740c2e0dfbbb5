package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/tidewell/pulse"
)

// outputAsJSON writes any value as formatted JSON to the command's stdout.
func outputAsJSON(cmd *cobra.Command, v interface{}) error {
	out := cmd.OutOrStdout()
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError prints an error to stderr, ensuring no API keys are leaked.
func outputError(w io.Writer, err error) {
	msg := scrubSensitiveData(err.Error())
	if isTTY() {
		fmt.Fprintf(w, "%s %s\n", errorStyle.Render(iconError), msg)
	} else {
		fmt.Fprintf(w, "Error: %s\n", msg)
	}
}

// scrubSensitiveData removes potential API keys from error messages.
// The library already avoids including keys, but this is defense in depth.
func scrubSensitiveData(msg string) string {
	if cfgAPIKey != "" && strings.Contains(msg, cfgAPIKey) {
		msg = strings.ReplaceAll(msg, cfgAPIKey, "[REDACTED]")
	}
	return msg
}

// outputCheckInResult prints a completed check-in.
func outputCheckInResult(cmd *cobra.Command, result *pulse.CheckInResult) error {
	if outputJSON {
		return outputAsJSON(cmd, result)
	}

	out := cmd.OutOrStdout()
	printSuccess(out, "Check-in recorded [%s]", result.Assessment.LocalID)
	printKeyValue(out, "Score:", "%.1f (%s)", result.Assessment.CombinedScore, result.Band)

	if result.Status == pulse.CheckInSynced {
		printInfo(out, "Synced to Harbor.")
	} else {
		printMuted(out, "Saved locally; will sync when Harbor is reachable.")
	}
	return nil
}

// SyncResult for JSON output.
type SyncResult struct {
	Synced     int   `json:"synced"`
	Rejected   int   `json:"rejected"`
	Remaining  int   `json:"remaining"`
	DurationMs int64 `json:"duration_ms"`
}

// outputSyncResult prints drain results.
func outputSyncResult(cmd *cobra.Command, result *pulse.DrainResult, duration time.Duration) error {
	if outputJSON {
		return outputAsJSON(cmd, SyncResult{
			Synced:     result.Synced,
			Rejected:   result.Rejected,
			Remaining:  result.Remaining,
			DurationMs: duration.Milliseconds(),
		})
	}

	out := cmd.OutOrStdout()
	printSuccess(out, "Sync complete (took %s)", duration.Round(time.Millisecond))
	printKeyValue(out, "Synced:", "%d", result.Synced)
	if result.Rejected > 0 {
		printWarning(out, "Rejected: %d (permanently refused by Harbor; resubmit with corrected data)", result.Rejected)
	}
	printKeyValue(out, "Remaining:", "%d", result.Remaining)
	return nil
}

// outputMetrics prints a user's wellness aggregate.
func outputMetrics(cmd *cobra.Command, metrics *pulse.UserMetrics) error {
	if outputJSON {
		return outputAsJSON(cmd, metrics)
	}

	out := cmd.OutOrStdout()
	printInfo(out, "Wellness metrics for %s", metrics.UserID)
	printKeyValue(out, "Streak:", "%d days", metrics.StreakDays)
	printKeyValue(out, "Stress level:", "%.1f", metrics.StressLevel)

	if metrics.LastAssessmentDate.IsZero() {
		printKeyValue(out, "Last check-in:", "never")
	} else {
		printKeyValue(out, "Last check-in:", "%s", metrics.LastAssessmentDate.Format("2006-01-02"))
	}
	if metrics.FirstCheckInDate != nil {
		printKeyValue(out, "First check-in:", "%s", metrics.FirstCheckInDate.Format("2006-01-02"))
	}

	if metrics.Source == pulse.MetricsLocal {
		printMuted(out, "(local fallback values; Harbor unreachable)")
	}
	return nil
}
