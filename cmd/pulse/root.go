package main

import (
	"github.com/spf13/cobra"
	"github.com/tidewell/pulse"
)

var (
	cfgDBPath    string
	cfgHarborURL string
	cfgAPIKey    string
	cfgDebug     bool
	outputJSON   bool
)

var rootCmd = &cobra.Command{
	Use:   "pulse",
	Short: "Pulse - offline-first wellness check-in CLI",
	Long: `Pulse records stress/mood assessments, scores them locally, and
synchronizes them with the Harbor backend.

Assessments completed while offline are durably queued and drained to
Harbor exactly once when connectivity returns.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgDBPath, "db-path", "", "Path to local queue database (default: ~/.pulse/queue.db)")
	rootCmd.PersistentFlags().StringVar(&cfgHarborURL, "harbor-url", "", "URL of the Harbor backend")
	rootCmd.PersistentFlags().StringVar(&cfgAPIKey, "api-key", "", "API key for Harbor authentication")
	rootCmd.PersistentFlags().BoolVar(&cfgDebug, "debug", false, "Log all Harbor API communication to stderr")
	rootCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "Output as JSON")

	rootCmd.AddCommand(checkinCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(queueCmd)
	rootCmd.AddCommand(metricsCmd)
}

func loadConfig() pulse.Config {
	cfg := pulse.DefaultConfig()

	env := pulse.ConfigFromEnv()
	if env.LocalPath != "" {
		cfg.LocalPath = env.LocalPath
	}
	cfg.HarborURL = env.HarborURL
	cfg.APIKey = env.APIKey
	if env.SourceID != "" {
		cfg.SourceID = env.SourceID
	}
	cfg.Debug = env.Debug
	cfg.DebugLogPath = env.DebugLogPath

	// Flags override environment
	if cfgDBPath != "" {
		cfg.LocalPath = cfgDBPath
	}
	if cfgHarborURL != "" {
		cfg.HarborURL = cfgHarborURL
	}
	if cfgAPIKey != "" {
		cfg.APIKey = cfgAPIKey
	}
	if cfgDebug {
		cfg.Debug = true
	}

	// The CLI drives syncs explicitly; no background probing.
	cfg.AutoSync = false

	return cfg
}
