package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/tidewell/pulse"
	pulsemcp "github.com/tidewell/pulse/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run the MCP server",
	Long: `Run Pulse as an MCP server over stdio, exposing check-in, sync,
queue, and metrics tools to an AI wellness assistant.

Example:
  pulse mcp`,
	RunE: runMCP,
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

func runMCP(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	// The MCP session is long-lived; let the client probe and auto-drain.
	cfg.AutoSync = true

	client, err := pulse.New(cfg)
	if err != nil {
		return fmt.Errorf("initialize client: %w", err)
	}
	defer client.Close()

	server := pulsemcp.NewServer(client)
	return server.Run()
}
