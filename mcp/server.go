// Package mcp exposes the Pulse assessment engine as MCP tools so an AI
// wellness assistant can record check-ins, trigger syncs, and inspect the
// queue on the user's behalf.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/tidewell/pulse"
)

// Server wraps the MCP server with Pulse tools.
type Server struct {
	client    *pulse.Client
	mcpServer *server.MCPServer
}

// ToolResult represents the result of a tool call.
type ToolResult struct {
	Content string
	IsError bool
}

// ToolInfo represents a registered tool.
type ToolInfo struct {
	Name        string
	Description string
}

// NewServer creates a new MCP server with Pulse tools registered.
func NewServer(client *pulse.Client) *Server {
	s := &Server{client: client}

	s.mcpServer = server.NewMCPServer(
		"pulse",
		"1.0.0",
		server.WithToolCapabilities(true),
	)

	s.registerTools()

	return s
}

// Run starts the MCP server, reading from stdin and writing to stdout.
func (s *Server) Run() error {
	return server.ServeStdio(s.mcpServer)
}

// HandleMessage processes a raw JSON-RPC message and returns a response.
// This is primarily for testing the MCP protocol layer.
func (s *Server) HandleMessage(ctx context.Context, message json.RawMessage) mcp.JSONRPCMessage {
	return s.mcpServer.HandleMessage(ctx, message)
}

// ListTools returns all registered tools.
func (s *Server) ListTools() []ToolInfo {
	return []ToolInfo{
		{Name: "pulse_checkin", Description: "Record a completed stress/mood assessment; syncs immediately when Harbor is reachable, queues locally otherwise"},
		{Name: "pulse_sync", Description: "Drain queued assessments to Harbor now"},
		{Name: "pulse_queue", Description: "Show queued assessment count and stalled records"},
		{Name: "pulse_metrics", Description: "Show a user's wellness aggregate (streak, last check-in, stress level)"},
	}
}

// CallTool executes a tool by name with the given arguments.
// This is used for testing and direct invocation.
func (s *Server) CallTool(ctx context.Context, name string, args map[string]any) (*ToolResult, error) {
	switch name {
	case "pulse_checkin":
		return s.handleCheckIn(ctx, args)
	case "pulse_sync":
		return s.handleSync(ctx, args)
	case "pulse_queue":
		return s.handleQueue(ctx, args)
	case "pulse_metrics":
		return s.handleMetrics(ctx, args)
	default:
		return &ToolResult{Content: fmt.Sprintf("unknown tool: %s", name), IsError: true}, nil
	}
}

func (s *Server) registerTools() {
	// pulse_checkin
	s.mcpServer.AddTool(mcp.NewTool("pulse_checkin",
		mcp.WithDescription("Record a completed stress/mood assessment for a user. Responses are scored client-side; the record syncs to Harbor immediately when reachable and is saved locally otherwise."),
		mcp.WithString("user_id",
			mcp.Description("Owner of the assessment"),
			mcp.Required(),
		),
		mcp.WithString("responses",
			mcp.Description(`JSON array of responses: [{"question_id":1,"type":"stress","score":7}, ...]; scores are 0-10`),
			mcp.Required(),
		),
		mcp.WithArray("symptoms",
			mcp.Description("Free-text symptom tags"),
			mcp.WithStringItems(),
		),
		mcp.WithArray("triggers",
			mcp.Description("Free-text trigger tags"),
			mcp.WithStringItems(),
		),
		mcp.WithString("notes",
			mcp.Description("Optional free-text notes"),
		),
	), s.mcpHandleCheckIn)

	// pulse_sync
	s.mcpServer.AddTool(mcp.NewTool("pulse_sync",
		mcp.WithDescription("Drain locally queued assessments to Harbor now. Requires HARBOR_URL and HARBOR_API_KEY to be configured."),
	), s.mcpHandleSync)

	// pulse_queue
	s.mcpServer.AddTool(mcp.NewTool("pulse_queue",
		mcp.WithDescription("Show the local sync queue: pending count, stalled records, and last successful sync. Read-only."),
	), s.mcpHandleQueue)

	// pulse_metrics
	s.mcpServer.AddTool(mcp.NewTool("pulse_metrics",
		mcp.WithDescription("Show a user's wellness aggregate: streak days, last assessment date, and most recent stress level. Read-only."),
		mcp.WithString("user_id",
			mcp.Description("User to inspect"),
			mcp.Required(),
		),
	), s.mcpHandleMetrics)
}

// MCP handlers that wrap internal handlers

func (s *Server) mcpHandleCheckIn(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	result, err := s.handleCheckIn(ctx, req.GetArguments())
	if err != nil {
		return nil, err
	}
	return toMCPResult(result), nil
}

func (s *Server) mcpHandleSync(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	result, err := s.handleSync(ctx, req.GetArguments())
	if err != nil {
		return nil, err
	}
	return toMCPResult(result), nil
}

func (s *Server) mcpHandleQueue(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	result, err := s.handleQueue(ctx, req.GetArguments())
	if err != nil {
		return nil, err
	}
	return toMCPResult(result), nil
}

func (s *Server) mcpHandleMetrics(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	result, err := s.handleMetrics(ctx, req.GetArguments())
	if err != nil {
		return nil, err
	}
	return toMCPResult(result), nil
}

func toMCPResult(r *ToolResult) *mcp.CallToolResult {
	result := &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{
				Type: "text",
				Text: r.Content,
			},
		},
	}
	if r.IsError {
		result.IsError = true
	}
	return result
}

// Internal handlers

func (s *Server) handleCheckIn(ctx context.Context, args map[string]any) (*ToolResult, error) {
	userID, ok := args["user_id"].(string)
	if !ok || userID == "" {
		return &ToolResult{Content: "user_id is required", IsError: true}, nil
	}

	responsesJSON, ok := args["responses"].(string)
	if !ok || responsesJSON == "" {
		return &ToolResult{Content: "responses is required", IsError: true}, nil
	}

	var responses []pulse.Response
	if err := json.Unmarshal([]byte(responsesJSON), &responses); err != nil {
		return &ToolResult{Content: fmt.Sprintf("invalid responses: %v", err), IsError: true}, nil
	}

	params := pulse.CheckInParams{
		UserID:    userID,
		Responses: responses,
		Symptoms:  toStringSlice(args["symptoms"]),
		Triggers:  toStringSlice(args["triggers"]),
	}
	if notes, ok := args["notes"].(string); ok {
		params.Notes = notes
	}

	result, err := s.client.CompleteAssessment(ctx, params)
	if err != nil {
		return &ToolResult{Content: fmt.Sprintf("check-in failed: %v", err), IsError: true}, nil
	}

	return &ToolResult{Content: formatCheckInResult(result)}, nil
}

func (s *Server) handleSync(ctx context.Context, args map[string]any) (*ToolResult, error) {
	result, err := s.client.SyncNow(ctx)
	if err != nil {
		return &ToolResult{Content: fmt.Sprintf("sync failed: %v", err), IsError: true}, nil
	}

	if result.Coalesced {
		return &ToolResult{Content: fmt.Sprintf("Sync already in progress; %d records queued", result.Remaining)}, nil
	}
	return &ToolResult{Content: fmt.Sprintf("Sync complete: %d synced, %d rejected, %d remaining",
		result.Synced, result.Rejected, result.Remaining)}, nil
}

func (s *Server) handleQueue(ctx context.Context, args map[string]any) (*ToolResult, error) {
	stats, err := s.client.Stats()
	if err != nil {
		return &ToolResult{Content: fmt.Sprintf("queue inspection failed: %v", err), IsError: true}, nil
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Queued assessments: %d\n", stats.Queued))
	sb.WriteString(fmt.Sprintf("Stalled (need attention): %d\n", stats.Stalled))
	if stats.LastSync.IsZero() {
		sb.WriteString("Last sync: never")
	} else {
		sb.WriteString(fmt.Sprintf("Last sync: %s", stats.LastSync.Format("2006-01-02 15:04:05 MST")))
	}
	return &ToolResult{Content: sb.String()}, nil
}

func (s *Server) handleMetrics(ctx context.Context, args map[string]any) (*ToolResult, error) {
	userID, ok := args["user_id"].(string)
	if !ok || userID == "" {
		return &ToolResult{Content: "user_id is required", IsError: true}, nil
	}

	metrics, err := s.client.Metrics(ctx, userID)
	if err != nil {
		return &ToolResult{Content: fmt.Sprintf("metrics unavailable: %v", err), IsError: true}, nil
	}

	return &ToolResult{Content: formatMetrics(metrics)}, nil
}

// Formatting functions

func formatCheckInResult(result *pulse.CheckInResult) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Check-in recorded [%s]:\n", result.Assessment.LocalID))
	sb.WriteString(fmt.Sprintf("  Score: %.1f (%s)\n", result.Assessment.CombinedScore, result.Band))

	if result.Status == pulse.CheckInSynced {
		sb.WriteString("  Status: synced to Harbor")
	} else {
		sb.WriteString("  Status: saved locally, will sync when Harbor is reachable")
	}
	return sb.String()
}

func formatMetrics(m *pulse.UserMetrics) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Wellness metrics for %s:\n", m.UserID))
	sb.WriteString(fmt.Sprintf("  Streak: %d days\n", m.StreakDays))
	sb.WriteString(fmt.Sprintf("  Stress level: %.1f\n", m.StressLevel))
	if m.LastAssessmentDate.IsZero() {
		sb.WriteString("  Last check-in: never\n")
	} else {
		sb.WriteString(fmt.Sprintf("  Last check-in: %s\n", m.LastAssessmentDate.Format("2006-01-02")))
	}
	if m.Source == pulse.MetricsLocal {
		sb.WriteString("  (local fallback values; Harbor unreachable)")
	} else {
		sb.WriteString("  (remote-confirmed)")
	}
	return sb.String()
}

// toStringSlice converts various array types to []string.
// Handles []any, []string, and nil.
func toStringSlice(v any) []string {
	if v == nil {
		return nil
	}

	switch arr := v.(type) {
	case []string:
		return arr
	case []any:
		result := make([]string, 0, len(arr))
		for _, item := range arr {
			if s, ok := item.(string); ok {
				result = append(result, s)
			}
		}
		return result
	default:
		return nil
	}
}
