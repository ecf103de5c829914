package mcp

import (
	"context"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/rendis/reportpipe/internal/sqlguard"
	"github.com/rendis/reportpipe/internal/store"
	"github.com/rendis/reportpipe/internal/streaming"
	"github.com/rendis/reportpipe/pkg/schema"
)

// RunStarter is the interface the server uses to start report runs.
// Satisfied by the engine orchestrator.
type RunStarter interface {
	Run(ctx context.Context, query string, profile map[string]any, maxIterations int) (*schema.RunResult, error)
}

// ReportServerDeps holds the dependencies for creating a ReportServer.
type ReportServerDeps struct {
	Runner RunStarter
	Store  store.Store
	Guard  *sqlguard.Validator
	Hub    streaming.EventHub
	Logger *slog.Logger

	// MaxIterations is the default review/retry cap for report.run when the
	// caller does not pass max_iterations. Zero falls back to 3.
	MaxIterations int
}

// ReportServer wraps an MCP server with report-pipeline tool handlers.
type ReportServer struct {
	runner        RunStarter
	store         store.Store
	guard         *sqlguard.Validator
	hub           streaming.EventHub
	logger        *slog.Logger
	maxIterations int
	mcpServer     *server.MCPServer
}

// NewReportServer creates a new ReportServer with all 6 tools registered.
func NewReportServer(deps ReportServerDeps) *ReportServer {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}

	maxIterations := deps.MaxIterations
	if maxIterations <= 0 {
		maxIterations = 3
	}

	s := &ReportServer{
		runner:        deps.Runner,
		store:         deps.Store,
		guard:         deps.Guard,
		hub:           deps.Hub,
		logger:        logger,
		maxIterations: maxIterations,
	}

	mcpSrv := server.NewMCPServer(
		"reportpipe",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions("Reportpipe turns analytic questions into reviewed PDF reports. Use report.run to start a run, report.status to check progress, report.watch to follow a running report's events, report.fetch to download the finished document, report.query to list runs/events, and sql.validate to check a SQL query against the safety rules."),
	)

	mcpSrv.AddTools(s.tools()...)
	s.mcpServer = mcpSrv
	return s
}

// Serve starts the stdio transport and blocks until ctx is cancelled or stdin closes.
func (s *ReportServer) Serve(ctx context.Context) error {
	stdio := server.NewStdioServer(s.mcpServer)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// MCPServer returns the underlying MCPServer for testing or custom transports.
func (s *ReportServer) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// tools returns the 6 registered MCP tools as ServerTool entries.
func (s *ReportServer) tools() []server.ServerTool {
	return []server.ServerTool{
		{Tool: runTool(), Handler: s.handleRun},
		{Tool: statusTool(), Handler: s.handleStatus},
		{Tool: watchTool(), Handler: s.handleWatch},
		{Tool: fetchTool(), Handler: s.handleFetch},
		{Tool: queryTool(), Handler: s.handleQuery},
		{Tool: validateTool(), Handler: s.handleValidate},
	}
}

// --- Tool definitions ---

func runTool() mcp.Tool {
	return mcp.NewTool("report.run",
		mcp.WithDescription("Generate a reviewed PDF report from a natural-language question"),
		mcp.WithString("query", mcp.Required(), mcp.Description("The analytic question to answer")),
		mcp.WithObject("profile", mcp.Description("Caller profile used to tailor tone and depth")),
		mcp.WithNumber("max_iterations", mcp.Description("Maximum review/retry passes (default: 3)")),
	)
}

func statusTool() mcp.Tool {
	return mcp.NewTool("report.status",
		mcp.WithDescription("Get the status of a report run"),
		mcp.WithString("run_id", mcp.Required(), mcp.Description("ID of the run to query")),
	)
}

func watchTool() mcp.Tool {
	return mcp.NewTool("report.watch",
		mcp.WithDescription("Follow a run's events until it reaches a terminal state or the timeout elapses"),
		mcp.WithString("run_id", mcp.Required(), mcp.Description("ID of the run to follow")),
		mcp.WithNumber("timeout_sec", mcp.Description("How long to wait for events (default: 60)")),
	)
}

func fetchTool() mcp.Tool {
	return mcp.NewTool("report.fetch",
		mcp.WithDescription("Fetch the finished PDF document of a completed run, base64-encoded"),
		mcp.WithString("run_id", mcp.Required(), mcp.Description("ID of the completed run")),
	)
}

func queryTool() mcp.Tool {
	return mcp.NewTool("report.query",
		mcp.WithDescription("Query runs or run events"),
		mcp.WithString("resource", mcp.Required(),
			mcp.Enum("runs", "events"),
			mcp.Description("Type of resource to query"),
		),
		mcp.WithObject("filter", mcp.Description("Filter criteria (status, since, limit, event_type, run_id)")),
	)
}

func validateTool() mcp.Tool {
	return mcp.NewTool("sql.validate",
		mcp.WithDescription("Validate a SQL query against the read-only safety rules without executing it"),
		mcp.WithString("sql", mcp.Required(), mcp.Description("The SQL query to validate")),
	)
}
