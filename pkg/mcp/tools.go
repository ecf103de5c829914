package mcp

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/rendis/reportpipe/internal/store"
	"github.com/rendis/reportpipe/internal/streaming"
	"github.com/rendis/reportpipe/pkg/schema"
)

// --- report.run ---

// runResponse is the payload returned by report.run. The document travels
// base64-encoded because tool results are JSON text.
type runResponse struct {
	RunID          string       `json:"run_id"`
	Stage          schema.Stage `json:"stage"`
	Score          float64      `json:"score"`
	Approved       bool         `json:"approved"`
	Iteration      int          `json:"iteration"`
	ChartType      string       `json:"chart_type,omitempty"`
	SQLQuery       string       `json:"sql_query,omitempty"`
	Errors         []string     `json:"errors,omitempty"`
	DocumentBase64 string       `json:"document_base64,omitempty"`
	DocumentBytes  int          `json:"document_bytes"`
}

func (s *ReportServer) handleRun(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError("query is required"), nil
	}

	profile := mcp.ParseStringMap(req, "profile", nil)
	maxIterations := req.GetInt("max_iterations", s.maxIterations)

	result, err := s.runner.Run(ctx, query, profile, maxIterations)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("run failed: %v", err)), nil
	}

	resp := runResponse{
		RunID:         result.RunID,
		Stage:         result.Stage,
		Score:         result.Score,
		Approved:      result.Approved,
		Iteration:     result.Iteration,
		ChartType:     result.ChartType,
		SQLQuery:      result.SQLQuery,
		Errors:        result.Errors,
		DocumentBytes: len(result.Document),
	}
	if len(result.Document) > 0 {
		resp.DocumentBase64 = base64.StdEncoding.EncodeToString(result.Document)
	}

	return marshalResult(resp)
}

// --- report.status ---

// statusResponse is the payload returned by report.status. It carries the
// persisted run plus a flag instead of the document itself.
type statusResponse struct {
	Run           *store.Run `json:"run"`
	DocumentReady bool       `json:"document_ready"`
	DocumentBytes int        `json:"document_bytes"`
}

func (s *ReportServer) handleStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	runID, err := req.RequireString("run_id")
	if err != nil {
		return mcp.NewToolResultError("run_id is required"), nil
	}

	run, err := s.store.GetRun(ctx, runID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to get run: %v", err)), nil
	}

	return marshalResult(statusResponse{
		Run:           run,
		DocumentReady: len(run.Document) > 0,
		DocumentBytes: len(run.Document),
	})
}

// --- report.watch ---

// watchResponse is the payload returned by report.watch: the events observed
// while watching, and whether a terminal event ended the watch.
type watchResponse struct {
	RunID    string                  `json:"run_id"`
	Events   []streaming.StreamEvent `json:"events"`
	Terminal bool                    `json:"terminal"`
}

func (s *ReportServer) handleWatch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	runID, err := req.RequireString("run_id")
	if err != nil {
		return mcp.NewToolResultError("run_id is required"), nil
	}
	if s.hub == nil {
		return mcp.NewToolResultError("event streaming is not enabled"), nil
	}

	timeout := time.Duration(req.GetInt("timeout_sec", 60)) * time.Second
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ch, unsubscribe, err := s.hub.Subscribe(ctx, streaming.EventFilter{RunID: runID})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to subscribe: %v", err)), nil
	}
	defer unsubscribe()

	resp := watchResponse{RunID: runID, Events: []streaming.StreamEvent{}}
	for {
		select {
		case <-ctx.Done():
			return marshalResult(resp)
		case evt := <-ch:
			resp.Events = append(resp.Events, evt)
			switch evt.EventType {
			case schema.EventRunCompleted, schema.EventRunFailed, schema.EventRunCancelled:
				resp.Terminal = true
				return marshalResult(resp)
			}
		}
	}
}

// --- report.fetch ---

type fetchResponse struct {
	RunID          string `json:"run_id"`
	ContentType    string `json:"content_type"`
	SizeBytes      int    `json:"size_bytes"`
	DocumentBase64 string `json:"document_base64"`
}

func (s *ReportServer) handleFetch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	runID, err := req.RequireString("run_id")
	if err != nil {
		return mcp.NewToolResultError("run_id is required"), nil
	}

	run, err := s.store.GetRun(ctx, runID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to get run: %v", err)), nil
	}
	if len(run.Document) == 0 {
		return mcp.NewToolResultError(fmt.Sprintf("run %s has no document (status: %s)", runID, run.Status)), nil
	}

	return marshalResult(fetchResponse{
		RunID:          run.ID,
		ContentType:    "application/pdf",
		SizeBytes:      len(run.Document),
		DocumentBase64: base64.StdEncoding.EncodeToString(run.Document),
	})
}

// --- report.query ---

func (s *ReportServer) handleQuery(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	resource, err := req.RequireString("resource")
	if err != nil {
		return mcp.NewToolResultError("resource is required"), nil
	}

	filter := mcp.ParseStringMap(req, "filter", nil)

	switch resource {
	case "runs":
		return s.queryRuns(ctx, filter)
	case "events":
		return s.queryEvents(ctx, filter)
	default:
		return mcp.NewToolResultError(fmt.Sprintf("unknown resource type: %s", resource)), nil
	}
}

func (s *ReportServer) queryRuns(ctx context.Context, filter map[string]any) (*mcp.CallToolResult, error) {
	rf := store.RunFilter{
		Limit:  extractInt(filter, "limit", 50),
		Offset: extractInt(filter, "offset", 0),
	}
	if v, ok := filter["status"].(string); ok && v != "" {
		status := schema.RunStatus(v)
		rf.Status = &status
	}
	if v, ok := filter["since"].(string); ok && v != "" {
		since, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid since timestamp: %v", err)), nil
		}
		rf.Since = &since
	}

	runs, err := s.store.ListRuns(ctx, rf)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list runs: %v", err)), nil
	}
	return marshalResult(runs)
}

func (s *ReportServer) queryEvents(ctx context.Context, filter map[string]any) (*mcp.CallToolResult, error) {
	runID, _ := filter["run_id"].(string)
	eventType, _ := filter["event_type"].(string)

	if eventType != "" {
		events, err := s.store.GetEventsByType(ctx, eventType, store.EventFilter{
			RunID: runID,
			Limit: extractInt(filter, "limit", 100),
		})
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to query events: %v", err)), nil
		}
		return marshalResult(events)
	}

	if runID == "" {
		return mcp.NewToolResultError("events query requires a run_id or event_type filter"), nil
	}

	events, err := s.store.GetEvents(ctx, runID, int64(extractInt(filter, "since_sequence", 0)))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to query events: %v", err)), nil
	}
	return marshalResult(events)
}

// --- sql.validate ---

func (s *ReportServer) handleValidate(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sqlText, err := req.RequireString("sql")
	if err != nil {
		return mcp.NewToolResultError("sql is required"), nil
	}

	verdict := s.guard.Validate(sqlText)
	return marshalResult(verdict)
}

// --- Helpers ---

func marshalResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultJSON(json.RawMessage(data))
}

// extractInt reads an integer from a loosely-typed filter map. JSON numbers
// arrive as float64.
func extractInt(m map[string]any, key string, def int) int {
	v, ok := m[key]
	if !ok {
		return def
	}
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return int(i)
		}
	}
	return def
}
