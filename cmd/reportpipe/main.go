package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/rendis/reportpipe/internal/engine"
	"github.com/rendis/reportpipe/internal/llm"
	"github.com/rendis/reportpipe/internal/logging"
	"github.com/rendis/reportpipe/internal/policy"
	"github.com/rendis/reportpipe/internal/render"
	"github.com/rendis/reportpipe/internal/report"
	"github.com/rendis/reportpipe/internal/scheduler"
	"github.com/rendis/reportpipe/internal/sqlguard"
	"github.com/rendis/reportpipe/internal/stages"
	"github.com/rendis/reportpipe/internal/store"
	"github.com/rendis/reportpipe/internal/streaming"
	"github.com/rendis/reportpipe/internal/warehouse"
	"github.com/rendis/reportpipe/pkg/mcp"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "reportpipe:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := loadConfig()
	logger := newLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := os.MkdirAll(reportpipeDir(), 0o755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}

	st, err := store.NewLibSQLStore(cfg.StoreDBPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()
	if err := st.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate store: %w", err)
	}
	eventLog := store.NewEventLog(st)

	wh, err := warehouse.Open(cfg.WarehouseDBPath, cfg.queryTimeout(), logger)
	if err != nil {
		return fmt.Errorf("open warehouse: %w", err)
	}
	defer wh.Close()

	intro := warehouse.NewIntrospector(wh)
	cache := warehouse.NewMetadataCache(intro, cfg.cacheTTL())

	parser, err := stages.NewParser()
	if err != nil {
		return fmt.Errorf("compile output schemas: %w", err)
	}

	client := llm.NewAnthropicClient(anthropic.Model(cfg.Model), cfg.MaxTokens, logger)
	guard := sqlguard.New(sqlguard.DefaultLimits())
	renderer := render.NewRenderer(logger)
	hub := streaming.NewMemoryHub()

	pipeline := []stages.Stage{
		stages.NewGenerate(client, cache, parser, logger),
		stages.NewValidate(guard),
		stages.NewExecute(wh),
		stages.NewVisualize(client, renderer, parser, logger),
		stages.NewReview(client, parser, logger),
		stages.NewReport(report.NewGenerator()),
	}

	orch := engine.NewOrchestrator(pipeline, policy.NewController(), st, eventLog, hub, logger, cfg.stageTimeout())

	sched, err := scheduler.NewScheduler(cache, cfg.RefreshCron, hub, logger)
	if err != nil {
		return fmt.Errorf("create scheduler: %w", err)
	}
	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	defer sched.Stop()

	// Warm the metadata cache so the first run sees the schema immediately.
	sched.RefreshNow(ctx)

	server := mcp.NewReportServer(mcp.ReportServerDeps{
		Runner:        orch,
		Store:         st,
		Guard:         guard,
		Hub:           hub,
		Logger:        logger,
		MaxIterations: cfg.MaxIterations,
	})

	logger.Info("reportpipe server starting",
		"model", cfg.Model, "store", cfg.StoreDBPath, "warehouse", cfg.WarehouseDBPath)
	return server.Serve(ctx)
}

// newLogger builds the process logger. MCP owns stdout, so logs go to stderr.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	inner := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	return slog.New(logging.NewCorrelationHandler(inner))
}
