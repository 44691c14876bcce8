package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/patrickwarner/nest/internal/config"
	"github.com/patrickwarner/nest/internal/db"
	"github.com/patrickwarner/nest/internal/forecasting"
	"github.com/patrickwarner/nest/internal/models"
	"github.com/patrickwarner/nest/internal/observability"
	"github.com/patrickwarner/nest/internal/reports"
)

const toolTimeout = 10 * time.Second

type ListReportsInput struct {
	Category string `json:"category,omitempty" jsonschema:"report category, e.g. pothole or water"`
	Status   string `json:"status,omitempty" jsonschema:"pending, in-progress, resolved or rejected"`
	Severity string `json:"severity,omitempty" jsonschema:"low, medium, high or critical"`
	Search   string `json:"search,omitempty" jsonschema:"text matched against title and description"`
	Page     int    `json:"page,omitempty" jsonschema:"1-based page number"`
	Limit    int    `json:"limit,omitempty" jsonschema:"page size, at most 100"`
}

type GetReportInput struct {
	ID string `json:"id" jsonschema:"report id"`
}

type NearbyReportsInput struct {
	Longitude   float64 `json:"longitude" jsonschema:"longitude of the query point"`
	Latitude    float64 `json:"latitude" jsonschema:"latitude of the query point"`
	MaxDistance float64 `json:"max_distance,omitempty" jsonschema:"search radius in meters, defaults to 5000"`
	Limit       int     `json:"limit,omitempty" jsonschema:"maximum number of reports"`
}

type ListPredictionsInput struct {
	Status         string   `json:"status,omitempty" jsonschema:"prediction status, defaults to active"`
	Type           string   `json:"type,omitempty" jsonschema:"report category the prediction is about"`
	MinProbability *float64 `json:"min_probability,omitempty" jsonschema:"lowest probability to include, defaults to 0.5"`
}

// ReportTools exposes read-only report operations to MCP clients.
type ReportTools struct {
	reports   *reports.Service
	forecasts *forecasting.Engine
	logger    *zap.Logger
}

// textResult renders v as indented JSON text content.
func textResult(v any) (*mcp.CallToolResult, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: string(b)}}}, nil
}

func (t *ReportTools) ListReports(ctx context.Context, _ *mcp.CallToolRequest, in ListReportsInput) (*mcp.CallToolResult, any, error) {
	ctx, cancel := context.WithTimeout(ctx, toolTimeout)
	defer cancel()
	page, err := t.reports.Query(ctx, models.ReportFilter{
		Category: models.Category(in.Category),
		Status:   models.Status(in.Status),
		Severity: models.Severity(in.Severity),
		Search:   in.Search,
	}, models.Page{Page: in.Page, Limit: in.Limit})
	if err != nil {
		return nil, nil, err
	}
	t.logger.Info("list_reports", zap.Int("returned", len(page.Reports)), zap.Int("total", page.Pagination.Total))
	res, err := textResult(page)
	return res, nil, err
}

func (t *ReportTools) GetReport(ctx context.Context, _ *mcp.CallToolRequest, in GetReportInput) (*mcp.CallToolResult, any, error) {
	ctx, cancel := context.WithTimeout(ctx, toolTimeout)
	defer cancel()
	view, err := t.reports.Get(ctx, in.ID)
	if err != nil {
		return nil, nil, err
	}
	res, err := textResult(view)
	return res, nil, err
}

func (t *ReportTools) NearbyReports(ctx context.Context, _ *mcp.CallToolRequest, in NearbyReportsInput) (*mcp.CallToolResult, any, error) {
	ctx, cancel := context.WithTimeout(ctx, toolTimeout)
	defer cancel()
	out, err := t.reports.QueryNearby(ctx, reports.NearbyQuery{
		Longitude:   &in.Longitude,
		Latitude:    &in.Latitude,
		MaxDistance: in.MaxDistance,
		Limit:       in.Limit,
	})
	if err != nil {
		return nil, nil, err
	}
	res, err := textResult(out)
	return res, nil, err
}

func (t *ReportTools) ListPredictions(ctx context.Context, _ *mcp.CallToolRequest, in ListPredictionsInput) (*mcp.CallToolResult, any, error) {
	ctx, cancel := context.WithTimeout(ctx, toolTimeout)
	defer cancel()
	page, err := t.forecasts.List(ctx, forecasting.ListQuery{
		Status:         models.PredictionStatus(in.Status),
		Type:           models.Category(in.Type),
		MinProbability: in.MinProbability,
	}, models.Page{})
	if err != nil {
		return nil, nil, err
	}
	res, err := textResult(page)
	return res, nil, err
}

func newMCPServer(tools *ReportTools) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "nest",
		Version: "1.0.0",
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_reports",
		Description: "List neighborhood reports, newest first, with optional filters",
	}, tools.ListReports)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_report",
		Description: "Fetch one report with its reporter, assignee and comment authors",
	}, tools.GetReport)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "nearby_reports",
		Description: "Find reports near a coordinate, nearest first",
	}, tools.NearbyReports)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_predictions",
		Description: "List generated issue predictions ordered by probability",
	}, tools.ListPredictions)
	return server
}

func main() {
	cfg := config.Load()

	// stdout carries the protocol, so logs go to stderr.
	logger, err := observability.InitStderrLogger(cfg.ServiceName + "-mcp")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	pg, err := db.InitPostgres(cfg.PostgresDSN, 10, 5, 30*time.Minute, cfg.DBConnMaxIdleTime)
	if err != nil {
		logger.Fatal("Failed to connect to PostgreSQL", zap.Error(err))
	}
	defer pg.Close()
	logger.Info("Connected to PostgreSQL")

	// Read-only tools never notify, so the service runs without a dispatcher.
	tools := &ReportTools{
		reports:   reports.New(pg, nil, logger, nil),
		forecasts: forecasting.NewEngine(pg, nil, logger, nil),
		logger:    logger,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var logBuffer bytes.Buffer
	transport := &mcp.LoggingTransport{
		Transport: &mcp.StdioTransport{},
		Writer:    &logBuffer,
	}

	logger.Info("MCP server running via stdio")
	if err := newMCPServer(tools).Run(ctx, transport); err != nil && ctx.Err() == nil {
		logger.Fatal("Server error", zap.Error(err), zap.String("mcp_logs", logBuffer.String()))
	}
}
