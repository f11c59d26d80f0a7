package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/retailsearch/retailsearch/internal/nl2sql"
	"github.com/retailsearch/retailsearch/internal/observability"
	"github.com/retailsearch/retailsearch/internal/query"
	"github.com/retailsearch/retailsearch/internal/remote"
)

const (
	StatusSuccess = "success"
	StatusError   = "error"

	// NoMatchReport is the report of every failed tool call.
	NoMatchReport = "None matched your search!!"
)

var errNoStatement = errors.New("generation returned no statement")

// ToolResult is always returned, never an error.
type ToolResult struct {
	Status string
	Report string
}

func (r ToolResult) Succeeded() bool {
	return r.Status == StatusSuccess
}

// Rows splits a success report back into its result rows. The execution
// side never emits the row separator inside a value.
func (r ToolResult) Rows() []string {
	if !r.Succeeded() || strings.TrimSpace(r.Report) == "" {
		return nil
	}
	return strings.Split(r.Report, query.RowSeparator)
}

type Tool interface {
	Run(ctx context.Context, searchText string) ToolResult
}

// Pipeline runs the two legs of a search: text to SQL, SQL to result text.
type Pipeline interface {
	Generate(ctx context.Context, searchText string) (string, error)
	Execute(ctx context.Context, sqlText string) (string, error)
}

// RemotePipeline calls the generation and execution peers over HTTP.
type RemotePipeline struct {
	Client      *remote.Client
	GenerateURL string
	ExecuteURL  string
}

func (p RemotePipeline) Generate(ctx context.Context, searchText string) (string, error) {
	return p.Client.PostLeg(ctx, remote.LegGenerate, p.GenerateURL, searchText)
}

func (p RemotePipeline) Execute(ctx context.Context, sqlText string) (string, error) {
	return p.Client.PostLeg(ctx, remote.LegExecute, p.ExecuteURL, sqlText)
}

// LocalPipeline runs both legs in process.
type LocalPipeline struct {
	Generator *nl2sql.Service
	Executor  query.Executor
}

func (p LocalPipeline) Generate(ctx context.Context, searchText string) (string, error) {
	statement, err := p.Generator.Generate(ctx, nl2sql.SearchRequest{Text: searchText})
	if err != nil {
		return "", err
	}
	return statement.Text, nil
}

func (p LocalPipeline) Execute(ctx context.Context, sqlText string) (string, error) {
	result, err := p.Executor.Execute(ctx, query.Statement{Text: sqlText})
	if err != nil {
		return "", err
	}
	return result.Text(), nil
}

// SearchTool feeds the generated statement into execution. Every failure is
// logged and reported as NoMatchReport.
type SearchTool struct {
	pipeline Pipeline
	timeout  time.Duration
	logger   *slog.Logger
}

func NewSearchTool(pipeline Pipeline, timeout time.Duration, logger *slog.Logger) (*SearchTool, error) {
	if pipeline == nil {
		return nil, fmt.Errorf("pipeline is required")
	}
	if timeout <= 0 {
		timeout = 45 * time.Second
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &SearchTool{pipeline: pipeline, timeout: timeout, logger: logger}, nil
}

func (t *SearchTool) Run(ctx context.Context, searchText string) ToolResult {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	report, err := t.run(ctx, searchText)
	if err != nil {
		observability.WithContext(ctx, t.logger).WarnContext(ctx, "search tool failed",
			slog.String("search_text", searchText),
			slog.Any("error", err),
		)
		return ToolResult{Status: StatusError, Report: NoMatchReport}
	}
	return ToolResult{Status: StatusSuccess, Report: report}
}

func (t *SearchTool) run(ctx context.Context, searchText string) (string, error) {
	sqlText, err := t.pipeline.Generate(ctx, searchText)
	if err != nil {
		return "", fmt.Errorf("generate: %w", err)
	}
	if strings.TrimSpace(sqlText) == "" {
		return "", errNoStatement
	}
	report, err := t.pipeline.Execute(ctx, sqlText)
	if err != nil {
		return "", fmt.Errorf("execute: %w", err)
	}
	return report, nil
}
