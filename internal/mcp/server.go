package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/NickB03/vana/internal/backend"
	"github.com/NickB03/vana/internal/breaker"
	"github.com/NickB03/vana/internal/health"
	"github.com/NickB03/vana/internal/search"
	"github.com/NickB03/vana/pkg/version"
)

// SearchInput defines the input schema for the search tool.
type SearchInput struct {
	Query string `json:"query" jsonschema:"the search query to run against all backends"`
	Count int    `json:"count,omitempty" jsonschema:"maximum number of fused results, default 10"`
	K     int    `json:"k,omitempty" jsonschema:"per-backend candidate count, default 5"`
}

// SearchOutput defines the output schema for the search tool.
type SearchOutput struct {
	Results        []SearchResultOutput `json:"results" jsonschema:"fused results, best first"`
	Partial        bool                 `json:"partial,omitempty" jsonschema:"true when one or more backends failed"`
	FailedBackends []string             `json:"failed_backends,omitempty" jsonschema:"names of backends that failed"`
	DurationMS     int64                `json:"duration_ms" jsonschema:"wall time spent searching"`
}

// SearchResultOutput is a single fused result.
type SearchResultOutput struct {
	ID      string  `json:"id" jsonschema:"backend-qualified result identifier"`
	Backend string  `json:"backend" jsonschema:"originating backend: vector, graph, or web"`
	Title   string  `json:"title,omitempty" jsonschema:"result title"`
	Body    string  `json:"body,omitempty" jsonschema:"result body or snippet"`
	URL     string  `json:"url,omitempty" jsonschema:"source URL when available"`
	Score   float64 `json:"score" jsonschema:"final weighted score"`
	Rank    int     `json:"rank" jsonschema:"dense rank starting at 1"`
}

// HealthInput defines the input schema for the backend_health tool.
type HealthInput struct {
	Probe bool `json:"probe,omitempty" jsonschema:"actively probe backends instead of returning the cached snapshot"`
}

// HealthOutput defines the output schema for the backend_health tool.
type HealthOutput struct {
	Healthy  bool                     `json:"healthy" jsonschema:"true when every breaker is closed"`
	Backends []breaker.HealthSnapshot `json:"backends" jsonschema:"per-backend breaker state"`
}

// Server exposes search and health over MCP.
type Server struct {
	orchestrator *search.Orchestrator
	reporter     *health.Reporter
	logger       *slog.Logger
	mcp          *mcp.Server
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithServerLogger sets the logger used by the server.
func WithServerLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

// NewServer creates an MCP server over the orchestrator and reporter.
func NewServer(orchestrator *search.Orchestrator, reporter *health.Reporter, opts ...ServerOption) (*Server, error) {
	if orchestrator == nil {
		return nil, fmt.Errorf("orchestrator is required")
	}
	if reporter == nil {
		return nil, fmt.Errorf("health reporter is required")
	}

	s := &Server{
		orchestrator: orchestrator,
		reporter:     reporter,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.mcp = mcp.NewServer(
		&mcp.Implementation{
			Name:    "vana",
			Version: version.Version,
		},
		nil,
	)
	s.registerTools()

	return s, nil
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "search",
		Description: "Hybrid search across the vector, graph, and web backends. Results are deduplicated and ranked by weighted score fusion; partial results are returned when a backend is down.",
	}, s.searchHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "backend_health",
		Description: "Report circuit breaker state per backend. Set probe to actively test backends whose circuits are not closed.",
	}, s.healthHandler)

	s.logger.Info("MCP tools registered", slog.Int("count", 2))
}

func (s *Server) searchHandler(ctx context.Context, req *mcp.CallToolRequest, input SearchInput) (
	*mcp.CallToolResult,
	SearchOutput,
	error,
) {
	if input.Query == "" {
		return nil, SearchOutput{}, NewInvalidParamsError("query parameter is required")
	}

	query := search.Query{Text: input.Query, DesiredCount: input.Count}
	if input.K > 0 {
		query.PerBackendK = map[backend.Name]int{
			backend.Vector: input.K,
			backend.Graph:  input.K,
			backend.Web:    input.K,
		}
	}

	start := time.Now()
	resp, err := s.orchestrator.Search(ctx, query)
	if err != nil {
		s.logger.Error("search failed",
			slog.String("query", input.Query),
			slog.String("error", err.Error()))
		return nil, SearchOutput{}, MapError(err)
	}

	output := SearchOutput{
		Results:    make([]SearchResultOutput, 0, len(resp.Results)),
		Partial:    resp.Partial,
		DurationMS: time.Since(start).Milliseconds(),
	}
	for _, name := range resp.FailedBackends {
		output.FailedBackends = append(output.FailedBackends, name.String())
	}
	for _, r := range resp.Results {
		output.Results = append(output.Results, SearchResultOutput{
			ID:      r.Item.ID,
			Backend: r.Item.Backend.String(),
			Title:   r.Item.Title,
			Body:    r.Item.Body,
			URL:     r.Item.URL,
			Score:   r.FinalScore,
			Rank:    r.Rank,
		})
	}
	return nil, output, nil
}

func (s *Server) healthHandler(ctx context.Context, req *mcp.CallToolRequest, input HealthInput) (
	*mcp.CallToolResult,
	HealthOutput,
	error,
) {
	var status health.Status
	if input.Probe {
		status = s.reporter.ProbeNow(ctx)
	} else {
		status = s.reporter.Check()
	}

	return nil, HealthOutput{
		Healthy:  status.Healthy,
		Backends: status.Backends,
	}, nil
}

// Serve runs the server until ctx is canceled. Only the stdio transport
// is supported.
func (s *Server) Serve(ctx context.Context, transport string) error {
	if transport != "stdio" {
		return fmt.Errorf("unknown transport: %s (supported: stdio)", transport)
	}

	s.logger.Info("starting MCP server", slog.String("transport", transport))
	err := s.mcp.Run(ctx, &mcp.StdioTransport{})
	if err != nil && err != context.Canceled {
		s.logger.Error("MCP server stopped with error", slog.String("error", err.Error()))
		return err
	}
	s.logger.Info("MCP server stopped")
	return nil
}
