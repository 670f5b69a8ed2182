package mcp

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/caresearch/medrank/internal/corpus"
	"github.com/caresearch/medrank/internal/filters"
	"github.com/caresearch/medrank/internal/intent"
	"github.com/caresearch/medrank/internal/telemetry"
	"github.com/caresearch/medrank/pkg/ranker"
	"github.com/caresearch/medrank/pkg/version"
)

// Tool descriptions explain WHEN to reach for each tool, so assistants
// pick ranking over raw corpus grepping.
const (
	rankToolDescription = "Primary practitioner search tool. Turns a patient's free-text request or " +
		"booking conversation into a ranked shortlist. Understands clinical intent, applies hard " +
		"filters (specialty, location, insurance, languages), and explains why each practitioner " +
		"matched. Use this whenever a patient needs a practitioner recommendation."

	corpusStatusToolDescription = "Check which practitioner corpus is loaded and how fresh it is. " +
		"Reports coverage statistics (verified profiles, NHS posts, structured expertise) and, when " +
		"telemetry is enabled, traffic served since startup. Use before ranking to verify the corpus " +
		"is present."
)

// Server is the MCP server for medrank.
// It bridges booking assistants with the practitioner ranking engine.
type Server struct {
	mcp      *mcp.Server
	service  ranker.Service
	provider *corpus.Provider
	logger   *slog.Logger

	// Query telemetry (optional, set via SetMetrics)
	metrics *telemetry.Metrics

	mu sync.RWMutex
}

// ToolInfo contains information about a registered tool.
type ToolInfo struct {
	Name        string
	Description string
}

// NewServer creates a new MCP server around a ranking service and the
// corpus provider backing it. The provider is consulted directly for
// corpus_status so the tool reflects hot swaps immediately.
func NewServer(service ranker.Service, provider *corpus.Provider) (*Server, error) {
	if service == nil {
		return nil, errors.New("ranking service is required")
	}
	if provider == nil {
		return nil, errors.New("corpus provider is required")
	}

	s := &Server{
		service:  service,
		provider: provider,
		logger:   slog.Default(),
	}

	// Create MCP server with implementation info
	s.mcp = mcp.NewServer(
		&mcp.Implementation{
			Name:    "medrank",
			Version: version.Version,
		},
		nil, // ServerOptions - capabilities are inferred from registered tools/resources
	)

	// Register tools
	s.registerTools()

	return s, nil
}

// SetMetrics sets the telemetry collector.
// When set, a query_metrics resource is registered.
func (s *Server) SetMetrics(m *telemetry.Metrics) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics = m

	// Register query_metrics resource if metrics is provided
	if m != nil {
		s.registerQueryMetricsResource()
	}
}

// MCPServer returns the underlying MCP server instance.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

// Info returns the server name and version.
func (s *Server) Info() (name, ver string) {
	return "medrank", version.Version
}

// Capabilities returns whether tools and resources are enabled.
func (s *Server) Capabilities() (hasTools, hasResources bool) {
	return true, true
}

// ListTools returns all registered tools.
func (s *Server) ListTools() []ToolInfo {
	return []ToolInfo{
		{
			Name:        "rank_practitioners",
			Description: rankToolDescription,
		},
		{
			Name:        "corpus_status",
			Description: corpusStatusToolDescription,
		},
	}
}

// CallTool invokes a tool by name with the given arguments.
func (s *Server) CallTool(ctx context.Context, name string, args map[string]any) (any, error) {
	switch name {
	case "rank_practitioners":
		var input RankInput
		if err := decodeArgs(args, &input); err != nil {
			return nil, NewInvalidParamsError(fmt.Sprintf("invalid arguments: %v", err))
		}
		return s.rank(ctx, input)
	case "corpus_status":
		return s.corpusStatus()
	default:
		return nil, NewMethodNotFoundError(name)
	}
}

// decodeArgs converts loosely typed tool arguments into a typed input.
func decodeArgs(args map[string]any, out any) error {
	data, err := json.Marshal(args)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

// rank runs a ranking request and shapes the shortlist for MCP clients.
// Validation happens inside the ranking service so the CLI, daemon and
// MCP surfaces reject requests identically.
func (s *Server) rank(ctx context.Context, input RankInput) (*RankOutput, error) {
	start := time.Now()
	requestID := generateRequestID()

	s.logger.Info("rank started",
		slog.String("request_id", requestID),
		slog.String("query", strings.TrimSpace(input.Query)),
		slog.String("variant", input.Variant),
		slog.Int("top_k", input.TopK))

	req := rankRequest(input)
	req.RequestID = requestID

	resp, err := s.service.RankShortlist(ctx, req)
	duration := time.Since(start)

	if err != nil {
		s.logger.Error("rank failed",
			slog.String("request_id", requestID),
			slog.Duration("duration", duration),
			slog.String("error", err.Error()))
		return nil, MapError(err)
	}

	s.logger.Info("rank completed",
		slog.String("request_id", requestID),
		slog.Duration("duration", duration),
		slog.String("variant", resp.Diagnostics.Variant),
		slog.Bool("filter_empty", resp.Diagnostics.FilterEmpty),
		slog.Int("result_count", len(resp.Shortlist)))

	output := &RankOutput{
		Results:     make([]PractitionerOutput, 0, len(resp.Shortlist)),
		Markdown:    FormatShortlist(displayQuery(input), resp),
		Variant:     resp.Diagnostics.Variant,
		FilterEmpty: resp.Diagnostics.FilterEmpty,
		RequestID:   resp.Diagnostics.RequestID,
	}
	for _, c := range filterValidCandidates(resp.Shortlist) {
		output.Results = append(output.Results, ToPractitionerOutput(c))
	}

	return output, nil
}

// rankRequest translates tool input into a ranking request.
func rankRequest(input RankInput) ranker.Request {
	req := ranker.Request{
		Query:       input.Query,
		Variant:     input.Variant,
		TopK:        input.TopK,
		EvaluateFit: input.EvaluateFit,
	}

	for _, t := range input.Conversation {
		req.Conversation = append(req.Conversation, intent.Turn{Role: t.Role, Content: t.Content})
	}

	req.Filters = filters.Criteria{
		NHSOnly:   input.NHSOnly,
		Insurance: input.Insurance,
		Gender:    input.Gender,
		Specialty: input.Specialty,
		AgeGroup:  input.AgeGroup,
		Languages: input.Languages,
	}
	if input.City != "" || input.Postcode != "" {
		req.Filters.Location = &filters.LocationQuery{
			City:        input.City,
			Postcode:    input.Postcode,
			RadiusMiles: input.RadiusMiles,
		}
	}

	// The insights prompt benefits from knowing roughly where the
	// patient is even though filtering handles the hard constraint.
	if input.City != "" {
		req.LocationHint = input.City
	} else if input.Postcode != "" {
		req.LocationHint = input.Postcode
	}

	return req
}

// displayQuery picks the text shown in markdown headers: the explicit
// query, else the latest user turn of the conversation.
func displayQuery(input RankInput) string {
	if q := strings.TrimSpace(input.Query); q != "" {
		return q
	}
	for i := len(input.Conversation) - 1; i >= 0; i-- {
		if !strings.EqualFold(input.Conversation[i].Role, "user") {
			continue
		}
		if c := strings.TrimSpace(input.Conversation[i].Content); c != "" {
			return c
		}
	}
	return "conversation"
}

// corpusStatus reports the loaded corpus and optional traffic stats.
func (s *Server) corpusStatus() (*CorpusStatusOutput, error) {
	start := time.Now()
	requestID := generateRequestID()

	s.logger.Info("corpus_status started", slog.String("request_id", requestID))

	c := s.provider.Corpus()
	if c == nil {
		return nil, &MCPError{
			Code:    ErrCodeCorpusUnavailable,
			Message: "No corpus loaded.",
		}
	}

	output := &CorpusStatusOutput{
		Path:     c.Path(),
		LoadID:   c.LoadID(),
		LoadedAt: c.LoadedAt().Format(time.RFC3339),
		Stats:    c.Stats(),
	}

	s.mu.RLock()
	metrics := s.metrics
	s.mu.RUnlock()

	if metrics != nil {
		snap := metrics.Snapshot()
		output.Requests = &RequestStats{
			Total:          snap.TotalRequests,
			EmptyResultPct: snap.EmptyPercentage(),
			LLMFallbacks:   snap.LLMFallbackCount,
			AvgTotalMillis: snap.AvgTotalMillis,
		}
	}

	s.logger.Info("corpus_status completed",
		slog.String("request_id", requestID),
		slog.Duration("duration", time.Since(start)),
		slog.Int("corpus_size", output.Stats.Total))

	return output, nil
}

// registerTools registers all tools with the MCP server.
func (s *Server) registerTools() {
	s.logger.Debug("Registering MCP tools")

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "rank_practitioners",
		Description: rankToolDescription,
	}, s.mcpRankHandler)
	s.logger.Debug("Registered tool", slog.String("name", "rank_practitioners"))

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "corpus_status",
		Description: corpusStatusToolDescription,
	}, s.mcpCorpusStatusHandler)
	s.logger.Debug("Registered tool", slog.String("name", "corpus_status"))

	s.logger.Info("MCP tools registered", slog.Int("count", 2))
}

// mcpRankHandler is the MCP SDK handler for the rank_practitioners tool.
func (s *Server) mcpRankHandler(ctx context.Context, _ *mcp.CallToolRequest, input RankInput) (
	*mcp.CallToolResult,
	*RankOutput,
	error,
) {
	output, err := s.rank(ctx, input)
	if err != nil {
		return nil, nil, err
	}
	return nil, output, nil
}

// mcpCorpusStatusHandler is the MCP SDK handler for the corpus_status tool.
func (s *Server) mcpCorpusStatusHandler(_ context.Context, _ *mcp.CallToolRequest, _ CorpusStatusInput) (
	*mcp.CallToolResult,
	*CorpusStatusOutput,
	error,
) {
	output, err := s.corpusStatus()
	if err != nil {
		return nil, nil, err
	}
	return nil, output, nil
}

// Serve starts the server with the specified transport.
func (s *Server) Serve(ctx context.Context, transport, addr string) error {
	s.logger.Info("Starting MCP server",
		slog.String("transport", transport),
		slog.String("addr", addr))

	switch transport {
	case "stdio":
		s.logger.Debug("Using stdio transport for JSON-RPC")
		err := s.mcp.Run(ctx, &mcp.StdioTransport{})
		if err != nil && err != context.Canceled {
			s.logger.Error("MCP server stopped with error",
				slog.String("error", err.Error()))
		} else {
			s.logger.Info("MCP server stopped gracefully")
		}
		return err
	default:
		return fmt.Errorf("unknown transport: %s (supported: stdio)", transport)
	}
}

// Close releases server resources.
func (s *Server) Close() error {
	// The MCP server doesn't have a Close method - it stops when context is canceled
	return nil
}

// QueryMetricsOutput is the JSON structure for the query_metrics resource.
type QueryMetricsOutput struct {
	Summary             QueryMetricsSummary `json:"summary"`
	VariantCounts       map[string]int64    `json:"variant_counts"`
	TerminationCounts   map[string]int64    `json:"termination_counts"`
	TopTerms            []QueryTermCount    `json:"top_terms"`
	EmptyQueries        []string            `json:"empty_queries"`
	LatencyDistribution map[string]int64    `json:"latency_distribution"`
}

// QueryMetricsSummary provides overview statistics.
type QueryMetricsSummary struct {
	TotalRequests   int64   `json:"total_requests"`
	TimePeriod      string  `json:"time_period"`
	EmptyResultPct  float64 `json:"empty_result_pct"`
	FilterEmpty     int64   `json:"filter_empty"`
	LLMFallbacks    int64   `json:"llm_fallbacks"`
	IntentCacheHits int64   `json:"intent_cache_hits"`
	AvgIntentMillis float64 `json:"avg_intent_ms"`
	AvgRankMillis   float64 `json:"avg_rank_ms"`
	AvgTotalMillis  float64 `json:"avg_total_ms"`
}

// QueryTermCount represents a term and its frequency.
type QueryTermCount struct {
	Term  string `json:"term"`
	Count int64  `json:"count"`
}

// queryMetricsURI identifies the telemetry resource.
const queryMetricsURI = "medrank://query_metrics"

// registerQueryMetricsResource registers the query_metrics resource.
func (s *Server) registerQueryMetricsResource() {
	s.mcp.AddResource(
		&mcp.Resource{
			Name:        "query_metrics",
			URI:         queryMetricsURI,
			Description: "Query pattern telemetry for ranking optimization",
			MIMEType:    "application/json",
		},
		s.makeQueryMetricsHandler(),
	)
}

// makeQueryMetricsHandler creates a handler for the query_metrics resource.
func (s *Server) makeQueryMetricsHandler() mcp.ResourceHandler {
	return func(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		s.mu.RLock()
		metrics := s.metrics
		s.mu.RUnlock()

		if metrics == nil {
			return nil, NewInvalidParamsError("query metrics not available")
		}

		snapshot := metrics.Snapshot()

		// Convert to output format
		output := QueryMetricsOutput{
			Summary: QueryMetricsSummary{
				TotalRequests:   snapshot.TotalRequests,
				TimePeriod:      "session",
				EmptyResultPct:  snapshot.EmptyPercentage(),
				FilterEmpty:     snapshot.FilterEmptyCount,
				LLMFallbacks:    snapshot.LLMFallbackCount,
				IntentCacheHits: snapshot.IntentCacheHits,
				AvgIntentMillis: snapshot.AvgIntentMillis,
				AvgRankMillis:   snapshot.AvgRankMillis,
				AvgTotalMillis:  snapshot.AvgTotalMillis,
			},
			VariantCounts:       make(map[string]int64),
			TerminationCounts:   make(map[string]int64),
			TopTerms:            make([]QueryTermCount, 0, len(snapshot.TopTerms)),
			EmptyQueries:        snapshot.EmptyQueries,
			LatencyDistribution: make(map[string]int64),
		}

		for variant, count := range snapshot.VariantCounts {
			output.VariantCounts[variant] = count
		}
		for reason, count := range snapshot.TerminationCounts {
			output.TerminationCounts[reason] = count
		}
		for _, tc := range snapshot.TopTerms {
			output.TopTerms = append(output.TopTerms, QueryTermCount{
				Term:  tc.Term,
				Count: tc.Count,
			})
		}
		for bucket, count := range snapshot.LatencyDistribution {
			output.LatencyDistribution[string(bucket)] = count
		}

		// Marshal to JSON
		content, err := json.MarshalIndent(output, "", "  ")
		if err != nil {
			return nil, MapError(err)
		}

		return &mcp.ReadResourceResult{
			Contents: []*mcp.ResourceContents{
				{
					URI:      queryMetricsURI,
					MIMEType: "application/json",
					Text:     string(content),
				},
			},
		}, nil
	}
}

// generateRequestID creates a short unique request ID for log correlation.
func generateRequestID() string {
	b := make([]byte, 4)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
