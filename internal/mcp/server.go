// Package mcp exposes the PubMed service as a Model Context Protocol server
// over the stdio transport. Every tool is registered with typed input and
// output structs so clients get full JSON schemas during discovery.
package mcp

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog"

	"github.com/helixir/pubmed-mcp-service/internal/ncbi"
	"github.com/helixir/pubmed-mcp-service/internal/ncbi/bioc"
	"github.com/helixir/pubmed-mcp-service/internal/ncbi/eutils"
	"github.com/helixir/pubmed-mcp-service/internal/ncbi/idconv"
	"github.com/helixir/pubmed-mcp-service/internal/observability"
)

// Config configures the MCP server.
type Config struct {
	// Name is the server implementation name advertised to clients.
	Name string

	// Version is the server version advertised to clients.
	Version string

	// DefaultMaxResults is the page size used when a tool call omits one.
	DefaultMaxResults int

	// MaxBatchSize caps the number of IDs a batch tool accepts per call.
	MaxBatchSize int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Name:              "pubmed-mcp-service",
		Version:           "1.0.0",
		DefaultMaxResults: eutils.DefaultRetMax,
		MaxBatchSize:      500,
	}
}

// Server is the MCP server over the NCBI clients.
type Server struct {
	mcp      *mcp.Server
	cfg      Config
	eutils   *eutils.Client
	bioc     *bioc.Client
	idconv   *idconv.Client
	sessions *eutils.SessionManager
	validate *validator.Validate
	logger   zerolog.Logger
	metrics  *observability.Metrics
}

// NewServer creates an MCP server wired to the given upstream clients.
// metrics may be nil.
func NewServer(
	cfg Config,
	eutilsClient *eutils.Client,
	biocClient *bioc.Client,
	idconvClient *idconv.Client,
	sessions *eutils.SessionManager,
	logger zerolog.Logger,
	metrics *observability.Metrics,
) (*Server, error) {
	if eutilsClient == nil {
		return nil, fmt.Errorf("eutils client is required")
	}
	if biocClient == nil {
		return nil, fmt.Errorf("bioc client is required")
	}
	if idconvClient == nil {
		return nil, fmt.Errorf("idconv client is required")
	}
	if sessions == nil {
		return nil, fmt.Errorf("session manager is required")
	}
	if cfg.Name == "" {
		cfg.Name = DefaultConfig().Name
	}
	if cfg.Version == "" {
		cfg.Version = DefaultConfig().Version
	}
	if cfg.DefaultMaxResults <= 0 {
		cfg.DefaultMaxResults = eutils.DefaultRetMax
	}
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = DefaultConfig().MaxBatchSize
	}

	s := &Server{
		mcp: mcp.NewServer(
			&mcp.Implementation{Name: cfg.Name, Version: cfg.Version},
			nil,
		),
		cfg:      cfg,
		eutils:   eutilsClient,
		bioc:     biocClient,
		idconv:   idconvClient,
		sessions: sessions,
		validate: validator.New(),
		logger:   logger.With().Str("component", "mcp").Logger(),
		metrics:  metrics,
	}

	s.registerSearchTools()
	s.registerFetchTools()
	s.registerLinkTools()
	s.registerConvertTools()
	s.registerPipelineTools()

	return s, nil
}

// Run serves MCP requests on the stdio transport until the context is
// canceled or the client disconnects.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info().Str("name", s.cfg.Name).Str("version", s.cfg.Version).
		Msg("starting MCP server on stdio transport")
	if err := s.mcp.Run(ctx, &mcp.StdioTransport{}); err != nil {
		return fmt.Errorf("mcp server: %w", err)
	}
	return nil
}

// addTool registers one tool, wrapping its handler with input validation,
// per-call logging, and invocation metrics.
func addTool[In, Out any](s *Server, name, description string, handler func(ctx context.Context, in In) (Out, error)) {
	mcp.AddTool(s.mcp, &mcp.Tool{Name: name, Description: description},
		func(ctx context.Context, _ *mcp.CallToolRequest, in In) (*mcp.CallToolResult, Out, error) {
			var zero Out
			logger := observability.WithToolContext(s.logger, name, uuid.NewString())

			if err := s.validate.Struct(in); err != nil {
				s.recordInvocation(name, "invalid", 0)
				logger.Warn().Err(err).Msg("tool input rejected")
				return nil, zero, fmt.Errorf("%w: %s", ncbi.ErrInvalidInput, err)
			}

			start := time.Now()
			out, err := handler(ctx, in)
			elapsed := time.Since(start)

			status := "ok"
			if err != nil {
				status = "error"
				logger.Error().Err(err).Dur("elapsed", elapsed).Msg("tool failed")
			} else {
				logger.Debug().Dur("elapsed", elapsed).Msg("tool completed")
			}
			s.recordInvocation(name, status, elapsed)

			if err != nil {
				return nil, zero, err
			}
			return nil, out, nil
		})
}

func (s *Server) recordInvocation(tool, status string, elapsed time.Duration) {
	if s.metrics != nil {
		s.metrics.RecordToolInvocation(tool, status, elapsed.Seconds())
	}
}
