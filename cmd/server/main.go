// Package main provides the entry point for the PubMed MCP service.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/helixir/pubmed-mcp-service/internal/config"
	"github.com/helixir/pubmed-mcp-service/internal/httpapi"
	mcpserver "github.com/helixir/pubmed-mcp-service/internal/mcp"
	"github.com/helixir/pubmed-mcp-service/internal/ncbi"
	"github.com/helixir/pubmed-mcp-service/internal/ncbi/bioc"
	"github.com/helixir/pubmed-mcp-service/internal/ncbi/eutils"
	"github.com/helixir/pubmed-mcp-service/internal/ncbi/idconv"
	"github.com/helixir/pubmed-mcp-service/internal/observability"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Set up structured logging. Logs go to stderr: the MCP stdio
	// transport owns stdout.
	logger := observability.NewLogger(cfg.Logging)
	logger = logger.With().Str("component", "server").Logger()
	logger.Info().
		Bool("api_key", cfg.NCBI.APIKey != "").
		Msg("pubmed-mcp-service starting")

	// Set up context with graceful shutdown via OS signals.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var metrics *observability.Metrics
	if cfg.Metrics.Enabled {
		metrics = observability.NewMetrics(cfg.Metrics.Namespace)
	}

	// NCBI clients. E-utilities traffic dominates, so its limiter is
	// shared with the BioC and ID Converter clients: NCBI rate limits
	// apply per API key, not per endpoint family.
	eutilsClient := eutils.New(cfg.NCBI.ClientConfig(cfg.NCBI.EUtilsBaseURL), logger, metrics)
	biocClient := bioc.New(cfg.NCBI.ClientConfig(cfg.NCBI.BioCBaseURL), logger, metrics)
	idconvClient := idconv.New(cfg.NCBI.ClientConfig(cfg.NCBI.IDConvBaseURL), logger, metrics)
	biocClient.Core().SharedLimiter(eutilsClient.Core().Limiter())
	idconvClient.Core().SharedLimiter(eutilsClient.Core().Limiter())

	sessions := eutils.NewSessionManager(eutilsClient, logger, metrics)

	srv, err := mcpserver.NewServer(mcpserver.Config{
		Name:              cfg.MCP.ServerName,
		Version:           cfg.MCP.ServerVersion,
		DefaultMaxResults: cfg.NCBI.DefaultMaxResults,
		MaxBatchSize:      cfg.NCBI.MaxBatchSize,
	}, eutilsClient, biocClient, idconvClient, sessions, logger, metrics)
	if err != nil {
		return fmt.Errorf("create mcp server: %w", err)
	}

	// HTTP sidecar for probes, metrics, and status.
	sidecar := httpapi.NewServer(httpapi.Config{
		Address:         cfg.Server.HTTPAddress(),
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		ThrottleRPS:     cfg.Server.ThrottleRPS,
		ThrottleBurst:   cfg.Server.ThrottleBurst,
		MetricsEnabled:  cfg.Metrics.Enabled,
		MetricsPath:     cfg.Metrics.Path,
	}, sessions, map[string]*ncbi.Client{
		"eutils": eutilsClient.Core(),
		"bioc":   biocClient.Core(),
		"idconv": idconvClient.Core(),
	}, nil, logger)

	sidecarErr := make(chan error, 1)
	go func() {
		sidecarErr <- sidecar.Start()
	}()

	// Serve MCP on stdio until the client disconnects or a signal arrives.
	mcpErr := make(chan error, 1)
	go func() {
		mcpErr <- srv.Run(ctx)
	}()

	select {
	case err = <-mcpErr:
	case err = <-sidecarErr:
		if err != nil {
			err = fmt.Errorf("http sidecar: %w", err)
		}
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
		err = nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if shutdownErr := sidecar.Shutdown(shutdownCtx); shutdownErr != nil {
		logger.Error().Err(shutdownErr).Msg("sidecar shutdown failed")
	}

	if err != nil {
		return err
	}
	logger.Info().Msg("pubmed-mcp-service stopped")
	return nil
}
