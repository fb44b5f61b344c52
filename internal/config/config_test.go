// Package config provides configuration management for the PubMed MCP
// service.
package config

import (
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	clearEnvVars(t)

	cfg, err := Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	// Server defaults
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.HTTPPort)
	assert.Equal(t, 30*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, 50.0, cfg.Server.ThrottleRPS)
	assert.Equal(t, 100, cfg.Server.ThrottleBurst)

	// Logging defaults
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "stderr", cfg.Logging.Output)

	// Metrics defaults
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
	assert.Equal(t, "pubmed_mcp", cfg.Metrics.Namespace)

	// MCP defaults
	assert.Equal(t, "pubmed-mcp-service", cfg.MCP.ServerName)
	assert.Equal(t, "1.0.0", cfg.MCP.ServerVersion)

	// NCBI defaults
	assert.Equal(t, "pubmed-mcp-service", cfg.NCBI.Tool)
	assert.Empty(t, cfg.NCBI.APIKey)
	assert.Equal(t, 60*time.Second, cfg.NCBI.Timeout)
	assert.Equal(t, 0, cfg.NCBI.RateLimit)
	assert.Equal(t, time.Second, cfg.NCBI.RateWindow)
	assert.Equal(t, 3, cfg.NCBI.MaxRetries)
	assert.Equal(t, time.Second, cfg.NCBI.RetryBaseDelay)
	assert.Equal(t, 60*time.Second, cfg.NCBI.RetryMaxDelay)
	assert.Equal(t, 50, cfg.NCBI.DefaultMaxResults)
	assert.Equal(t, 500, cfg.NCBI.MaxBatchSize)
}

func TestLoad_EnvironmentOverride(t *testing.T) {
	clearEnvVars(t)

	t.Setenv("PUBMEDMCP_SERVER_HTTP_PORT", "8888")
	t.Setenv("PUBMEDMCP_LOGGING_LEVEL", "debug")
	t.Setenv("PUBMEDMCP_NCBI_EMAIL", "dev@example.org")
	t.Setenv("PUBMEDMCP_NCBI_RATE_LIMIT", "10")
	t.Setenv("PUBMEDMCP_NCBI_MAX_RETRIES", "5")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8888, cfg.Server.HTTPPort)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "dev@example.org", cfg.NCBI.Email)
	assert.Equal(t, 10, cfg.NCBI.RateLimit)
	assert.Equal(t, 5, cfg.NCBI.MaxRetries)
}

func TestLoad_APIKeyFromEnvironmentOnly(t *testing.T) {
	clearEnvVars(t)

	t.Setenv("PUBMEDMCP_NCBI_API_KEY", "secret-key")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "secret-key", cfg.NCBI.APIKey)
}

func TestConfig_Validate(t *testing.T) {
	valid := func(t *testing.T) *Config {
		t.Helper()
		clearEnvVars(t)
		cfg, err := Load()
		require.NoError(t, err)
		return cfg
	}

	t.Run("accepts the defaults", func(t *testing.T) {
		cfg := valid(t)
		assert.NoError(t, cfg.Validate())
	})

	t.Run("rejects a bad port", func(t *testing.T) {
		cfg := valid(t)
		cfg.Server.HTTPPort = 0
		assert.Error(t, cfg.Validate())
	})

	t.Run("rejects a non-positive timeout", func(t *testing.T) {
		cfg := valid(t)
		cfg.NCBI.Timeout = 0
		assert.Error(t, cfg.Validate())
	})

	t.Run("rejects a negative rate limit", func(t *testing.T) {
		cfg := valid(t)
		cfg.NCBI.RateLimit = -1
		assert.Error(t, cfg.Validate())
	})

	t.Run("rejects an unknown logging format", func(t *testing.T) {
		cfg := valid(t)
		cfg.Logging.Format = "xml"
		assert.Error(t, cfg.Validate())
	})

	t.Run("rejects a non-positive batch size", func(t *testing.T) {
		cfg := valid(t)
		cfg.NCBI.MaxBatchSize = 0
		assert.Error(t, cfg.Validate())
	})
}

func TestNCBIConfig_ClientConfig(t *testing.T) {
	clearEnvVars(t)
	t.Setenv("PUBMEDMCP_NCBI_API_KEY", "secret-key")
	t.Setenv("PUBMEDMCP_NCBI_EMAIL", "dev@example.org")

	cfg, err := Load()
	require.NoError(t, err)

	cc := cfg.NCBI.ClientConfig("https://example.org/api")
	assert.Equal(t, "https://example.org/api", cc.BaseURL)
	assert.Equal(t, "secret-key", cc.APIKey)
	assert.Equal(t, "dev@example.org", cc.Email)
	assert.Equal(t, "pubmed-mcp-service", cc.Tool)
	assert.Equal(t, 3, cc.Retry.MaxRetries)
	assert.Equal(t, time.Second, cc.Retry.BaseDelay)
	assert.Equal(t, 2.0, cc.Retry.Factor)
	assert.Equal(t, 60*time.Second, cc.Retry.MaxDelay)
}

// clearEnvVars unsets every PUBMEDMCP_ variable for the duration of a test.
func clearEnvVars(t *testing.T) {
	t.Helper()
	for _, entry := range os.Environ() {
		if key, _, ok := strings.Cut(entry, "="); ok && strings.HasPrefix(key, "PUBMEDMCP_") {
			t.Setenv(key, "")
			os.Unsetenv(key)
		}
	}
}
