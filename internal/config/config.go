// Package config provides configuration management for the PubMed MCP
// service.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/helixir/pubmed-mcp-service/internal/ncbi"
	"github.com/helixir/pubmed-mcp-service/internal/observability"
)

// Config holds all configuration for the PubMed MCP service.
type Config struct {
	// Server contains the HTTP sidecar settings (health, metrics, status).
	Server ServerConfig `mapstructure:"server"`
	// Logging contains structured logging settings.
	Logging observability.LoggingConfig `mapstructure:"logging"`
	// Metrics contains Prometheus metrics exposure settings.
	Metrics MetricsConfig `mapstructure:"metrics"`
	// MCP contains Model Context Protocol server settings.
	MCP MCPConfig `mapstructure:"mcp"`
	// NCBI contains NCBI API client settings shared by all upstream clients.
	NCBI NCBIConfig `mapstructure:"ncbi"`
}

// ServerConfig holds the HTTP sidecar configuration.
type ServerConfig struct {
	// Host is the address to bind the sidecar to (default: 0.0.0.0).
	Host string `mapstructure:"host"`
	// HTTPPort is the sidecar port (default: 8080).
	HTTPPort int `mapstructure:"http_port"`
	// ReadTimeout is the maximum duration for reading a request.
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
	// WriteTimeout is the maximum duration for writing a response.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// ShutdownTimeout is the maximum duration to wait for graceful shutdown.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	// ThrottleRPS caps inbound requests per second on the sidecar.
	ThrottleRPS float64 `mapstructure:"throttle_rps"`
	// ThrottleBurst is the burst size for the inbound throttle.
	ThrottleBurst int `mapstructure:"throttle_burst"`
}

// MetricsConfig holds metrics configuration.
type MetricsConfig struct {
	// Enabled enables metrics collection and exposure.
	Enabled bool `mapstructure:"enabled"`
	// Path is the HTTP path for the metrics endpoint.
	Path string `mapstructure:"path"`
	// Namespace is the Prometheus namespace for all metrics.
	Namespace string `mapstructure:"namespace"`
}

// MCPConfig holds MCP server configuration.
type MCPConfig struct {
	// ServerName is the name advertised during MCP initialization.
	ServerName string `mapstructure:"server_name"`
	// ServerVersion is the version advertised during MCP initialization.
	ServerVersion string `mapstructure:"server_version"`
}

// NCBIConfig holds the shared NCBI client configuration.
type NCBIConfig struct {
	// APIKey is the NCBI API key. Loaded exclusively from the
	// PUBMEDMCP_NCBI_API_KEY environment variable, never from config files.
	APIKey string `mapstructure:"-"`
	// Tool identifies this application to NCBI.
	Tool string `mapstructure:"tool"`
	// Email is the maintainer contact NCBI requires for API clients.
	Email string `mapstructure:"email"`
	// EUtilsBaseURL overrides the E-utilities base URL.
	EUtilsBaseURL string `mapstructure:"eutils_base_url"`
	// BioCBaseURL overrides the BioC API base URL.
	BioCBaseURL string `mapstructure:"bioc_base_url"`
	// IDConvBaseURL overrides the ID Converter base URL.
	IDConvBaseURL string `mapstructure:"idconv_base_url"`
	// Timeout is the per-request timeout.
	Timeout time.Duration `mapstructure:"timeout"`
	// RateLimit overrides the requests-per-window ceiling. Zero derives it
	// from API key presence (10 with a key, 3 without).
	RateLimit int `mapstructure:"rate_limit"`
	// RateWindow is the rate limiting window (default: 1s).
	RateWindow time.Duration `mapstructure:"rate_window"`
	// MaxRetries is the retry budget for transient failures.
	MaxRetries int `mapstructure:"max_retries"`
	// RetryBaseDelay is the first retry's backoff delay.
	RetryBaseDelay time.Duration `mapstructure:"retry_base_delay"`
	// RetryMaxDelay caps the exponential backoff.
	RetryMaxDelay time.Duration `mapstructure:"retry_max_delay"`
	// DefaultMaxResults is the default page size for searches.
	DefaultMaxResults int `mapstructure:"default_max_results"`
	// MaxBatchSize caps the number of IDs per batch fetch.
	MaxBatchSize int `mapstructure:"max_batch_size"`
}

// ClientConfig builds the request core configuration for one of the NCBI
// APIs, pointed at the given base URL.
func (c *NCBIConfig) ClientConfig(baseURL string) ncbi.ClientConfig {
	return ncbi.ClientConfig{
		BaseURL:    baseURL,
		APIKey:     c.APIKey,
		Tool:       c.Tool,
		Email:      c.Email,
		Timeout:    c.Timeout,
		RateLimit:  c.RateLimit,
		RateWindow: c.RateWindow,
		Retry: ncbi.Backoff{
			MaxRetries: c.MaxRetries,
			BaseDelay:  c.RetryBaseDelay,
			Factor:     2.0,
			MaxDelay:   c.RetryMaxDelay,
		},
	}
}

// HTTPAddress returns the sidecar listen address.
func (c *ServerConfig) HTTPAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.HTTPPort)
}

// Load loads configuration from defaults, an optional config file, and
// environment variables, in increasing priority.
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	// Read from environment variables
	v.SetEnvPrefix("PUBMEDMCP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file if present
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/pubmed-mcp-service")

	if err := v.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is OK, we'll use env vars and defaults
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// The API key uses mapstructure:"-" so it can only arrive via the
	// environment, never a config file.
	cfg.NCBI.APIKey = os.Getenv("PUBMEDMCP_NCBI_API_KEY")

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.http_port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.throttle_rps", 50.0)
	v.SetDefault("server.throttle_burst", 100)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stderr")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
	v.SetDefault("metrics.namespace", "pubmed_mcp")

	// MCP defaults
	v.SetDefault("mcp.server_name", "pubmed-mcp-service")
	v.SetDefault("mcp.server_version", "1.0.0")

	// NCBI defaults
	v.SetDefault("ncbi.tool", "pubmed-mcp-service")
	v.SetDefault("ncbi.email", "")
	v.SetDefault("ncbi.eutils_base_url", "")
	v.SetDefault("ncbi.bioc_base_url", "")
	v.SetDefault("ncbi.idconv_base_url", "")
	v.SetDefault("ncbi.timeout", "60s")
	v.SetDefault("ncbi.rate_limit", 0)
	v.SetDefault("ncbi.rate_window", "1s")
	v.SetDefault("ncbi.max_retries", 3)
	v.SetDefault("ncbi.retry_base_delay", "1s")
	v.SetDefault("ncbi.retry_max_delay", "60s")
	v.SetDefault("ncbi.default_max_results", 50)
	v.SetDefault("ncbi.max_batch_size", 500)
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.Server.HTTPPort)
	}
	if c.Server.ThrottleRPS < 0 {
		return fmt.Errorf("invalid throttle rps: %f", c.Server.ThrottleRPS)
	}

	if c.NCBI.Timeout <= 0 {
		return fmt.Errorf("invalid ncbi timeout: %s", c.NCBI.Timeout)
	}
	if c.NCBI.RateLimit < 0 {
		return fmt.Errorf("invalid ncbi rate limit: %d", c.NCBI.RateLimit)
	}
	if c.NCBI.RateWindow <= 0 {
		return fmt.Errorf("invalid ncbi rate window: %s", c.NCBI.RateWindow)
	}
	if c.NCBI.MaxRetries < 0 {
		return fmt.Errorf("invalid ncbi max retries: %d", c.NCBI.MaxRetries)
	}
	if c.NCBI.DefaultMaxResults <= 0 {
		return fmt.Errorf("invalid default max results: %d", c.NCBI.DefaultMaxResults)
	}
	if c.NCBI.MaxBatchSize <= 0 {
		return fmt.Errorf("invalid max batch size: %d", c.NCBI.MaxBatchSize)
	}

	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("invalid logging format: %s", c.Logging.Format)
	}

	return nil
}
