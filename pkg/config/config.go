package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

// Config holds all configuration for ekaya-feedback.
// Configuration can come from YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (passwords, API keys) must only come from environment variables.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"8000"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	Version  string `yaml:"-"` // Set at load time, not from config

	// UIDir serves the dashboard from disk instead of the embedded build when set.
	UIDir string `yaml:"ui_dir" env:"UI_DIR" env-default:""`

	Database DatabaseConfig `yaml:"database"`
	AI       AIConfig       `yaml:"ai"`
	Import   ImportConfig   `yaml:"import"`
	MCP      MCPConfig      `yaml:"mcp"`
}

// DatabaseConfig selects and configures the feedback store.
type DatabaseConfig struct {
	// Driver is "postgres" or "sqlite".
	Driver         string `yaml:"driver" env:"DB_DRIVER" env-default:"postgres"`
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"feedback"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"feedback"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"25"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
	SQLitePath     string `yaml:"sqlite_path" env:"SQLITE_PATH" env-default:"data/feedback.db"`
}

// AIConfig holds the default provider settings. They seed the runtime
// settings, which can be changed through the API for the process lifetime.
type AIConfig struct {
	// Provider is "openai" (any OpenAI-compatible endpoint) or "anthropic".
	Provider            string  `yaml:"provider" env:"AI_PROVIDER" env-default:"openai"`
	BaseURL             string  `yaml:"base_url" env:"AI_BASE_URL" env-default:"https://api.openai.com/v1"`
	APIKey              string  `yaml:"-" env:"OPENAI_API_KEY"`    // Secret - not in YAML
	AnthropicAPIKey     string  `yaml:"-" env:"ANTHROPIC_API_KEY"` // Secret - not in YAML
	ClassificationModel string  `yaml:"classification_model" env:"CLASSIFICATION_MODEL" env-default:"gpt-4o-mini"`
	EmbeddingBaseURL    string  `yaml:"embedding_base_url" env:"EMBEDDING_BASE_URL" env-default:""`
	EmbeddingModel      string  `yaml:"embedding_model" env:"EMBEDDING_MODEL" env-default:"text-embedding-3-small"`
	EmbeddingDims       int     `yaml:"embedding_dimensions" env:"EMBEDDING_DIMENSIONS" env-default:"768"`
	RequestsPerSecond   float64 `yaml:"requests_per_second" env:"AI_REQUESTS_PER_SECOND" env-default:"5"`
	Burst               int     `yaml:"burst" env:"AI_BURST" env-default:"10"`
	MaxRetries          int     `yaml:"max_retries" env:"AI_MAX_RETRIES" env-default:"3"`
	// BreakerThreshold consecutive provider outages stop further calls for BreakerReset. 0 disables.
	BreakerThreshold int           `yaml:"breaker_threshold" env:"AI_BREAKER_THRESHOLD" env-default:"5"`
	BreakerReset     time.Duration `yaml:"breaker_reset" env:"AI_BREAKER_RESET" env-default:"30s"`
}

// ImportConfig bounds batch imports.
type ImportConfig struct {
	MaxJobs        int   `yaml:"max_jobs" env:"IMPORT_MAX_JOBS" env-default:"100"`
	MaxUploadBytes int64 `yaml:"max_upload_bytes" env:"IMPORT_MAX_UPLOAD_BYTES" env-default:"33554432"`
}

// MCPConfig controls the MCP tool endpoint.
type MCPConfig struct {
	Enabled bool `yaml:"enabled" env:"MCP_ENABLED" env-default:"true"`
	// LogRequests logs tool calls at DEBUG level.
	LogRequests bool `yaml:"log_requests" env:"MCP_LOG_REQUESTS" env-default:"false"`
}

// Load reads configuration from config.yaml with environment variable overrides.
// A .env file in the working directory is loaded first if present.
// When config.yaml does not exist, configuration comes from the environment alone.
func Load(version string) (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Version: version,
	}

	if _, err := os.Stat("config.yaml"); err == nil {
		if err := cleanenv.ReadConfig("config.yaml", cfg); err != nil {
			return nil, fmt.Errorf("failed to read config.yaml: %w", err)
		}
	} else if errors.Is(err, os.ErrNotExist) {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	} else {
		return nil, fmt.Errorf("failed to stat config.yaml: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	cfg.Database.Host = ResolveHostForDocker(cfg.Database.Host)
	cfg.AI.BaseURL = ResolveURLForDocker(cfg.AI.BaseURL)
	cfg.AI.EmbeddingBaseURL = ResolveURLForDocker(cfg.AI.EmbeddingBaseURL)

	return cfg, nil
}

// Validate checks enumerated settings and numeric bounds.
func (c *Config) Validate() error {
	c.Database.Driver = strings.ToLower(strings.TrimSpace(c.Database.Driver))
	if c.Database.Driver != "postgres" && c.Database.Driver != "sqlite" {
		return fmt.Errorf("database driver must be postgres or sqlite, got %q", c.Database.Driver)
	}
	c.AI.Provider = strings.ToLower(strings.TrimSpace(c.AI.Provider))
	if c.AI.Provider != "openai" && c.AI.Provider != "anthropic" {
		return fmt.Errorf("ai provider must be openai or anthropic, got %q", c.AI.Provider)
	}
	if c.AI.EmbeddingDims <= 0 {
		return fmt.Errorf("embedding_dimensions must be positive")
	}
	if c.AI.RequestsPerSecond <= 0 {
		return fmt.Errorf("requests_per_second must be positive")
	}
	if c.Import.MaxJobs <= 0 {
		return fmt.Errorf("import max_jobs must be positive")
	}
	return nil
}

// IsDevelopment returns true for local and dev environments.
func (c *Config) IsDevelopment() bool {
	return c.Env == "local" || c.Env == "dev" || c.Env == "development"
}

// ListenAddr returns the host:port the HTTP server binds to.
func (c *Config) ListenAddr() string {
	return c.BindAddr + ":" + c.Port
}

// ConnectionString returns a PostgreSQL connection string.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}
