// Package config provides centralized configuration management for the application.
// It loads configuration from environment variables with sensible defaults and
// validates all settings on startup to fail fast on misconfiguration.
package config

import (
	"net"
	"strconv"
	"time"
)

// Store backends selectable with STORE_BACKEND.
const (
	BackendSolr     = "solr"
	BackendPostgres = "postgres"
	BackendDynamo   = "dynamodb"
)

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server   ServerConfig
	Rate     RateLimitConfig
	Store    StoreConfig
	Solr     SolrConfig
	Database DatabaseConfig
	Dynamo   DynamoConfig
	Ingest   IngestConfig
	Logging  LoggingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	// ReadTimeout is the maximum duration for reading request body (default: 60s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"60s"`

	// WriteTimeout is the maximum duration for writing response (default: 0, ingests may be long)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"0s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// TrustedProxies lists proxy CIDRs or IPs whose X-Real-IP and
	// X-Forwarded-For headers are honoured; empty trusts none
	TrustedProxies []string `env:"TRUSTED_PROXIES"`
}

// RateLimitConfig holds per-IP rate limiting settings.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active (default: true)
	Enabled bool `env:"RATE_LIMIT_ENABLED" default:"true"`

	// RequestsPerMinute is the default rate limit per IP (default: 120)
	RequestsPerMinute int `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"120"`

	// IngestLimit is requests per minute for document ingest endpoints (default: 20)
	IngestLimit int `env:"RATE_LIMIT_INGEST" default:"20"`
}

// StoreConfig selects the document store.
type StoreConfig struct {
	// Backend is one of solr, postgres, dynamodb (default: solr)
	Backend string `env:"STORE_BACKEND" default:"solr"`
}

// SolrConfig holds Solr client settings.
type SolrConfig struct {
	// URL is the Solr base URL; /solr/ is appended when missing
	URL string `env:"SOLR_URL" default:"http://localhost:8983/solr/"`

	// ConnectTimeout bounds TCP connection setup (default: 10s)
	ConnectTimeout time.Duration `env:"SOLR_CONNECT_TIMEOUT" default:"10s"`

	// RequestTimeout bounds each request attempt (default: 60s)
	RequestTimeout time.Duration `env:"SOLR_REQUEST_TIMEOUT" default:"60s"`

	// RetryMax is how many times a failed request is retried (default: 3)
	RetryMax int `env:"SOLR_RETRY_MAX" default:"3"`
}

// DatabaseConfig holds PostgreSQL settings, used by the postgres backend.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string (required for the postgres backend)
	// Supports both DATABASE_URL and DB_URL env vars for compatibility
	URL string `env:"DATABASE_URL" envAlt:"DB_URL"`

	// MaxConns is the maximum number of connections in the pool (default: 20)
	MaxConns int `env:"DB_MAX_CONNS" default:"20"`

	// MinConns is the minimum number of connections to keep open (default: 2)
	MinConns int `env:"DB_MIN_CONNS" default:"2"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`

	// MaxConnIdleTime is the maximum idle time before a connection is closed (default: 30m)
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`

	// Table is the documents table (default: documents)
	Table string `env:"DB_DOCUMENTS_TABLE" default:"documents"`
}

// DynamoConfig holds DynamoDB settings, used by the dynamodb backend.
type DynamoConfig struct {
	// Region overrides the AWS SDK's region resolution
	Region string `env:"AWS_REGION" envAlt:"AWS_DEFAULT_REGION"`

	// Endpoint overrides the service URL (DynamoDB Local)
	Endpoint string `env:"DYNAMO_ENDPOINT"`

	// TablePrefix is prepended to collection names (default: docingest)
	TablePrefix string `env:"DYNAMO_TABLE_PREFIX" default:"docingest"`

	// CreateTables creates missing collection tables on first write (default: false)
	CreateTables bool `env:"DYNAMO_CREATE_TABLES" default:"false"`
}

// IngestConfig holds document ingest settings.
type IngestConfig struct {
	// BatchSize is the number of documents written per batch (default: 1000)
	BatchSize int `env:"INGEST_BATCH_SIZE" default:"1000"`

	// MaxInputSize is the maximum accepted input in bytes (default: 100MB)
	MaxInputSize int64 `env:"INGEST_MAX_INPUT_SIZE" default:"104857600"`

	// MaxConcurrent is the maximum number of parallel ingests (default: 5)
	MaxConcurrent int `env:"INGEST_MAX_CONCURRENT" default:"5"`

	// MaxWaitTime is how long to wait for an ingest slot (default: 30s)
	MaxWaitTime time.Duration `env:"INGEST_MAX_WAIT_TIME" default:"30s"`

	// Timeout is the maximum duration of a single ingest (default: 10m)
	Timeout time.Duration `env:"INGEST_TIMEOUT" default:"10m"`

	// AllowedCollections is a comma-separated allow-list; empty allows all
	AllowedCollections []string `env:"ALLOWED_COLLECTIONS"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}
