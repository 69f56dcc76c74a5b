// Package config loads the server's settings from environment variables,
// applying defaults and validating everything at startup.
package config

import (
	"strconv"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Upload    UploadConfig
	Preview   PreviewConfig
	Warehouse WarehouseConfig
	Rate      RateLimitConfig
	Security  SecurityConfig
	Logging   LoggingConfig
	Metrics   MetricsConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	ReadTimeout  time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"0s"`
	IdleTimeout  time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout bounds graceful shutdown, including the wait for
	// in-flight uploads and imports (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout is the middleware timeout for requests (default: 60s)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"60s"`
}

// UploadConfig holds upload store settings.
type UploadConfig struct {
	// Dir is where uploaded files are kept (default: ./uploads)
	Dir string `env:"UPLOAD_DIR" default:"uploads"`

	// MaxFileSize is the maximum allowed file size in bytes (default: 100MB)
	MaxFileSize int64 `env:"UPLOAD_MAX_FILE_SIZE" default:"104857600"`

	// MaxConcurrent caps uploads and imports running at once (default: 5)
	MaxConcurrent int `env:"UPLOAD_MAX_CONCURRENT" default:"5"`

	// MaxWaitTime is how long to wait for a free slot (default: 30s)
	MaxWaitTime time.Duration `env:"UPLOAD_MAX_WAIT_TIME" default:"30s"`
}

// PreviewConfig bounds paged reads.
type PreviewConfig struct {
	DefaultSize int `env:"PREVIEW_DEFAULT_SIZE" default:"10"`
	MaxSize     int `env:"PREVIEW_MAX_SIZE" default:"1000"`
}

// WarehouseConfig holds connector and import settings.
type WarehouseConfig struct {
	// Dialect is used when a request does not name one (default: clickhouse)
	Dialect string `env:"WAREHOUSE_DIALECT" default:"clickhouse"`

	DialTimeout time.Duration `env:"WAREHOUSE_DIAL_TIMEOUT" default:"10s"`
	ReadTimeout time.Duration `env:"WAREHOUSE_READ_TIMEOUT" default:"30s"`

	// BatchSize is the number of rows committed per import transaction (default: 1000)
	BatchSize int `env:"IMPORT_BATCH_SIZE" default:"1000"`

	// Separator splits import lines into fields (default: ",")
	Separator string `env:"IMPORT_SEPARATOR" default:","`
}

// RateLimitConfig holds per-IP rate limiting settings.
type RateLimitConfig struct {
	Enabled           bool `env:"RATE_LIMIT_ENABLED" default:"true"`
	RequestsPerMinute int  `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"100"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	// RequireAPIKey rejects requests without a valid X-API-Key header
	RequireAPIKey bool `env:"REQUIRE_API_KEY" default:"false"`

	// APIKeys is a comma-separated list of accepted keys
	APIKeys []string `env:"API_KEYS"`

	EnableCSP bool `env:"SECURITY_ENABLE_CSP" default:"true"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// MetricsConfig selects the metrics backend.
type MetricsConfig struct {
	// Backend is none or datadog (default: none). The datadog backend reads
	// DD_API_KEY and DD_SITE itself.
	Backend string `env:"METRICS_BACKEND" default:"none"`

	Service    string        `env:"METRICS_SERVICE" default:"schemaprobe"`
	FlushEvery time.Duration `env:"METRICS_FLUSH_EVERY" default:"60s"`
	Tags       []string      `env:"METRICS_TAGS"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}
