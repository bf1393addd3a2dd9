// Package config provides centralized configuration management for the
// service. It loads settings from environment variables with sensible
// defaults and validates the result on startup to fail fast on
// misconfiguration.
package config

import "time"

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Storage    StorageConfig
	Mailer     MailerConfig
	Classifier ClassifierConfig
	Engine     EngineConfig
	Poller     PollerConfig
	Security   SecurityConfig
	Logging    LoggingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	// PublicURL is the externally reachable base URL used to register the
	// provider webhook (required when mailboxes are configured)
	PublicURL string `env:"SERVER_PUBLIC_URL"`

	// ReadTimeout is the maximum duration for reading request body (default: 15s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`

	// WriteTimeout is the maximum duration for writing response (default: 30s)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"30s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout is the middleware timeout for requests (default: 60s)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"60s"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string (required)
	// Supports both DATABASE_URL and DB_URL env vars for compatibility
	URL string `env:"DATABASE_URL" envAlt:"DB_URL" required:"true"`

	// MaxConns is the maximum number of connections in the pool (default: 20)
	MaxConns int `env:"DB_MAX_CONNS" default:"20"`

	// MinConns is the minimum number of connections to keep open (default: 4)
	MinConns int `env:"DB_MIN_CONNS" default:"4"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`

	// MaxConnIdleTime is the maximum idle time before a connection is closed (default: 30m)
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`
}

// StorageConfig holds the derived-artifact object store settings.
type StorageConfig struct {
	// URL is the base URL of the storage API (required)
	URL string `env:"STORAGE_URL" required:"true"`

	// APIKey authenticates against the storage API (required)
	APIKey string `env:"STORAGE_API_KEY" required:"true"`

	// Bucket is the namespace master lists are published under (default: master-lists)
	Bucket string `env:"STORAGE_BUCKET" default:"master-lists"`
}

// MailerConfig holds the mail provider API settings.
type MailerConfig struct {
	// TenantID is the provider tenant for token acquisition
	TenantID string `env:"MAIL_TENANT_ID"`

	// ClientID is the OAuth2 client id
	ClientID string `env:"MAIL_CLIENT_ID"`

	// ClientSecret is the OAuth2 client secret
	ClientSecret string `env:"MAIL_CLIENT_SECRET"`

	// BaseURL overrides the provider API endpoint (default: public endpoint)
	BaseURL string `env:"MAIL_BASE_URL"`

	// AuthURL overrides the token endpoint (default: public endpoint)
	AuthURL string `env:"MAIL_AUTH_URL"`

	// ClientState is echoed back in webhook notifications
	ClientState string `env:"MAIL_CLIENT_STATE" default:"secretClientValue"`

	// Mailboxes is a comma-separated list of mailbox emails to subscribe
	// on startup
	Mailboxes []string `env:"MAIL_MAILBOXES"`
}

// ClassifierConfig holds the LLM classification API settings.
type ClassifierConfig struct {
	// APIKey authenticates against the completions API
	APIKey string `env:"CLASSIFIER_API_KEY" envAlt:"OPENAI_API_KEY"`

	// BaseURL overrides the completions endpoint (default: public endpoint)
	BaseURL string `env:"CLASSIFIER_BASE_URL"`

	// Model is the completions model name (default: gpt-4o-mini)
	Model string `env:"CLASSIFIER_MODEL"`
}

// EngineConfig holds propagation engine settings.
type EngineConfig struct {
	// Interval is how often pending events are drained (default: 2m)
	Interval time.Duration `env:"ENGINE_INTERVAL" default:"2m"`
}

// PollerConfig holds selection-audit poller settings.
type PollerConfig struct {
	// Interval is how often the selection audit table is polled (default: 30s)
	Interval time.Duration `env:"POLL_INTERVAL" default:"30s"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	// RequireAPIKey enables X-API-Key auth on the push trigger (default: false)
	RequireAPIKey bool `env:"REQUIRE_API_KEY" default:"false"`

	// APIKeys is a comma-separated list of accepted API keys
	APIKeys []string `env:"API_KEYS"`
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
	if c.Host == "" {
		return ":" + itoa(c.Port)
	}
	return c.Host + ":" + itoa(c.Port)
}

// itoa converts an int to string without importing strconv in this file.
func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	var b [20]byte
	n := len(b)
	neg := i < 0
	if neg {
		i = -i
	}
	for i > 0 {
		n--
		b[n] = byte('0' + i%10)
		i /= 10
	}
	if neg {
		n--
		b[n] = '-'
	}
	return string(b[n:])
}
