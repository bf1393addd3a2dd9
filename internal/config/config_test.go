package config

import (
	"strings"
	"testing"
	"time"
)

// setRequiredEnv sets the minimum environment for Load to succeed.
func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", "postgres://localhost/triage")
	t.Setenv("STORAGE_URL", "http://localhost:9000")
	t.Setenv("STORAGE_API_KEY", "storage-key")
}

func TestLoadDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if got, want := cfg.Server.Port, 8080; got != want {
		t.Errorf("Server.Port = %d, want %d", got, want)
	}
	if got, want := cfg.Server.Host, "0.0.0.0"; got != want {
		t.Errorf("Server.Host = %q, want %q", got, want)
	}
	if got, want := cfg.Storage.Bucket, "master-lists"; got != want {
		t.Errorf("Storage.Bucket = %q, want %q", got, want)
	}
	if got, want := cfg.Engine.Interval, 2*time.Minute; got != want {
		t.Errorf("Engine.Interval = %v, want %v", got, want)
	}
	if got, want := cfg.Poller.Interval, 30*time.Second; got != want {
		t.Errorf("Poller.Interval = %v, want %v", got, want)
	}
	if got, want := cfg.Logging.Level, "info"; got != want {
		t.Errorf("Logging.Level = %q, want %q", got, want)
	}
	if got, want := cfg.Mailer.ClientState, "secretClientValue"; got != want {
		t.Errorf("Mailer.ClientState = %q, want %q", got, want)
	}
}

func TestLoadOverrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("SERVER_PORT", "9999")
	t.Setenv("ENGINE_INTERVAL", "45s")
	t.Setenv("MAIL_MAILBOXES", "a@corp.com, b@corp.com")
	t.Setenv("MAIL_TENANT_ID", "tenant")
	t.Setenv("MAIL_CLIENT_ID", "client")
	t.Setenv("MAIL_CLIENT_SECRET", "secret")
	t.Setenv("SERVER_PUBLIC_URL", "https://svc.example.com")
	t.Setenv("TRUSTED_PROXIES", "10.0.0.0/8,192.168.0.0/16")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if got, want := cfg.Server.Port, 9999; got != want {
		t.Errorf("Server.Port = %d, want %d", got, want)
	}
	if got, want := cfg.Engine.Interval, 45*time.Second; got != want {
		t.Errorf("Engine.Interval = %v, want %v", got, want)
	}
	wantBoxes := []string{"a@corp.com", "b@corp.com"}
	if len(cfg.Mailer.Mailboxes) != len(wantBoxes) {
		t.Fatalf("Mailboxes = %v, want %v", cfg.Mailer.Mailboxes, wantBoxes)
	}
	for i := range wantBoxes {
		if cfg.Mailer.Mailboxes[i] != wantBoxes[i] {
			t.Errorf("Mailboxes = %v, want %v", cfg.Mailer.Mailboxes, wantBoxes)
			break
		}
	}
	if got, want := len(cfg.Security.TrustedProxies), 2; got != want {
		t.Errorf("TrustedProxies = %v, want %d entries", cfg.Security.TrustedProxies, want)
	}
}

func TestLoadAlternateEnvNames(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("DB_URL", "postgres://localhost/alt")
	t.Setenv("STORAGE_URL", "http://localhost:9000")
	t.Setenv("STORAGE_API_KEY", "storage-key")
	t.Setenv("OPENAI_API_KEY", "sk-alt")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got, want := cfg.Database.URL, "postgres://localhost/alt"; got != want {
		t.Errorf("Database.URL = %q, want %q", got, want)
	}
	if got, want := cfg.Classifier.APIKey, "sk-alt"; got != want {
		t.Errorf("Classifier.APIKey = %q, want %q", got, want)
	}
}

func TestLoadMissingRequired(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("DB_URL", "")
	t.Setenv("STORAGE_URL", "http://localhost:9000")
	t.Setenv("STORAGE_API_KEY", "storage-key")

	if _, err := Load(); err == nil {
		t.Fatal("expected error without DATABASE_URL, got nil")
	}
}

func TestLoadInvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		env   string
		value string
	}{
		{name: "bad port", env: "SERVER_PORT", value: "not-a-number"},
		{name: "bad duration", env: "ENGINE_INTERVAL", value: "soon"},
		{name: "bad bool", env: "REQUIRE_API_KEY", value: "maybe"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequiredEnv(t)
			t.Setenv(tt.env, tt.value)

			if _, err := Load(); err == nil {
				t.Fatalf("expected error for %s=%q, got nil", tt.env, tt.value)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := &Config{}
		cfg.Database.URL = "postgres://localhost/triage"
		cfg.Database.MaxConns = 20
		cfg.Database.MinConns = 4
		cfg.Server.Port = 8080
		cfg.Server.ShutdownTimeout = 30 * time.Second
		cfg.Storage.URL = "http://localhost:9000"
		cfg.Storage.APIKey = "key"
		cfg.Storage.Bucket = "master-lists"
		cfg.Engine.Interval = 2 * time.Minute
		cfg.Poller.Interval = 30 * time.Second
		cfg.Logging.Level = "info"
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "valid",
			mutate: func(c *Config) {},
		},
		{
			name:    "max conns below min",
			mutate:  func(c *Config) { c.Database.MaxConns = 2 },
			wantErr: "DB_MAX_CONNS",
		},
		{
			name:    "port out of range",
			mutate:  func(c *Config) { c.Server.Port = 70000 },
			wantErr: "SERVER_PORT",
		},
		{
			name:    "mailboxes without credentials",
			mutate:  func(c *Config) { c.Mailer.Mailboxes = []string{"a@corp.com"} },
			wantErr: "MAIL_TENANT_ID",
		},
		{
			name: "mailboxes without public url",
			mutate: func(c *Config) {
				c.Mailer.Mailboxes = []string{"a@corp.com"}
				c.Mailer.TenantID = "t"
				c.Mailer.ClientID = "c"
				c.Mailer.ClientSecret = "s"
			},
			wantErr: "SERVER_PUBLIC_URL",
		},
		{
			name:    "api key auth without keys",
			mutate:  func(c *Config) { c.Security.RequireAPIKey = true },
			wantErr: "API_KEYS",
		},
		{
			name:    "bad log level",
			mutate:  func(c *Config) { c.Logging.Level = "verbose" },
			wantErr: "LOG_LEVEL",
		},
		{
			name:    "zero poller interval",
			mutate:  func(c *Config) { c.Poller.Interval = 0 },
			wantErr: "POLL_INTERVAL",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %s", err, tt.wantErr)
			}
		})
	}
}

func TestServerAddr(t *testing.T) {
	tests := []struct {
		name string
		host string
		port int
		want string
	}{
		{name: "host and port", host: "127.0.0.1", port: 8080, want: "127.0.0.1:8080"},
		{name: "empty host", host: "", port: 9000, want: ":9000"},
		{name: "zero port", host: "h", port: 0, want: "h:0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &ServerConfig{Host: tt.host, Port: tt.port}
			if got := c.Addr(); got != tt.want {
				t.Errorf("Addr() = %q, want %q", got, tt.want)
			}
		})
	}
}
