package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Backends lists the accepted DATA_BACKEND values.
var Backends = []string{"memory", "file", "sqlite"}

type Config struct {
	// HTTP Server
	Port     string `koanf:"PORT"`
	BindAddr string `koanf:"BIND_ADDR"`
	// Comma separated CIDRs whose X-Forwarded-For is trusted, on top of loopback and private ranges
	TrustedProxies string `koanf:"TRUSTED_PROXIES"`

	// Storage
	DataBackend  string `koanf:"DATA_BACKEND"`
	DataDir      string `koanf:"DATA_DIR"`
	SQLiteDBPath string `koanf:"SQLITE_DB_PATH"`

	// AMQP change feed, disabled when AMQPURL is empty
	AMQPURL      string `koanf:"AMQP_URL"`
	AMQPExchange string `koanf:"AMQP_EXCHANGE"`
	AMQPQueue    string `koanf:"AMQP_QUEUE"`

	// Category suggestion
	GeminiAPIKey     string        `koanf:"GEMINI_API_KEY"`
	GeminiModel      string        `koanf:"GEMINI_MODEL"`
	SuggestTimeout   time.Duration `koanf:"SUGGEST_TIMEOUT"`
	SuggestCacheSize int           `koanf:"SUGGEST_CACHE_SIZE"`
	SuggestCacheTTL  time.Duration `koanf:"SUGGEST_CACHE_TTL"`

	// Logging
	LogLevel  string `koanf:"LOG_LEVEL"`
	LogFormat string `koanf:"LOG_FORMAT"`
}

// Defaults returns the configuration used when no environment variable is set.
func Defaults() Config {
	return Config{
		Port:     "8081",
		BindAddr: "127.0.0.1",

		DataBackend:  "file",
		DataDir:      "./data",
		SQLiteDBPath: "./data/jizhang.db",

		AMQPExchange: "jizhang",
		AMQPQueue:    "ledger_changes",

		GeminiModel:      "gemini-2.0-flash",
		SuggestTimeout:   10 * time.Second,
		SuggestCacheSize: 256,
		SuggestCacheTTL:  time.Hour,

		LogLevel:  "info",
		LogFormat: "text",
	}
}

// Load reads the configuration from environment variables on top of Defaults.
func Load() (*Config, error) {
	k := koanf.New(".")
	// Empty variables fall back to the default, like unset ones.
	provider := env.ProviderWithValue("", ".", func(key, value string) (string, any) {
		if value == "" {
			return "", nil
		}
		return key, value
	})
	if err := k.Load(provider, nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := Defaults()
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf", FlatPaths: true}); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

// Addr is the listen address of the HTTP server.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.BindAddr, c.Port)
}

// TrustedProxyCIDRs splits TrustedProxies, skipping empty entries.
func (c *Config) TrustedProxyCIDRs() []string {
	var cidrs []string
	for _, part := range strings.Split(c.TrustedProxies, ",") {
		if part = strings.TrimSpace(part); part != "" {
			cidrs = append(cidrs, part)
		}
	}
	return cidrs
}

// SuggestEnabled reports whether the language model suggester is configured.
func (c *Config) SuggestEnabled() bool {
	return c.GeminiAPIKey != ""
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	// Validate port
	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if c.BindAddr != "" && net.ParseIP(c.BindAddr) == nil && c.BindAddr != "localhost" {
		errors = append(errors, fmt.Sprintf("invalid bind address '%s': must be an IP address or localhost", c.BindAddr))
	}

	for _, cidr := range c.TrustedProxyCIDRs() {
		if _, _, err := net.ParseCIDR(cidr); err != nil {
			errors = append(errors, fmt.Sprintf("invalid trusted proxy '%s': must be a CIDR such as 203.0.113.0/24", cidr))
		}
	}

	// Validate data backend
	if !slices.Contains(Backends, c.DataBackend) {
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, Backends))
	}

	switch c.DataBackend {
	case "file":
		if c.DataDir == "" {
			errors = append(errors, "data directory cannot be empty when using file backend")
		}
	case "sqlite":
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite backend")
		} else {
			// Check if directory exists or can be created
			dir := filepath.Dir(c.SQLiteDBPath)
			if dir != "." && dir != "" {
				if _, err := os.Stat(dir); os.IsNotExist(err) {
					if err := os.MkdirAll(dir, 0755); err != nil {
						errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
					}
				}
			}
		}
	}

	// Validate AMQP URL if provided
	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	// Validate suggestion settings
	if c.GeminiAPIKey != "" && c.GeminiModel == "" {
		errors = append(errors, "Gemini model cannot be empty when GEMINI_API_KEY is provided")
	}
	if c.SuggestTimeout < 100*time.Millisecond {
		errors = append(errors, fmt.Sprintf("invalid suggest timeout %v: must be at least 100ms", c.SuggestTimeout))
	} else if c.SuggestTimeout > 2*time.Minute {
		errors = append(errors, fmt.Sprintf("invalid suggest timeout %v: must be at most 2 minutes", c.SuggestTimeout))
	}
	if c.SuggestCacheSize < 1 {
		errors = append(errors, fmt.Sprintf("invalid suggest cache size %d: must be at least 1", c.SuggestCacheSize))
	} else if c.SuggestCacheSize > 100000 {
		errors = append(errors, fmt.Sprintf("invalid suggest cache size %d: must be at most 100000", c.SuggestCacheSize))
	}
	if c.SuggestCacheTTL < time.Second {
		errors = append(errors, fmt.Sprintf("invalid suggest cache TTL %v: must be at least 1 second", c.SuggestCacheTTL))
	}

	// Validate logging
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errors = append(errors, fmt.Sprintf("invalid log level '%s': must be one of debug, info, warn, error", c.LogLevel))
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		errors = append(errors, fmt.Sprintf("invalid log format '%s': must be text or json", c.LogFormat))
	}

	// Return combined errors
	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}
