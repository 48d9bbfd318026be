// Package config loads and validates application configuration from YAML files
// and environment variables.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable that overrides configuration.
const EnvPrefix = "CALLCENTER_"

// Config is the root application configuration.
type Config struct {
	Server        ServerConfig        `yaml:"server" envPrefix:"SERVER_"`
	Identity      IdentityConfig      `yaml:"identity" envPrefix:"IDENTITY_"`
	Backend       BackendConfig       `yaml:"backend" envPrefix:"BACKEND_"`
	Lookup        LookupConfig        `yaml:"lookup" envPrefix:"LOOKUP_"`
	Screens       ScreensConfig       `yaml:"screens" envPrefix:"SCREENS_"`
	Definitions   DefinitionsConfig   `yaml:"definitions" envPrefix:"DEFINITIONS_"`
	Observability ObservabilityConfig `yaml:"observability" envPrefix:"OBSERVABILITY_"`
}

// ServerConfig describes HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port" env:"PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	HandlerTimeout  time.Duration `yaml:"handler_timeout" env:"HANDLER_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	CORS            CORSConfig    `yaml:"cors" envPrefix:"CORS_"`
}

// CORSConfig describes Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins" env:"ALLOWED_ORIGINS"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
	MaxAge         int      `yaml:"max_age"`
}

// IdentityConfig describes how operators are authenticated. When disabled,
// requests are served as an anonymous operator.
type IdentityConfig struct {
	Enabled          bool   `yaml:"enabled" env:"ENABLED"`
	Issuer           string `yaml:"issuer" env:"ISSUER"`
	Audience         string `yaml:"audience" env:"AUDIENCE"`
	Secret           string `yaml:"secret" env:"SECRET"`
	UsernameClaim    string `yaml:"username_claim"`
	DisplayNameClaim string `yaml:"display_name_claim"`
	// TokenCookie names a cookie read for the token when no Authorization
	// header is sent. Empty disables it.
	TokenCookie string `yaml:"token_cookie" env:"TOKEN_COOKIE"`
}

// BackendConfig describes the call-center backend API.
type BackendConfig struct {
	BaseURL        string               `yaml:"base_url" env:"BASE_URL"`
	Timeout        time.Duration        `yaml:"timeout" env:"TIMEOUT"`
	CSRFToken      string               `yaml:"csrf_token" env:"CSRF_TOKEN"`
	Paths          BackendPaths         `yaml:"paths"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker" envPrefix:"CIRCUIT_BREAKER_"`
	Retry          RetryConfig          `yaml:"retry" envPrefix:"RETRY_"`
}

// BackendPaths are the backend endpoints consumed by the screens.
type BackendPaths struct {
	UnitLookup    string `yaml:"unit_lookup"`
	CNES          string `yaml:"cnes"`
	Municipios    string `yaml:"municipios"`
	UsernameCheck string `yaml:"username_check"`
}

// CircuitBreakerConfig describes circuit breaker settings for the backend.
type CircuitBreakerConfig struct {
	FailureThreshold int           `yaml:"failure_threshold" env:"FAILURE_THRESHOLD"`
	SuccessThreshold int           `yaml:"success_threshold" env:"SUCCESS_THRESHOLD"`
	Timeout          time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// RetryConfig describes retry settings for idempotent backend requests.
type RetryConfig struct {
	MaxAttempts       int           `yaml:"max_attempts" env:"MAX_ATTEMPTS"`
	BackoffInitial    time.Duration `yaml:"backoff_initial"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier"`
	BackoffMax        time.Duration `yaml:"backoff_max"`
}

// LookupConfig describes debounced remote lookups and their cache.
type LookupConfig struct {
	QuietPeriod time.Duration `yaml:"quiet_period" env:"QUIET_PERIOD"`
	MinLength   int           `yaml:"min_length" env:"MIN_LENGTH"`
	MaxResults  int           `yaml:"max_results"`
	Cache       CacheConfig   `yaml:"cache" envPrefix:"CACHE_"`
}

// CacheConfig describes the lookup cache.
type CacheConfig struct {
	Driver     string        `yaml:"driver" env:"DRIVER"`
	TTL        time.Duration `yaml:"ttl" env:"TTL"`
	MaxEntries int           `yaml:"max_entries" env:"MAX_ENTRIES"`
	RedisAddr  string        `yaml:"redis_addr" env:"REDIS_ADDR"`
	RedisDB    int           `yaml:"redis_db" env:"REDIS_DB"`
	KeyPrefix  string        `yaml:"key_prefix"`
}

// ScreensConfig describes screen session lifetimes.
type ScreensConfig struct {
	IdleTimeout  time.Duration `yaml:"idle_timeout" env:"IDLE_TIMEOUT"`
	ReapInterval time.Duration `yaml:"reap_interval" env:"REAP_INTERVAL"`
	MaxSessions  int           `yaml:"max_sessions" env:"MAX_SESSIONS"`
	OutboxSize   int           `yaml:"outbox_size"`
}

// DefinitionsConfig describes where screen definitions come from. Embedded
// definitions are always loaded first; files in Directories override them by
// screen ID.
type DefinitionsConfig struct {
	Directories []string `yaml:"directories" env:"DIRECTORIES"`
}

// ObservabilityConfig describes logging, tracing, and metrics settings.
type ObservabilityConfig struct {
	LogLevel string `yaml:"log_level" env:"LOG_LEVEL"`
	// LogFormat is "json" (default) or "console".
	LogFormat string        `yaml:"log_format" env:"LOG_FORMAT"`
	Tracing   TracingConfig `yaml:"tracing" envPrefix:"TRACING_"`
	Metrics   MetricsConfig `yaml:"metrics"`
}

// TracingConfig describes distributed tracing settings.
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled" env:"ENABLED"`
	Exporter     string  `yaml:"exporter" env:"EXPORTER"`
	Endpoint     string  `yaml:"endpoint" env:"ENDPOINT"`
	SamplingRate float64 `yaml:"sampling_rate" env:"SAMPLING_RATE"`
}

// MetricsConfig describes Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Defaults returns a Config with sensible default values.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			HandlerTimeout:  25 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			CORS: CORSConfig{
				AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
				AllowedHeaders: []string{"Authorization", "Content-Type", "X-CSRFToken",
					"X-Correlation-Id"},
				MaxAge: 86400,
			},
		},
		Identity: IdentityConfig{
			UsernameClaim:    "preferred_username",
			DisplayNameClaim: "name",
		},
		Backend: BackendConfig{
			Timeout: 10 * time.Second,
			Paths: BackendPaths{
				UnitLookup: "/accounts/api/unidade-saude/",
				CNES:       "/accounts/api/cnes/",
				Municipios: "/api/municipios/autocomplete/",
			},
			CircuitBreaker: CircuitBreakerConfig{
				FailureThreshold: 5,
				SuccessThreshold: 2,
				Timeout:          30 * time.Second,
			},
			Retry: RetryConfig{
				MaxAttempts:       2,
				BackoffInitial:    100 * time.Millisecond,
				BackoffMultiplier: 2,
				BackoffMax:        time.Second,
			},
		},
		Lookup: LookupConfig{
			QuietPeriod: 300 * time.Millisecond,
			MinLength:   2,
			MaxResults:  10,
			Cache: CacheConfig{
				Driver:     "memory",
				TTL:        5 * time.Minute,
				MaxEntries: 1000,
				KeyPrefix:  "callcenter:lookup:",
			},
		},
		Screens: ScreensConfig{
			IdleTimeout:  30 * time.Minute,
			ReapInterval: time.Minute,
			MaxSessions:  1000,
			OutboxSize:   20,
		},
		Observability: ObservabilityConfig{
			LogLevel:  "info",
			LogFormat: "json",
			Tracing: TracingConfig{
				Exporter:     "otlp",
				SamplingRate: 0.1,
			},
			Metrics: MetricsConfig{
				Enabled: true,
				Path:    "/metrics",
			},
		},
	}
}

// Load reads a YAML config file, applies environment variable overrides,
// and validates required fields.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("config: environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validation: %w", err)
	}

	return cfg, nil
}

// LoadDotEnv loads variables from a .env file when it exists. Variables
// already present in the environment win.
func LoadDotEnv(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return godotenv.Load(path)
}

// Validate checks that all required fields are present and valid.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 1 and 65535")
	}
	if c.Backend.BaseURL == "" {
		errs = append(errs, "backend.base_url is required")
	} else if u, err := url.Parse(c.Backend.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, "backend.base_url must be an absolute URL")
	}
	if c.Identity.Enabled && c.Identity.Secret == "" {
		errs = append(errs, "identity.secret is required when identity is enabled")
	}
	if c.Lookup.QuietPeriod <= 0 {
		errs = append(errs, "lookup.quiet_period must be positive")
	}
	if c.Lookup.MinLength < 1 {
		errs = append(errs, "lookup.min_length must be at least 1")
	}
	switch c.Lookup.Cache.Driver {
	case "memory":
	case "redis":
		if c.Lookup.Cache.RedisAddr == "" {
			errs = append(errs, "lookup.cache.redis_addr is required for the redis driver")
		}
	default:
		errs = append(errs, fmt.Sprintf("lookup.cache.driver %q is not supported (memory, redis)", c.Lookup.Cache.Driver))
	}
	switch c.Observability.LogFormat {
	case "", "json", "console":
	default:
		errs = append(errs, fmt.Sprintf("observability.log_format %q is not supported (json, console)", c.Observability.LogFormat))
	}
	if c.Screens.MaxSessions < 1 {
		errs = append(errs, "screens.max_sessions must be at least 1")
	}
	if c.Screens.IdleTimeout <= 0 {
		errs = append(errs, "screens.idle_timeout must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

// applyEnvOverrides reads CALLCENTER_* environment variables over the values
// loaded from the file.
func applyEnvOverrides(cfg *Config) error {
	return env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix})
}
