package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
)

const (
	AsyncModeInline = "inline"
	AsyncModeQueue  = "queue"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Auth      AuthConfig
	Gateway   GatewayConfig
	RateLimit RateLimitConfig
	Messaging MessagingConfig
	Async     AsyncConfig
}

type ServerConfig struct {
	Host            string        `default:"0.0.0.0"`
	Port            int           `default:"8080"`
	ShutdownTimeout time.Duration `default:"30s" env:"SHUTDOWN_TIMEOUT"`
}

type DatabaseConfig struct {
	URL      string
	MaxConns int `default:"20" env:"MAX_CONNS"`
	MinConns int `default:"5" env:"MIN_CONNS"`
}

type RedisConfig struct {
	Addr     string `default:"localhost:6379"`
	Password string
	DB       int `default:"0"`
}

type AuthConfig struct {
	// APIKeyHeader is checked before the Authorization bearer token.
	APIKeyHeader string `default:"X-API-Key" env:"API_KEY_HEADER"`
}

type GatewayConfig struct {
	PathPrefix     string        `default:"/v1" env:"PATH_PREFIX"`
	RequestTimeout time.Duration `default:"15s" env:"REQUEST_TIMEOUT"`
	MaxBodyBytes   int64         `default:"1048576" env:"MAX_BODY_BYTES"`
}

// RateLimitConfig controls per-credential rate limiting. Backend is "memory"
// or "redis".
type RateLimitConfig struct {
	Backend          string `default:"memory"`
	DefaultPerMinute int    `default:"60" env:"DEFAULT_PER_MINUTE"`
}

// MessagingConfig points at the outbound message-delivery subsystem.
type MessagingConfig struct {
	BaseURL       string        `default:"http://localhost:8090" env:"BASE_URL"`
	SigningSecret string        `env:"SIGNING_SECRET"`
	Timeout       time.Duration `default:"10s"`
}

// AsyncConfig selects how audit entries, key usage and webhook deliveries are
// written: directly from the API process ("inline") or through asynq ("queue").
type AsyncConfig struct {
	Mode              string        `default:"inline"`
	WorkTimeout       time.Duration `default:"5s" env:"WORK_TIMEOUT"`
	WorkerConcurrency int           `default:"10" env:"WORKER_CONCURRENCY"`
}

func Load() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix:        "GATEWAY",
		SkipFlags:        true,
		AllowUnknownEnvs: true,
		Files:            []string{"gateway.yaml", "/etc/crmgateway/gateway.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()
	return &cfg, nil
}

// applyPlatformDefaults maps the unprefixed DATABASE_URL and PORT variables
// that hosting platforms inject.
func (c *Config) applyPlatformDefaults() {
	if c.Database.URL == "" {
		c.Database.URL = os.Getenv("DATABASE_URL")
	}
	if port := os.Getenv("PORT"); port != "" && c.Server.Port == 8080 {
		var p int
		if _, err := fmt.Sscanf(port, "%d", &p); err == nil && p > 0 {
			c.Server.Port = p
		}
	}
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// Validate checks what the API server needs.
func (c *Config) Validate() error {
	var missing []string
	if c.Database.URL == "" {
		missing = append(missing, "GATEWAY_DATABASE_URL")
	}
	if c.Messaging.SigningSecret == "" {
		missing = append(missing, "GATEWAY_MESSAGING_SIGNING_SECRET")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required env vars: %s", strings.Join(missing, ", "))
	}
	switch c.Async.Mode {
	case AsyncModeInline, AsyncModeQueue:
	default:
		return fmt.Errorf("unknown async mode %q", c.Async.Mode)
	}
	switch c.RateLimit.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("unknown rate limit backend %q", c.RateLimit.Backend)
	}
	return nil
}

// ValidateWorker checks what the queue worker needs. The worker never talks
// to the messaging subsystem and does not rate limit.
func (c *Config) ValidateWorker() error {
	if c.Database.URL == "" {
		return errors.New("missing required env vars: GATEWAY_DATABASE_URL")
	}
	if c.Async.WorkerConcurrency < 1 {
		return fmt.Errorf("worker concurrency must be positive, got %d", c.Async.WorkerConcurrency)
	}
	return nil
}
