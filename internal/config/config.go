package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Duplicate-name policies for agent registration.
const (
	DuplicateEvict  = "evict"
	DuplicateReject = "reject"
)

// Config holds all configuration for the gateway
type Config struct {
	// Server Configuration
	Environment string `env:"ENV" envDefault:"development"`
	TunnelPort  string `env:"TUNNEL_PORT" envDefault:"5000"`
	HTTPPort    string `env:"HTTP_PORT" envDefault:"8084"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	LogFile     string `env:"LOG_FILE"`

	// Authentication
	AuthToken   string `env:"AUTH_TOKEN"`
	AdminAPIKey string `env:"ADMIN_API_KEY"`

	// Tunnel behavior
	MaxResponseSize  int64         `env:"MAX_RESPONSE_SIZE" envDefault:"52428800"` // 50 MiB
	HandshakeTimeout time.Duration `env:"HANDSHAKE_TIMEOUT" envDefault:"30s"`
	DispatchTimeout  time.Duration `env:"DISPATCH_TIMEOUT" envDefault:"30s"`
	HeartbeatTimeout time.Duration `env:"HEARTBEAT_TIMEOUT" envDefault:"10s"`
	IdleReadTimeout  time.Duration `env:"IDLE_READ_TIMEOUT" envDefault:"60s"`
	SweepInterval    time.Duration `env:"SWEEP_INTERVAL" envDefault:"60s"`
	DuplicatePolicy  string        `env:"DUPLICATE_POLICY" envDefault:"evict"`

	// Ban thresholds
	BanMaxAttempts   int           `env:"BAN_MAX_ATTEMPTS" envDefault:"5"`
	BanAuthTolerance int           `env:"BAN_AUTH_TOLERANCE" envDefault:"8"`
	BanWindow        time.Duration `env:"BAN_WINDOW" envDefault:"15m"`
	BanPermanent     int           `env:"BAN_PERMANENT" envDefault:"15"`
	BanGrace         time.Duration `env:"BAN_GRACE" envDefault:"30m"`
	BanGC            time.Duration `env:"BAN_GC" envDefault:"24h"`

	// Connection log
	MaxLogEntries int `env:"MAX_LOG_ENTRIES" envDefault:"1000"`

	// Rate limiting
	APIRateRPS        int `env:"API_RATE_RPS" envDefault:"50"`
	APIRateBurst      int `env:"API_RATE_BURST" envDefault:"100"`
	TunnelAcceptRPS   int `env:"TUNNEL_ACCEPT_RPS" envDefault:"100"`
	TunnelAcceptBurst int `env:"TUNNEL_ACCEPT_BURST" envDefault:"200"`
}

// Load loads the configuration from environment variables and .env files
func Load() (*Config, error) {
	// Load .env file if it exists
	// Try multiple locations for .env file
	envLocations := []string{
		"internal/config/env/.env.production",
		"internal/config/env/.env.development",
		".env",
	}

	// If ENV is set, try to load that specific file first
	envName := os.Getenv("ENV")
	if envName != "" {
		envLocations = append([]string{fmt.Sprintf("internal/config/env/.env.%s", envName)}, envLocations...)
	}

	for _, loc := range envLocations {
		if err := godotenv.Load(loc); err == nil {
			// godotenv.Load never overwrites variables already set, so the
			// first file found wins
			break
		}
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// Set default log file if not set
	if cfg.LogFile == "" {
		if cfg.Environment == "production" {
			cfg.LogFile = "/app/logs/gateway.log"
		} else {
			cfg.LogFile = "./logs/gateway.log"
		}
	}

	// Ensure log directory exists
	if err := os.MkdirAll(filepath.Dir(cfg.LogFile), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	return cfg, nil
}

// Validate checks the parts of the configuration the gateway cannot run
// without. Called once at startup; a failure here is fatal.
func (c *Config) Validate() error {
	if c.AuthToken == "" {
		return fmt.Errorf("AUTH_TOKEN must be set")
	}
	if c.AdminAPIKey == "" {
		return fmt.Errorf("ADMIN_API_KEY must be set")
	}
	if c.DuplicatePolicy != DuplicateEvict && c.DuplicatePolicy != DuplicateReject {
		return fmt.Errorf("DUPLICATE_POLICY must be %q or %q, got %q", DuplicateEvict, DuplicateReject, c.DuplicatePolicy)
	}
	if c.MaxResponseSize <= 0 {
		return fmt.Errorf("MAX_RESPONSE_SIZE must be positive")
	}
	if c.BanMaxAttempts <= 0 || c.BanPermanent <= 0 {
		return fmt.Errorf("ban thresholds must be positive")
	}
	return nil
}
