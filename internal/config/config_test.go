package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("LOG_FILE", filepath.Join(t.TempDir(), "gateway.log"))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, "5000", cfg.TunnelPort)
	assert.Equal(t, "8084", cfg.HTTPPort)

	assert.Equal(t, int64(50<<20), cfg.MaxResponseSize)
	assert.Equal(t, 30*time.Second, cfg.HandshakeTimeout)
	assert.Equal(t, 30*time.Second, cfg.DispatchTimeout)
	assert.Equal(t, 10*time.Second, cfg.HeartbeatTimeout)
	assert.Equal(t, 60*time.Second, cfg.IdleReadTimeout)
	assert.Equal(t, 60*time.Second, cfg.SweepInterval)
	assert.Equal(t, DuplicateEvict, cfg.DuplicatePolicy)

	assert.Equal(t, 5, cfg.BanMaxAttempts)
	assert.Equal(t, 8, cfg.BanAuthTolerance)
	assert.Equal(t, 15*time.Minute, cfg.BanWindow)
	assert.Equal(t, 15, cfg.BanPermanent)
	assert.Equal(t, 30*time.Minute, cfg.BanGrace)
	assert.Equal(t, 24*time.Hour, cfg.BanGC)

	assert.Equal(t, 1000, cfg.MaxLogEntries)
	assert.Equal(t, 50, cfg.APIRateRPS)
	assert.Equal(t, 100, cfg.APIRateBurst)
	assert.Equal(t, 100, cfg.TunnelAcceptRPS)
	assert.Equal(t, 200, cfg.TunnelAcceptBurst)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("LOG_FILE", filepath.Join(t.TempDir(), "gateway.log"))
	t.Setenv("TUNNEL_PORT", "6000")
	t.Setenv("DISPATCH_TIMEOUT", "5s")
	t.Setenv("DUPLICATE_POLICY", "reject")
	t.Setenv("BAN_AUTH_TOLERANCE", "12")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "6000", cfg.TunnelPort)
	assert.Equal(t, 5*time.Second, cfg.DispatchTimeout)
	assert.Equal(t, DuplicateReject, cfg.DuplicatePolicy)
	assert.Equal(t, 12, cfg.BanAuthTolerance)
}

func validConfig() *Config {
	return &Config{
		AuthToken:       "token",
		AdminAPIKey:     "key",
		DuplicatePolicy: DuplicateEvict,
		MaxResponseSize: 50 << 20,
		BanMaxAttempts:  5,
		BanPermanent:    15,
	}
}

func TestValidate(t *testing.T) {
	require.NoError(t, validConfig().Validate())

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"missing auth token", func(c *Config) { c.AuthToken = "" }, "AUTH_TOKEN"},
		{"missing admin key", func(c *Config) { c.AdminAPIKey = "" }, "ADMIN_API_KEY"},
		{"bad duplicate policy", func(c *Config) { c.DuplicatePolicy = "keep-both" }, "DUPLICATE_POLICY"},
		{"zero response size", func(c *Config) { c.MaxResponseSize = 0 }, "MAX_RESPONSE_SIZE"},
		{"zero ban threshold", func(c *Config) { c.BanMaxAttempts = 0 }, "ban thresholds"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
