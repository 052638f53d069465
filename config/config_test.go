package config

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "empty port",
			mutate:  func(cfg *Config) { cfg.Port = "" },
			wantErr: "port",
		},
		{
			name:    "non-numeric port",
			mutate:  func(cfg *Config) { cfg.Port = "http" },
			wantErr: "port",
		},
		{
			name:    "bad currency",
			mutate:  func(cfg *Config) { cfg.DefaultCurrency = "POUND" },
			wantErr: "currency",
		},
		{
			name:    "zero timeout",
			mutate:  func(cfg *Config) { cfg.FetchTimeout = 0 },
			wantErr: "fetch timeout",
		},
		{
			name:    "negative ceiling",
			mutate:  func(cfg *Config) { cfg.PriceCeiling = decimal.NewFromInt(-1) },
			wantErr: "price ceiling",
		},
		{
			name:    "negative rate limit",
			mutate:  func(cfg *Config) { cfg.RateLimitPerSecond = -1 },
			wantErr: "rate limit",
		},
		{
			name:    "missing markers file",
			mutate:  func(cfg *Config) { cfg.MarkersFile = "/nonexistent/markers.yaml" },
			wantErr: "markers file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("TRACKED_DOMAINS", "paulsmith.com, paulsmith.co.jp ,")
	t.Setenv("DEFAULT_CURRENCY", "eur")
	t.Setenv("FETCH_TIMEOUT", "40s")
	t.Setenv("PRICE_CEILING", "25000.50")
	t.Setenv("RATE_LIMIT_PER_SECOND", "0.5")
	t.Setenv("LOG_JSON", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "0.0.0.0:9090", cfg.Addr())
	assert.Equal(t, []string{"paulsmith.com", "paulsmith.co.jp"}, cfg.AllowedDomains)
	assert.Equal(t, "EUR", cfg.DefaultCurrency)
	assert.Equal(t, 40*time.Second, cfg.FetchTimeout)
	assert.True(t, decimal.RequireFromString("25000.5").Equal(cfg.PriceCeiling))
	assert.Equal(t, 0.5, cfg.RateLimitPerSecond)
	assert.True(t, cfg.LogJSON)
}

func TestLoadResolvesCurrencySymbol(t *testing.T) {
	t.Setenv("DEFAULT_CURRENCY", "£")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "GBP", cfg.DefaultCurrency)
}

func TestLoadIgnoresMalformedValues(t *testing.T) {
	t.Setenv("FETCH_TIMEOUT", "soon")
	t.Setenv("PRICE_CEILING", "lots")
	t.Setenv("LOG_JSON", "maybe")

	cfg, err := Load()
	require.NoError(t, err)

	d := DefaultConfig()
	assert.Equal(t, d.FetchTimeout, cfg.FetchTimeout)
	assert.True(t, d.PriceCeiling.Equal(cfg.PriceCeiling))
	assert.False(t, cfg.LogJSON)
}
