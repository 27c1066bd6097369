package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("POTLUCK_ENV", "test")
	t.Setenv("POTLUCK_MATCH_RADIUS_KM", "")
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, 3.0, cfg.Matching.RadiusKm)
	assert.Equal(t, int64(300), cfg.Matching.BaseFeeCents)
	assert.Equal(t, int64(50), cfg.Matching.PerKmCents)
	assert.Equal(t, 3*time.Second, cfg.Pricing.Timeout)
	assert.Equal(t, "UTC", cfg.Orders.Timezone)
	assert.Equal(t, []string{"*"}, cfg.HTTP.CORSOrigins)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("POTLUCK_ENV", "test")
	t.Setenv("POTLUCK_MATCH_RADIUS_KM", "5.5")
	t.Setenv("POTLUCK_CORS_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("POTLUCK_PRICING_TIMEOUT", "750ms")
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 5.5, cfg.Matching.RadiusKm)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.HTTP.CORSOrigins)
	assert.Equal(t, 750*time.Millisecond, cfg.Pricing.Timeout)
}

func TestValidate(t *testing.T) {
	t.Setenv("POTLUCK_ENV", "test")
	cfg, err := Load()
	require.NoError(t, err)

	bad := cfg
	bad.Matching.RadiusKm = 0
	assert.Error(t, bad.Validate())

	bad = cfg
	bad.Matching.PerKmCents = -1
	assert.Error(t, bad.Validate())

	bad = cfg
	bad.Orders.Timezone = "Mars/Olympus"
	assert.Error(t, bad.Validate())
}
