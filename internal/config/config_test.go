package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8081", cfg.HTTPPort)
	assert.Equal(t, "postgres", cfg.StorageBackend)
	assert.Equal(t, "redis", cfg.ChallengeBackend)
	assert.Equal(t, 5*time.Minute, cfg.ChallengeTTL)
	assert.Equal(t, 15*time.Minute, cfg.AccessTTL)
	assert.Equal(t, "Africa/Lagos", cfg.CampusTimezone)
	assert.Equal(t, "@every 1m", cfg.ChallengeSweepSchedule)
	assert.False(t, cfg.RequireAssertion)
	assert.False(t, cfg.SeedLocations)
	assert.True(t, cfg.WebAuthnUserVerification)
	assert.Empty(t, cfg.WebAuthnRPOrigins)
	assert.NoError(t, cfg.Validate())
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("HTTP_PORT", "9000")
	t.Setenv("STORAGE_BACKEND", "Memory")
	t.Setenv("CHALLENGE_BACKEND", "memory")
	t.Setenv("CHALLENGE_TTL", "90s")
	t.Setenv("REQUIRE_ASSERTION", "true")
	t.Setenv("WEBAUTHN_RP_ORIGINS", "https://attend.example.edu, https://kiosk.example.edu,")
	t.Setenv("RATE_LIMIT_PER_MIN", "30")
	t.Setenv("SEED_LOCATIONS", "1")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "9000", cfg.HTTPPort)
	assert.Equal(t, "memory", cfg.StorageBackend)
	assert.Equal(t, 90*time.Second, cfg.ChallengeTTL)
	assert.True(t, cfg.RequireAssertion)
	assert.Equal(t, []string{"https://attend.example.edu", "https://kiosk.example.edu"}, cfg.WebAuthnRPOrigins)
	assert.Equal(t, 30, cfg.RateLimitPerMin)
	assert.True(t, cfg.SeedLocations)
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "campusattend.yaml")
	require.NoError(t, os.WriteFile(path, []byte("http_port: \"7000\"\ncampus_timezone: Europe/London\n"), 0o600))
	t.Setenv("CONFIG_FILE", path)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "7000", cfg.HTTPPort)
	assert.Equal(t, "Europe/London", cfg.CampusTimezone)

	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))
	_, err = Load()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	base, err := Load()
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(*App)
	}{
		{"unknown storage", func(a *App) { a.StorageBackend = "sqlite" }},
		{"unknown challenge backend", func(a *App) { a.ChallengeBackend = "etcd" }},
		{"unknown queue", func(a *App) { a.QueueBackend = "kafka" }},
		{"postgres challenges without postgres", func(a *App) { a.ChallengeBackend = "postgres"; a.StorageBackend = "memory" }},
		{"empty signing key", func(a *App) { a.JWTSigningKey = "" }},
		{"dev key in production", func(a *App) { a.Env = "production" }},
		{"zero rate limit", func(a *App) { a.RateLimitPerMin = 0 }},
		{"zero challenge ttl", func(a *App) { a.ChallengeTTL = 0 }},
		{"blank rp id", func(a *App) { a.WebAuthnRPID = " " }},
		{"bad timezone", func(a *App) { a.CampusTimezone = "Mars/Olympus" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	prod := base
	prod.Env = "production"
	prod.JWTSigningKey = "a-real-secret"
	assert.NoError(t, prod.Validate())
}

func TestLocation(t *testing.T) {
	cfg := App{CampusTimezone: "Africa/Lagos"}
	loc, err := cfg.Location()
	require.NoError(t, err)
	_, offset := time.Date(2026, 1, 1, 12, 0, 0, 0, loc).Zone()
	assert.Equal(t, 3600, offset)
}
