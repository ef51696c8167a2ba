package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("APP_ENV", "test")
	t.Setenv("DB_USER", "app")
	t.Setenv("DB_HOST", "localhost")
	t.Setenv("DB_NAME", "videos")
	t.Setenv("JWT_ACCESS_SECRET", "access-secret")
	t.Setenv("JWT_REFRESH_SECRET", "refresh-secret")
}

func TestLoad_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "8080", cfg.Port)
	require.Equal(t, "3306", cfg.DBPort)
	require.Equal(t, 15*time.Minute, cfg.AccessTTL)
	require.Equal(t, 7*24*time.Hour, cfg.RefreshTTL)
	require.Equal(t, 12, cfg.BcryptCost)
	require.Equal(t, 5*time.Second, cfg.DBTimeout)
	require.Equal(t, "http://localhost:3000", cfg.CORSOrigin)
	require.False(t, cfg.IsProduction())
}

func TestLoad_ReportsAllMissing(t *testing.T) {
	t.Setenv("APP_ENV", "")
	t.Setenv("DB_USER", "")
	t.Setenv("DB_HOST", "")
	t.Setenv("DB_NAME", "")
	t.Setenv("JWT_ACCESS_SECRET", "")
	t.Setenv("JWT_REFRESH_SECRET", "")

	_, err := Load()
	require.Error(t, err)
	for _, key := range []string{"APP_ENV", "DB_USER", "DB_HOST", "DB_NAME", "JWT_ACCESS_SECRET", "JWT_REFRESH_SECRET"} {
		require.Contains(t, err.Error(), key)
	}
}

func TestLoad_RejectsSharedSecret(t *testing.T) {
	setRequired(t)
	t.Setenv("JWT_REFRESH_SECRET", "access-secret")

	_, err := Load()
	require.ErrorContains(t, err, "must differ")
}

func TestLoad_RejectsWildcardOrigin(t *testing.T) {
	setRequired(t)
	t.Setenv("CORS_ORIGIN", "*")

	_, err := Load()
	require.ErrorContains(t, err, "CORS_ORIGIN")
}

func TestLoad_Overrides(t *testing.T) {
	setRequired(t)
	t.Setenv("APP_ENV", "production")
	t.Setenv("ACCESS_TOKEN_TTL", "5m")
	t.Setenv("BCRYPT_COST", "10")
	t.Setenv("COOKIE_SECURE", "yes")

	cfg, err := Load()
	require.NoError(t, err)
	require.True(t, cfg.IsProduction())
	require.Equal(t, 5*time.Minute, cfg.AccessTTL)
	require.Equal(t, 10, cfg.BcryptCost)
	require.True(t, cfg.CookieSecure)
}

func TestLoadRateLimitConfig_Normalizes(t *testing.T) {
	t.Setenv("RATE_LIMIT_MAX", "0")
	t.Setenv("RATE_LIMIT_WINDOW", "10ms")

	rl := LoadRateLimitConfig()
	require.Equal(t, 1, rl.Limit)
	require.Equal(t, time.Second, rl.Window)
}

func TestLoadCacheConfig_Methods(t *testing.T) {
	t.Setenv("CACHE_METHODS", "get, head ,")

	cc := LoadCacheConfig()
	require.True(t, cc.Methods["GET"])
	require.True(t, cc.Methods["HEAD"])
	require.Len(t, cc.Methods, 2)
}
