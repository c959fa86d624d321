package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CONFIG_ENV_PATH", "")
	t.Setenv("MYSQL_DSN", "user:pass@tcp(localhost:3306)/listings")
	t.Setenv("ADMIN_PASSWORD", "secret")
	t.Setenv("LOCK_BACKEND", "")
	t.Setenv("TIMEZONE", "")
	t.Setenv("BUMP_TICK_MINUTES", "")
	t.Setenv("EXPIRY_SWEEP_MINUTES", "")
	t.Setenv("DB_MAX_OPEN_CONNS", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "user:pass@tcp(localhost:3306)/listings?parseTime=true", cfg.MySQLDSN)
	assert.Equal(t, "Europe/Rome", cfg.Location.String())
	assert.Equal(t, 20, cfg.IngestLimitPerSource)
	assert.Equal(t, time.Second, cfg.IngestDelayMin)
	assert.Equal(t, 3*time.Second, cfg.IngestDelayMax)
	assert.True(t, cfg.IngestContactDedup)
	assert.Equal(t, 10, cfg.DBMaxOpen)
	assert.Equal(t, 5, cfg.DBMaxIdle)
	assert.Equal(t, 5*time.Minute, cfg.DBMaxLifetime)
	assert.Equal(t, 100, cfg.BumpBatchSize)
	assert.Equal(t, 15*time.Minute, cfg.BumpTickInterval)
	assert.Equal(t, time.Hour, cfg.SweepInterval)
	assert.Equal(t, "mysql", cfg.LockBackend)
	assert.Equal(t, 30*24*time.Hour, cfg.ListingTTL)
	assert.False(t, cfg.PhotoMirrorEnabled())
}

func TestLoadReportsMissing(t *testing.T) {
	t.Setenv("CONFIG_ENV_PATH", "")
	t.Setenv("MYSQL_DSN", "")
	t.Setenv("ADMIN_PASSWORD", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MYSQL_DSN")
	assert.Contains(t, err.Error(), "ADMIN_PASSWORD")
}

func TestValidateRedisNeedsURL(t *testing.T) {
	cfg := Config{MySQLDSN: "dsn", AdminPassword: "x", LockBackend: "redis"}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "REDIS_URL")
}

func TestNormalizeDSN(t *testing.T) {
	assert.Equal(t, "", normalizeDSN(" "))
	assert.Equal(t, "a/b?x=1&parseTime=true", normalizeDSN("a/b?x=1"))
	assert.Equal(t, "a/b?parseTime=false", normalizeDSN("a/b?parseTime=false"))
}
