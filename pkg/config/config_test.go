package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	settings, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "dev-salt", settings.ServerSalt)
	assert.Empty(t, settings.DatabaseURL)
	assert.Equal(t, "127.0.0.1", settings.Host)
	assert.Equal(t, 8000, settings.Port)
	assert.Equal(t, "127.0.0.1:8000", settings.Addr())
	assert.Zero(t, settings.Retention, "retention sweep is off by default")
	assert.Equal(t, time.Hour, settings.CleanupInterval)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("DNDTRACKER_SERVER_SALT", "prod-salt")
	t.Setenv("DNDTRACKER_DATABASE_URL", "postgres://localhost/dnd")
	t.Setenv("DNDTRACKER_HOST", "0.0.0.0")
	t.Setenv("DNDTRACKER_PORT", "9000")
	t.Setenv("DNDTRACKER_DB_MAX_OPEN_CONNS", "20")
	t.Setenv("DNDTRACKER_RETENTION", "720h")

	settings, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "prod-salt", settings.ServerSalt)
	assert.Equal(t, "postgres://localhost/dnd", settings.DatabaseURL)
	assert.Equal(t, "0.0.0.0:9000", settings.Addr())
	assert.Equal(t, 20, settings.DBMaxOpenConns)
	assert.Equal(t, 720*time.Hour, settings.Retention)
}

func TestLoadInvalidPort(t *testing.T) {
	t.Setenv("DNDTRACKER_PORT", "not-a-port")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DNDTRACKER_PORT")
}
