package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "syncore.db", cfg.DBPath)
	assert.Equal(t, 24*time.Hour, cfg.IdleWindow)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("SYNCORE_DB_PATH", "/tmp/custom.db")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/custom.db", cfg.DBPath)
}
