package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, `dsn = "postgres://localhost/sitewise"`))
	require.NoError(t, err)

	assert.Equal(t, "postgres://localhost/sitewise", cfg.DSN)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 100, cfg.Crawler.MaxPages)
	assert.Equal(t, 5*time.Minute, cfg.Crawler.GetDeadline())
	assert.Equal(t, 6*time.Hour, cfg.PageCache.GetTTL())
	assert.Equal(t, 5, cfg.Retrieval.TopN)
	assert.Equal(t, 30*time.Minute, cfg.Worker.GetStuckHorizon())
}

func TestLoadOverridesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
dsn = "postgres://db/sitewise"

[crawler]
max_pages = 10
deadline = "90s"

[page_cache]
ttl = "1h"

[logging]
level = "debug"
`))
	require.NoError(t, err)

	assert.Equal(t, 10, cfg.Crawler.MaxPages)
	assert.Equal(t, 90*time.Second, cfg.Crawler.GetDeadline())
	assert.Equal(t, time.Hour, cfg.PageCache.GetTTL())
	assert.Equal(t, "debug", cfg.Logging.Level)
	// Untouched sections keep their defaults.
	assert.Equal(t, 4, cfg.Crawler.Workers)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("SITEWISE_DSN", "postgres://env/sitewise")
	t.Setenv("SITEWISE_SIGNING_KEY", "env-key")

	cfg, err := Load(writeConfig(t, `dsn = "postgres://file/sitewise"`))
	require.NoError(t, err)

	assert.Equal(t, "postgres://env/sitewise", cfg.DSN)
	assert.Equal(t, "env-key", cfg.Server.SigningKey)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	require.Error(t, err)
}

func TestInvalidDurationFallsBack(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
[fetch]
timeout = "not-a-duration"
`))
	require.NoError(t, err)
	assert.Equal(t, 10*time.Second, cfg.Fetch.GetTimeout())
}
