package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/username/orphanrun/pkg/layout"
)

func TestLoad_EnvFallback(t *testing.T) {
	t.Setenv("ORPHANRUN_CONFIG_PATH", "")
	t.Setenv("ORPHANRUN_FEED_DRIVER", "redis")
	t.Setenv("ORPHANRUN_REDIS_ADDR", "cache:6380")
	t.Setenv("ORPHANRUN_REDIS_DB", "2")
	t.Setenv("ORPHANRUN_MIN_RUN_LENGTH", "4")
	t.Setenv("ORPHANRUN_POLL_INTERVAL", "250ms")
	t.Setenv("ORPHANRUN_LOG_DEVELOPMENT", "true")
	t.Setenv("ORPHANRUN_MAX_RETRIES", "not-a-number")
	t.Setenv("ORPHANRUN_JOBS_CSV_PATH", "/srv/jobs.csv")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, DriverRedis, cfg.FeedDriver)
	assert.Equal(t, "cache:6380", cfg.RedisAddr)
	assert.Equal(t, 2, cfg.RedisDB)
	assert.Equal(t, 4, cfg.MinRunLength)
	assert.Equal(t, 250*time.Millisecond, cfg.PollInterval)
	assert.True(t, cfg.LogDevelopment)
	assert.Equal(t, 3, cfg.MaxRetries, "unparseable values keep the default")
	assert.Equal(t, ":3000", cfg.ListenAddr)
	assert.Equal(t, "/srv/jobs.csv", cfg.JobsCSVPath)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "orphanrun.yaml")
	body := `
listen_addr: ":8080"
blocks_csv_path: /var/lib/p2pool/blocks.csv
min_run_length: 2
poll_interval: 0s
layout:
  explorer_base: "https://explorer.example/block/"
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	t.Setenv("ORPHANRUN_CONFIG_PATH", path)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, DriverCSV, cfg.FeedDriver)
	assert.Equal(t, "/var/lib/p2pool/blocks.csv", cfg.BlocksCSVPath)
	assert.Equal(t, "data/raw_jobs.csv", cfg.JobsCSVPath)
	assert.Equal(t, 2, cfg.MinRunLength)
	assert.Equal(t, 5*time.Second, cfg.PollInterval)

	lc := cfg.LayoutConfig()
	assert.Equal(t, "https://explorer.example/block/", lc.ExplorerBase)
	assert.Equal(t, layout.DefaultGeometry(), lc.Geometry)
	assert.Equal(t, layout.DefaultPalette(), lc.Palette)
}

func TestLoadFromFile_Errors(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("feed_driver: kafka\n"), 0o644))
	_, err = LoadFromFile(path)
	assert.ErrorContains(t, err, "unknown feed driver")
}

func TestValidate(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	cfg.FeedDriver = DriverPostgres
	assert.Error(t, cfg.Validate())
	cfg.PostgresDSN = "postgres://localhost/orphanrun"
	assert.NoError(t, cfg.Validate())
}
