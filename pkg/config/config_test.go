package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.API.Addr)
	assert.Equal(t, 100, cfg.Processing.RowsMaxNumber)
	assert.Equal(t, 20*time.Minute, cfg.Worker.MaxJobDuration.Std())
	assert.Equal(t, 7*24*time.Hour, cfg.Reconciler.FinishedJobTTL.Std())
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
data_dir: /var/lib/burrow
api:
  addr: ":9090"
  webhook_secret: hunter2
hub:
  endpoint: https://hub.example.org
  timeout: 45s
processing:
  rows_max_number: 50
  blocklist:
    - org/spam
worker:
  concurrency: 8
  max_job_duration: 1h
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/burrow", cfg.DataDir)
	assert.Equal(t, ":9090", cfg.API.Addr)
	assert.Equal(t, "hunter2", cfg.API.WebhookSecret)
	assert.Equal(t, 45*time.Second, cfg.Hub.Timeout.Std())
	assert.Equal(t, 50, cfg.Processing.RowsMaxNumber)
	assert.Equal(t, []string{"org/spam"}, cfg.Processing.Blocklist)
	assert.Equal(t, 8, cfg.Worker.Concurrency)
	assert.Equal(t, time.Hour, cfg.Worker.MaxJobDuration.Std())

	// Untouched sections keep their defaults
	assert.Equal(t, 100, cfg.Reconciler.BackfillSampleSize)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("BURROW_API_ADDR", ":7070")
	t.Setenv("BURROW_HUB_TOKEN", "secret-token")
	t.Setenv("BURROW_WORKER_CONCURRENCY", "16")
	t.Setenv("BURROW_BLOCKLIST", "org/a, org/b")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":7070", cfg.API.Addr)
	assert.Equal(t, "secret-token", cfg.Hub.Token)
	assert.Equal(t, 16, cfg.Worker.Concurrency)
	assert.Equal(t, []string{"org/a", "org/b"}, cfg.Processing.Blocklist)
}

func TestValidation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
processing:
  rows_min_number: 200
  rows_max_number: 100
`), 0o600))

	_, err := Load(path)
	assert.ErrorContains(t, err, "rows_min_number")
}

func TestInvalidDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("hub:\n  timeout: nonsense\n"), 0o600))

	_, err := Load(path)
	assert.ErrorContains(t, err, "invalid duration")
}
