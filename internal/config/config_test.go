package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "http://loki:3100", cfg.Loki.URL)
	assert.Equal(t, 1000, cfg.Batch.SizeLimit)
	assert.Equal(t, 5*time.Second, cfg.Batch.Period)
	assert.Equal(t, "/var/log/pods", cfg.Daemon.LogRootPath)
	assert.Equal(t, 2, cfg.Daemon.MinWorkers)
}

func TestLoad_YAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
loki:
  url: http://other-loki:3100
  tenant_id: tenant-a
  compress: true
batch:
  size_limit: 500
  period: 2s
  queue_limit: 20000
  eager_first_event: true
daemon:
  log_root_path: /tmp/logs
  min_workers: 1
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "http://other-loki:3100", cfg.Loki.URL)
	assert.Equal(t, "tenant-a", cfg.Loki.TenantID)
	assert.True(t, cfg.Loki.Compress)
	assert.Equal(t, 500, cfg.Batch.SizeLimit)
	assert.Equal(t, 2*time.Second, cfg.Batch.Period)
	assert.Equal(t, 20000, cfg.Batch.QueueLimit)
	assert.True(t, cfg.Batch.EagerlyEmitFirstEvent)
	assert.Equal(t, "/tmp/logs", cfg.Daemon.LogRootPath)
	assert.Equal(t, 1, cfg.Daemon.MinWorkers)

	// Untouched sections keep their defaults
	assert.Equal(t, 10, cfg.Daemon.MaxWorkers)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("batch:\n  size_limit: 500\n"), 0644))

	t.Setenv("BATCH_SIZE", "250")
	t.Setenv("BATCH_TIMEOUT", "10s")
	t.Setenv("LOKI_URL", "http://env-loki:3100")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 250, cfg.Batch.SizeLimit)
	assert.Equal(t, 10*time.Second, cfg.Batch.Period)
	assert.Equal(t, "http://env-loki:3100", cfg.Loki.URL)
}

func TestLoad_InvalidEnvFallsBack(t *testing.T) {
	t.Setenv("BATCH_SIZE", "not-a-number")
	t.Setenv("BATCH_TIMEOUT", "soon")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 1000, cfg.Batch.SizeLimit)
	assert.Equal(t, 5*time.Second, cfg.Batch.Period)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	assert.Error(t, err)
}

func TestLoad_MalformedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("loki: [not a mapping"), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}
