package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "./scriptyard-data", cfg.DataPath)
	assert.Equal(t, "127.0.0.1", cfg.HTTPHost)
	assert.Equal(t, "8080", cfg.HTTPPort)
	assert.Equal(t, 300, cfg.DefaultScriptTimeoutSeconds)
	assert.Equal(t, 512, cfg.DefaultMemoryLimitMB)
	assert.True(t, cfg.RateLimitEnabled)
	assert.Equal(t, "console", cfg.LogFormat)
	assert.Equal(t, 4, cfg.WorkerPoolSize)
	assert.Equal(t, 64, cfg.RunQueueCapacity)
	assert.EqualValues(t, 1<<20, cfg.OutputByteBudgetPerStream)
	assert.Equal(t, 100, cfg.RetentionKeepNewest)
	assert.Equal(t, 30, cfg.RetentionMaxAgeDays)
	assert.Equal(t, 60, cfg.OrphanGracePeriodSeconds)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("SCRIPTYARD_HTTP_PORT", "9000")
	t.Setenv("SCRIPTYARD_ADMIN_USERNAME", "root")
	t.Setenv("SCRIPTYARD_ADMIN_PASSWORD", "hunter22")
	t.Setenv("SCRIPTYARD_WORKER_POOL_SIZE", "16")
	t.Setenv("SCRIPTYARD_RATE_LIMIT_ENABLED", "false")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "9000", cfg.HTTPPort)
	assert.Equal(t, "root", cfg.AdminUsername)
	assert.Equal(t, "hunter22", cfg.AdminPassword)
	assert.Equal(t, 16, cfg.WorkerPoolSize)
	assert.False(t, cfg.RateLimitEnabled)
}

func TestLoadYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scriptyard.yaml")
	contents := "data_path: /var/lib/scriptyard\nhttp_port: \"9191\"\nlog_format: json\n"
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/scriptyard", cfg.DataPath)
	assert.Equal(t, "9191", cfg.HTTPPort)
	assert.Equal(t, "json", cfg.LogFormat)
}

func TestLoadEnvOverridesYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scriptyard.yaml")
	require.NoError(t, os.WriteFile(path, []byte("http_port: \"9191\"\n"), 0o644))
	t.Setenv("SCRIPTYARD_HTTP_PORT", "7000")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "7000", cfg.HTTPPort)
}

func TestLoadMissingFileIgnored(t *testing.T) {
	t.Parallel()
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "./scriptyard-data", cfg.DataPath)
}

func TestLoadRejectsBadLogFormat(t *testing.T) {
	t.Setenv("SCRIPTYARD_LOG_FORMAT", "xml")
	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "log_format")
}

func TestLoadRejectsZeroWorkerPool(t *testing.T) {
	t.Setenv("SCRIPTYARD_WORKER_POOL_SIZE", "0")
	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "worker_pool_size")
}

func TestDurationHelpers(t *testing.T) {
	t.Parallel()
	cfg := &Config{DefaultScriptTimeoutSeconds: 45, OrphanGracePeriodSeconds: 90}
	assert.Equal(t, 45*1e9, float64(cfg.DefaultScriptTimeout()))
	assert.Equal(t, 90*1e9, float64(cfg.OrphanGracePeriod()))
}

func TestGenerateRandomPassword(t *testing.T) {
	t.Parallel()
	a, err := GenerateRandomPassword()
	require.NoError(t, err)
	b, err := GenerateRandomPassword()
	require.NoError(t, err)
	assert.NotEmpty(t, a)
	assert.NotEqual(t, a, b)
}
