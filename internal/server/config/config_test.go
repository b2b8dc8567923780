package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withArgs(t *testing.T, args ...string) {
	t.Helper()
	orig := os.Args
	os.Args = append([]string{"attachsync-server"}, args...)
	t.Cleanup(func() { os.Args = orig })
}

func TestLoadConfig_Defaults(t *testing.T) {
	withArgs(t)

	cfg := LoadConfig()

	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, BackendDisk, cfg.StorageBackend)
	assert.Equal(t, int64(128<<20), cfg.MaxFileSize)
	assert.Equal(t, 5, cfg.MaxRetryCount)
	assert.Equal(t, 2*time.Second, cfg.RetryBackoffBase)
	assert.Equal(t, 5*time.Minute, cfg.SessionTTL)
	assert.Equal(t, 2, cfg.WorkerCount)
}

func TestLoadConfig_EnvOverridesDefaults(t *testing.T) {
	withArgs(t)
	t.Setenv("ADDRESS", ":9999")
	t.Setenv("STORAGE_BACKEND", BackendS3)
	t.Setenv("MAX_RETRY_COUNT", "7")
	t.Setenv("RETRY_BACKOFF_BASE", "500ms")
	t.Setenv("SESSION_TTL", "10m")
	t.Setenv("WEBHOOK_SECRET", "env-secret")

	cfg := LoadConfig()

	assert.Equal(t, ":9999", cfg.Addr)
	assert.Equal(t, BackendS3, cfg.StorageBackend)
	assert.Equal(t, 7, cfg.MaxRetryCount)
	assert.Equal(t, 500*time.Millisecond, cfg.RetryBackoffBase)
	assert.Equal(t, 10*time.Minute, cfg.SessionTTL)
	assert.Equal(t, "env-secret", cfg.WebhookSecret)
}

func TestLoadConfig_FlagsOverrideEnv(t *testing.T) {
	t.Setenv("ADDRESS", ":9999")
	t.Setenv("MAX_RETRY_COUNT", "7")
	withArgs(t, "-a", ":7777", "-m", "9", "-w", "flag-secret")

	cfg := LoadConfig()

	assert.Equal(t, ":7777", cfg.Addr)
	assert.Equal(t, 9, cfg.MaxRetryCount)
	assert.Equal(t, "flag-secret", cfg.WebhookSecret)
}

func TestLoadConfig_JsonFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"addr": ":6060",
		"storage_backend": "s3",
		"max_file_size": 1048576,
		"request_timeout": "45s",
		"session_ttl": 60000000000,
		"s3_bucket": "json-bucket"
	}`), 0o600))
	withArgs(t, "-c", path)

	cfg := LoadConfig()

	assert.Equal(t, ":6060", cfg.Addr)
	assert.Equal(t, BackendS3, cfg.StorageBackend)
	assert.Equal(t, int64(1<<20), cfg.MaxFileSize)
	assert.Equal(t, 45*time.Second, cfg.RequestTimeout)
	assert.Equal(t, time.Minute, cfg.SessionTTL, "integer nanoseconds accepted")
	assert.Equal(t, "json-bucket", cfg.S3Bucket)

	// fields absent from the file keep their defaults
	assert.Equal(t, 5, cfg.MaxRetryCount)
}

func TestLoadConfig_EnvOverridesJson(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"addr": ":6060"}`), 0o600))
	withArgs(t, "-c", path)
	t.Setenv("ADDRESS", ":9999")

	cfg := LoadConfig()
	assert.Equal(t, ":9999", cfg.Addr)
}

func TestLoadConfig_MalformedEnvPanics(t *testing.T) {
	withArgs(t)
	t.Setenv("MAX_RETRY_COUNT", "many")

	assert.Panics(t, func() { LoadConfig() })
}
