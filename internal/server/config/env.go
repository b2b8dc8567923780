package config

import (
	"os"
	"strconv"
	"time"
)

// parseEnv overlays configuration from environment variables. Every variable
// is optional; a set but malformed numeric or duration value panics, since a
// typo in deployment configuration should fail loudly at startup.
//
// Recognized variables:
//
//	ADDRESS              HTTP bind address
//	DATABASE_DSN         PostgreSQL DSN
//	STORAGE_BACKEND      "disk" or "s3"
//	STORAGE_BASE_PATH    root directory for content and chunk staging
//	CHUNK_SIZE           maximum chunk size, bytes
//	MAX_FILE_SIZE        maximum assembled file size, bytes
//	MAX_RETRY_COUNT      sync job attempt ceiling
//	RETRY_BACKOFF_BASE   backoff base, Go duration string
//	RETRY_BACKOFF_CAP    backoff cap, Go duration string
//	REQUEST_TIMEOUT      remote call timeout, Go duration string
//	WEBHOOK_SECRET       HMAC secret for webhook verification
//	REMOTE_BASE_URL      tracker project collection URL
//	REMOTE_PAT           tracker personal access token
//	SESSION_TTL          upload session lifetime, Go duration string
//	RETENTION_WINDOW     soft-delete retention, Go duration string
//	WORKER_COUNT         queue worker pool size
//	WORKER_POLL_INTERVAL queue idle poll interval, Go duration string
//	JANITOR_INTERVAL     maintenance sweep period, Go duration string
//	S3_ROOT_USER, S3_ROOT_PASSWORD, S3_BUCKET, S3_REGION, S3_BASE_ENDPOINT
func parseEnv(config *Config) {
	envString(&config.Addr, "ADDRESS")
	envString(&config.DatabaseDSN, "DATABASE_DSN")
	envString(&config.StorageBackend, "STORAGE_BACKEND")
	envString(&config.StorageBasePath, "STORAGE_BASE_PATH")
	envInt64(&config.ChunkSize, "CHUNK_SIZE")
	envInt64(&config.MaxFileSize, "MAX_FILE_SIZE")
	envInt(&config.MaxRetryCount, "MAX_RETRY_COUNT")
	envDuration(&config.RetryBackoffBase, "RETRY_BACKOFF_BASE")
	envDuration(&config.RetryBackoffCap, "RETRY_BACKOFF_CAP")
	envDuration(&config.RequestTimeout, "REQUEST_TIMEOUT")
	envString(&config.WebhookSecret, "WEBHOOK_SECRET")
	envString(&config.RemoteBaseURL, "REMOTE_BASE_URL")
	envString(&config.RemotePAT, "REMOTE_PAT")
	envDuration(&config.SessionTTL, "SESSION_TTL")
	envDuration(&config.RetentionWindow, "RETENTION_WINDOW")
	envInt(&config.WorkerCount, "WORKER_COUNT")
	envDuration(&config.WorkerPollInterval, "WORKER_POLL_INTERVAL")
	envDuration(&config.JanitorInterval, "JANITOR_INTERVAL")
	envString(&config.S3RootUser, "S3_ROOT_USER")
	envString(&config.S3RootPassword, "S3_ROOT_PASSWORD")
	envString(&config.S3Bucket, "S3_BUCKET")
	envString(&config.S3Region, "S3_REGION")
	envString(&config.S3BaseEndpoint, "S3_BASE_ENDPOINT")
}

func envString(dst *string, name string) {
	if v, ok := os.LookupEnv(name); ok {
		*dst = v
	}
}

func envInt(dst *int, name string) {
	if v, ok := os.LookupEnv(name); ok {
		parsed, err := strconv.Atoi(v)
		if err != nil {
			panic(err)
		}
		*dst = parsed
	}
}

func envInt64(dst *int64, name string) {
	if v, ok := os.LookupEnv(name); ok {
		parsed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			panic(err)
		}
		*dst = parsed
	}
}

func envDuration(dst *time.Duration, name string) {
	if v, ok := os.LookupEnv(name); ok {
		parsed, err := time.ParseDuration(v)
		if err != nil {
			panic(err)
		}
		*dst = parsed
	}
}
