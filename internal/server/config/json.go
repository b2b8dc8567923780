package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/mpetrovs/attachsync/internal/flagx"
	"github.com/mpetrovs/attachsync/internal/timex"
)

// JsonConfig defines a configuration structure tailored for JSON
// unmarshalling. It uses timex.Duration for interval fields, which allows
// parsing both string values such as "30s" and integer nanoseconds.
//
// This struct is an intermediate DTO used only for reading JSON configuration
// files; after unmarshalling, its fields are copied into the runtime Config
// which uses time.Duration. Omitted fields keep their current value.
type JsonConfig struct {
	Addr            *string `json:"addr"`
	DatabaseDSN     *string `json:"database_dsn"`
	StorageBackend  *string `json:"storage_backend"`
	StorageBasePath *string `json:"storage_base_path"`

	ChunkSize        *int64          `json:"chunk_size"`
	MaxFileSize      *int64          `json:"max_file_size"`
	MaxRetryCount    *int            `json:"max_retry_count"`
	RetryBackoffBase *timex.Duration `json:"retry_backoff_base"`
	RetryBackoffCap  *timex.Duration `json:"retry_backoff_cap"`
	RequestTimeout   *timex.Duration `json:"request_timeout"`

	WebhookSecret *string `json:"webhook_secret"`
	RemoteBaseURL *string `json:"remote_base_url"`
	RemotePAT     *string `json:"remote_pat"`

	SessionTTL         *timex.Duration `json:"session_ttl"`
	RetentionWindow    *timex.Duration `json:"retention_window"`
	WorkerCount        *int            `json:"worker_count"`
	WorkerPollInterval *timex.Duration `json:"worker_poll_interval"`
	JanitorInterval    *timex.Duration `json:"janitor_interval"`

	S3RootUser     *string `json:"s3_root_user"`
	S3RootPassword *string `json:"s3_root_password"`
	S3Bucket       *string `json:"s3_bucket"`
	S3Region       *string `json:"s3_region"`
	S3BaseEndpoint *string `json:"s3_base_endpoint"`
}

// parseJson loads configuration values from a JSON file into the provided
// Config instance. The file path comes from the -c or -config command-line
// flags; when neither is set, no JSON file is loaded. An unreadable or
// malformed file panics: a present but broken config file is a deployment
// error, not something to silently skip.
func parseJson(config *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}
	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	applyString(&config.Addr, c.Addr)
	applyString(&config.DatabaseDSN, c.DatabaseDSN)
	applyString(&config.StorageBackend, c.StorageBackend)
	applyString(&config.StorageBasePath, c.StorageBasePath)
	applyInt64(&config.ChunkSize, c.ChunkSize)
	applyInt64(&config.MaxFileSize, c.MaxFileSize)
	applyInt(&config.MaxRetryCount, c.MaxRetryCount)
	applyDuration(&config.RetryBackoffBase, c.RetryBackoffBase)
	applyDuration(&config.RetryBackoffCap, c.RetryBackoffCap)
	applyDuration(&config.RequestTimeout, c.RequestTimeout)
	applyString(&config.WebhookSecret, c.WebhookSecret)
	applyString(&config.RemoteBaseURL, c.RemoteBaseURL)
	applyString(&config.RemotePAT, c.RemotePAT)
	applyDuration(&config.SessionTTL, c.SessionTTL)
	applyDuration(&config.RetentionWindow, c.RetentionWindow)
	applyInt(&config.WorkerCount, c.WorkerCount)
	applyDuration(&config.WorkerPollInterval, c.WorkerPollInterval)
	applyDuration(&config.JanitorInterval, c.JanitorInterval)
	applyString(&config.S3RootUser, c.S3RootUser)
	applyString(&config.S3RootPassword, c.S3RootPassword)
	applyString(&config.S3Bucket, c.S3Bucket)
	applyString(&config.S3Region, c.S3Region)
	applyString(&config.S3BaseEndpoint, c.S3BaseEndpoint)
}

func applyString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}

func applyInt(dst *int, src *int) {
	if src != nil {
		*dst = *src
	}
}

func applyInt64(dst *int64, src *int64) {
	if src != nil {
		*dst = *src
	}
}

func applyDuration(dst *time.Duration, src *timex.Duration) {
	if src != nil {
		*dst = src.Duration
	}
}
