/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Database backend selection.
type DatabaseBackend string

const (
	DatabasePostgres DatabaseBackend = "postgres"
	DatabaseMySQL    DatabaseBackend = "mysql"
	DatabaseSQLite   DatabaseBackend = "sqlite"
)

// Publish backend selection.
type PublishBackend string

const (
	PublishYouTube PublishBackend = "youtube"
	PublishS3      PublishBackend = "s3"
)

// Config covers process level configuration read from environment variables.
type Config struct {
	Environment string
	DBBackend   DatabaseBackend
	DBDSN       string

	// Local working area for downloaded payloads. Empty means the OS temp dir.
	WorkDir string

	// Fetch configuration
	DownloaderBin      string // yt-dlp compatible downloader binary
	CookiesFile        string // optional session-continuation cookies, used when present
	FetchTimeout       time.Duration
	FetchSocketTimeout time.Duration

	// OAuth token exchange for the YouTube backend
	GoogleClientID     string
	GoogleClientSecret string
	TokenEndpoint      string

	// Publish configuration
	PublishTarget       PublishBackend
	UploadChunkSizeMB   int
	PublishMaxAttempts  int
	PublishRetryBackoff time.Duration

	// S3 Object Storage configuration (publish target "s3")
	S3AccessKeyID     string
	S3SecretAccessKey string
	S3Region          string
	S3Bucket          string
	S3Endpoint        string // For S3-compatible services (MinIO, Spaces, etc.)
	S3UsePathStyle    bool   // Required for MinIO

	// Serve mode HTTP surface (health + metrics)
	HTTPBind string
	HTTPPort int

	// Run lock for overlapping dispatch invocations
	RunLockEnabled bool
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	InstanceID     string

	// Event relay (optional)
	NATSURL string

	// Tracing configuration
	TracingEnabled    bool
	OTLPEndpoint      string
	TracingSampleRate float64
}

// Load reads environment variables, applies defaults, and validates the result.
func Load() (*Config, error) {
	cfg := &Config{
		Environment: getEnv("SKALD_ENV", "development"),
		DBBackend:   DatabaseBackend(getEnv("SKALD_DB_BACKEND", string(DatabaseSQLite))),
		DBDSN:       getEnv("SKALD_DB_DSN", ""),

		WorkDir: getEnv("SKALD_WORK_DIR", ""),

		DownloaderBin:      getEnv("SKALD_DOWNLOADER_BIN", "yt-dlp"),
		CookiesFile:        getEnv("SKALD_COOKIES_FILE", "./cookies.txt"),
		FetchTimeout:       time.Duration(getEnvInt("SKALD_FETCH_TIMEOUT_MINUTES", 30)) * time.Minute,
		FetchSocketTimeout: time.Duration(getEnvInt("SKALD_FETCH_SOCKET_TIMEOUT_SECONDS", 60)) * time.Second,

		GoogleClientID:     getEnv("SKALD_GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret: getEnv("SKALD_GOOGLE_CLIENT_SECRET", ""),
		TokenEndpoint:      getEnv("SKALD_TOKEN_ENDPOINT", "https://oauth2.googleapis.com/token"),

		PublishTarget:       PublishBackend(getEnv("SKALD_PUBLISH_TARGET", string(PublishYouTube))),
		UploadChunkSizeMB:   getEnvInt("SKALD_UPLOAD_CHUNK_SIZE_MB", 8),
		PublishMaxAttempts:  getEnvInt("SKALD_PUBLISH_MAX_ATTEMPTS", 5),
		PublishRetryBackoff: time.Duration(getEnvInt("SKALD_PUBLISH_RETRY_BACKOFF_SECONDS", 2)) * time.Second,

		S3AccessKeyID:     getEnv("SKALD_S3_ACCESS_KEY_ID", os.Getenv("AWS_ACCESS_KEY_ID")),
		S3SecretAccessKey: getEnv("SKALD_S3_SECRET_ACCESS_KEY", os.Getenv("AWS_SECRET_ACCESS_KEY")),
		S3Region:          getEnv("SKALD_S3_REGION", "us-east-1"),
		S3Bucket:          getEnv("SKALD_S3_BUCKET", ""),
		S3Endpoint:        getEnv("SKALD_S3_ENDPOINT", ""),
		S3UsePathStyle:    getEnvBool("SKALD_S3_USE_PATH_STYLE", false),

		HTTPBind: getEnv("SKALD_HTTP_BIND", "0.0.0.0"),
		HTTPPort: getEnvInt("SKALD_HTTP_PORT", 8080),

		RunLockEnabled: getEnvBool("SKALD_RUN_LOCK_ENABLED", false),
		RedisAddr:      getEnv("SKALD_REDIS_ADDR", "localhost:6379"),
		RedisPassword:  getEnv("SKALD_REDIS_PASSWORD", ""),
		RedisDB:        getEnvInt("SKALD_REDIS_DB", 0),
		InstanceID:     getEnv("SKALD_INSTANCE_ID", ""),

		NATSURL: getEnv("SKALD_NATS_URL", ""),

		TracingEnabled:    getEnvBool("SKALD_TRACING_ENABLED", false),
		OTLPEndpoint:      getEnv("SKALD_OTLP_ENDPOINT", "localhost:4317"),
		TracingSampleRate: getEnvFloat("SKALD_TRACING_SAMPLE_RATE", 1.0),
	}

	if cfg.DBBackend != DatabasePostgres && cfg.DBBackend != DatabaseMySQL && cfg.DBBackend != DatabaseSQLite {
		return nil, fmt.Errorf("unsupported database backend %q", cfg.DBBackend)
	}

	if cfg.DBDSN == "" {
		return nil, fmt.Errorf("SKALD_DB_DSN must be provided")
	}

	switch cfg.PublishTarget {
	case PublishYouTube:
		if cfg.GoogleClientID == "" || cfg.GoogleClientSecret == "" {
			return nil, fmt.Errorf("SKALD_GOOGLE_CLIENT_ID and SKALD_GOOGLE_CLIENT_SECRET must be provided for the youtube publish target")
		}
	case PublishS3:
		if cfg.S3Bucket == "" {
			return nil, fmt.Errorf("SKALD_S3_BUCKET must be provided for the s3 publish target")
		}
	default:
		return nil, fmt.Errorf("unsupported publish target %q", cfg.PublishTarget)
	}

	if cfg.UploadChunkSizeMB <= 0 {
		return nil, fmt.Errorf("SKALD_UPLOAD_CHUNK_SIZE_MB must be positive")
	}

	if strings.EqualFold(cfg.Environment, "production") && cfg.RunLockEnabled && cfg.RedisAddr == "" {
		return nil, fmt.Errorf("SKALD_REDIS_ADDR must be set when the run lock is enabled in production")
	}

	return cfg, nil
}

// UploadChunkSizeBytes returns the configured upload chunk size in bytes.
func (c *Config) UploadChunkSizeBytes() int64 {
	return int64(c.UploadChunkSizeMB) * 1024 * 1024
}

func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func getEnvInt(key string, def int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		v = strings.ToLower(strings.TrimSpace(v))
		if v == "true" || v == "1" || v == "yes" {
			return true
		}
		if v == "false" || v == "0" || v == "no" {
			return false
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			return parsed
		}
	}
	return def
}
