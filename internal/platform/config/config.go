// Package config builds process configuration from environment variables so
// main stays lean. Every knob has a development default; production overrides
// come from the deployment environment.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"caregate/pkg/platform/backoff"
)

// Config is the full server configuration.
type Config struct {
	Server       Server
	Postgres     Postgres
	Redis        Redis
	Kafka        Kafka
	Extraction   Extraction
	Notification Notification
	Document     Document
	Blob         Blob
	RateLimit    RateLimit
}

// RateLimit bounds per-member request rates on the document upload surface.
type RateLimit struct {
	UploadsPerMinute int
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr          string
	JWTSigningKey string
}

// Postgres captures the database connection settings. An empty DSN means the
// process runs on in-memory stores (dev and tests).
type Postgres struct {
	DSN          string
	MaxOpenConns int
	MaxIdleConns int
}

// Redis captures connection settings for the processing-claim store. An empty
// URL means claims are held in process memory.
type Redis struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Kafka captures settings for the audit outbox worker.
type Kafka struct {
	Brokers []string
}

// Extraction configures the OCR extraction client and its retry policy.
type Extraction struct {
	BaseURL             string
	APIKey              string
	Timeout             time.Duration
	ConfidenceThreshold float64
	Retry               backoff.Policy
}

// Notification configures webhook delivery.
type Notification struct {
	TargetURL     string
	SigningSecret string
	Timeout       time.Duration
	Retry         backoff.Policy
}

// Document configures upload validation and pipeline workers.
type Document struct {
	MaxUploadBytes int64
	Workers        int
}

// Blob configures the encrypted content store. The key material is stretched
// to the cipher key size, so any non-empty string works in development.
type Blob struct {
	EncryptionKey string
}

// FromEnv builds a Config from environment variables.
func FromEnv() Config {
	return Config{
		Server: Server{
			Addr:          envString("CAREGATE_ADDR", ":8080"),
			JWTSigningKey: envString("JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
		},
		Postgres: Postgres{
			DSN:          os.Getenv("POSTGRES_DSN"),
			MaxOpenConns: envInt("POSTGRES_MAX_OPEN_CONNS", 25),
			MaxIdleConns: envInt("POSTGRES_MAX_IDLE_CONNS", 5),
		},
		Redis: Redis{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     envInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  envDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: Kafka{
			Brokers: envStrings("KAFKA_BROKERS"),
		},
		Extraction: Extraction{
			// Empty means the in-process stub extractor; point this at
			// mocks/extraction-service or the real vendor endpoint.
			BaseURL:             os.Getenv("EXTRACTION_BASE_URL"),
			APIKey:              os.Getenv("EXTRACTION_API_KEY"),
			Timeout:             envDuration("EXTRACTION_TIMEOUT", 10*time.Second),
			ConfidenceThreshold: envFloat("EXTRACTION_CONFIDENCE_THRESHOLD", 0.85),
			Retry: backoff.Policy{
				MaxAttempts: envInt("EXTRACTION_RETRY_ATTEMPTS", 3),
				Base:        envDuration("EXTRACTION_RETRY_BASE", time.Second),
				Factor:      envFloat("EXTRACTION_RETRY_FACTOR", 2),
				Cap:         envDuration("EXTRACTION_RETRY_CAP", 30*time.Second),
			},
		},
		Notification: Notification{
			TargetURL:     envString("NOTIFICATION_TARGET_URL", "http://localhost:9092/webhook"),
			SigningSecret: envString("NOTIFICATION_SIGNING_SECRET", "dev-webhook-secret"),
			Timeout:       envDuration("NOTIFICATION_TIMEOUT", 10*time.Second),
			Retry: backoff.Policy{
				MaxAttempts: envInt("NOTIFICATION_RETRY_ATTEMPTS", 5),
				Base:        envDuration("NOTIFICATION_RETRY_BASE", 2*time.Minute),
				Factor:      envFloat("NOTIFICATION_RETRY_FACTOR", 3),
				Cap:         envDuration("NOTIFICATION_RETRY_CAP", 30*time.Minute),
			},
		},
		Document: Document{
			MaxUploadBytes: envInt64("DOCUMENT_MAX_UPLOAD_BYTES", 10<<20),
			Workers:        envInt("DOCUMENT_PIPELINE_WORKERS", 4),
		},
		Blob: Blob{
			EncryptionKey: envString("BLOB_ENCRYPTION_KEY", "dev-blob-key-change-in-production"),
		},
		RateLimit: RateLimit{
			UploadsPerMinute: envInt("RATE_LIMIT_UPLOADS_PER_MINUTE", 30),
		},
	}
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envStrings(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
