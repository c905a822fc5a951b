package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// HTTP Server
	Port string

	// Database
	SQLiteDBPath    string
	AttachmentQuota int64

	// Cloud backend selection: "memory" keeps everything in-process,
	// "gcp" wires GCS object storage and Firestore.
	CloudBackend       string
	GCSBucket          string
	FirestoreProjectID string
	RemoteTimeout      time.Duration

	// AMQP
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Report cache
	ReportCacheSize int
	ReportCacheTTL  time.Duration
}

func Load() *Config {
	cfg := &Config{
		Port:            getEnv("PORT", "8081"),
		SQLiteDBPath:    getEnv("SQLITE_DB_PATH", "./data/kakeibo.db"),
		AttachmentQuota: getEnvInt64("ATTACHMENT_QUOTA_BYTES", 50<<20),

		CloudBackend:       getEnv("CLOUD_BACKEND", "memory"),
		GCSBucket:          getEnv("GCS_BUCKET", ""),
		FirestoreProjectID: getEnv("FIRESTORE_PROJECT_ID", ""),
		RemoteTimeout:      getEnvDuration("REMOTE_TIMEOUT", 5*time.Second),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "kakeibo"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "sync_records"),

		ReportCacheSize: getEnvInt("REPORT_CACHE_SIZE", 256),
		ReportCacheTTL:  getEnvDuration("REPORT_CACHE_TTL", 5*time.Minute),
	}

	return cfg
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if c.SQLiteDBPath == "" {
		errors = append(errors, "SQLite database path cannot be empty")
	} else {
		dir := filepath.Dir(c.SQLiteDBPath)
		if dir != "." && dir != "" {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				if err := os.MkdirAll(dir, 0755); err != nil {
					errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
				}
			}
		}
	}

	if c.AttachmentQuota < 1 {
		errors = append(errors, fmt.Sprintf("invalid attachment quota %d: must be at least 1 byte", c.AttachmentQuota))
	}

	validBackends := []string{"memory", "gcp"}
	isValidBackend := false
	for _, backend := range validBackends {
		if c.CloudBackend == backend {
			isValidBackend = true
			break
		}
	}
	if !isValidBackend {
		errors = append(errors, fmt.Sprintf("invalid cloud backend '%s': must be one of %v", c.CloudBackend, validBackends))
	}

	if c.CloudBackend == "gcp" {
		if c.GCSBucket == "" {
			errors = append(errors, "GCS bucket is required when using gcp backend")
		}
		if c.FirestoreProjectID == "" {
			errors = append(errors, "Firestore project ID is required when using gcp backend")
		}
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}

		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	if c.RemoteTimeout < time.Second {
		errors = append(errors, fmt.Sprintf("invalid remote timeout %v: must be at least 1 second", c.RemoteTimeout))
	} else if c.RemoteTimeout > time.Minute {
		errors = append(errors, fmt.Sprintf("invalid remote timeout %v: must be at most 1 minute", c.RemoteTimeout))
	}

	if c.ReportCacheSize < 1 {
		errors = append(errors, fmt.Sprintf("invalid report cache size %d: must be at least 1", c.ReportCacheSize))
	}
	if c.ReportCacheTTL < time.Second {
		errors = append(errors, fmt.Sprintf("invalid report cache TTL %v: must be at least 1 second", c.ReportCacheTTL))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
