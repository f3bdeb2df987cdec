package internal

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/DukeRupert/cropbatch/internal/domain"
	"github.com/joho/godotenv"
)

type Config struct {
	Env      string
	Host     string
	Port     int
	LogLevel string

	// Public base URL of the server
	BaseURL string

	// Storage Configuration
	StorageProvider string // "local" or "r2"

	// Local Storage
	LocalStoragePath string // Base directory for originals and exports
	LocalStorageURL  string // Base URL for accessing local files

	// R2 Storage
	R2AccountID       string
	R2AccessKeyID     string
	R2SecretAccessKey string
	R2BucketName      string
	R2PublicURL       string        // Optional custom domain URL
	R2URLExpiry       time.Duration // Presigned link lifetime when R2PublicURL is empty

	// Image pipeline
	MaxImageSize      int64
	MaxUploadSize     int64
	DefaultExport     domain.ExportConfig
	PreviewMaxSize    int
	ExportConcurrency int64

	// Session expiry
	SessionTTL      time.Duration // Zero keeps sessions until restart
	JanitorInterval time.Duration

	// Metrics endpoint authentication
	// If both are empty, the /metrics endpoint will be unprotected
	MetricsUsername string
	MetricsPassword string
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// IsProduction reports whether HTTPS-only headers should be enabled.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func NewConfig() (*Config, error) {
	// Load .env file if it exists (ignored in production)
	_ = godotenv.Load()

	return configFromEnv()
}

func configFromEnv() (*Config, error) {
	cfg := &Config{
		Env:      getEnv("ENV", "development"),
		Host:     getEnv("HOST", "127.0.0.1"),
		Port:     getEnvInt("PORT", 8080),
		LogLevel: getEnv("LOG_LEVEL", "debug"),

		BaseURL: strings.TrimSuffix(getEnv("BASE_URL", "http://localhost:8080"), "/"),

		StorageProvider:  getEnv("STORAGE_PROVIDER", "local"),
		LocalStoragePath: getEnv("LOCAL_STORAGE_PATH", "./storage"),

		R2AccountID:       getEnv("R2_ACCOUNT_ID", ""),
		R2AccessKeyID:     getEnv("R2_ACCESS_KEY_ID", ""),
		R2SecretAccessKey: getEnv("R2_SECRET_ACCESS_KEY", ""),
		R2BucketName:      getEnv("R2_BUCKET_NAME", ""),
		R2PublicURL:       getEnv("R2_PUBLIC_URL", ""),
		R2URLExpiry:       getEnvDuration("R2_URL_EXPIRY", time.Hour),

		MaxImageSize:      getEnvInt64("MAX_IMAGE_SIZE", domain.MaxImageSize),
		PreviewMaxSize:    getEnvInt("PREVIEW_MAX_SIZE", domain.PreviewMaxSize),
		ExportConcurrency: getEnvInt64("EXPORT_CONCURRENCY", 1),

		SessionTTL:      getEnvDuration("SESSION_TTL", time.Hour),
		JanitorInterval: getEnvDuration("JANITOR_INTERVAL", time.Minute),

		MetricsUsername: getEnv("METRICS_USERNAME", ""),
		MetricsPassword: getEnv("METRICS_PASSWORD", ""),
	}

	cfg.LocalStorageURL = getEnv("LOCAL_STORAGE_URL", cfg.BaseURL+"/files")
	cfg.MaxUploadSize = getEnvInt64("MAX_UPLOAD_SIZE", 32*cfg.MaxImageSize)

	defaults, err := ExportDefaultsFromEnv()
	if err != nil {
		return nil, err
	}
	cfg.DefaultExport = defaults.Export

	if cfg.Port <= 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("PORT must be between 1 and 65535, got: %d", cfg.Port)
	}
	if cfg.MaxUploadSize < cfg.MaxImageSize {
		return nil, fmt.Errorf("MAX_UPLOAD_SIZE must be at least MAX_IMAGE_SIZE")
	}
	if cfg.PreviewMaxSize <= 0 {
		return nil, fmt.Errorf("PREVIEW_MAX_SIZE must be positive")
	}
	if cfg.ExportConcurrency <= 0 {
		return nil, fmt.Errorf("EXPORT_CONCURRENCY must be at least 1")
	}

	// Validate storage configuration
	if cfg.StorageProvider == "r2" {
		if cfg.R2AccountID == "" {
			return nil, fmt.Errorf("R2_ACCOUNT_ID is required when STORAGE_PROVIDER is 'r2'")
		}
		if cfg.R2AccessKeyID == "" {
			return nil, fmt.Errorf("R2_ACCESS_KEY_ID is required when STORAGE_PROVIDER is 'r2'")
		}
		if cfg.R2SecretAccessKey == "" {
			return nil, fmt.Errorf("R2_SECRET_ACCESS_KEY is required when STORAGE_PROVIDER is 'r2'")
		}
		if cfg.R2BucketName == "" {
			return nil, fmt.Errorf("R2_BUCKET_NAME is required when STORAGE_PROVIDER is 'r2'")
		}
	} else if cfg.StorageProvider != "local" {
		return nil, fmt.Errorf("STORAGE_PROVIDER must be either 'local' or 'r2', got: %s", cfg.StorageProvider)
	}

	return cfg, nil
}

// ExportDefaults are the output settings shared by the server and cropctl.
type ExportDefaults struct {
	Export       domain.ExportConfig
	MaxImageSize int64
}

// ExportDefaultsFromEnv reads DEFAULT_FORMAT, DEFAULT_QUALITY and
// MAX_IMAGE_SIZE.
func ExportDefaultsFromEnv() (*ExportDefaults, error) {
	format, err := domain.ParseFormat(getEnv("DEFAULT_FORMAT", "png"))
	if err != nil {
		return nil, fmt.Errorf("DEFAULT_FORMAT: %s", domain.ErrorMessage(err))
	}

	d := &ExportDefaults{
		Export: domain.ExportConfig{
			Format:  format,
			Quality: getEnvInt("DEFAULT_QUALITY", domain.DefaultQuality),
		},
		MaxImageSize: getEnvInt64("MAX_IMAGE_SIZE", domain.MaxImageSize),
	}
	if err := d.Export.Validate(); err != nil {
		return nil, fmt.Errorf("DEFAULT_QUALITY must be between %d and %d", domain.MinQuality, domain.MaxQuality)
	}
	if d.MaxImageSize <= 0 {
		return nil, fmt.Errorf("MAX_IMAGE_SIZE must be positive")
	}
	return d, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}
