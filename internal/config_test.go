package internal

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/DukeRupert/cropbatch/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"ENV", "HOST", "PORT", "LOG_LEVEL", "BASE_URL",
		"STORAGE_PROVIDER", "LOCAL_STORAGE_PATH", "LOCAL_STORAGE_URL",
		"R2_ACCOUNT_ID", "R2_ACCESS_KEY_ID", "R2_SECRET_ACCESS_KEY", "R2_BUCKET_NAME", "R2_PUBLIC_URL", "R2_URL_EXPIRY",
		"MAX_IMAGE_SIZE", "MAX_UPLOAD_SIZE", "DEFAULT_FORMAT", "DEFAULT_QUALITY",
		"PREVIEW_MAX_SIZE", "EXPORT_CONCURRENCY", "SESSION_TTL", "JANITOR_INTERVAL", "METRICS_USERNAME", "METRICS_PASSWORD",
	} {
		t.Setenv(key, "")
	}
}

func TestConfigFromEnv_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := configFromEnv()
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:8080", cfg.Addr())
	assert.Equal(t, "local", cfg.StorageProvider)
	assert.Equal(t, "http://localhost:8080/files", cfg.LocalStorageURL)
	assert.Equal(t, int64(domain.MaxImageSize), cfg.MaxImageSize)
	assert.Equal(t, 32*cfg.MaxImageSize, cfg.MaxUploadSize)
	assert.Equal(t, domain.DefaultExportConfig(), cfg.DefaultExport)
	assert.Equal(t, domain.PreviewMaxSize, cfg.PreviewMaxSize)
	assert.Equal(t, int64(1), cfg.ExportConcurrency)
	assert.Equal(t, time.Hour, cfg.R2URLExpiry)
	assert.Equal(t, time.Hour, cfg.SessionTTL)
	assert.Equal(t, time.Minute, cfg.JanitorInterval)
	assert.False(t, cfg.IsProduction())
}

func TestConfigFromEnv_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("ENV", "production")
	t.Setenv("HOST", "0.0.0.0")
	t.Setenv("PORT", "9000")
	t.Setenv("BASE_URL", "https://crop.example.com/")
	t.Setenv("DEFAULT_FORMAT", "webp")
	t.Setenv("DEFAULT_QUALITY", "75")
	t.Setenv("EXPORT_CONCURRENCY", "4")

	cfg, err := configFromEnv()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:9000", cfg.Addr())
	assert.Equal(t, "https://crop.example.com/files", cfg.LocalStorageURL)
	assert.Equal(t, domain.ExportConfig{Format: domain.FormatWebP, Quality: 75}, cfg.DefaultExport)
	assert.Equal(t, int64(4), cfg.ExportConcurrency)
	assert.True(t, cfg.IsProduction())
}

func TestConfigFromEnv_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"unknown format", map[string]string{"DEFAULT_FORMAT": "gif"}, "DEFAULT_FORMAT"},
		{"quality too high", map[string]string{"DEFAULT_QUALITY": "101"}, "DEFAULT_QUALITY"},
		{"zero concurrency", map[string]string{"EXPORT_CONCURRENCY": "0"}, "EXPORT_CONCURRENCY"},
		{"bad port", map[string]string{"PORT": "70000"}, "PORT"},
		{"unknown provider", map[string]string{"STORAGE_PROVIDER": "s3"}, "STORAGE_PROVIDER"},
		{"r2 without account", map[string]string{"STORAGE_PROVIDER": "r2"}, "R2_ACCOUNT_ID"},
		{"upload smaller than image", map[string]string{"MAX_IMAGE_SIZE": "1000", "MAX_UPLOAD_SIZE": "10"}, "MAX_UPLOAD_SIZE"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tc.env {
				t.Setenv(k, v)
			}

			_, err := configFromEnv()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestNewLogger_Levels(t *testing.T) {
	tests := []struct {
		level string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"WARN", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}

	for _, tc := range tests {
		logger := NewLogger(io.Discard, "production", tc.level)
		assert.True(t, logger.Enabled(context.Background(), tc.want), tc.level)
		assert.False(t, logger.Enabled(context.Background(), tc.want-1), tc.level)
	}
}
