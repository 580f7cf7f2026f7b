package observability

import (
	"testing"
	"time"

	"github.com/smallbiznis/kontago/internal/config"
	"github.com/stretchr/testify/assert"
	gormlogger "gorm.io/gorm/logger"
)

func TestLoadConfigDefaults(t *testing.T) {
	for _, key := range []string{"DEPLOYMENT_ENV", "SERVICE_VERSION", "LOG_LEVEL", "SQL_LOG_LEVEL", "SQL_SLOW_THRESHOLD",
		"OTEL_ENABLED", "OTEL_EXPORTER_OTLP_ENDPOINT", "OTEL_EXPORTER_OTLP_PROTOCOL", "OTEL_EXPORTER_OTLP_TRACES_PROTOCOL", "OTEL_SAMPLING_RATIO"} {
		t.Setenv(key, "")
	}
	cfg := LoadConfig(config.Config{AppName: "kontago", Environment: "production", AppVersion: "1.2.0", OTLPEndpoint: "otel:4317"})

	assert.Equal(t, "kontago", cfg.ServiceName)
	assert.Equal(t, "production", cfg.Environment)
	assert.Equal(t, "1.2.0", cfg.Version)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "warn", cfg.SQLLogLevel)
	assert.Equal(t, 200*time.Millisecond, cfg.SQLSlowThreshold)
	assert.True(t, cfg.OtelEnabled)
	assert.Equal(t, "otel:4317", cfg.OtelExporterEndpoint)
	assert.Equal(t, "grpc", cfg.OtelExporterProtocol)
	assert.InDelta(t, 0.1, cfg.OtelSamplingRatio, 1e-9)
	assert.False(t, cfg.Debug())

	sqlLog := provideGormLoggerConfig(cfg)
	assert.Equal(t, gormlogger.Warn, sqlLog.Level)
	assert.Equal(t, 200*time.Millisecond, sqlLog.SlowThreshold)
}

func TestLoadConfigFromEnvironment(t *testing.T) {
	t.Setenv("LOG_LEVEL", " DEBUG ")
	t.Setenv("SQL_LOG_LEVEL", "error")
	t.Setenv("SQL_SLOW_THRESHOLD", "1s")
	t.Setenv("OTEL_ENABLED", "false")
	t.Setenv("OTEL_EXPORTER_OTLP_TRACES_PROTOCOL", "HTTP")
	t.Setenv("OTEL_SAMPLING_RATIO", "3")

	cfg := LoadConfig(config.Config{Environment: "production"})

	assert.Equal(t, "kontago", cfg.ServiceName)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.True(t, cfg.Debug())
	assert.False(t, cfg.OtelEnabled)
	assert.Equal(t, "http", cfg.OtelExporterProtocol)
	assert.InDelta(t, 1.0, cfg.OtelSamplingRatio, 1e-9)

	sqlLog := provideGormLoggerConfig(cfg)
	assert.Equal(t, gormlogger.Info, sqlLog.Level)
	assert.Equal(t, time.Second, sqlLog.SlowThreshold)
}

func TestDebugInDevEnvironments(t *testing.T) {
	for _, env := range []string{"dev", "Local", "test"} {
		assert.True(t, Config{LogLevel: "info", Environment: env}.Debug(), env)
	}
	assert.False(t, Config{LogLevel: "info", Environment: "staging"}.Debug())
}
