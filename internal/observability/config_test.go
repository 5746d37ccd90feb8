package observability

import (
	"testing"

	"github.com/smallbiznis/carebill/internal/config"
	"github.com/stretchr/testify/assert"
)

func TestLoadConfig(t *testing.T) {
	cfg := LoadConfig(config.Config{
		AppVersion:  "1.2.0",
		Environment: "production",
		Observability: config.ObservabilityConfig{
			LogLevel:         "WARN",
			ExporterProtocol: "HTTP",
			SamplingRatio:    4,
		},
	})

	assert.Equal(t, "carebill", cfg.ServiceName)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, "http", cfg.OtelExporterProtocol)
	assert.Equal(t, 0.1, cfg.OtelSamplingRatio)
	assert.False(t, cfg.Debug())
}

func TestDebug(t *testing.T) {
	assert.True(t, Config{LogLevel: "debug", Environment: "production"}.Debug())
	assert.True(t, Config{Environment: "Development"}.Debug())
	assert.False(t, Config{Environment: "staging"}.Debug())
}
