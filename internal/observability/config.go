package observability

import (
	"strings"

	"github.com/smallbiznis/carebill/internal/config"
)

// Config is the resolved observability setup shared by the logger, tracer
// and meter providers.
type Config struct {
	ServiceName string
	Environment string
	Version     string

	LogLevel  string
	LogFormat string

	OtelEnabled          bool
	OtelExporterEndpoint string
	OtelExporterProtocol string
	OtelSamplingRatio    float64
}

func LoadConfig(cfg config.Config) Config {
	serviceName := strings.TrimSpace(cfg.AppName)
	if serviceName == "" {
		serviceName = "carebill"
	}
	obs := cfg.Observability

	ratio := obs.SamplingRatio
	if ratio < 0 || ratio > 1 {
		ratio = 0.1
	}

	return Config{
		ServiceName:          serviceName,
		Environment:          strings.TrimSpace(cfg.Environment),
		Version:              strings.TrimSpace(cfg.AppVersion),
		LogLevel:             strings.ToLower(strings.TrimSpace(obs.LogLevel)),
		LogFormat:            strings.ToLower(strings.TrimSpace(obs.LogFormat)),
		OtelEnabled:          obs.OtelEnabled,
		OtelExporterEndpoint: strings.TrimSpace(obs.ExporterEndpoint),
		OtelExporterProtocol: strings.ToLower(strings.TrimSpace(obs.ExporterProtocol)),
		OtelSamplingRatio:    ratio,
	}
}

// Debug enables verbose request logging and stack traces.
func (c Config) Debug() bool {
	if c.LogLevel == "debug" {
		return true
	}
	switch strings.ToLower(c.Environment) {
	case "dev", "development", "local", "test":
		return true
	default:
		return false
	}
}
