package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string

	Observability ObservabilityConfig

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBSQLitePath      string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int
	DBAutoMigrate     bool

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	Gateway   GatewayConfig
	Billing   BillingConfig
	RateLimit RateLimitConfig
}

// RateLimitConfig configures the redis token buckets in front of the
// payment endpoints. Rates are tokens per second.
type RateLimitConfig struct {
	Enabled         bool
	OrderRate       float64
	OrderBurst      int
	CallbackRate    float64
	CallbackBurst   int
	CallbackLockTTL time.Duration
}

// ObservabilityConfig configures logging and OpenTelemetry export.
type ObservabilityConfig struct {
	LogLevel         string
	LogFormat        string
	OtelEnabled      bool
	ExporterEndpoint string
	ExporterProtocol string
	SamplingRatio    float64
}

// GatewayConfig configures the hosted checkout provider.
type GatewayConfig struct {
	KeyID           string
	KeySecret       string
	Timeout         time.Duration
	DefaultCurrency string
	PendingOrderTTL time.Duration
}

// BillingConfig configures bill synthesis.
type BillingConfig struct {
	// Timezone decides which calendar day a visit, stay or payment falls on.
	Timezone string
	// ClinicName is printed on receipts.
	ClinicName string
}

// Location resolves the billing timezone, falling back to UTC.
func (b BillingConfig) Location() *time.Location {
	name := strings.TrimSpace(b.Timezone)
	if name == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:      getenv("APP_SERVICE", "carebill"),
		AppVersion:   getenv("APP_VERSION", "0.1.0"),
		Environment:  getenv("ENVIRONMENT", "development"),
		HTTPAddr:     getenv("HTTP_ADDR", ":8080"),

		Observability: ObservabilityConfig{
			LogLevel:         strings.ToLower(getenv("LOG_LEVEL", "info")),
			LogFormat:        strings.ToLower(getenv("LOG_FORMAT", "json")),
			OtelEnabled:      getenvBool("OTEL_ENABLED", false),
			ExporterEndpoint: getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			ExporterProtocol: strings.ToLower(getenv("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc")),
			SamplingRatio:    getenvFloat("OTEL_SAMPLING_RATIO", 0.1),
		},

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "carebill"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBSQLitePath:      getenv("DATABASE_SQLITE_PATH", "carebill.db"),
		DBMaxIdleConn:     int(getenvInt64("DATABASE_MAX_IDLE_CONN", 5)),
		DBMaxOpenConn:     int(getenvInt64("DATABASE_MAX_OPEN_CONN", 20)),
		DBConnMaxLifetime: int(getenvInt64("DATABASE_CONN_MAX_LIFETIME", 1800)),
		DBConnMaxIdleTime: int(getenvInt64("DATABASE_CONN_MAX_IDLE_TIME", 300)),
		DBAutoMigrate:     getenvBool("DATABASE_AUTO_MIGRATE", true),

		RedisAddr:     strings.TrimSpace(getenv("REDIS_ADDR", "")),
		RedisPassword: getenv("REDIS_PASSWORD", ""),
		RedisDB:       int(getenvInt64("REDIS_DB", 0)),

		Gateway: GatewayConfig{
			KeyID:           strings.TrimSpace(getenv("GATEWAY_KEY_ID", "")),
			KeySecret:       strings.TrimSpace(getenv("GATEWAY_KEY_SECRET", "")),
			Timeout:         getenvDuration("GATEWAY_TIMEOUT", 10*time.Second),
			DefaultCurrency: strings.ToUpper(getenv("GATEWAY_DEFAULT_CURRENCY", "INR")),
			PendingOrderTTL: getenvDuration("PENDING_ORDER_TTL", 30*time.Minute),
		},
		Billing: BillingConfig{
			Timezone:   getenv("BILLING_TIMEZONE", "UTC"),
			ClinicName: getenv("CLINIC_NAME", "CareBill Clinic"),
		},
		RateLimit: RateLimitConfig{
			Enabled:         getenvBool("RATE_LIMIT_ENABLED", false),
			OrderRate:       getenvFloat("RATE_LIMIT_ORDER_RATE", 0.2),
			OrderBurst:      int(getenvInt64("RATE_LIMIT_ORDER_BURST", 5)),
			CallbackRate:    getenvFloat("RATE_LIMIT_CALLBACK_RATE", 5),
			CallbackBurst:   int(getenvInt64("RATE_LIMIT_CALLBACK_BURST", 20)),
			CallbackLockTTL: getenvDuration("CALLBACK_LOCK_TTL", 30*time.Second),
		},
	}

	return cfg
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Environment), "production")
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt64(key string, def int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}
