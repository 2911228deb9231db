package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

func init() {
	// Load .env file - ignore error if file doesn't exist
	if err := godotenv.Load(); err != nil {
		fmt.Printf("Note: .env file not found or could not be loaded: %v\n", err)
	}
}

type Config struct {
	Primary       PrimaryConfig
	Database      DatabaseConfig
	Server        ServerConfig
	Redis         RedisConfig
	Kafka         KafkaConfig
	Observability *ObservabilityConfig
	Gateway       GatewayConfig
	Escrow        EscrowConfig
}

type PrimaryConfig struct {
	Env string
}

type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Name            string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int
	ConnMaxIdleTime int
}

type ServerConfig struct {
	Port               string
	ReadTimeout        int
	WriteTimeout       int
	IdleTimeout        int
	CORSAllowedOrigins []string
}

type RedisConfig struct {
	Address      string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	LockTTL      time.Duration
	KeyPrefix    string
}

type KafkaConfig struct {
	Brokers []string
}

type ObservabilityConfig struct {
	ServiceName  string
	Environment  string
	Logging      LoggingConfig
	NewRelic     NewRelicConfig
	HealthChecks HealthChecksConfig
}

type LoggingConfig struct {
	Level              string
	Format             string
	SlowQueryThreshold time.Duration
}

type NewRelicConfig struct {
	LicenseKey                string
	AppLogForwardingEnabled   bool
	DistributedTracingEnabled bool
	DebugLogging              bool
}

type HealthChecksConfig struct {
	Enabled  bool
	Interval time.Duration
	Timeout  time.Duration
	Checks   []string
}

type GatewayConfig struct {
	SecretKey      string
	WebhookSecret  string
	BaseURL        string
	RequestTimeout time.Duration
}

// EscrowConfig carries the business policy knobs for the escrow lifecycle.
// The platform fee rate is deliberately not configurable; it lives in the
// settlement package.
type EscrowConfig struct {
	PaymentDeadline        time.Duration
	ValidationDeadline     time.Duration
	BankTransferMinWindow  time.Duration
	MaxReleaseAttempts     int
	SchedulerBatchSize     int
	ReminderOffsetHours    []int
	PaymentExpirySchedule  string
	ValidationScanSchedule string
	ReminderSchedule       string
	ReconcileSchedule      string
}

// Helper functions for parsing env vars
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

func getEnvBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
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

func getEnvSlice(key string, fallback []string) []string {
	if value := os.Getenv(key); value != "" {
		return strings.Split(value, ",")
	}
	return fallback
}

func getEnvIntSlice(key string, fallback []int) []int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parts := strings.Split(value, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		i, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return fallback
		}
		out = append(out, i)
	}
	return out
}

func (c *ObservabilityConfig) GetLogLevel() string {
	if c.Logging.Level == "" {
		switch c.Environment {
		case "production":
			return "info"
		case "development":
			return "debug"
		default:
			return "info"
		}
	}
	return c.Logging.Level
}

func (c *ObservabilityConfig) IsProduction() bool {
	return c.Environment == "production"
}

func LoadConfig() (*Config, error) {
	cfg := &Config{
		Primary: PrimaryConfig{
			Env: getEnv("CUSTODIA_ENV", "development"),
		},
		Database: DatabaseConfig{
			Host:            getEnv("CUSTODIA_DB_HOST", "localhost"),
			Port:            getEnvInt("CUSTODIA_DB_PORT", 5432),
			User:            getEnv("CUSTODIA_DB_USER", "custodia"),
			Password:        getEnv("CUSTODIA_DB_PASSWORD", ""),
			Name:            getEnv("CUSTODIA_DB_NAME", "custodia"),
			SSLMode:         getEnv("CUSTODIA_DB_SSLMODE", "disable"),
			MaxOpenConns:    getEnvInt("CUSTODIA_DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("CUSTODIA_DB_MAX_IDLE_CONNS", 10),
			ConnMaxLifetime: getEnvInt("CUSTODIA_DB_CONN_MAX_LIFETIME", 300),
			ConnMaxIdleTime: getEnvInt("CUSTODIA_DB_CONN_MAX_IDLE_TIME", 60),
		},
		Server: ServerConfig{
			Port:               getEnv("CUSTODIA_SERVER_PORT", "8080"),
			ReadTimeout:        getEnvInt("CUSTODIA_SERVER_READ_TIMEOUT", 30),
			WriteTimeout:       getEnvInt("CUSTODIA_SERVER_WRITE_TIMEOUT", 30),
			IdleTimeout:        getEnvInt("CUSTODIA_SERVER_IDLE_TIMEOUT", 60),
			CORSAllowedOrigins: getEnvSlice("CUSTODIA_SERVER_CORS_ORIGINS", []string{"*"}),
		},
		Redis: RedisConfig{
			Address:      getEnv("CUSTODIA_REDIS_ADDRESS", "localhost:6379"),
			Password:     getEnv("CUSTODIA_REDIS_PASSWORD", ""),
			DB:           getEnvInt("CUSTODIA_REDIS_DB", 0),
			PoolSize:     getEnvInt("CUSTODIA_REDIS_POOL_SIZE", 10),
			MinIdleConns: getEnvInt("CUSTODIA_REDIS_MIN_IDLE_CONNS", 5),
			DialTimeout:  getEnvDuration("CUSTODIA_REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getEnvDuration("CUSTODIA_REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getEnvDuration("CUSTODIA_REDIS_WRITE_TIMEOUT", 3*time.Second),
			LockTTL:      getEnvDuration("CUSTODIA_REDIS_LOCK_TTL", 30*time.Second),
			KeyPrefix:    getEnv("CUSTODIA_REDIS_KEY_PREFIX", "custodia:"),
		},
		Kafka: KafkaConfig{
			Brokers: getEnvSlice("CUSTODIA_KAFKA_BROKERS", []string{"localhost:9092"}),
		},
		Observability: &ObservabilityConfig{
			ServiceName: "Custodia",
			Environment: getEnv("CUSTODIA_ENV", "development"),
			Logging: LoggingConfig{
				Level:              getEnv("CUSTODIA_LOG_LEVEL", "debug"),
				Format:             getEnv("CUSTODIA_LOG_FORMAT", "console"),
				SlowQueryThreshold: getEnvDuration("CUSTODIA_LOG_SLOW_QUERY_THRESHOLD", 100*time.Millisecond),
			},
			NewRelic: NewRelicConfig{
				LicenseKey:                getEnv("CUSTODIA_NEWRELIC_LICENSE_KEY", ""),
				AppLogForwardingEnabled:   getEnvBool("CUSTODIA_NEWRELIC_LOG_FORWARDING", true),
				DistributedTracingEnabled: getEnvBool("CUSTODIA_NEWRELIC_DISTRIBUTED_TRACING", true),
				DebugLogging:              getEnvBool("CUSTODIA_NEWRELIC_DEBUG", false),
			},
			HealthChecks: HealthChecksConfig{
				Enabled:  getEnvBool("CUSTODIA_HEALTHCHECK_ENABLED", true),
				Interval: getEnvDuration("CUSTODIA_HEALTHCHECK_INTERVAL", 30*time.Second),
				Timeout:  getEnvDuration("CUSTODIA_HEALTHCHECK_TIMEOUT", 5*time.Second),
				Checks:   getEnvSlice("CUSTODIA_HEALTHCHECK_CHECKS", []string{"database", "redis"}),
			},
		},
		Gateway: GatewayConfig{
			SecretKey:      getEnv("CUSTODIA_GATEWAY_SECRET_KEY", ""),
			WebhookSecret:  getEnv("CUSTODIA_GATEWAY_WEBHOOK_SECRET", ""),
			BaseURL:        getEnv("CUSTODIA_GATEWAY_BASE_URL", "https://api.processor.example.com"),
			RequestTimeout: getEnvDuration("CUSTODIA_GATEWAY_REQUEST_TIMEOUT", 5*time.Second),
		},
		Escrow: EscrowConfig{
			PaymentDeadline:        getEnvDuration("CUSTODIA_ESCROW_PAYMENT_DEADLINE", 7*24*time.Hour),
			ValidationDeadline:     getEnvDuration("CUSTODIA_ESCROW_VALIDATION_DEADLINE", 72*time.Hour),
			BankTransferMinWindow:  getEnvDuration("CUSTODIA_ESCROW_BANK_TRANSFER_MIN_WINDOW", 72*time.Hour),
			MaxReleaseAttempts:     getEnvInt("CUSTODIA_ESCROW_MAX_RELEASE_ATTEMPTS", 5),
			SchedulerBatchSize:     getEnvInt("CUSTODIA_ESCROW_SCHEDULER_BATCH_SIZE", 100),
			ReminderOffsetHours:    getEnvIntSlice("CUSTODIA_ESCROW_REMINDER_OFFSET_HOURS", []int{24, 12, 6, 1}),
			PaymentExpirySchedule:  getEnv("CUSTODIA_ESCROW_PAYMENT_EXPIRY_SCHEDULE", "*/5 * * * *"),
			ValidationScanSchedule: getEnv("CUSTODIA_ESCROW_VALIDATION_SCAN_SCHEDULE", "*/5 * * * *"),
			ReminderSchedule:       getEnv("CUSTODIA_ESCROW_REMINDER_SCHEDULE", "*/15 * * * *"),
			ReconcileSchedule:      getEnv("CUSTODIA_ESCROW_RECONCILE_SCHEDULE", "0 2 * * *"),
		},
	}

	// Validate required fields
	if cfg.Database.Host == "" {
		return nil, fmt.Errorf("CUSTODIA_DB_HOST is required")
	}
	if cfg.Database.Name == "" {
		return nil, fmt.Errorf("CUSTODIA_DB_NAME is required")
	}
	return cfg, nil
}
