package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all service configuration.
type Config struct {
	Service    ServiceConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Dispatcher DispatcherConfig
	Streaming  StreamingConfig
	Binding    BindingConfig
	Telemetry  TelemetryConfig
}

// ServiceConfig holds service-specific settings.
type ServiceConfig struct {
	Name        string
	Port        int
	Environment string
	LogLevel    string
	LogFormat   string
}

// DatabaseConfig holds Postgres connection settings, used by the
// dispatcher's dead-letter/audit journal.
type DatabaseConfig struct {
	Host        string
	Port        int
	Database    string
	User        string
	Password    string
	MaxConns    int
	MinConns    int
	MaxIdleTime time.Duration
	MaxLifetime time.Duration
}

// RedisConfig holds the single Redis connection shared by the event
// store, dispatcher rate limiter/dedup cache, and streaming pubsub feed.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// DispatcherConfig holds webhook-dispatcher defaults applied when a
// trigger definition leaves a field at its zero value.
type DispatcherConfig struct {
	ConsumerGroup       string
	DedupWindow         time.Duration
	DefaultRatePerMinute int
	DefaultBurst        int
	DefaultMaxAttempts  int
	DefaultBaseDelay    time.Duration
}

// StreamingConfig holds stream fan-out defaults.
type StreamingConfig struct {
	DefaultBufferCapacity int
	DefaultFlushThreshold int
	MaxBufferedEvents     int // global resource cap; 0 disables it
}

// BindingConfig holds agent/function binding defaults.
type BindingConfig struct {
	DefaultTimeout    time.Duration
	DefaultMaxAttempts int
	HTTPMaxRedirects  int
}

// TelemetryConfig holds observability settings.
type TelemetryConfig struct {
	EnablePprof    bool
	PprofPort      int
	EnableTracing  bool
	EnableMetrics  bool
	MetricsPort    int
	TracingBackend string
}

// Load loads configuration from environment variables.
func Load(serviceName string) (*Config, error) {
	cfg := &Config{
		Service: ServiceConfig{
			Name:        serviceName,
			Port:        getEnvInt("PORT", 8080),
			Environment: getEnv("ENVIRONMENT", "development"),
			LogLevel:    getEnv("LOG_LEVEL", "info"),
			LogFormat:   getEnv("LOG_FORMAT", "text"),
		},
		Database: DatabaseConfig{
			Host:        getEnv("POSTGRES_HOST", "localhost"),
			Port:        getEnvInt("POSTGRES_PORT", 5432),
			Database:    getEnv("POSTGRES_DB", "circuitbreaker"),
			User:        getEnv("POSTGRES_USER", "circuitbreaker"),
			Password:    getEnv("POSTGRES_PASSWORD", "circuitbreaker"),
			MaxConns:    getEnvInt("POSTGRES_MAX_CONNS", 50),
			MinConns:    getEnvInt("POSTGRES_MIN_CONNS", 10),
			MaxIdleTime: getEnvDuration("POSTGRES_MAX_IDLE_TIME", 30*time.Minute),
			MaxLifetime: getEnvDuration("POSTGRES_MAX_LIFETIME", 1*time.Hour),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Dispatcher: DispatcherConfig{
			ConsumerGroup:        getEnv("DISPATCHER_CONSUMER_GROUP", "dispatcher"),
			DedupWindow:          getEnvDuration("DISPATCHER_DEDUP_WINDOW", 24*time.Hour),
			DefaultRatePerMinute: getEnvInt("DISPATCHER_DEFAULT_RATE_PER_MINUTE", 600),
			DefaultBurst:         getEnvInt("DISPATCHER_DEFAULT_BURST", 60),
			DefaultMaxAttempts:   getEnvInt("DISPATCHER_DEFAULT_MAX_ATTEMPTS", 5),
			DefaultBaseDelay:     getEnvDuration("DISPATCHER_DEFAULT_BASE_DELAY", 500*time.Millisecond),
		},
		Streaming: StreamingConfig{
			DefaultBufferCapacity: getEnvInt("STREAMING_DEFAULT_BUFFER_CAPACITY", 256),
			DefaultFlushThreshold: getEnvInt("STREAMING_DEFAULT_FLUSH_THRESHOLD", 4096),
			MaxBufferedEvents:     getEnvInt("STREAMING_MAX_BUFFERED_EVENTS", 0),
		},
		Binding: BindingConfig{
			DefaultTimeout:     getEnvDuration("BINDING_DEFAULT_TIMEOUT", 30*time.Second),
			DefaultMaxAttempts: getEnvInt("BINDING_DEFAULT_MAX_ATTEMPTS", 3),
			HTTPMaxRedirects:   getEnvInt("BINDING_HTTP_MAX_REDIRECTS", 3),
		},
		Telemetry: TelemetryConfig{
			EnablePprof:    getEnvBool("ENABLE_PPROF", true),
			PprofPort:      getEnvInt("PPROF_PORT", 6060),
			EnableTracing:  getEnvBool("ENABLE_TRACING", true),
			EnableMetrics:  getEnvBool("ENABLE_METRICS", true),
			MetricsPort:    getEnvInt("METRICS_PORT", 9090),
			TracingBackend: getEnv("TRACING_BACKEND", "stdout"),
		},
	}

	return cfg, cfg.Validate()
}

// Validate checks if configuration is valid.
func (c *Config) Validate() error {
	if c.Service.Port < 1 || c.Service.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Service.Port)
	}

	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}

	if c.Database.MaxConns < c.Database.MinConns {
		return fmt.Errorf("max_conns must be >= min_conns")
	}

	if c.Redis.Addr == "" {
		return fmt.Errorf("redis addr is required")
	}

	return nil
}

// DatabaseURL returns the PostgreSQL connection string.
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Database,
	)
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
