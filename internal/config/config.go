package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config captures runtime configuration for the API service and opsctl.
type Config struct {
	HTTP        HTTPConfig
	Database    DatabaseConfig
	Telemetry   TelemetryConfig
	Service     ServiceConfig
	Idempotency IdempotencyConfig
	Pagination  PaginationConfig
	Auth        AuthConfig
}

type HTTPConfig struct {
	Port          int
	ShutdownGrace int
}

// DatabaseConfig selects the storage backend. BackendMemory keeps every
// record in process and ignores the remaining fields.
type DatabaseConfig struct {
	Backend        string
	URL            string
	AutoMigrate    bool
	MigrationsPath string
}

type TelemetryConfig struct {
	LogLevel      string
	OTelEndpoint  string
	EnableTracing bool
	EnableMetrics bool
	SampleRate    float64
}

type ServiceConfig struct {
	Name        string
	Version     string
	Environment string
}

// IdempotencyConfig controls retention of completed keys. The request path
// never expires keys on its own; TTL only feeds `opsctl idempotency sweep`.
type IdempotencyConfig struct {
	TTL time.Duration
}

type PaginationConfig struct {
	DefaultLimit int
	MaxLimit     int
}

// AuthConfig names the headers the fronting identity proxy sets.
type AuthConfig struct {
	SubjectHeader string
	RolesHeader   string
}

const (
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

const (
	defaultHTTPPort       = 8080
	defaultShutdownGrace  = 15
	defaultMigrationsPath = "migrations"
	defaultAutoMigrate    = true
	defaultServiceName    = "opsapi"
	defaultServiceVersion = "0.1.0"
	defaultEnvironment    = "development"
	defaultLogLevel       = "info"
	defaultOTelSampleRate = 1.0
	defaultIdemTTLHours   = 24
	defaultPageLimit      = 50
	defaultMaxPageLimit   = 200
	defaultSubjectHeader  = "X-Auth-Subject"
	defaultRolesHeader    = "X-Auth-Roles"
)

// Load reads configuration from environment variables, applying defaults when needed.
func Load() (*Config, error) {
	httpCfg, err := loadHTTPConfig()
	if err != nil {
		return nil, fmt.Errorf("loading HTTP config: %w", err)
	}

	dbCfg, err := loadDatabaseConfig()
	if err != nil {
		return nil, fmt.Errorf("loading database config: %w", err)
	}

	telCfg, err := loadTelemetryConfig()
	if err != nil {
		return nil, fmt.Errorf("loading telemetry config: %w", err)
	}

	idemCfg, err := loadIdempotencyConfig()
	if err != nil {
		return nil, fmt.Errorf("loading idempotency config: %w", err)
	}

	pageCfg, err := loadPaginationConfig()
	if err != nil {
		return nil, fmt.Errorf("loading pagination config: %w", err)
	}

	return &Config{
		HTTP:        httpCfg,
		Database:    dbCfg,
		Telemetry:   telCfg,
		Service:     loadServiceConfig(),
		Idempotency: idemCfg,
		Pagination:  pageCfg,
		Auth: AuthConfig{
			SubjectHeader: getEnvOrDefault("AUTH_SUBJECT_HEADER", defaultSubjectHeader),
			RolesHeader:   getEnvOrDefault("AUTH_ROLES_HEADER", defaultRolesHeader),
		},
	}, nil
}

func loadHTTPConfig() (HTTPConfig, error) {
	port, err := getIntEnv("API_HTTP_PORT", defaultHTTPPort)
	if err != nil {
		return HTTPConfig{}, err
	}

	shutdownGrace, err := getIntEnv("API_SHUTDOWN_GRACE_SECONDS", defaultShutdownGrace)
	if err != nil {
		return HTTPConfig{}, err
	}

	return HTTPConfig{
		Port:          port,
		ShutdownGrace: shutdownGrace,
	}, nil
}

func loadDatabaseConfig() (DatabaseConfig, error) {
	backend := getEnvOrDefault("STORAGE_BACKEND", BackendPostgres)
	if backend != BackendPostgres && backend != BackendMemory {
		return DatabaseConfig{}, fmt.Errorf("invalid STORAGE_BACKEND %q", backend)
	}

	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		databaseURL = buildDatabaseURL()
	}

	return DatabaseConfig{
		Backend:        backend,
		URL:            databaseURL,
		AutoMigrate:    getBoolEnv("AUTO_MIGRATE", defaultAutoMigrate),
		MigrationsPath: getEnvOrDefault("MIGRATIONS_PATH", defaultMigrationsPath),
	}, nil
}

func loadTelemetryConfig() (TelemetryConfig, error) {
	sampleRate := defaultOTelSampleRate
	if value, ok := os.LookupEnv("OTEL_SAMPLE_RATE"); ok {
		parsed, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return TelemetryConfig{}, fmt.Errorf("invalid OTEL_SAMPLE_RATE: %w", err)
		}
		sampleRate = parsed
	}

	return TelemetryConfig{
		LogLevel:      getEnvOrDefault("LOG_LEVEL", defaultLogLevel),
		OTelEndpoint:  getEnvOrDefault("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		EnableTracing: getBoolEnv("OTEL_ENABLE_TRACING", true),
		EnableMetrics: getBoolEnv("OTEL_ENABLE_METRICS", true),
		SampleRate:    sampleRate,
	}, nil
}

func loadServiceConfig() ServiceConfig {
	return ServiceConfig{
		Name:        getEnvOrDefault("API_SERVICE_NAME", defaultServiceName),
		Version:     getEnvOrDefault("SERVICE_VERSION", defaultServiceVersion),
		Environment: getEnvOrDefault("ENVIRONMENT", defaultEnvironment),
	}
}

func loadIdempotencyConfig() (IdempotencyConfig, error) {
	hours, err := getIntEnv("IDEM_TTL_HOURS", defaultIdemTTLHours)
	if err != nil {
		return IdempotencyConfig{}, err
	}
	if hours <= 0 {
		return IdempotencyConfig{}, fmt.Errorf("invalid IDEM_TTL_HOURS: must be positive, got %d", hours)
	}

	return IdempotencyConfig{TTL: time.Duration(hours) * time.Hour}, nil
}

func loadPaginationConfig() (PaginationConfig, error) {
	defaultLimit, err := getIntEnv("PAGE_DEFAULT_LIMIT", defaultPageLimit)
	if err != nil {
		return PaginationConfig{}, err
	}

	maxLimit, err := getIntEnv("PAGE_MAX_LIMIT", defaultMaxPageLimit)
	if err != nil {
		return PaginationConfig{}, err
	}

	if defaultLimit <= 0 || maxLimit <= 0 || defaultLimit > maxLimit {
		return PaginationConfig{}, fmt.Errorf("invalid page limits: default %d, max %d", defaultLimit, maxLimit)
	}

	return PaginationConfig{DefaultLimit: defaultLimit, MaxLimit: maxLimit}, nil
}

func buildDatabaseURL() string {
	host := getEnvOrDefault("DB_HOST", "localhost")
	port := getEnvOrDefault("DB_PORT", "5432")
	user := getEnvOrDefault("DB_USER", "postgres")
	password := getEnvOrDefault("DB_PASSWORD", "postgres")
	dbName := getEnvOrDefault("DB_NAME", "opsapi")
	sslMode := getEnvOrDefault("DB_SSLMODE", "disable")

	maxConns := getEnvOrDefault("DB_MAX_CONNS", "25")
	minConns := getEnvOrDefault("DB_MIN_CONNS", "5")
	maxLifetime := getEnvOrDefault("DB_MAX_CONN_LIFETIME", "5m")

	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s&pool_max_conns=%s&pool_min_conns=%s&pool_max_conn_lifetime=%s",
		user, password, host, port, dbName, sslMode, maxConns, minConns, maxLifetime,
	)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) (int, error) {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return defaultValue, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return parsed, nil
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		return value == "true"
	}
	return defaultValue
}
