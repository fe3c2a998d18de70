package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database  DatabaseConfig
	Telemetry TelemetryConfig
	Redis     RedisConfig
	CORS      CORSConfig
	Log       LogConfig
	Rollups   RollupConfig
	Ingest    IngestConfig
	Courses   CoursesConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

// TelemetryConfig describes the external siteinfo databases polled during an
// ingest run. Sources is a comma separated list of MySQL DSNs.
type TelemetryConfig struct {
	Sources       []string
	QueryTimeout  time.Duration
	MaxConcurrent int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// RollupConfig governs response caching for rollup endpoints. Rollups are
// always recomputed from the catalog when the cache is disabled or cold.
type RollupConfig struct {
	CacheEnabled bool
	CacheTTL     time.Duration
}

// IngestConfig tunes the background queue that executes ingest runs.
type IngestConfig struct {
	Workers    int
	MaxRetries int
	RetryDelay time.Duration
}

// CoursesConfig controls course package scanning and install dispatch.
type CoursesConfig struct {
	PackageDir     string
	InstallPath    string
	InstallTimeout time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Telemetry = TelemetryConfig{
		Sources:       splitAndTrim(v.GetString("TELEMETRY_SOURCES")),
		QueryTimeout:  parseDuration(v.GetString("TELEMETRY_QUERY_TIMEOUT"), 30*time.Second),
		MaxConcurrent: v.GetInt("TELEMETRY_MAX_CONCURRENT"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Rollups = RollupConfig{
		CacheEnabled: v.GetBool("ENABLE_ROLLUP_CACHE"),
		CacheTTL:     parseDuration(v.GetString("ROLLUP_CACHE_TTL"), 5*time.Minute),
	}

	cfg.Ingest = IngestConfig{
		Workers:    v.GetInt("INGEST_WORKERS"),
		MaxRetries: v.GetInt("INGEST_MAX_RETRIES"),
		RetryDelay: parseDuration(v.GetString("INGEST_RETRY_DELAY"), time.Second),
	}

	cfg.Courses = CoursesConfig{
		PackageDir:     v.GetString("COURSE_PACKAGE_DIR"),
		InstallPath:    v.GetString("COURSE_INSTALL_PATH"),
		InstallTimeout: parseDuration(v.GetString("COURSE_INSTALL_TIMEOUT"), 30*time.Second),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "central")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("TELEMETRY_SOURCES", "")
	v.SetDefault("TELEMETRY_QUERY_TIMEOUT", "30s")
	v.SetDefault("TELEMETRY_MAX_CONCURRENT", 4)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("ENABLE_ROLLUP_CACHE", false)
	v.SetDefault("ROLLUP_CACHE_TTL", "5m")

	v.SetDefault("INGEST_WORKERS", 1)
	v.SetDefault("INGEST_MAX_RETRIES", 1)
	v.SetDefault("INGEST_RETRY_DELAY", "1s")

	v.SetDefault("COURSE_PACKAGE_DIR", "./course_packages")
	v.SetDefault("COURSE_INSTALL_PATH", "/webservice/upload")
	v.SetDefault("COURSE_INSTALL_TIMEOUT", "30s")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
