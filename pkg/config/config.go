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

	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	CORS     CORSConfig
	Log      LogConfig
	Tracking TrackingConfig
	Library  LibraryConfig
	Fines    FinesConfig
	Exports  ExportsConfig
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

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret            string
	Expiration        time.Duration
	RefreshExpiration time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// TrackingConfig tunes the geofence presence engine.
type TrackingConfig struct {
	Enabled           bool
	GeofenceCacheTTL  time.Duration
	AnalyticsCacheTTL time.Duration
	RebuildOnStart    bool
}

// LibraryConfig governs circulation policy.
type LibraryConfig struct {
	LoanPeriod     time.Duration
	MaxActiveLoans int
}

// FinesConfig controls overdue fine assessment.
type FinesConfig struct {
	DailyRate     float64
	SweepInterval time.Duration
	SweepWorkers  int
}

// ExportsConfig controls archived export storage.
type ExportsConfig struct {
	Dir       string
	URLTTL    time.Duration
	Retention time.Duration
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

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:            v.GetString("JWT_SECRET"),
		Expiration:        parseDuration(v.GetString("JWT_EXPIRATION"), 24*time.Hour),
		RefreshExpiration: parseDuration(v.GetString("REFRESH_TOKEN_EXPIRATION"), 7*24*time.Hour),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Tracking = TrackingConfig{
		Enabled:           v.GetBool("ENABLE_TRACKING"),
		GeofenceCacheTTL:  parseDuration(v.GetString("GEOFENCE_CACHE_TTL"), 30*time.Second),
		AnalyticsCacheTTL: parseDuration(v.GetString("TRACKING_ANALYTICS_CACHE_TTL"), 5*time.Minute),
		RebuildOnStart:    v.GetBool("TRACKING_REBUILD_ON_START"),
	}

	cfg.Library = LibraryConfig{
		LoanPeriod:     parseDuration(v.GetString("LOAN_PERIOD"), 14*24*time.Hour),
		MaxActiveLoans: v.GetInt("MAX_ACTIVE_LOANS"),
	}

	cfg.Fines = FinesConfig{
		DailyRate:     v.GetFloat64("FINE_DAILY_RATE"),
		SweepInterval: parseDuration(v.GetString("FINE_SWEEP_INTERVAL"), time.Hour),
		SweepWorkers:  v.GetInt("FINE_SWEEP_WORKERS"),
	}

	cfg.Exports = ExportsConfig{
		Dir:       v.GetString("EXPORT_DIR"),
		URLTTL:    parseDuration(v.GetString("EXPORT_URL_TTL"), 24*time.Hour),
		Retention: parseDuration(v.GetString("EXPORT_RETENTION"), 7*24*time.Hour),
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
	v.SetDefault("DB_NAME", "campus_library")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_EXPIRATION", "24h")
	v.SetDefault("REFRESH_TOKEN_EXPIRATION", "168h")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("ENABLE_TRACKING", true)
	v.SetDefault("GEOFENCE_CACHE_TTL", "30s")
	v.SetDefault("TRACKING_ANALYTICS_CACHE_TTL", "5m")
	v.SetDefault("TRACKING_REBUILD_ON_START", false)

	v.SetDefault("LOAN_PERIOD", "336h")
	v.SetDefault("MAX_ACTIVE_LOANS", 3)

	v.SetDefault("FINE_DAILY_RATE", 1.0)
	v.SetDefault("FINE_SWEEP_INTERVAL", "1h")
	v.SetDefault("FINE_SWEEP_WORKERS", 1)

	v.SetDefault("EXPORT_DIR", "./data/exports")
	v.SetDefault("EXPORT_URL_TTL", "24h")
	v.SetDefault("EXPORT_RETENTION", "168h")
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
