package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Cache backends accepted by CACHE_BACKEND.
const (
	CacheNone     = "none"
	CacheMemory   = "memory"
	CacheRedis    = "redis"
	CachePostgres = "postgres"
	CacheSQLite   = "sqlite"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Cache     CacheConfig
	CORS      CORSConfig
	AI        AIConfig
	Ingest    IngestConfig
	Telemetry TelemetryConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port           string
	Env            string
	MaxUploadBytes int64
}

// DatabaseConfig holds PostgreSQL connection configuration.
// It is only required when the postgres cache backend is selected.
type DatabaseConfig struct {
	Host     string
	Port     string
	Name     string
	User     string
	Password string
	PoolMin  int
	PoolMax  int
}

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// CacheConfig selects the detection cache backend.
type CacheConfig struct {
	Backend    string
	TTL        time.Duration
	SQLitePath string
}

// CORSConfig holds CORS configuration.
type CORSConfig struct {
	Origins []string
}

// AIConfig configures the OpenAI-compatible detection collaborator.
type AIConfig struct {
	Enabled           bool
	BaseURL           string
	Model             string
	APIKey            string
	Timeout           time.Duration
	RequestsPerMinute int
}

// IngestConfig holds the pipeline thresholds.
type IngestConfig struct {
	HeaderMinConfidence      float64
	AIHeaderAcceptConfidence float64
	ClassifierMinConfidence  float64
	VocabularyPath           string
}

// TelemetryConfig configures metric export. An empty endpoint disables export.
type TelemetryConfig struct {
	OTLPEndpoint string
	ServiceName  string
}

// Load reads configuration from environment variables.
// It uses viper to read values and provides sensible defaults for development.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	cfg := &Config{
		Server: ServerConfig{
			Port:           v.GetString("PORT"),
			Env:            v.GetString("ENV"),
			MaxUploadBytes: v.GetInt64("MAX_UPLOAD_BYTES"),
		},
		Database: DatabaseConfig{
			Host:     v.GetString("DB_HOST"),
			Port:     v.GetString("DB_PORT"),
			Name:     v.GetString("DB_NAME"),
			User:     v.GetString("DB_USER"),
			Password: v.GetString("DB_PASSWORD"),
			PoolMin:  v.GetInt("DB_POOL_MIN"),
			PoolMax:  v.GetInt("DB_POOL_MAX"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("REDIS_ADDR"),
			Password: v.GetString("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
		},
		Cache: CacheConfig{
			Backend:    strings.ToLower(strings.TrimSpace(v.GetString("CACHE_BACKEND"))),
			TTL:        v.GetDuration("CACHE_TTL"),
			SQLitePath: v.GetString("CACHE_SQLITE_PATH"),
		},
		CORS: CORSConfig{
			Origins: parseOrigins(v.GetString("CORS_ORIGINS")),
		},
		AI: AIConfig{
			Enabled:           v.GetBool("AI_ENABLED"),
			BaseURL:           v.GetString("AI_BASE_URL"),
			Model:             v.GetString("AI_MODEL"),
			APIKey:            v.GetString("AI_API_KEY"),
			Timeout:           v.GetDuration("AI_TIMEOUT"),
			RequestsPerMinute: v.GetInt("AI_RPM"),
		},
		Ingest: IngestConfig{
			HeaderMinConfidence:      v.GetFloat64("HEADER_MIN_CONFIDENCE"),
			AIHeaderAcceptConfidence: v.GetFloat64("AI_HEADER_ACCEPT_CONFIDENCE"),
			ClassifierMinConfidence:  v.GetFloat64("CLASSIFIER_MIN_CONFIDENCE"),
			VocabularyPath:           v.GetString("VOCABULARY_PATH"),
		},
		Telemetry: TelemetryConfig{
			OTLPEndpoint: v.GetString("OTEL_EXPORTER_OTLP_ENDPOINT"),
			ServiceName:  v.GetString("OTEL_SERVICE_NAME"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", "8080")
	v.SetDefault("ENV", "development")
	v.SetDefault("MAX_UPLOAD_BYTES", 20<<20)
	v.SetDefault("DB_HOST", "host.docker.internal")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("DB_NAME", "rentroll")
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_POOL_MIN", 2)
	v.SetDefault("DB_POOL_MAX", 10)
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("CACHE_BACKEND", CacheMemory)
	v.SetDefault("CACHE_TTL", 24*time.Hour)
	v.SetDefault("CACHE_SQLITE_PATH", "rentroll-cache.db")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000,http://localhost:3001")
	v.SetDefault("AI_ENABLED", false)
	v.SetDefault("AI_BASE_URL", "https://api.openai.com/v1")
	v.SetDefault("AI_MODEL", "gpt-4.1-mini")
	v.SetDefault("AI_TIMEOUT", 30*time.Second)
	v.SetDefault("AI_RPM", 60)
	v.SetDefault("HEADER_MIN_CONFIDENCE", 0.3)
	v.SetDefault("AI_HEADER_ACCEPT_CONFIDENCE", 0.7)
	v.SetDefault("CLASSIFIER_MIN_CONFIDENCE", 0.5)
	v.SetDefault("OTEL_SERVICE_NAME", "rentroll")
}

// Validate checks that required configuration is present and valid.
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("PORT is required")
	}
	if c.Server.MaxUploadBytes < 1 {
		return fmt.Errorf("MAX_UPLOAD_BYTES must be at least 1")
	}

	switch c.Cache.Backend {
	case CacheNone, CacheMemory:
	case CacheRedis:
		if c.Redis.Addr == "" {
			return fmt.Errorf("REDIS_ADDR is required for the redis cache backend")
		}
	case CacheSQLite:
		if c.Cache.SQLitePath == "" {
			return fmt.Errorf("CACHE_SQLITE_PATH is required for the sqlite cache backend")
		}
	case CachePostgres:
		if err := c.Database.Validate(); err != nil {
			return err
		}
	default:
		return fmt.Errorf("CACHE_BACKEND must be one of none, memory, redis, postgres, sqlite (got %q)", c.Cache.Backend)
	}
	if c.Cache.TTL < 0 {
		return fmt.Errorf("CACHE_TTL must be non-negative")
	}

	if c.AI.Enabled {
		if c.AI.APIKey == "" {
			return fmt.Errorf("AI_API_KEY is required when AI_ENABLED is true")
		}
		if c.AI.Timeout <= 0 {
			return fmt.Errorf("AI_TIMEOUT must be positive")
		}
	}

	for name, value := range map[string]float64{
		"HEADER_MIN_CONFIDENCE":       c.Ingest.HeaderMinConfidence,
		"AI_HEADER_ACCEPT_CONFIDENCE": c.Ingest.AIHeaderAcceptConfidence,
		"CLASSIFIER_MIN_CONFIDENCE":   c.Ingest.ClassifierMinConfidence,
	} {
		if value < 0 || value > 1 {
			return fmt.Errorf("%s must be between 0 and 1", name)
		}
	}

	if len(c.CORS.Origins) == 0 {
		return fmt.Errorf("CORS_ORIGINS is required")
	}

	return nil
}

// Validate checks the PostgreSQL settings.
func (d DatabaseConfig) Validate() error {
	if d.Host == "" {
		return fmt.Errorf("DB_HOST is required")
	}
	if d.Port == "" {
		return fmt.Errorf("DB_PORT is required")
	}
	if d.Name == "" {
		return fmt.Errorf("DB_NAME is required")
	}
	if d.User == "" {
		return fmt.Errorf("DB_USER is required")
	}
	if d.Password == "" {
		return fmt.Errorf("DB_PASSWORD is required")
	}
	if d.PoolMin < 0 {
		return fmt.Errorf("DB_POOL_MIN must be non-negative")
	}
	if d.PoolMax < 1 {
		return fmt.Errorf("DB_POOL_MAX must be at least 1")
	}
	if d.PoolMin > d.PoolMax {
		return fmt.Errorf("DB_POOL_MIN must be less than or equal to DB_POOL_MAX")
	}
	return nil
}

// IsDevelopment reports whether the server runs in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Server.Env == "development"
}

// parseOrigins splits a comma-separated string of origins into a slice.
func parseOrigins(origins string) []string {
	if origins == "" {
		return []string{}
	}

	parts := strings.Split(origins, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
