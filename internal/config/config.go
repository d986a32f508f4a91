package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server      ServerConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	Idempotency IdempotencyConfig
	Checkout    CheckoutConfig
	RateLimit   RateLimitConfig
	CORS        CORSConfig
}

type ServerConfig struct {
	Port     string
	Env      string
	LogLevel string
}

type DatabaseConfig struct {
	Host        string
	Port        string
	User        string
	Password    string
	Database    string
	Schema      string
	SSLMode     string
	MaxOpen     int
	MaxIdle     int
	LockTimeout time.Duration // bounds row lock waits inside checkout transactions
}

// DSN returns the pgx connection string for the configured database.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s&search_path=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode, c.Schema)
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// Addr returns host:port for the redis client.
func (c RedisConfig) Addr() string {
	return c.Host + ":" + c.Port
}

type IdempotencyConfig struct {
	Backend       string        // "postgres" or "redis"
	Lease         time.Duration // how long an in-flight key blocks retries
	Retention     time.Duration // how long completed keys are remembered
	PurgeInterval time.Duration
	MaxKeyLength  int
}

type CheckoutConfig struct {
	VATRate     string // decimal string, e.g. "0.15"
	VATMode     string // "inclusive" or "exclusive"
	MaxCartSize int
}

type RateLimitConfig struct {
	Enabled           bool
	RequestsPerWindow int
	Window            time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
}

// IsProduction reports whether the service runs with production settings.
func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}

func Load() *Config {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")
	viper.AutomaticEnv()

	// Set defaults
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("SERVER_ENV", "development")
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("DB_HOST", "localhost")
	viper.SetDefault("DB_PORT", "5432")
	viper.SetDefault("DB_USER", "nano_pos")
	viper.SetDefault("DB_PASSWORD", "nano_pos")
	viper.SetDefault("DB_DATABASE", "nano_pos")
	viper.SetDefault("DB_SCHEMA", "public")
	viper.SetDefault("DB_SSLMODE", "disable")
	viper.SetDefault("DB_MAX_OPEN_CONNS", 25)
	viper.SetDefault("DB_MAX_IDLE_CONNS", 5)
	viper.SetDefault("DB_LOCK_TIMEOUT", "5s")
	viper.SetDefault("REDIS_HOST", "localhost")
	viper.SetDefault("REDIS_PORT", "6379")
	viper.SetDefault("REDIS_DB", 0)
	viper.SetDefault("IDEMPOTENCY_BACKEND", "postgres")
	viper.SetDefault("IDEMPOTENCY_LEASE", "30s")
	viper.SetDefault("IDEMPOTENCY_RETENTION", "72h")
	viper.SetDefault("IDEMPOTENCY_PURGE_INTERVAL", "10m")
	viper.SetDefault("IDEMPOTENCY_MAX_KEY_LENGTH", 255)
	viper.SetDefault("CHECKOUT_VAT_RATE", "0.15")
	viper.SetDefault("CHECKOUT_VAT_MODE", "inclusive")
	viper.SetDefault("CHECKOUT_MAX_CART_SIZE", 200)
	viper.SetDefault("RATE_LIMIT_ENABLED", false)
	viper.SetDefault("RATE_LIMIT_REQUESTS", 120)
	viper.SetDefault("RATE_LIMIT_WINDOW", "1m")
	viper.SetDefault("CORS_ALLOWED_ORIGINS", "http://localhost:3000")

	if err := viper.ReadInConfig(); err != nil {
		log.Printf("Warning: Could not read config file: %v", err)
	}

	return &Config{
		Server: ServerConfig{
			Port:     viper.GetString("SERVER_PORT"),
			Env:      viper.GetString("SERVER_ENV"),
			LogLevel: viper.GetString("LOG_LEVEL"),
		},
		Database: DatabaseConfig{
			Host:        viper.GetString("DB_HOST"),
			Port:        viper.GetString("DB_PORT"),
			User:        viper.GetString("DB_USER"),
			Password:    viper.GetString("DB_PASSWORD"),
			Database:    viper.GetString("DB_DATABASE"),
			Schema:      viper.GetString("DB_SCHEMA"),
			SSLMode:     viper.GetString("DB_SSLMODE"),
			MaxOpen:     viper.GetInt("DB_MAX_OPEN_CONNS"),
			MaxIdle:     viper.GetInt("DB_MAX_IDLE_CONNS"),
			LockTimeout: viper.GetDuration("DB_LOCK_TIMEOUT"),
		},
		Redis: RedisConfig{
			Host:     viper.GetString("REDIS_HOST"),
			Port:     viper.GetString("REDIS_PORT"),
			Password: viper.GetString("REDIS_PASSWORD"),
			DB:       viper.GetInt("REDIS_DB"),
		},
		Idempotency: IdempotencyConfig{
			Backend:       strings.ToLower(viper.GetString("IDEMPOTENCY_BACKEND")),
			Lease:         viper.GetDuration("IDEMPOTENCY_LEASE"),
			Retention:     viper.GetDuration("IDEMPOTENCY_RETENTION"),
			PurgeInterval: viper.GetDuration("IDEMPOTENCY_PURGE_INTERVAL"),
			MaxKeyLength:  viper.GetInt("IDEMPOTENCY_MAX_KEY_LENGTH"),
		},
		Checkout: CheckoutConfig{
			VATRate:     viper.GetString("CHECKOUT_VAT_RATE"),
			VATMode:     strings.ToLower(viper.GetString("CHECKOUT_VAT_MODE")),
			MaxCartSize: viper.GetInt("CHECKOUT_MAX_CART_SIZE"),
		},
		RateLimit: RateLimitConfig{
			Enabled:           viper.GetBool("RATE_LIMIT_ENABLED"),
			RequestsPerWindow: viper.GetInt("RATE_LIMIT_REQUESTS"),
			Window:            viper.GetDuration("RATE_LIMIT_WINDOW"),
		},
		CORS: CORSConfig{
			AllowedOrigins: splitAndTrim(viper.GetString("CORS_ALLOWED_ORIGINS")),
		},
	}
}

func splitAndTrim(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
