package config

import (
	"errors"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

const defaultDSN = "host=localhost user=postgres password=postgres dbname=konsinyasi port=5432 sslmode=disable"

type Config struct {
	HTTPPort       string
	DatabaseDSN    string
	JWTSecret      string
	CORSOrigins    string
	UploadPath     string // local photo folder, ignored when GCSBucket is set
	PublicBaseURL  string
	GCSBucket      string
	RedisAddress   string // empty -> in-process consignment locks
	LogLevel       string
	MaxOpenConns   int
	MaxIdleConns   int
	DefaultPerPage int
	MaxUploadBytes int64
}

func Load() (*Config, error) {
	// .env is optional; real environment wins
	_ = godotenv.Load()

	cfg := &Config{
		HTTPPort:       getEnv("HTTP_PORT", "8080"),
		DatabaseDSN:    getEnv("DATABASE_DSN", defaultDSN),
		JWTSecret:      getEnv("JWT_SECRET", ""),
		CORSOrigins:    getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),
		UploadPath:     getEnv("UPLOAD_PATH", "./uploads"),
		PublicBaseURL:  strings.TrimRight(getEnv("PUBLIC_BASE_URL", "http://localhost:8080"), "/"),
		GCSBucket:      getEnv("GCS_BUCKET", ""),
		RedisAddress:   getEnv("REDIS_ADDRESS", ""),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		MaxOpenConns:   intFromEnv("DB_MAX_OPEN_CONNS", 25),
		MaxIdleConns:   intFromEnv("DB_MAX_IDLE_CONNS", 10),
		DefaultPerPage: intFromEnv("DEFAULT_PAGE_SIZE", 15),
		MaxUploadBytes: int64(intFromEnv("MAX_UPLOAD_BYTES", 2<<20)),
	}

	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}
	if len(cfg.JWTSecret) < 32 {
		return nil, errors.New("JWT_SECRET must be at least 32 characters")
	}
	if cfg.DefaultPerPage <= 0 {
		cfg.DefaultPerPage = 15
	}

	return cfg, nil
}

// Warn reports settings that are fine for development but not for production.
func (c *Config) Warn(logger *logrus.Logger) {
	if c.DatabaseDSN == defaultDSN {
		logger.Warn("DATABASE_DSN is using the default value, set your own Postgres connection for production")
	}
	if c.CORSOrigins == "http://localhost:5173" {
		logger.Warn("CORS_ALLOWED_ORIGINS is using the default value, set your own domain for production")
	}
	if c.RedisAddress == "" {
		logger.Info("REDIS_ADDRESS not set, consignment locks are process-local")
	}
}

// Origins splits the comma separated CORS list.
func (c *Config) Origins() []string {
	parts := strings.Split(c.CORSOrigins, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func intFromEnv(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
