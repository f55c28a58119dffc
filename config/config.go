// Package config loads server settings from the environment (and an
// optional .env file) and builds the process logger.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

type Config struct {
	Port        string
	DBPath      string
	RedisURL    string
	LogLevel    string
	LogFormat   string
	CORSOrigins []string
	MaxUploadMB int64
	CacheTTL    time.Duration
}

// Load reads .env when present, then the environment. Flags parsed by the
// caller take precedence over both.
func Load() (*Config, error) {
	// Missing .env is normal outside development.
	_ = godotenv.Load()

	maxUpload, err := strconv.ParseInt(getEnv("MAX_UPLOAD_MB", "10"), 10, 64)
	if err != nil || maxUpload <= 0 {
		return nil, fmt.Errorf("invalid MAX_UPLOAD_MB %q", os.Getenv("MAX_UPLOAD_MB"))
	}
	ttl, err := time.ParseDuration(getEnv("CACHE_TTL", "10m"))
	if err != nil {
		return nil, fmt.Errorf("invalid CACHE_TTL: %w", err)
	}

	return &Config{
		Port:        getEnv("PORT", "8080"),
		DBPath:      getEnv("DB_PATH", "tierpay.db"),
		RedisURL:    getEnv("REDIS_URL", ""),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		LogFormat:   getEnv("LOG_FORMAT", "json"),
		CORSOrigins: splitList(getEnv("CORS_ORIGINS", "*")),
		MaxUploadMB: maxUpload,
		CacheTTL:    ttl,
	}, nil
}

// MaxUploadBytes is the multipart body limit.
func (c *Config) MaxUploadBytes() int64 {
	return c.MaxUploadMB << 20
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// NewLogger returns a logrus logger writing JSON (or text) to stdout.
func NewLogger(level, format string) (*logrus.Logger, error) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}

	log := logrus.New()
	log.SetOutput(os.Stdout)
	log.SetLevel(lvl)
	switch strings.ToLower(format) {
	case "text":
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case "json", "":
		log.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339})
	default:
		return nil, fmt.Errorf("invalid LOG_FORMAT %q", format)
	}
	return log, nil
}
