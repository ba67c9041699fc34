package config

import (
	"os"
	"strconv"
)

// Config holds server configuration.
type Config struct {
	Port         string
	LogLevel     string
	LogFormat    string
	DatabaseURL  string
	JournalDSN   string
	RedisAddr    string
	JWTSecret    string
	OTLPEndpoint string
	ProfilePath  string
	RateLimit    float64
	RateBurst    int
}

// Load loads configuration from environment variables.
func Load() *Config {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "INFO"
	}

	logFormat := os.Getenv("LOG_FORMAT")
	if logFormat == "" {
		logFormat = "text"
	}

	rateLimit := 50.0
	if v, err := strconv.ParseFloat(os.Getenv("RATE_LIMIT"), 64); err == nil && v > 0 {
		rateLimit = v
	}
	rateBurst := 100
	if v, err := strconv.Atoi(os.Getenv("RATE_BURST")); err == nil && v > 0 {
		rateBurst = v
	}

	// Empty DATABASE_URL and JOURNAL_DSN keep balances and the journal in memory.
	return &Config{
		Port:         port,
		LogLevel:     logLevel,
		LogFormat:    logFormat,
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		JournalDSN:   os.Getenv("JOURNAL_DSN"),
		RedisAddr:    os.Getenv("REDIS_ADDR"),
		JWTSecret:    os.Getenv("JWT_SECRET"),
		OTLPEndpoint: os.Getenv("OTLP_ENDPOINT"),
		ProfilePath:  os.Getenv("PROFILE_PATH"),
		RateLimit:    rateLimit,
		RateBurst:    rateBurst,
	}
}
