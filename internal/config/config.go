package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port     string
	Env      string
	LogLevel string

	DatabaseURL   string
	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	// Clinic scheduling
	ClinicTimezone       string
	DefaultDailyCapacity int
	BookingHorizonDays   int
	CapacityCacheTTL     time.Duration

	// Staff auth
	StaffUsername     string
	StaffPasswordHash string
	StaffTokenSecret  string
	StaffTokenTTL     time.Duration
	PatientTokenTTL   time.Duration

	// HTTP
	CORSAllowedOrigins []string
	PatientRateLimit   float64
	PatientRateBurst   int
	MetricsToken       string
	MaxUploadBytes     int64

	// Media storage (S3 compatible)
	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string
	MediaBucket         string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:     getEnv("PORT", "8080"),
		Env:      getEnv("ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		DatabaseURL:   getEnv("DATABASE_URL", ""),
		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		ClinicTimezone:       getEnv("CLINIC_TIMEZONE", "Africa/Cairo"),
		DefaultDailyCapacity: getEnvAsInt("DEFAULT_DAILY_CAPACITY", 10),
		BookingHorizonDays:   getEnvAsInt("BOOKING_HORIZON_DAYS", 30),
		CapacityCacheTTL:     getEnvAsDuration("CAPACITY_CACHE_TTL", 5*time.Minute),

		StaffUsername:     getEnv("STAFF_USERNAME", "admin"),
		StaffPasswordHash: getEnv("STAFF_PASSWORD_HASH", ""),
		StaffTokenSecret:  getEnv("STAFF_TOKEN_SECRET", ""),
		StaffTokenTTL:     getEnvAsDuration("STAFF_TOKEN_TTL", 12*time.Hour),
		PatientTokenTTL:   getEnvAsDuration("PATIENT_TOKEN_TTL", 30*time.Minute),

		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS", nil),
		PatientRateLimit:   getEnvAsFloat("PATIENT_RATE_LIMIT", 2),
		PatientRateBurst:   getEnvAsInt("PATIENT_RATE_BURST", 10),
		MetricsToken:       getEnv("METRICS_TOKEN", ""),
		MaxUploadBytes:     int64(getEnvAsInt("MAX_UPLOAD_BYTES", 16<<20)),

		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),
		MediaBucket:         getEnv("MEDIA_BUCKET", ""),
	}
}

// SecureCookies reports whether session cookies need the Secure flag.
func (c *Config) SecureCookies() bool {
	return c.Env != "development" && c.Env != "test"
}

// ClinicLocation resolves the configured clinic time zone, falling back to UTC.
func (c *Config) ClinicLocation() *time.Location {
	loc, err := time.LoadLocation(c.ClinicTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
