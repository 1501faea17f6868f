package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	// Server configuration
	Port        string
	Environment string

	// Store configuration
	StoreDSN string
	// StrictJoin enables the partial unique index on waiting display names,
	// turning the advisory duplicate-name check into a hard constraint.
	StrictJoin bool

	// Redis configuration
	RedisURL      string
	RedisPassword string
	RedisDB       int

	// PubNub configuration
	PubNubPublishKey   string
	PubNubSubscribeKey string
	PubNubSecretKey    string

	// Queue code generation
	CodeLength   int
	CodeAttempts int

	// Sync configuration
	RefreshDebounce time.Duration

	// Address lookup configuration
	LookupBaseURL  string
	LookupTimeout  time.Duration
	LookupMinChars int
	LookupLimit    int

	// Rate limiting
	JoinRateLimit  int
	JoinRateWindow time.Duration

	// Monitoring
	EnableMetrics   bool
	MetricsInterval time.Duration
}

func LoadConfig() *Config {
	return &Config{
		// Server
		Port:        getEnv("PORT", "8090"),
		Environment: getEnv("ENVIRONMENT", "development"),

		// Store
		StoreDSN:   getEnv("STORE_DSN", "queueline.db"),
		StrictJoin: getEnvAsBool("STRICT_JOIN", true),

		// Redis
		RedisURL:      getEnv("REDIS_URL", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),

		// PubNub
		PubNubPublishKey:   getEnv("PUBNUB_PUBLISH_KEY", ""),
		PubNubSubscribeKey: getEnv("PUBNUB_SUBSCRIBE_KEY", ""),
		PubNubSecretKey:    getEnv("PUBNUB_SECRET_KEY", ""),

		// Queue codes
		CodeLength:   getEnvAsInt("QUEUE_CODE_LENGTH", 6),
		CodeAttempts: getEnvAsInt("QUEUE_CODE_ATTEMPTS", 5),

		// Sync
		RefreshDebounce: getEnvAsDuration("REFRESH_DEBOUNCE", "150ms"),

		// Address lookup
		LookupBaseURL:  getEnv("LOOKUP_BASE_URL", "https://nominatim.openstreetmap.org/search"),
		LookupTimeout:  getEnvAsDuration("LOOKUP_TIMEOUT", "5s"),
		LookupMinChars: getEnvAsInt("LOOKUP_MIN_CHARS", 3),
		LookupLimit:    getEnvAsInt("LOOKUP_LIMIT", 5),

		// Rate limiting
		JoinRateLimit:  getEnvAsInt("JOIN_RATE_LIMIT", 10),
		JoinRateWindow: getEnvAsDuration("JOIN_RATE_WINDOW", "1m"),

		// Monitoring
		EnableMetrics:   getEnvAsBool("ENABLE_METRICS", true),
		MetricsInterval: getEnvAsDuration("METRICS_INTERVAL", "30s"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := getEnv(key, defaultValue)
	if duration, err := time.ParseDuration(valueStr); err == nil {
		return duration
	}
	// If parsing fails, try to parse default value
	duration, _ := time.ParseDuration(defaultValue)
	return duration
}
