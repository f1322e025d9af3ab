package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string

	OTLPEndpoint string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Reference feed (IPA open data) location. When Bucket is empty the
	// feed is read from the local Path instead.
	ReferenceFeedBucket string
	ReferenceFeedObject string
	ReferenceFeedPath   string
	ReferenceFeedTTL    time.Duration

	SelfcareBaseURL string
	SelfcareAPIKey  string
	SelfcareTimeout time.Duration

	ClaimQueueKey     string
	ClaimWorkerIdle   time.Duration
	ClaimMaxAttempts  int
	StartProcessLimit int
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	environment := getenv("ENVIRONMENT", "development")

	return Config{
		AppName:     getenv("APP_SERVICE", "pecbridge"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Environment: environment,
		HTTPAddr:    getenv("HTTP_ADDR", ":8080"),

		OTLPEndpoint: getenv("OTLP_ENDPOINT", "localhost:4317"),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "pecbridge"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 25),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),

		RedisAddr:     getenv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getenv("REDIS_PASSWORD", ""),
		RedisDB:       getenvInt("REDIS_DB", 0),

		ReferenceFeedBucket: strings.TrimSpace(getenv("REFERENCE_FEED_BUCKET", "")),
		ReferenceFeedObject: getenv("REFERENCE_FEED_OBJECT", "ipa/amministrazioni.csv"),
		ReferenceFeedPath:   getenv("REFERENCE_FEED_PATH", "ipa/amministrazioni.csv"),
		ReferenceFeedTTL:    getenvDuration("REFERENCE_FEED_TTL", 15*time.Minute),

		SelfcareBaseURL: getenv("SELFCARE_BASE_URL", ""),
		SelfcareAPIKey:  getenv("SELFCARE_API_KEY", ""),
		SelfcareTimeout: getenvDuration("SELFCARE_TIMEOUT", 30*time.Second),

		ClaimQueueKey:     getenv("CLAIM_QUEUE_KEY", "pecbridge:claims"),
		ClaimWorkerIdle:   getenvDuration("CLAIM_WORKER_IDLE", 5*time.Second),
		ClaimMaxAttempts:  getenvInt("CLAIM_MAX_ATTEMPTS", 3),
		StartProcessLimit: getenvInt("START_PROCESS_LIMIT", 100),
	}
}

// Module provides the configuration to the fx graph.
var Module = fx.Module("config",
	fx.Provide(Load),
)

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return def
	}
	return parsed
}
