package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Laisky/errors/v2"
	"github.com/joho/godotenv"
)

const (
	StoreBackendNone   = ""
	StoreBackendDynamo = "dynamo"
	StoreBackendMongo  = "mongo"
	StoreBackendMemory = "memory"
)

// Config holds all application configuration
type Config struct {
	HostPort string
	DevMode  bool
	LogLevel string

	StoreBackend     string
	StoreTimeout     time.Duration
	DynamoDBEndpoint string
	DynamoDBTable    string
	MongoURI         string
	MongoDBName      string

	RedisEndpoint     string
	SQSEndpoint       string
	SQSAccessLogQueue string

	JWT JWTConfig

	AllowedWSOrigin string
}

type JWTConfig struct {
	Secret     []byte
	Issuer     string
	Audience   string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// Load reads .env.local (when present) and then the process environment.
// Variables already set in the environment win over the file.
func Load() (*Config, error) {
	if err := godotenv.Load(".env.local"); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, errors.Wrap(err, "load .env.local")
	}

	accessTTL, err := ParseDuration(getEnv("JWT_ACCESS_EXPIRES_IN", "7d"))
	if err != nil {
		return nil, errors.Wrap(err, "JWT_ACCESS_EXPIRES_IN")
	}
	refreshTTL, err := ParseDuration(getEnv("JWT_REFRESH_EXPIRES_IN", "30d"))
	if err != nil {
		return nil, errors.Wrap(err, "JWT_REFRESH_EXPIRES_IN")
	}
	storeTimeout, err := ParseDuration(getEnv("STORE_TIMEOUT", "5s"))
	if err != nil {
		return nil, errors.Wrap(err, "STORE_TIMEOUT")
	}

	cfg := &Config{
		HostPort:          getEnv("HOST_PORT", "8080"),
		DevMode:           getEnvAsBool("DEV_MODE", false),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		StoreBackend:      strings.ToLower(getEnv("STORE_BACKEND", StoreBackendNone)),
		StoreTimeout:      storeTimeout,
		DynamoDBEndpoint:  getEnv("DYNAMODB_ENDPOINT", ""),
		DynamoDBTable:     getEnv("DYNAMODB_TABLE", "Deskfolio"),
		MongoURI:          getEnv("MONGODB_URI", ""),
		MongoDBName:       getEnv("MONGODB_DB_NAME", ""),
		RedisEndpoint:     getEnv("REDIS_ENDPOINT", ""),
		SQSEndpoint:       getEnv("SQS_ENDPOINT", ""),
		SQSAccessLogQueue: getEnv("SQS_ACCESS_LOG_QUEUE", ""),
		JWT: JWTConfig{
			Secret:     []byte(os.Getenv("JWT_SECRET")),
			Issuer:     getEnv("JWT_ISSUER", "swiftserve"),
			Audience:   getEnv("JWT_AUDIENCE", "swiftserve-users"),
			AccessTTL:  accessTTL,
			RefreshTTL: refreshTTL,
		},
		AllowedWSOrigin: getEnv("ALLOWED_WS_ORIGIN", ""),
	}

	switch cfg.StoreBackend {
	case StoreBackendNone, StoreBackendDynamo, StoreBackendMemory:
	case StoreBackendMongo:
		if cfg.MongoURI == "" {
			return nil, errors.New("MONGODB_URI is required for the mongo store backend")
		}
	default:
		return nil, errors.Errorf("unsupported STORE_BACKEND %q", cfg.StoreBackend)
	}

	return cfg, nil
}

// ParseDuration accepts time.ParseDuration syntax plus a whole-day suffix,
// e.g. "7d" or "30d".
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if days, ok := strings.CutSuffix(s, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil || n < 0 {
			return 0, errors.Errorf("invalid duration %q", s)
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}

	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid duration %q", s)
	}
	return d, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	value, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return value
}
