package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	AuthToken       = "token"
	AuthCertificate = "certificate"

	EnvironmentDevelopment = "development"
	EnvironmentProduction  = "production"
)

// Config holds apns service configuration loaded from the environment.
type Config struct {
	AppName             string
	LogLevel            string
	LogFormat           string
	HTTPPort            string
	RabbitURL           string
	Exchange            string
	RoutingKey          string
	PushQueue           string
	DeadLetterQueue     string
	PrefetchCount       int
	WorkerCount         int
	DatabaseURL         string
	RedisURL            string
	StatusTable         string
	DeliveryTable       string
	TokenSuppressTTL    time.Duration
	ProviderTimeout     time.Duration
	RetryMaxAttempts    int
	RetryInitialBackoff time.Duration
	RetryMaxBackoff     time.Duration
	APNS                APNSConfig
}

// APNSConfig selects the gateway and how the service authenticates to it.
type APNSConfig struct {
	Environment       string
	AuthMethod        string
	TeamID            string
	KeyID             string
	KeyPath           string
	SignatureEncoding string
	TokenMaxAge       time.Duration
	CertPath          string
	CertKeyPath       string
	CertPassphrase    string
	CAPath            string
	DefaultTopic      string
	RetryLimit        int
	RetryInterval     time.Duration
}

// Load loads configuration and performs basic validation.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		AppName:             getEnv("APP_NAME", "apns_service"),
		LogLevel:            getEnv("LOG_LEVEL", "info"),
		LogFormat:           getEnv("LOG_FORMAT", "text"),
		HTTPPort:            getEnv("HTTP_PORT", "8083"),
		RabbitURL:           getEnv("RABBITMQ_URL", ""),
		Exchange:            getEnv("PUSH_EXCHANGE", "notifications.direct"),
		RoutingKey:          getEnv("PUSH_ROUTING_KEY", "push"),
		PushQueue:           getEnv("PUSH_QUEUE", "push.queue"),
		DeadLetterQueue:     getEnv("PUSH_DLQ", "failed.queue"),
		PrefetchCount:       getEnvAsInt("PUSH_PREFETCH", 100),
		WorkerCount:         getEnvAsInt("WORKER_COUNT", 5),
		DatabaseURL:         getEnv("DATABASE_URL", ""),
		RedisURL:            getEnv("REDIS_URL", ""),
		StatusTable:         getEnv("STATUS_TABLE", "notification_statuses"),
		DeliveryTable:       getEnv("DELIVERY_TABLE", "push_deliveries"),
		TokenSuppressTTL:    getEnvAsDuration("TOKEN_SUPPRESS_TTL", 30*24*time.Hour),
		ProviderTimeout:     getEnvAsDuration("PROVIDER_TIMEOUT", 20*time.Second),
		RetryMaxAttempts:    getEnvAsInt("RETRY_MAX_ATTEMPTS", 4),
		RetryInitialBackoff: getEnvAsDuration("RETRY_INITIAL_BACKOFF", time.Second),
		RetryMaxBackoff:     getEnvAsDuration("RETRY_MAX_BACKOFF", 15*time.Second),
		APNS: APNSConfig{
			Environment:       strings.ToLower(getEnv("APNS_ENVIRONMENT", EnvironmentDevelopment)),
			AuthMethod:        strings.ToLower(getEnv("APNS_AUTH_METHOD", AuthToken)),
			TeamID:            getEnv("APNS_TEAM_ID", ""),
			KeyID:             getEnv("APNS_KEY_ID", ""),
			KeyPath:           getEnv("APNS_KEY_PATH", ""),
			SignatureEncoding: strings.ToLower(getEnv("APNS_SIGNATURE_ENCODING", "der")),
			TokenMaxAge:       getEnvAsDuration("APNS_TOKEN_MAX_AGE", 50*time.Minute),
			CertPath:          getEnv("APNS_CERT_PATH", ""),
			CertKeyPath:       getEnv("APNS_CERT_KEY_PATH", ""),
			CertPassphrase:    getEnv("APNS_CERT_PASSPHRASE", ""),
			CAPath:            getEnv("APNS_CA_PATH", ""),
			DefaultTopic:      getEnv("APNS_DEFAULT_TOPIC", ""),
			RetryLimit:        getEnvAsInt("APNS_RETRY_LIMIT", 3),
			RetryInterval:     getEnvAsDuration("APNS_RETRY_INTERVAL", 500*time.Millisecond),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var missing []string
	if c.RabbitURL == "" {
		missing = append(missing, "RABBITMQ_URL")
	}
	if c.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}
	missing = append(missing, c.APNS.missing()...)
	if len(missing) > 0 {
		return fmt.Errorf("missing required environment variables: %v", missing)
	}
	return c.APNS.Validate()
}

func (a APNSConfig) missing() []string {
	var missing []string
	switch a.AuthMethod {
	case AuthToken:
		if a.TeamID == "" {
			missing = append(missing, "APNS_TEAM_ID")
		}
		if a.KeyID == "" {
			missing = append(missing, "APNS_KEY_ID")
		}
		if a.KeyPath == "" {
			missing = append(missing, "APNS_KEY_PATH")
		}
	case AuthCertificate:
		if a.CertPath == "" {
			missing = append(missing, "APNS_CERT_PATH")
		}
	}
	return missing
}

// Validate checks the enumerated settings.
func (a APNSConfig) Validate() error {
	switch a.Environment {
	case EnvironmentDevelopment, EnvironmentProduction:
	default:
		return fmt.Errorf("APNS_ENVIRONMENT must be %s or %s, got %q", EnvironmentDevelopment, EnvironmentProduction, a.Environment)
	}
	switch a.AuthMethod {
	case AuthToken, AuthCertificate:
	default:
		return fmt.Errorf("APNS_AUTH_METHOD must be %s or %s, got %q", AuthToken, AuthCertificate, a.AuthMethod)
	}
	switch a.SignatureEncoding {
	case "der", "jose":
	default:
		return fmt.Errorf("APNS_SIGNATURE_ENCODING must be der or jose, got %q", a.SignatureEncoding)
	}
	if missing := a.missing(); len(missing) > 0 {
		return fmt.Errorf("missing required apns settings: %v", missing)
	}
	return nil
}

func getEnv(key, def string) string {
	value, ok := os.LookupEnv(key)
	if !ok {
		return def
	}
	return value
}

func getEnvAsInt(key string, def int) int {
	if value, ok := os.LookupEnv(key); ok {
		i, err := strconv.Atoi(value)
		if err != nil {
			log.Printf("invalid int for %s, using default %d: %v", key, def, err)
			return def
		}
		return i
	}
	return def
}

func getEnvAsDuration(key string, def time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		d, err := time.ParseDuration(value)
		if err != nil {
			log.Printf("invalid duration for %s, using default %s: %v", key, def, err)
			return def
		}
		return d
	}
	return def
}
