package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cast"
)

// ServerConfig captures all tunable parameters for the dashboard process.
// Values are primarily loaded from environment variables (a local .env is
// honored) with sane defaults so the binary can run without excessive
// setup.
type ServerConfig struct {
	HTTPAddr        string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	RedisAddr     string
	RedisPassword string
	RedisPrefix   string

	PGDSN string

	IdentityEndpoint string
	IdentityAPIKey   string

	StripeAPIKey string

	AlertStuckAfter time.Duration

	LogLevel      string
	RunMigrations bool
}

func defaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPAddr:        ":8080",
		ReadTimeout:     5 * time.Second,
		WriteTimeout:    10 * time.Second,
		IdleTimeout:     120 * time.Second,
		ShutdownTimeout: 15 * time.Second,
		RedisPrefix:     "docs",
		AlertStuckAfter: 5 * time.Minute,
		LogLevel:        "info",
	}
}

func LoadServerConfig() (ServerConfig, error) {
	_ = godotenv.Load(".env")

	cfg := defaultServerConfig()
	var errs []error

	setStringFromEnv(&cfg.HTTPAddr, "HTTP_ADDR")
	setDurationFromEnv(&cfg.ReadTimeout, "HTTP_READ_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.WriteTimeout, "HTTP_WRITE_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.IdleTimeout, "HTTP_IDLE_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.ShutdownTimeout, "HTTP_SHUTDOWN_TIMEOUT", &errs)

	cfg.RedisAddr = strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	setStringFromEnv(&cfg.RedisPrefix, "REDIS_DOC_PREFIX")

	cfg.PGDSN = os.Getenv("PG_DSN")

	cfg.IdentityEndpoint = strings.TrimSpace(os.Getenv("IDENTITY_ENDPOINT"))
	cfg.IdentityAPIKey = os.Getenv("IDENTITY_API_KEY")

	cfg.StripeAPIKey = os.Getenv("STRIPE_API_KEY")

	setDurationFromEnv(&cfg.AlertStuckAfter, "ALERT_STUCK_AFTER", &errs)

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}

	cfg.RunMigrations = strings.EqualFold(os.Getenv("MIGRATE"), "true")

	if cfg.AlertStuckAfter <= 0 {
		errs = append(errs, fmt.Errorf("ALERT_STUCK_AFTER must be > 0"))
	}
	if cfg.IdentityEndpoint == "" {
		// Login still has to point somewhere; a missing endpoint only
		// bites on the first sign-in attempt, so warn via error here.
		errs = append(errs, fmt.Errorf("IDENTITY_ENDPOINT is required"))
	}

	return cfg, errors.Join(errs...)
}

// MirrorConfig covers the kafka -> redis document mirror process.
type MirrorConfig struct {
	KafkaBrokers []string
	KafkaTopic   string
	KafkaGroup   string

	RedisAddr     string
	RedisPassword string
	RedisPrefix   string

	MetricsAddr string
	LogLevel    string
}

func LoadMirrorConfig() MirrorConfig {
	_ = godotenv.Load(".env")

	cfg := MirrorConfig{
		KafkaBrokers: []string{"localhost:9092"},
		KafkaTopic:   "document-changes",
		KafkaGroup:   "taxi-ops-mirror",
		RedisAddr:    "localhost:6379",
		RedisPrefix:  "docs",
		MetricsAddr:  ":2112",
		LogLevel:     "info",
	}

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = splitAndTrim(brokers)
	}
	setStringFromEnv(&cfg.KafkaTopic, "KAFKA_TOPIC")
	setStringFromEnv(&cfg.KafkaGroup, "KAFKA_GROUP")
	setStringFromEnv(&cfg.RedisAddr, "REDIS_ADDR")
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	setStringFromEnv(&cfg.RedisPrefix, "REDIS_DOC_PREFIX")
	setStringFromEnv(&cfg.MetricsAddr, "METRICS_ADDR")
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}

	return cfg
}

func setDurationFromEnv(target *time.Duration, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			// Bare numbers mean seconds; upstream deploy tooling emits
			// them for the mirror too.
			if secs, castErr := cast.ToInt64E(v); castErr == nil {
				*target = time.Duration(secs) * time.Second
				return
			}
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = d
	}
}

func setStringFromEnv(target *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*target = v
	}
}

func splitAndTrim(v string) []string {
	raw := strings.Split(v, ",")
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		out = append(out, r)
	}
	return out
}
