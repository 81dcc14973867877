package config

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/wakala/payments/internal/events"
	"github.com/wakala/payments/internal/idempotency"
	"github.com/wakala/payments/internal/processor"
	"github.com/wakala/payments/internal/settlement"
)

const DefaultProcessorURL = "https://torch-handson-5403bd9ca59f.herokuapp.com"

// Store backends selectable with STORE_BACKEND.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendBolt   = "bolt"
	BackendRedis  = "redis"
)

type Config struct {
	Port string

	ProcessorURL        string
	AuthToken           string
	AuthHeader          string
	ProcessorTimeout    time.Duration
	BreakerFailures     uint32
	BreakerOpenDuration time.Duration

	PollInterval time.Duration
	PollTimeout  time.Duration

	StoreBackend string
	DBPath       string
	RedisAddr    string
	RedisPass    string
	RedisDB      int
	CacheSize    int
	Policy       idempotency.Policy

	KafkaBrokers []string
	KafkaTopic   string
}

// Load reads the configuration from the environment. getenv is os.Getenv
// outside of tests.
func Load(getenv func(string) string) (*Config, error) {
	cfg := &Config{
		Port:         withDefault(getenv("PORT"), "8080"),
		ProcessorURL: withDefault(getenv("PROCESSOR_BASE_URL"), DefaultProcessorURL),
		AuthToken:    getenv("PROCESSOR_AUTH_TOKEN"),
		AuthHeader:   withDefault(getenv("PROCESSOR_AUTH_HEADER"), processor.DefaultAuthHeader),
		StoreBackend: withDefault(getenv("STORE_BACKEND"), BackendMemory),
		DBPath:       withDefault(getenv("DB_PATH"), "payments.db"),
		RedisAddr:    withDefault(getenv("REDIS_ADDR"), "localhost:6379"),
		RedisPass:    getenv("REDIS_PASSWORD"),
		KafkaBrokers: events.ParseBrokers(getenv("KAFKA_BROKERS")),
		KafkaTopic:   withDefault(getenv("KAFKA_TOPIC"), events.DefaultTopic),
	}

	if cfg.AuthToken == "" {
		return nil, errors.New("PROCESSOR_AUTH_TOKEN is required")
	}

	var err error
	if cfg.ProcessorTimeout, err = duration(getenv, "PROCESSOR_TIMEOUT", processor.DefaultTimeout); err != nil {
		return nil, err
	}
	if cfg.BreakerOpenDuration, err = duration(getenv, "PROCESSOR_BREAKER_OPEN", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.PollInterval, err = duration(getenv, "POLL_INTERVAL", settlement.DefaultInterval); err != nil {
		return nil, err
	}
	if cfg.PollTimeout, err = duration(getenv, "POLL_TIMEOUT", settlement.DefaultTimeout); err != nil {
		return nil, err
	}

	failures, err := integer(getenv, "PROCESSOR_BREAKER_FAILURES", 0)
	if err != nil {
		return nil, err
	}
	cfg.BreakerFailures = uint32(failures)

	if cfg.RedisDB, err = integer(getenv, "REDIS_DB", 0); err != nil {
		return nil, err
	}
	if cfg.CacheSize, err = integer(getenv, "OUTCOME_CACHE_SIZE", 0); err != nil {
		return nil, err
	}

	if cfg.Policy, err = idempotency.ParsePolicy(getenv("IDEMPOTENCY_POLICY")); err != nil {
		return nil, err
	}

	switch cfg.StoreBackend {
	case BackendMemory, BackendSQLite, BackendBolt, BackendRedis:
	default:
		return nil, fmt.Errorf("STORE_BACKEND: unknown backend %q", cfg.StoreBackend)
	}

	return cfg, nil
}

func withDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func duration(getenv func(string) string, name string, def time.Duration) (time.Duration, error) {
	v := getenv(name)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("%s: invalid duration %q", name, v)
	}
	return d, nil
}

func integer(getenv func(string) string, name string, def int) (int, error) {
	v := getenv(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%s: invalid value %q", name, v)
	}
	return n, nil
}
