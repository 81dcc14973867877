package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wakala/payments/internal/idempotency"
)

func env(vars map[string]string) func(string) string {
	return func(k string) string { return vars[k] }
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(env(map[string]string{"PROCESSOR_AUTH_TOKEN": "secret"}))
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, DefaultProcessorURL, cfg.ProcessorURL)
	assert.Equal(t, "X-Torch-Auth", cfg.AuthHeader)
	assert.Equal(t, 10*time.Second, cfg.ProcessorTimeout)
	assert.Equal(t, 500*time.Millisecond, cfg.PollInterval)
	assert.Equal(t, 10*time.Second, cfg.PollTimeout)
	assert.Equal(t, uint32(0), cfg.BreakerFailures)
	assert.Equal(t, BackendMemory, cfg.StoreBackend)
	assert.Equal(t, idempotency.PolicyAll, cfg.Policy)
	assert.Empty(t, cfg.KafkaBrokers)
	assert.Equal(t, "payment.outcomes", cfg.KafkaTopic)
}

func TestLoadOverrides(t *testing.T) {
	cfg, err := Load(env(map[string]string{
		"PROCESSOR_AUTH_TOKEN":       "secret",
		"PORT":                       "9090",
		"POLL_INTERVAL":              "250ms",
		"POLL_TIMEOUT":               "3s",
		"PROCESSOR_BREAKER_FAILURES": "5",
		"STORE_BACKEND":              "sqlite",
		"OUTCOME_CACHE_SIZE":         "1024",
		"IDEMPOTENCY_POLICY":         "retry-safe",
		"KAFKA_BROKERS":              "k1:9092,k2:9092",
	}))
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, 250*time.Millisecond, cfg.PollInterval)
	assert.Equal(t, 3*time.Second, cfg.PollTimeout)
	assert.Equal(t, uint32(5), cfg.BreakerFailures)
	assert.Equal(t, BackendSQLite, cfg.StoreBackend)
	assert.Equal(t, 1024, cfg.CacheSize)
	assert.Equal(t, idempotency.PolicyRetrySafe, cfg.Policy)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
}

func TestLoadErrors(t *testing.T) {
	tests := map[string]map[string]string{
		"missing token":   {},
		"bad duration":    {"PROCESSOR_AUTH_TOKEN": "x", "POLL_TIMEOUT": "soon"},
		"zero duration":   {"PROCESSOR_AUTH_TOKEN": "x", "POLL_INTERVAL": "0s"},
		"bad integer":     {"PROCESSOR_AUTH_TOKEN": "x", "REDIS_DB": "one"},
		"negative cache":  {"PROCESSOR_AUTH_TOKEN": "x", "OUTCOME_CACHE_SIZE": "-1"},
		"unknown policy":  {"PROCESSOR_AUTH_TOKEN": "x", "IDEMPOTENCY_POLICY": "never"},
		"unknown backend": {"PROCESSOR_AUTH_TOKEN": "x", "STORE_BACKEND": "etcd"},
	}
	for name, vars := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Load(env(vars))
			assert.Error(t, err)
		})
	}
}
