package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "8090", cfg.Port)
	assert.Equal(t, BackendMemory, cfg.LedgerBackend)
	assert.Equal(t, 24*time.Hour, cfg.SessionTTL)
	assert.Equal(t, 10, cfg.PurchaseRateLimit)
	assert.Equal(t, time.Minute, cfg.RateLimitWindow)
	assert.True(t, cfg.EnableMetrics)
	assert.False(t, cfg.PubNubEnabled())
}

func TestLoadConfig_FromEnvironment(t *testing.T) {
	t.Setenv("PORT", "8080")
	t.Setenv("LEDGER_BACKEND", "redis")
	t.Setenv("REDIS_DB", "2")
	t.Setenv("SESSION_TTL", "30m")
	t.Setenv("PUBNUB_PUBLISH_KEY", "pub-c-1")
	t.Setenv("PUBNUB_SUBSCRIBE_KEY", "sub-c-1")
	t.Setenv("SEED_SAMPLE_DATA", "true")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, BackendRedis, cfg.LedgerBackend)
	assert.Equal(t, 2, cfg.RedisDB)
	assert.Equal(t, 30*time.Minute, cfg.SessionTTL)
	assert.True(t, cfg.PubNubEnabled())
	assert.True(t, cfg.SeedSampleData)
}

func TestLoadConfig_Rejects(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"unknown backend", map[string]string{"LEDGER_BACKEND": "postgres"}},
		{"default secret in production", map[string]string{"ENVIRONMENT": "production"}},
		{"malformed duration", map[string]string{"SESSION_TTL": "soon"}},
		{"zero session ttl", map[string]string{"SESSION_TTL": "0s"}},
		{"negative rate limit", map[string]string{"PURCHASE_RATE_LIMIT": "-1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := LoadConfig()
			assert.Error(t, err)
		})
	}
}
