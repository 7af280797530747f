package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromDefaults(t *testing.T) {
	env, err := LoadFrom(viper.New())
	require.NoError(t, err)

	assert.Equal(t, 8080, env.AppPort)
	assert.Equal(t, "choreographer", env.AppName)
	assert.Equal(t, StoreBackendMemory, env.StoreBackend)
	assert.Equal(t, EventsBackendMemory, env.EventsBackend)
	assert.Equal(t, "/choreographer", env.KeyPrefix)
	assert.Equal(t, []string{"127.0.0.1:2379"}, env.EtcdEndpoints)
	assert.Equal(t, 60*time.Second, env.LeaseDefaultTTL)
	assert.Equal(t, 5, env.CASMaxAttempts)
	assert.Equal(t, 10*time.Millisecond, env.CASBackoffBase)
	assert.Equal(t, 200*time.Millisecond, env.CASBackoffMax)
	assert.Equal(t, int64(10000), env.TopologyCacheSize)
	assert.Equal(t, 600*time.Second, env.TopologyCacheTTL)
	assert.Empty(t, env.APIAuthToken)
}

func TestLoadFromOverrides(t *testing.T) {
	v := viper.New()
	v.Set("APP_PORT", "9090")
	v.Set("STORE_BACKEND", "ETCD")
	v.Set("ETCD_ENDPOINTS", "a:2379, b:2379,")
	v.Set("KEY_PREFIX", "/tenant-a/")
	v.Set("LEASE_DEFAULT_TTL_SECONDS", "15")
	v.Set("EVENTS_BACKEND", "redis")
	v.Set("REDIS_ADDR", "localhost:6379")
	v.Set("REDIS_DB", "2")

	env, err := LoadFrom(v)
	require.NoError(t, err)
	assert.Equal(t, 9090, env.AppPort)
	assert.Equal(t, StoreBackendEtcd, env.StoreBackend)
	assert.Equal(t, []string{"a:2379", "b:2379"}, env.EtcdEndpoints)
	assert.Equal(t, "/tenant-a", env.KeyPrefix)
	assert.Equal(t, 15*time.Second, env.LeaseDefaultTTL)
	assert.Equal(t, EventsBackendRedis, env.EventsBackend)
	assert.Equal(t, 2, env.RedisDB)
}

func TestLoadFromRejectsInvalidValues(t *testing.T) {
	tests := map[string]map[string]string{
		"bad port":            {"APP_PORT": "zero"},
		"negative ttl":        {"LEASE_DEFAULT_TTL_SECONDS": "-1"},
		"unknown store":       {"STORE_BACKEND": "dynamo"},
		"unknown events":      {"EVENTS_BACKEND": "kafka"},
		"redis without addr":  {"STORE_BACKEND": "redis"},
		"backoff max < base":  {"CAS_BACKOFF_BASE_MS": "50", "CAS_BACKOFF_MAX_MS": "20"},
		"negative redis db":   {"REDIS_DB": "-3"},
		"zero cas attempts":   {"CAS_MAX_ATTEMPTS": "0"},
	}
	for name, values := range tests {
		t.Run(name, func(t *testing.T) {
			v := viper.New()
			for k, val := range values {
				v.Set(k, val)
			}
			_, err := LoadFrom(v)
			assert.Error(t, err)
		})
	}
}
