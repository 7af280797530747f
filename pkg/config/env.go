package config

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

const (
	StoreBackendMemory = "memory"
	StoreBackendEtcd   = "etcd"
	StoreBackendRedis  = "redis"

	EventsBackendMemory = "memory"
	EventsBackendRedis  = "redis"
)

type Env struct {
	AppPort     int
	AppName     string
	AppLogLevel string
	AppEnv      string
	// APIAuthToken is optional; an empty token disables API auth.
	APIAuthToken string

	StoreBackend  string
	KeyPrefix     string
	EtcdEndpoints []string
	EtcdUsername  string
	EtcdPassword  string
	EtcdTimeout   time.Duration
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	EventsBackend       string
	EventsChannelPrefix string

	LeaseDefaultTTL time.Duration
	CASMaxAttempts  int
	CASBackoffBase  time.Duration
	CASBackoffMax   time.Duration

	TopologyCacheSize int64
	TopologyCacheTTL  time.Duration
}

var (
	initialized bool
	once        sync.Once
	instance    Env
	initError   error
)

// Load reads the process configuration from the environment.
func Load() (Env, error) {
	v := viper.New()
	v.AutomaticEnv()
	return LoadFrom(v)
}

// LoadFrom reads configuration from an already populated viper instance.
func LoadFrom(v *viper.Viper) (Env, error) {
	port, err := positiveInt(v, "APP_PORT", 8080)
	if err != nil {
		return Env{}, err
	}
	etcdTimeout, err := positiveInt(v, "ETCD_TIMEOUT_SECONDS", 5)
	if err != nil {
		return Env{}, err
	}
	redisDB := 0
	if raw := str(v, "REDIS_DB"); raw != "" {
		redisDB, err = strconv.Atoi(raw)
		if err != nil || redisDB < 0 {
			return Env{}, fmt.Errorf("invalid REDIS_DB: %q", raw)
		}
	}
	leaseTTL, err := positiveInt(v, "LEASE_DEFAULT_TTL_SECONDS", 60)
	if err != nil {
		return Env{}, err
	}
	casAttempts, err := positiveInt(v, "CAS_MAX_ATTEMPTS", 5)
	if err != nil {
		return Env{}, err
	}
	backoffBase, err := positiveInt(v, "CAS_BACKOFF_BASE_MS", 10)
	if err != nil {
		return Env{}, err
	}
	backoffMax, err := positiveInt(v, "CAS_BACKOFF_MAX_MS", 200)
	if err != nil {
		return Env{}, err
	}
	if backoffMax < backoffBase {
		return Env{}, fmt.Errorf("invalid CAS_BACKOFF_MAX_MS: %d is below CAS_BACKOFF_BASE_MS %d", backoffMax, backoffBase)
	}
	cacheSize, err := positiveInt(v, "TOPOLOGY_CACHE_SIZE", 10000)
	if err != nil {
		return Env{}, err
	}
	cacheTTL, err := positiveInt(v, "TOPOLOGY_CACHE_TTL_SECONDS", 600)
	if err != nil {
		return Env{}, err
	}

	storeBackend := strings.ToLower(str(v, "STORE_BACKEND"))
	if storeBackend == "" {
		storeBackend = StoreBackendMemory
	}
	switch storeBackend {
	case StoreBackendMemory, StoreBackendEtcd, StoreBackendRedis:
	default:
		return Env{}, fmt.Errorf("invalid STORE_BACKEND: %q", storeBackend)
	}
	eventsBackend := strings.ToLower(str(v, "EVENTS_BACKEND"))
	if eventsBackend == "" {
		eventsBackend = EventsBackendMemory
	}
	switch eventsBackend {
	case EventsBackendMemory, EventsBackendRedis:
	default:
		return Env{}, fmt.Errorf("invalid EVENTS_BACKEND: %q", eventsBackend)
	}

	redisAddr := str(v, "REDIS_ADDR")
	if redisAddr == "" && (storeBackend == StoreBackendRedis || eventsBackend == EventsBackendRedis) {
		return Env{}, fmt.Errorf("invalid REDIS_ADDR: required when redis backend is selected")
	}

	endpoints := []string{"127.0.0.1:2379"}
	if raw := str(v, "ETCD_ENDPOINTS"); raw != "" {
		endpoints = parseEndpoints(raw)
	}

	appName := str(v, "APP_NAME")
	if appName == "" {
		appName = "choreographer"
	}
	keyPrefix := strings.TrimRight(str(v, "KEY_PREFIX"), "/")
	if keyPrefix == "" {
		keyPrefix = "/choreographer"
	}

	return Env{
		AppPort:             port,
		AppName:             appName,
		AppLogLevel:         str(v, "APP_LOG_LEVEL"),
		AppEnv:              str(v, "APP_ENV"),
		APIAuthToken:        str(v, "API_AUTH_TOKEN"),
		StoreBackend:        storeBackend,
		KeyPrefix:           keyPrefix,
		EtcdEndpoints:       endpoints,
		EtcdUsername:        str(v, "ETCD_USERNAME"),
		EtcdPassword:        v.GetString("ETCD_PASSWORD"),
		EtcdTimeout:         time.Duration(etcdTimeout) * time.Second,
		RedisAddr:           redisAddr,
		RedisPassword:       v.GetString("REDIS_PASSWORD"),
		RedisDB:             redisDB,
		EventsBackend:       eventsBackend,
		EventsChannelPrefix: str(v, "EVENTS_CHANNEL_PREFIX"),
		LeaseDefaultTTL:     time.Duration(leaseTTL) * time.Second,
		CASMaxAttempts:      casAttempts,
		CASBackoffBase:      time.Duration(backoffBase) * time.Millisecond,
		CASBackoffMax:       time.Duration(backoffMax) * time.Millisecond,
		TopologyCacheSize:   int64(cacheSize),
		TopologyCacheTTL:    time.Duration(cacheTTL) * time.Second,
	}, nil
}

func str(v *viper.Viper, key string) string {
	return strings.TrimSpace(v.GetString(key))
}

func positiveInt(v *viper.Viper, key string, def int) (int, error) {
	raw := str(v, key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, raw)
	}
	return n, nil
}

func parseEndpoints(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}

func InitEnv() {
	if initialized {
		log.Debug().Msg("Env already initialized!")
		return
	}
	once.Do(func() {
		viper.AutomaticEnv()
		instance, initError = Load()
		if initError != nil {
			log.Panic().Err(initError).Msg("failed to load env")
		}
		initialized = true
		log.Info().Msg("Env initialized!")
	})
}

func Instance() Env {
	InitEnv()
	if initError != nil {
		panic(initError)
	}
	return instance
}
