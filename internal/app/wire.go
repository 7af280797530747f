package app

import (
	"fmt"
	"net/http"

	"github.com/Meesho/BharatMLStack/choreographer/internal/adapters/agentruntime"
	etcdadapter "github.com/Meesho/BharatMLStack/choreographer/internal/adapters/etcd"
	"github.com/Meesho/BharatMLStack/choreographer/internal/adapters/memory"
	redisadapter "github.com/Meesho/BharatMLStack/choreographer/internal/adapters/redis"
	"github.com/Meesho/BharatMLStack/choreographer/internal/api"
	"github.com/Meesho/BharatMLStack/choreographer/internal/application"
	"github.com/Meesho/BharatMLStack/choreographer/internal/docstore"
	"github.com/Meesho/BharatMLStack/choreographer/internal/ports"
	ctypes "github.com/Meesho/BharatMLStack/choreographer/internal/types"
	"github.com/Meesho/BharatMLStack/choreographer/pkg/cache"
	"github.com/Meesho/BharatMLStack/choreographer/pkg/config"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// BuildEngine connects the configured store and event backends. The
// returned cleanup closes every connection it opened; on error nothing is
// left open.
func BuildEngine(env config.Env) (*application.Engine, func(), error) {
	var closers []func() error
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				log.Warn().Err(err).Msg("error closing backend connection")
			}
		}
	}

	var redisClient *redis.Client
	redisConn := func() (*redis.Client, error) {
		if redisClient != nil {
			return redisClient, nil
		}
		c, err := redisadapter.NewClient(redisadapter.ClientConfig{
			Addr:     env.RedisAddr,
			Password: env.RedisPassword,
			DB:       env.RedisDB,
		})
		if err != nil {
			return nil, err
		}
		redisClient = c
		closers = append(closers, c.Close)
		return c, nil
	}

	var store ports.DocumentStore
	switch env.StoreBackend {
	case config.StoreBackendMemory:
		log.Warn().Msg("STORE_BACKEND=memory, documents are lost on restart")
		store = memory.NewDocumentStore()
		closers = append(closers, store.Close)
	case config.StoreBackendEtcd:
		client, err := etcdadapter.NewClient(etcdadapter.ClientConfig{
			Endpoints: env.EtcdEndpoints,
			Username:  env.EtcdUsername,
			Password:  env.EtcdPassword,
			Timeout:   env.EtcdTimeout,
		})
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		log.Info().Strs("endpoints", client.Endpoints()).Dur("etcd_timeout", env.EtcdTimeout).Msg("initialized etcd document store")
		store = etcdadapter.NewOwnedDocumentStore(client)
		closers = append(closers, store.Close)
	case config.StoreBackendRedis:
		log.Info().Str("addr", env.RedisAddr).Int("db", env.RedisDB).Msg("initializing redis document store")
		client, err := redisConn()
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		// The client closer registered by redisConn also covers the store.
		store = redisadapter.NewDocumentStore(client)
	default:
		return nil, nil, fmt.Errorf("unsupported store backend %q", env.StoreBackend)
	}

	var publisher ports.EventPublisher
	switch env.EventsBackend {
	case config.EventsBackendMemory:
		publisher = memory.NewPublisher()
	case config.EventsBackendRedis:
		client, err := redisConn()
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		publisher = redisadapter.NewPublisher(client, env.EventsChannelPrefix)
	default:
		cleanup()
		return nil, nil, fmt.Errorf("unsupported events backend %q", env.EventsBackend)
	}

	topologyCache, err := cache.NewCache(env.TopologyCacheSize, env.TopologyCacheTTL)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	closers = append(closers, func() error {
		topologyCache.Close()
		return nil
	})

	cfg := application.Config{
		DefaultLeaseTTL: env.LeaseDefaultTTL,
		CASMaxAttempts:  env.CASMaxAttempts,
		CASBackoffBase:  env.CASBackoffBase,
		CASBackoffMax:   env.CASBackoffMax,
	}
	engine, err := application.NewEngine(
		docstore.New(store, env.KeyPrefix),
		cfg,
		application.WithPublisher(publisher),
		application.WithRuntime(agentruntime.NewMockRuntime()),
		application.WithTopologyCache(topologyCache),
		application.WithStoreKind(ctypes.StoreBackend(env.StoreBackend)),
	)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	log.Info().
		Str("store_backend", env.StoreBackend).
		Str("events_backend", env.EventsBackend).
		Str("key_prefix", env.KeyPrefix).
		Msg("engine ready")
	return engine, cleanup, nil
}

// BuildHandler mounts the API behind recovery, request id, metrics and the
// optional auth check.
func BuildHandler(env config.Env, engine *application.Engine) http.Handler {
	if env.AppEnv == "prod" || env.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestIDMiddleware())
	router.Use(metricsMiddleware())
	router.Use(authMiddleware(env.APIAuthToken))
	api.NewHandler(engine).Register(router)
	return router
}
