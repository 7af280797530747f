package metric

import (
	"sync"
	"time"

	"github.com/DataDog/datadog-go/v5/statsd"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

const defaultAddress = "localhost:8125"

type Config struct {
	// Address of the statsd/telegraf agent.
	Address      string
	SamplingRate float64
	AppName      string
	Env          string
}

var (
	mu           sync.RWMutex
	client       statsd.ClientInterface // nil until Init; every emit is then a no-op
	samplingRate = 1.0
	serviceTag   string
	once         sync.Once
)

// Init configures the client from APP_METRIC_SAMPLING_RATE, TELEGRAF_ADDRESS,
// APP_NAME and APP_ENV.
func Init() {
	cfg := Config{
		Address:      viper.GetString("TELEGRAF_ADDRESS"),
		SamplingRate: 1.0,
		AppName:      viper.GetString("APP_NAME"),
		Env:          viper.GetString("APP_ENV"),
	}
	if viper.IsSet("APP_METRIC_SAMPLING_RATE") {
		cfg.SamplingRate = viper.GetFloat64("APP_METRIC_SAMPLING_RATE")
	}
	once.Do(func() {
		if err := InitWith(cfg); err != nil {
			log.Panic().Err(err).Msg("StatsD client initialization failed")
		}
	})
}

func InitWith(cfg Config) error {
	if cfg.Address == "" {
		cfg.Address = defaultAddress
	}
	if cfg.SamplingRate <= 0 || cfg.SamplingRate > 1 {
		cfg.SamplingRate = 1.0
	}
	if cfg.Env == "" {
		log.Warn().Msg("APP_ENV is not set")
	}
	if cfg.AppName == "" {
		log.Warn().Msg("APP_NAME is not set")
	}
	globalTags := []string{
		TagAsString(TagEnv, cfg.Env),
		TagAsString(TagService, cfg.AppName),
	}
	c, err := statsd.New(cfg.Address, statsd.WithTags(globalTags))
	if err != nil {
		return err
	}
	setClient(c, cfg.SamplingRate, cfg.AppName)
	log.Info().
		Str("address", cfg.Address).
		Strs("global_tags", globalTags).
		Float64("sampling_rate", cfg.SamplingRate).
		Msg("metrics client initialized")
	return nil
}

func setClient(c statsd.ClientInterface, rate float64, appName string) {
	mu.Lock()
	defer mu.Unlock()
	client, samplingRate, serviceTag = c, rate, TagAsString(TagService, appName)
}

func current() (statsd.ClientInterface, float64, string) {
	mu.RLock()
	defer mu.RUnlock()
	return client, samplingRate, serviceTag
}

// Close flushes buffered metrics.
func Close() error {
	c, _, _ := current()
	if c == nil {
		return nil
	}
	return c.Close()
}

func Timing(name string, value time.Duration, tags []string) {
	c, rate, service := current()
	if c == nil {
		return
	}
	if err := c.Timing(name, value, append(tags, service), rate); err != nil {
		log.Warn().Err(err).Str("metric", name).Msg("statsd timing failed")
	}
}

func Count(name string, value int64, tags []string) {
	c, rate, service := current()
	if c == nil {
		return
	}
	if err := c.Count(name, value, append(tags, service), rate); err != nil {
		log.Warn().Err(err).Str("metric", name).Msg("statsd count failed")
	}
}

// Incr increases the counter by one.
func Incr(name string, tags []string) {
	Count(name, 1, tags)
}
