package logger

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

var (
	once        sync.Once
	initialized = false
)

// Init configures the global zerolog logger from APP_NAME, APP_LOG_LEVEL and APP_ENV.
func Init() {
	name := viper.GetString("APP_NAME")
	level := viper.GetString("APP_LOG_LEVEL")
	if len(name) == 0 {
		name = "choreographer"
	}
	if len(level) == 0 {
		log.Warn().Msg("Log level not set, defaulting to INFO")
		level = "INFO"
	}
	InitWith(name, level, strings.EqualFold(viper.GetString("APP_ENV"), "local"))
}

// InitWith configures the logger without reading the environment. Console
// output is used for local runs, JSON otherwise.
func InitWith(appName, logLevel string, console bool) {
	if initialized {
		log.Debug().Msg("Logger already initialized!")
		return
	}
	once.Do(func() {
		level, err := ParseLevel(logLevel)
		if err != nil {
			log.Panic().Err(err).Msg("failed to init logger")
		}
		zerolog.SetGlobalLevel(level)
		zerolog.CallerMarshalFunc = func(pc uintptr, file string, line int) string {
			parts := strings.Split(file, "/")
			return parts[len(parts)-1] + ":" + strconv.Itoa(line)
		}

		base := zerolog.New(os.Stderr)
		if console {
			base = base.Output(zerolog.ConsoleWriter{
				Out:        os.Stderr,
				TimeFormat: "02-01-2006 15:04:05.000",
				FormatLevel: func(i interface{}) string {
					return strings.ToUpper(fmt.Sprintf("%-6s", i))
				},
			})
		}
		log.Logger = base.With().Timestamp().Caller().Str("service", appName).Logger()
		initialized = true
		log.Info().Msg("Logger initialized!")
	})
}

func ParseLevel(logLevel string) (zerolog.Level, error) {
	switch strings.ToUpper(strings.TrimSpace(logLevel)) {
	case "DEBUG":
		return zerolog.DebugLevel, nil
	case "INFO":
		return zerolog.InfoLevel, nil
	case "WARN":
		return zerolog.WarnLevel, nil
	case "ERROR":
		return zerolog.ErrorLevel, nil
	case "FATAL":
		return zerolog.FatalLevel, nil
	case "PANIC":
		return zerolog.PanicLevel, nil
	case "DISABLED":
		return zerolog.Disabled, nil
	default:
		return zerolog.NoLevel, fmt.Errorf("incorrect log level - %s", logLevel)
	}
}
