package main

import (
	"github.com/Meesho/BharatMLStack/choreographer/internal/app"
	"github.com/Meesho/BharatMLStack/choreographer/pkg/config"
	"github.com/Meesho/BharatMLStack/choreographer/pkg/logger"
	"github.com/Meesho/BharatMLStack/choreographer/pkg/metric"
	"github.com/rs/zerolog/log"
	_ "go.uber.org/automaxprocs"
)

func main() {
	config.InitEnv()
	logger.Init()
	metric.Init()

	env := config.Instance()
	engine, cleanup, err := app.BuildEngine(env)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build engine")
	}
	server := app.NewServer(env.AppPort, app.BuildHandler(env, engine), cleanup)
	if err := server.Run(); err != nil {
		log.Fatal().Err(err).Msg("choreographer exited with error")
	}
}
