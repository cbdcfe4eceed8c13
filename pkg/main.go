package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	pkg "git.solsynth.dev/hypernet/relay/pkg/internal"
	"git.solsynth.dev/hypernet/relay/pkg/internal/cache"
	"git.solsynth.dev/hypernet/relay/pkg/internal/database"
	"git.solsynth.dev/hypernet/relay/pkg/internal/grpc"
	"git.solsynth.dev/hypernet/relay/pkg/internal/http"
	"git.solsynth.dev/hypernet/relay/pkg/internal/services"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

func init() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout})
}

func main() {
	// Configure settings
	viper.AddConfigPath(".")
	viper.AddConfigPath("..")
	viper.SetConfigName("settings")
	viper.SetConfigType("toml")

	// Load settings
	if err := viper.ReadInConfig(); err != nil {
		log.Panic().Err(err).Msg("An error occurred when loading settings.")
	}

	// Connect to database
	if err := database.NewSource(); err != nil {
		log.Fatal().Err(err).Msg("An error occurred when connect to database.")
	} else if err := database.RunMigration(database.C); err != nil {
		log.Fatal().Err(err).Msg("An error occurred when running database auto migration.")
	}

	// Initialize cache
	if err := cache.NewCache(); err != nil {
		log.Fatal().Err(err).Msg("An error occurred when initializing cache.")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Realtime fan-out
	services.SetupRealtime(ctx)

	// Server
	server := http.NewServer()
	go server.Listen()

	grpcServer := grpc.NewGrpc()
	go grpcServer.WatchDependencies(ctx, 15*time.Second)
	go func() {
		if err := grpcServer.Listen(); err != nil {
			log.Fatal().Err(err).Msg("An error occurred when starting grpc server...")
		}
	}()

	// Configure timed tasks
	quartz := cron.New(cron.WithLogger(cron.VerbosePrintfLogger(&log.Logger)))
	flushSpec := viper.GetString("cron.reading_anchor_flush")
	if len(flushSpec) == 0 {
		flushSpec = "@every 30s"
	}
	if _, err := quartz.AddFunc(flushSpec, services.FlushReadingAnchor); err != nil {
		log.Fatal().Err(err).Msg("An error occurred when scheduling reading anchor flush.")
	}
	quartz.AddFunc("@every 60m", services.DoAutoDatabaseCleanup)
	quartz.Start()

	// Messages
	log.Info().Msgf("Relay v%s is started...", pkg.AppVersion)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msgf("Relay v%s is quitting...", pkg.AppVersion)

	<-quartz.Stop().Done()
	services.FlushReadingAnchor()
	_ = server.Shutdown()
	grpcServer.Stop()
	cancel()
	if services.LocalHub != nil {
		services.LocalHub.Close()
	}
}
