package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/arpg-timeline/discord-season-notify/api"
	"github.com/arpg-timeline/discord-season-notify/internal/bot"
	"github.com/arpg-timeline/discord-season-notify/internal/config"
	"github.com/arpg-timeline/discord-season-notify/internal/database"
	"github.com/arpg-timeline/discord-season-notify/internal/health"
)

const version = "v0.1.0"

func main() {
	if err := config.Load(); err != nil {
		log.Fatal().Err(err).Msg("Error loading configuration")
	}

	level, err := zerolog.ParseLevel(config.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	log.Info().Str("version", version).Msg("Starting aRPG season notify bot")

	if err := database.Init(config.DatabaseType, config.GetDatabaseConnectionString()); err != nil {
		log.Fatal().Err(err).Msg("Error initializing database")
	}
	defer database.Close()

	repo := database.NewRepository()

	apiAggregator := health.NewAggregator(repo, "arpg_api")
	apiAggregator.Start(30 * time.Second)

	apiClient := api.NewClient(config.APIBase, config.TokenURL, config.ClientID, config.ClientSecret, repo, repo, apiAggregator)

	seasonBot, err := bot.New(apiClient, repo)
	if err != nil {
		log.Fatal().Err(err).Msg("Error creating bot")
	}

	if err := seasonBot.Start(); err != nil {
		log.Fatal().Err(err).Msg("Error starting bot")
	}

	// Wait for a SIGINT or SIGTERM signal
	sc := make(chan os.Signal, 1)
	signal.Notify(sc, syscall.SIGINT, syscall.SIGTERM)
	<-sc

	seasonBot.Stop()
}
