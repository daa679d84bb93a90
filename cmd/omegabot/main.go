package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/omegabot/omegabot/internal/bot"
	"github.com/omegabot/omegabot/internal/config"
	"github.com/omegabot/omegabot/internal/database"
	"github.com/omegabot/omegabot/internal/guildstore"
	"github.com/omegabot/omegabot/internal/health"
)

const version = "v2.0.0"

func main() {
	config.Load()

	log.Printf("Welcome to omegabot, version: %s", version)

	err := database.Init(config.DatabaseType, config.GetDatabaseConnectionString())
	if err != nil {
		log.Fatalf("Error initializing database: %v", err)
	}
	defer database.Close()

	repo := database.NewRepository()
	store := guildstore.New(repo, config.LegacyImportDir)

	stats := health.NewAggregator(repo)
	stats.Start(time.Duration(config.StatsFlushIntervalSeconds) * time.Second)

	engine, err := bot.New(repo, store, stats)
	if err != nil {
		log.Fatalf("Error creating bot: %v", err)
	}

	err = engine.Start()
	if err != nil {
		log.Fatalf("Error starting bot: %v", err)
	}

	// Wait for a SIGINT or SIGTERM signal
	sc := make(chan os.Signal, 1)
	signal.Notify(sc, syscall.SIGINT, syscall.SIGTERM)
	<-sc

	engine.Stop()
	stats.FlushToDB()
}
