// Package main is the entry point for the mardatbot market-data service.
// It wires the authenticated market-data client, the warm in-memory caches,
// the background refresher and the HTTP read surface, then runs until
// shutdown.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/valer-ix/mardatbot/internal/cache"
	"github.com/valer-ix/mardatbot/internal/clients/exante"
	"github.com/valer-ix/mardatbot/internal/clients/fmp"
	"github.com/valer-ix/mardatbot/internal/config"
	"github.com/valer-ix/mardatbot/internal/scheduler"
	"github.com/valer-ix/mardatbot/internal/server"
	"github.com/valer-ix/mardatbot/internal/services"
	"github.com/valer-ix/mardatbot/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{Level: "info", Pretty: true})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})

	log.Info().Msg("Starting mardatbot")

	// Clients. All Exante calls go through one authenticated chokepoint; the
	// fundamentals client carries its own pull-through cache.
	tokens := exante.NewTokenManager(cfg.Exante.ClientID, cfg.Exante.AppID, cfg.Exante.SharedKey)
	marketClient := exante.NewClient(cfg.Exante.BaseURL, tokens, log)
	fundamentalsClient := fmp.NewClient(cfg.Fundamentals.BaseURL, cfg.Fundamentals.APIKey, cfg.Fundamentals.TTL, log)

	// Caches, constructed once and handed to every reader by reference.
	catalogs := cache.NewCatalogCache()
	feed := cache.NewFeedCache()

	// Refresher construction seeds the feed cache synchronously, so a dead
	// upstream is caught here rather than after startup.
	refresher, err := scheduler.New(marketClient, catalogs, feed, scheduler.Config{
		Interval:      cfg.Refresh.Interval,
		RetryInterval: cfg.Refresh.RetryInterval,
		BatchSize:     cfg.Refresh.BatchSize,
	}, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize refresher")
	}
	refresher.Start()

	// Daily housekeeping.
	cronScheduler := scheduler.NewScheduler(log)
	if err := cronScheduler.AddJob("@daily", fmp.NewSweepJob(fundamentalsClient, log)); err != nil {
		log.Fatal().Err(err).Msg("Failed to register fundamentals sweep job")
	}
	cronScheduler.Start()

	marketData := services.NewMarketDataService(marketClient, fundamentalsClient, catalogs, feed, log)

	srv := server.New(server.Config{
		Port:       cfg.Port,
		DevMode:    cfg.DevMode,
		Log:        log,
		MarketData: marketData,
	})

	go func() {
		if err := srv.Start(); err != nil {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down...")

	refresher.Stop()
	cronScheduler.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}
