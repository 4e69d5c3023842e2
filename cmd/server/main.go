package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/freeeve/cave-skirmish/internal/config"
	"github.com/freeeve/cave-skirmish/internal/handler"
	"github.com/freeeve/cave-skirmish/internal/logger"
	"github.com/freeeve/cave-skirmish/internal/repository"
	"github.com/freeeve/cave-skirmish/internal/repository/postgres"
	redisrepo "github.com/freeeve/cave-skirmish/internal/repository/redis"
	"github.com/freeeve/cave-skirmish/internal/service"
)

func main() {
	logger.Init()
	cfg := config.Load()
	log.Info().
		Str("databaseURL", cfg.DatabaseURL).
		Int("calibrationWorkers", cfg.CalibrationWorkers).
		Int("maxGridCells", cfg.MaxGridCells).
		Msg("Config loaded")

	// Database
	db, err := postgres.Connect(context.Background(), cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Database connection failed")
	}
	defer db.Close()

	deps := map[string]handler.Pinger{"postgres": handler.PingFunc(db.PingContext)}

	// Redis outcome cache; the service runs uncached without it.
	var cache repository.OutcomeCache
	redisClient, err := redisrepo.NewClient(cfg.RedisURL, cfg.CacheTTL)
	if err != nil {
		log.Warn().Err(err).Msg("Redis unavailable, outcome cache disabled")
	} else {
		defer redisClient.Close()
		cache = redisClient
		deps["redis"] = redisClient
	}

	// WebSocket hub
	wsHub := handler.NewHub()

	// Services
	simSvc := service.NewSimulationService(postgres.NewSimulationRepo(db), cache, wsHub, service.Config{
		CalibrationWorkers: cfg.CalibrationWorkers,
		MaxGridCells:       cfg.MaxGridCells,
	})

	// Handlers
	router := handler.NewRouter(
		handler.NewSimulationHandler(simSvc),
		handler.NewWSHandler(wsHub, cfg.AllowedOrigins),
		handler.NewHealthHandler(wsHub, deps),
		cfg.AllowedOrigins,
	)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.Port).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server shutdown error")
	}

	// Cancel background calibrations and let them record their final state.
	simSvc.Shutdown()
	log.Info().Msg("Server stopped")
}
