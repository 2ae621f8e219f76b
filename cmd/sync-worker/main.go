package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/kcrp/rp-dashboard/internal/config"
	"github.com/kcrp/rp-dashboard/internal/domain/identity"
	"github.com/kcrp/rp-dashboard/internal/domain/live"
	"github.com/kcrp/rp-dashboard/internal/domain/membersync"
	"github.com/kcrp/rp-dashboard/internal/pkg/database"
	"github.com/kcrp/rp-dashboard/internal/pkg/discord"
	"github.com/kcrp/rp-dashboard/internal/pkg/logger"
	"github.com/kcrp/rp-dashboard/internal/pkg/metrics"
)

// sync-worker runs the membership scheduler outside the API process. Run the
// API with SYNC_ENABLED=false when this worker is deployed.
func main() {
	cfg := config.Load()
	logger.Init(logger.Config{Level: cfg.LogLevel, Environment: cfg.Env})

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	log.Info().
		Dur("interval", cfg.SyncInterval).
		Int("concurrency", cfg.SyncConcurrency).
		Msg("Starting sync-worker")

	db, err := database.NewPostgres(cfg.DatabaseURL, database.PoolOptions{
		MaxOpenConns:    cfg.SyncConcurrency + 2,
		MaxIdleConns:    cfg.SyncConcurrency,
		ConnMaxLifetime: cfg.DBConnLifetime,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer database.ClosePostgres(db)

	rdb, err := database.NewRedis(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer database.CloseRedis(rdb)

	table, err := cfg.RoleMap()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid Discord role map")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Reports and role changes reach API instances through the live channel.
	hub := live.NewHub(rdb)
	go hub.Run()
	defer hub.Shutdown()

	engine := identity.NewEngine(identity.NewRepository(db), table)
	engine.SetNotifier(hub)

	scheduler := membersync.NewScheduler(discord.NewClient(cfg.Discord()), engine, table, rdb, membersync.Options{
		Interval:    cfg.SyncInterval,
		Concurrency: cfg.SyncConcurrency,
	})
	scheduler.SetPublisher(hub)

	metricsServer := &http.Server{
		Addr:              cfg.WorkerMetricsAddr,
		Handler:           metrics.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info().Str("addr", metricsServer.Addr).Msg("Metrics listening")
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("Metrics server error")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		<-sigChan
		log.Info().Msg("Shutdown signal received")
		cancel()
	}()

	scheduler.Run(ctx)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = metricsServer.Shutdown(shutdownCtx)

	log.Info().Msg("sync-worker stopped")
}
