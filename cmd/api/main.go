package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/kcrp/rp-dashboard/internal/config"
	"github.com/kcrp/rp-dashboard/internal/domain/admin"
	"github.com/kcrp/rp-dashboard/internal/domain/audit"
	"github.com/kcrp/rp-dashboard/internal/domain/auth"
	"github.com/kcrp/rp-dashboard/internal/domain/department"
	"github.com/kcrp/rp-dashboard/internal/domain/identity"
	"github.com/kcrp/rp-dashboard/internal/domain/live"
	"github.com/kcrp/rp-dashboard/internal/domain/membersync"
	"github.com/kcrp/rp-dashboard/internal/domain/moderation"
	"github.com/kcrp/rp-dashboard/internal/domain/player"
	"github.com/kcrp/rp-dashboard/internal/domain/session"
	"github.com/kcrp/rp-dashboard/internal/domain/system"
	"github.com/kcrp/rp-dashboard/internal/middleware"
	"github.com/kcrp/rp-dashboard/internal/pkg/database"
	"github.com/kcrp/rp-dashboard/internal/pkg/discord"
	"github.com/kcrp/rp-dashboard/internal/pkg/jwt"
	"github.com/kcrp/rp-dashboard/internal/pkg/logger"
	"github.com/kcrp/rp-dashboard/internal/pkg/metrics"
	pkgresponse "github.com/kcrp/rp-dashboard/internal/pkg/response"
	"github.com/kcrp/rp-dashboard/internal/pkg/storage"
)

const version = "1.0.0"

func main() {
	cfg := config.Load()
	logger.Init(logger.Config{Level: cfg.LogLevel, Environment: cfg.Env})

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	log.Info().
		Str("env", cfg.Env).
		Str("port", cfg.Port).
		Msg("Starting RP dashboard API")

	db, err := database.NewPostgres(cfg.DatabaseURL, database.PoolOptions{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnLifetime,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer database.ClosePostgres(db)

	if cfg.MigrateOnBoot {
		if err := database.Migrate(db); err != nil {
			log.Fatal().Err(err).Msg("Failed to apply migrations")
		}
	}

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

	discordClient := discord.NewClient(cfg.Discord())
	jwtService := jwt.NewService(cfg.JWTSecret, cfg.JWTAccessTTL, cfg.JWTRefreshTTL)

	// ---------- Identity ----------
	identityStore := identity.NewRepository(db)
	engine := identity.NewEngine(identityStore, table)

	if cfg.MasterEmail != "" && cfg.MasterPassword != "" {
		if _, err := engine.EnsureOwner(ctx, identity.OwnerSpec{
			Email:    cfg.MasterEmail,
			Username: cfg.MasterName,
			Password: cfg.MasterPassword,
		}); err != nil {
			log.Fatal().Err(err).Msg("Failed to ensure owner account")
		}
	}

	sessions := session.NewAuthority(jwtService, identityStore, session.NewRedisRefreshStore(rdb))

	// ---------- Live feed ----------
	hub := live.NewHub(rdb)
	go hub.Run()
	engine.SetNotifier(hub)

	// ---------- Services ----------
	auditService := audit.NewService(audit.NewRepository(db))

	authService := auth.NewService(engine, sessions, discordClient, auth.NewRedisLinkStore(rdb))

	playerService := player.NewService(player.NewRepository(db))
	playerService.SetPublisher(hub)

	moderationService := moderation.NewService(moderation.NewRepository(db))
	moderationService.SetPublisher(hub)

	departmentService := department.NewService(department.NewRepository(db), identityStore, auditService)
	adminService := admin.NewService(admin.NewRepository(db), engine, auditService)

	scheduler := membersync.NewScheduler(discordClient, engine, table, rdb, membersync.Options{
		Interval:    cfg.SyncInterval,
		Concurrency: cfg.SyncConcurrency,
	})
	scheduler.SetPublisher(hub)

	backupStore, err := storage.New(storage.Config{
		Driver:   cfg.BackupDriver,
		LocalDir: cfg.BackupLocalDir,
		R2: storage.R2Config{
			AccountID:       cfg.R2AccountID,
			AccessKeyID:     cfg.R2AccessKeyID,
			AccessKeySecret: cfg.R2AccessKeySecret,
			BucketName:      cfg.R2BucketName,
		},
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create backup storage")
	}

	systemService := system.NewService(system.NewRepository(db), backupStore, auditService, playerService)
	systemService.SetSyncReporter(scheduler)
	systemService.SetPublisher(hub)
	if rdb != nil {
		systemService.AddCheck("redis", redisCheck(rdb), true)
	}
	systemService.AddCheck("discord", discordClient.Ping, true)

	// ---------- Handlers ----------
	authHandler := auth.NewHandler(authService, auth.CookieConfig{
		Domain:     cfg.CookieDomain,
		Secure:     cfg.CookieSecure,
		RefreshTTL: cfg.JWTRefreshTTL,
	}, cfg.FrontendURL)
	playerHandler := player.NewHandler(playerService)
	moderationHandler := moderation.NewHandler(moderationService)
	departmentHandler := department.NewHandler(departmentService)
	adminHandler := admin.NewHandler(adminService)
	syncHandler := membersync.NewHandler(scheduler, cfg.DiscordEventsToken)
	systemHandler := system.NewHandler(systemService)
	liveHandler := live.NewHandler(hub, cfg.AllowedOrigins)

	// ---------- Middleware ----------
	authMiddleware := middleware.Auth(sessions)
	optionalAuth := middleware.OptionalAuth(sessions)

	authLimiter := middleware.NewIPRateLimiter(rate.Every(time.Second), 10, 10*time.Minute)
	go authLimiter.Run(ctx)
	rateLimit := middleware.RateLimit(authLimiter)

	// ---------- Router ----------
	r := newRouter(cfg.AllowedOrigins)

	r.Mount("/auth/discord", authHandler.DiscordRoutes(optionalAuth))
	r.Mount("/internal/discord", syncHandler.EventRoutes())
	r.Mount("/ws", liveHandler.Routes(authMiddleware))

	r.Route("/api", func(r chi.Router) {
		r.Mount("/auth", authHandler.Routes(authMiddleware, rateLimit))
		r.Mount("/account", authHandler.AccountRoutes(authMiddleware))
		r.Mount("/players", playerHandler.Routes(authMiddleware))
		r.Mount("/moderation", moderationHandler.Routes(authMiddleware))
		r.Mount("/staff", moderationHandler.StaffRoutes(authMiddleware))
		r.Mount("/departments", departmentHandler.Routes(authMiddleware))
		r.Mount("/admin/sync", syncHandler.AdminRoutes(authMiddleware))
		r.Mount("/admin", adminHandler.Routes(authMiddleware))
		r.Mount("/settings", systemHandler.SettingsRoutes(authMiddleware))
		r.Mount("/system", systemHandler.Routes(authMiddleware))
		r.Get("/stats", systemHandler.PublicStats)
	})

	if cfg.SyncEnabled {
		go scheduler.Run(ctx)
	}

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")
	cancel()
	hub.Shutdown()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited properly")
}

// newRouter applies the global middleware and the unauthenticated
// operational endpoints.
func newRouter(allowedOrigins []string) chi.Router {
	r := chi.NewRouter()

	r.Use(chimw.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recover)
	r.Use(metrics.HTTP)
	r.Use(middleware.CORSHandler(allowedOrigins))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		pkgresponse.OK(w, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	r.Handle("/metrics", metrics.Handler())

	return r
}

func redisCheck(rdb *redis.Client) system.Check {
	return func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	}
}
