// Command dashctl is the operator CLI for the RP dashboard.
//
// Subcommands:
//
//	migrate up|down   apply or roll back database migrations
//	sync              run one membership sync pass, or trigger the scheduler
//	users list        list dashboard users
//	users grant       add roles to a user
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/kcrp/rp-dashboard/internal/config"
	"github.com/kcrp/rp-dashboard/internal/domain/admin"
	"github.com/kcrp/rp-dashboard/internal/domain/audit"
	"github.com/kcrp/rp-dashboard/internal/domain/identity"
	"github.com/kcrp/rp-dashboard/internal/domain/membersync"
	"github.com/kcrp/rp-dashboard/internal/pkg/database"
	"github.com/kcrp/rp-dashboard/internal/pkg/discord"
	"github.com/kcrp/rp-dashboard/internal/pkg/logger"
)

// deps are the services commands run against.
type deps struct {
	db        *sqlx.DB
	engine    *identity.Engine
	admin     *admin.Service
	scheduler *membersync.Scheduler
	hasRedis  bool
}

type connector func(ctx context.Context) (*deps, func(), error)

func main() {
	root := newRootCmd(connect)
	if err := root.Execute(); err != nil {
		log.Error().Err(err).Msg("Command failed")
		os.Exit(1)
	}
}

func newRootCmd(open connector) *cobra.Command {
	root := &cobra.Command{
		Use:           "dashctl",
		Short:         "Operator tools for the RP dashboard",
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	root.AddCommand(
		migrateCmd(open),
		syncCmd(open),
		usersCmd(open),
	)
	return root
}

func connect(ctx context.Context) (*deps, func(), error) {
	cfg := config.Load()
	logger.Init(logger.Config{Level: cfg.LogLevel, Environment: cfg.Env})

	table, err := cfg.RoleMap()
	if err != nil {
		return nil, nil, fmt.Errorf("role map: %w", err)
	}

	db, err := database.NewPostgres(cfg.DatabaseURL, database.PoolOptions{
		MaxOpenConns:    cfg.SyncConcurrency + 1,
		MaxIdleConns:    1,
		ConnMaxLifetime: cfg.DBConnLifetime,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("database: %w", err)
	}

	rdb, err := database.NewRedis(cfg.RedisURL)
	if err != nil {
		log.Warn().Err(err).Msg("Redis unavailable, continuing without it")
		rdb = nil
	}

	store := identity.NewRepository(db)
	engine := identity.NewEngine(store, table)
	auditService := audit.NewService(audit.NewRepository(db))

	d := &deps{
		db:     db,
		engine: engine,
		admin:  admin.NewService(admin.NewRepository(db), engine, auditService),
		scheduler: membersync.NewScheduler(discord.NewClient(cfg.Discord()), engine, table, rdb, membersync.Options{
			Interval:    cfg.SyncInterval,
			Concurrency: cfg.SyncConcurrency,
		}),
		hasRedis: rdb != nil,
	}
	closeAll := func() {
		database.CloseRedis(rdb)
		database.ClosePostgres(db)
	}
	return d, closeAll, nil
}

func withDeps(open connector, run func(cmd *cobra.Command, d *deps, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		d, closeAll, err := open(cmd.Context())
		if err != nil {
			return err
		}
		defer closeAll()
		return run(cmd, d, args)
	}
}
