// Package main is the entry point for the pollquest server.
//
// main only reads configuration, builds dependencies and starts the server;
// all behaviour lives under internal/.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/sakif/pollquest/internal/auth"
	"github.com/sakif/pollquest/internal/cache"
	"github.com/sakif/pollquest/internal/config"
	"github.com/sakif/pollquest/internal/metrics"
	"github.com/sakif/pollquest/internal/model"
	"github.com/sakif/pollquest/internal/repository/sqlite"
	"github.com/sakif/pollquest/internal/server"
	"github.com/sakif/pollquest/internal/service"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

// leaderboardCacheItems bounds the cached leaderboard pages, one per
// distinct limit.
const leaderboardCacheItems = 128

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "pollquest:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	loader := config.NewLoader()

	root := &cobra.Command{
		Use:           "pollquest",
		Short:         "Polling service with XP and achievements",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := config.LoadDotEnv(".env"); err != nil {
				return err
			}
			if err := loader.BindFlags(cmd.Flags()); err != nil {
				return err
			}
			cfg, err := loader.Load()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
	config.RegisterFlags(root.Flags())

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	})
	return root
}

func serve(ctx context.Context, cfg config.Config) error {
	level, err := config.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))

	if cfg.DBPath != ":memory:" {
		dbDir := filepath.Dir(cfg.DBPath)
		if err := os.MkdirAll(dbDir, 0o755); err != nil {
			return fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sqlite.New(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	var board *cache.Local[[]model.UserProfile]
	if cfg.LeaderboardTTL > 0 {
		board, err = cache.NewLocal[[]model.UserProfile](leaderboardCacheItems, cfg.LeaderboardTTL)
		if err != nil {
			return fmt.Errorf("create leaderboard cache: %w", err)
		}
		defer board.Close()
	} else {
		logger.Info("leaderboard cache disabled")
	}

	passwords, err := auth.NewPasswordService(cfg.BcryptCost)
	if err != nil {
		return fmt.Errorf("checking bcrypt cost: %w", err)
	}

	reports := service.NewReportingService(db, board, m, logger)
	engine := service.NewProgressionEngine(db, m, logger, reports)
	accounts := service.NewAuthService(db, passwords, logger)

	srv := server.New(server.Config{
		Port:        cfg.Port,
		CORSOrigins: cfg.CORSOrigins,
	}, logger, server.Deps{
		Store:    db,
		Gatherer: reg,
		Metrics:  m,
		Accounts: accounts,
		Engine:   engine,
		Reports:  reports,
	})

	logger.Info("configuration loaded",
		slog.String("database", cfg.DBPath),
		slog.String("logLevel", cfg.LogLevel),
		slog.Duration("leaderboardTTL", cfg.LeaderboardTTL),
		slog.String("version", version),
	)

	return srv.Run(ctx)
}
