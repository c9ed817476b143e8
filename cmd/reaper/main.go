package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/courselab/courselab/pkg/config"
	"github.com/courselab/courselab/pkg/eventbus"
	"github.com/courselab/courselab/pkg/notifier"
	"github.com/courselab/courselab/pkg/store/postgres"
	redisclient "github.com/courselab/courselab/pkg/store/redis"
	"github.com/courselab/courselab/pkg/team"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	db, err := postgres.NewStore(&cfg.Database)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	var bus *eventbus.Bus
	if redis, err := redisclient.Connect(context.Background(), &cfg.Redis); err != nil {
		logger.Warn("redis unavailable, events disabled", zap.Error(err))
	} else {
		defer redis.Close()
		bus = eventbus.NewBus(redis)
	}

	service := team.NewService(
		postgres.NewTeamRepository(db.DB()),
		postgres.NewTokenRepository(db.DB()),
		postgres.NewDirectoryRepository(db.DB()),
		notifier.Noop{},
		postgres.NewAuditRepository(db.DB()),
		bus,
		logger,
	)
	reaper := team.NewReaper(service, cfg.Reaper.Interval, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := reaper.Run(ctx); err != nil && err != context.Canceled {
			logger.Fatal("reaper stopped with error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("reaper shutting down")
}
