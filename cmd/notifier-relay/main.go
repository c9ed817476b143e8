package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/courselab/courselab/pkg/config"
	"github.com/courselab/courselab/pkg/notifier"
	"github.com/courselab/courselab/pkg/queue"
	"github.com/courselab/courselab/pkg/store/postgres"
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

	producer := queue.NewProducer(&cfg.Kafka)
	defer producer.Close()

	relay := notifier.NewRelay(
		postgres.NewInvitationRepository(db.DB()),
		postgres.NewTokenRepository(db.DB()),
		producer,
		cfg.Server.BaseURL,
		cfg.Notifier.PollInterval,
		cfg.Notifier.BatchSize,
		logger,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := relay.Run(ctx); err != nil && err != context.Canceled {
			logger.Fatal("invitation relay stopped with error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("invitation relay shutting down")
}
