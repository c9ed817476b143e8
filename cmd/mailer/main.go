package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/courselab/courselab/pkg/config"
	"github.com/courselab/courselab/pkg/mailer"
	"github.com/courselab/courselab/pkg/queue"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	m := mailer.New(&mailer.LogSender{Logger: logger}, logger)

	consumer := queue.NewConsumer(&cfg.Kafka, m.Handle, logger)
	defer consumer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := consumer.Run(ctx); err != nil && err != context.Canceled {
			logger.Fatal("mailer stopped with error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("mailer shutting down")
}
