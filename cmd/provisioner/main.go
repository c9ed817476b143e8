package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/courselab/courselab/pkg/config"
	"github.com/courselab/courselab/pkg/eventbus"
	"github.com/courselab/courselab/pkg/provisioner"
	redisclient "github.com/courselab/courselab/pkg/store/redis"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	redis, err := redisclient.Connect(context.Background(), &cfg.Redis)
	if err != nil {
		logger.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer redis.Close()
	bus := eventbus.NewBus(redis)

	client, err := provisioner.NewKubernetesClient(&cfg.Kubernetes)
	if err != nil {
		logger.Fatal("failed to create kubernetes client", zap.Error(err))
	}

	p := provisioner.New(client, &cfg.Kubernetes, logger)
	watcher := provisioner.NewWatcher(client, cfg.Kubernetes.Namespace, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := watcher.Run(ctx); err != nil && err != context.Canceled {
			logger.Fatal("pod watcher stopped with error", zap.Error(err))
		}
	}()

	go func() {
		if err := p.Run(ctx, bus); err != nil && err != context.Canceled {
			logger.Fatal("provisioner stopped with error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("provisioner shutting down")
}
