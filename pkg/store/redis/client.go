package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/courselab/courselab/pkg/config"
)

// Connect dials the event fabric and verifies it is reachable before
// anything subscribes. A single address yields a plain client, several
// addresses a cluster client.
func Connect(ctx context.Context, cfg *config.RedisConfig) (redis.UniversalClient, error) {
	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    cfg.Addresses,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}
