package queue

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/linguacast/api/internal/config"
)

// NewConnection opens the shared Redis connection pool. One pool serves the
// broker client, the inspector, job records and admission state; callers
// pass it by handle, never through package globals.
func NewConnection(cfg *config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     20,
		MinIdleConns: 2,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis unreachable at %s: %w", cfg.Addr, err)
	}
	return client, nil
}

// RedisOpt builds the asynq connection options from the same config the
// shared pool uses, so broker and records always point at the same instance.
func RedisOpt(cfg *config.RedisConfig) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
}
