package database

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"stockpos/internal/logger"
)

// ConnectRedis returns nil when addr is empty or the server does not answer;
// callers treat a nil client as "feature disabled".
func ConnectRedis(addr, password string, db int) *redis.Client {
	if addr == "" {
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
		MaxRetries:   3,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := client.Ping(ctx).Result(); err != nil {
		logger.Named("database").Warn("redis unavailable, activity throttling disabled", zap.String("addr", addr), zap.Error(err))
		_ = client.Close()
		return nil
	}

	logger.Named("database").Info("redis connected", zap.String("addr", addr))
	return client
}
