package redis_client

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const pingTimeout = 5 * time.Second

// NewRedisClient connects to the Redis instance that carries auction events
// and settlement locks. The returned client has already answered a PING.
func NewRedisClient(ctx context.Context, host string, port uint16) (*redis.Client, error) {
	rc := redis.NewClient(Options(host, port))

	if err := Ping(ctx, rc); err != nil {
		_ = rc.Close()
		return nil, err
	}
	return rc, nil
}

// Options sizes the pool to the core count, capped at 512.
func Options(host string, port uint16) *redis.Options {
	return &redis.Options{
		Addr:     fmt.Sprintf("%s:%d", host, port),
		PoolSize: min(runtime.NumCPU()*8, 512),
	}
}

func Ping(ctx context.Context, rc *redis.Client) error {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := rc.Ping(ctx).Err(); err != nil {
		zap.L().Error("redis.connect_failed", zap.String("addr", rc.Options().Addr), zap.Error(err))
		return fmt.Errorf("redis connection failed: %w", err)
	}
	return nil
}
