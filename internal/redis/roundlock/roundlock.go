// Package roundlock keeps reaper replicas from settling the same auction at
// the same time. Settlement stays correct without it; the lock only saves
// wasted transactions.
package roundlock

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Locker interface {
	// TryLock returns a release func when the lock was taken, nil otherwise.
	TryLock(ctx context.Context, auctionID string) (release func(), ok bool)
}

func key(auctionID string) string { return "auc_lock:" + auctionID }

type RedisLocker struct {
	rdc   *redis.Client
	ttl   time.Duration
	token func() string
}

func NewRedisLocker(rdc *redis.Client, ttl time.Duration) *RedisLocker {
	return &RedisLocker{rdc: rdc, ttl: ttl, token: uuid.NewString}
}

// TryLock is a SETNX of a fresh token with TTL. Release deletes the key only
// while it still holds that token, so a holder whose TTL lapsed cannot drop
// a lock taken since by another replica. When Redis is unreachable the
// settlement goes ahead unguarded rather than stalling the auction.
func (l *RedisLocker) TryLock(ctx context.Context, auctionID string) (func(), bool) {
	token := l.token()
	ok, err := l.rdc.SetNX(ctx, key(auctionID), token, l.ttl).Result()
	if err != nil {
		zap.L().Warn("roundlock.setnx_failed", zap.String("auction_id", auctionID), zap.Error(err))
		return func() {}, true
	}
	if !ok {
		return nil, false
	}
	return func() {
		err := l.rdc.FCall(context.Background(), "round_unlock", []string{key(auctionID)}, token).Err()
		if err != nil {
			zap.L().Warn("roundlock.release_failed", zap.String("auction_id", auctionID), zap.Error(err))
		}
	}, true
}

type Nop struct{}

func (Nop) TryLock(context.Context, string) (func(), bool) { return func() {}, true }
