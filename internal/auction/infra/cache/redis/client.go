// Package redis mirrors auction state into Redis for readers outside this process and
// keeps the viewer registry there.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/cristianortiz/liveAuction/internal/shared/logger"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var log = logger.GetLogger()

// NewClient connects and pings Redis.
func NewClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	log.Info("Connected to Redis", zap.String("addr", addr), zap.Int("db", db))
	return rdb, nil
}

func viewersKey(auctionID uuid.UUID) string {
	return fmt.Sprintf("auction:%s:viewers", auctionID)
}

func boardKey(auctionID uuid.UUID) string {
	return fmt.Sprintf("auction:%s:board", auctionID)
}
