package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ViewerRegistry implements domain.ViewerRegistry with one Redis set per auction. The set
// expires ttl after the last registration.
type ViewerRegistry struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewViewerRegistry(rdb *redis.Client, ttl time.Duration) *ViewerRegistry {
	return &ViewerRegistry{rdb: rdb, ttl: ttl}
}

func (r *ViewerRegistry) Register(ctx context.Context, auctionID uuid.UUID, viewerID string) (int64, error) {
	key := viewersKey(auctionID)
	pipe := r.rdb.TxPipeline()
	pipe.SAdd(ctx, key, viewerID)
	if r.ttl > 0 {
		pipe.Expire(ctx, key, r.ttl)
	}
	card := pipe.SCard(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("redis: register viewer: %w", err)
	}
	return card.Val(), nil
}

func (r *ViewerRegistry) Count(ctx context.Context, auctionID uuid.UUID) (int64, error) {
	n, err := r.rdb.SCard(ctx, viewersKey(auctionID)).Result()
	if err != nil {
		return 0, fmt.Errorf("redis: count viewers: %w", err)
	}
	return n, nil
}
