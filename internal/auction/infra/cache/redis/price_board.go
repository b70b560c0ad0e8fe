package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/cristianortiz/liveAuction/internal/auction/domain"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// boardScript writes the board hash only when the incoming sequence is newer than the
// stored one, so mirror writes racing each other can never move the board backwards.
var boardScript = redis.NewScript(`
	-- KEYS[1]: auction:{id}:board
	-- ARGV[1]: sequence, ARGV[2..]: field/value pairs, ARGV[#ARGV]: ttl seconds
	local current = tonumber(redis.call('HGET', KEYS[1], 'sequence') or '-1')
	local incoming = tonumber(ARGV[1])
	if incoming <= current then
		return 0
	end
	redis.call('HSET', KEYS[1], 'sequence', ARGV[1])
	for i = 2, #ARGV - 1, 2 do
		redis.call('HSET', KEYS[1], ARGV[i], ARGV[i + 1])
	end
	local ttl = tonumber(ARGV[#ARGV])
	if ttl > 0 then
		redis.call('EXPIRE', KEYS[1], ttl)
	end
	return 1
`)

// PriceBoard implements domain.PriceBoard as a Redis hash per auction.
type PriceBoard struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewPriceBoard(rdb *redis.Client, ttl time.Duration) *PriceBoard {
	return &PriceBoard{rdb: rdb, ttl: ttl}
}

func (b *PriceBoard) Publish(ctx context.Context, snap domain.Snapshot) error {
	applied, err := boardScript.Run(ctx, b.rdb, []string{boardKey(snap.AuctionID)}, boardArgs(snap, b.ttl)...).Int()
	if err != nil {
		return fmt.Errorf("redis: publish price board: %w", err)
	}
	if applied == 0 {
		log.Debug("Price board already newer, update skipped",
			zap.String("auctionID", snap.AuctionID.String()),
			zap.Int64("sequence", snap.Sequence),
		)
	}
	return nil
}

func boardArgs(snap domain.Snapshot, ttl time.Duration) []any {
	bidder := ""
	if snap.HighestBidderID != uuid.Nil {
		bidder = snap.HighestBidderID.String()
	}
	return []any{
		strconv.FormatInt(snap.Sequence, 10),
		"status", string(snap.Status),
		"current_price", strconv.FormatFloat(snap.CurrentPrice, 'f', -1, 64),
		"highest_bidder_id", bidder,
		"total_bids", strconv.Itoa(snap.TotalBids),
		"effective_end_time", snap.EffectiveEndTime.UTC().Format(time.RFC3339Nano),
		strconv.FormatInt(int64(ttl/time.Second), 10),
	}
}
