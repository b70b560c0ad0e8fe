package application

import (
	"context"
	"fmt"

	"github.com/cristianortiz/liveAuction/internal/auction/domain"
	"github.com/google/uuid"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

// LedgerEntryDTO is one audited bid attempt and the state right after it.
type LedgerEntryDTO struct {
	Seq   int64       `json:"seq"`
	Bid   BidDTO      `json:"bid"`
	After SnapshotDTO `json:"after"`
}

// GetBidHistoryUseCase pages through an auction's ledger in sequence order.
type GetBidHistoryUseCase struct {
	engine *Engine
	store  domain.AuctionStore
}

func NewGetBidHistoryUseCase(engine *Engine, store domain.AuctionStore) *GetBidHistoryUseCase {
	return &GetBidHistoryUseCase{engine: engine, store: store}
}

// Execute returns up to limit entries with a sequence greater than afterSeq.
func (uc *GetBidHistoryUseCase) Execute(ctx context.Context, auctionID uuid.UUID, afterSeq int64, limit int) ([]LedgerEntryDTO, error) {
	if _, err := uc.engine.Snapshot(ctx, auctionID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	entries, err := uc.store.ListEntries(ctx, auctionID, afterSeq, limit)
	if err != nil {
		return nil, fmt.Errorf("bid history use case: auction %s: %w", auctionID, err)
	}
	out := make([]LedgerEntryDTO, 0, len(entries))
	for _, entry := range entries {
		out = append(out, LedgerEntryDTO{
			Seq:   entry.Seq,
			Bid:   NewBidDTO(entry.Bid),
			After: NewSnapshotDTO(entry.After),
		})
	}
	return out, nil
}
