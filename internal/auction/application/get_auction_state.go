package application

import (
	"context"

	"github.com/cristianortiz/liveAuction/internal/auction/domain"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// GetAuctionStateUseCase returns the live snapshot of an auction with its viewer count.
type GetAuctionStateUseCase struct {
	engine  *Engine
	viewers domain.ViewerRegistry
}

// NewGetAuctionStateUseCase creates a new instance of GetAuctionStateUseCase. Without a
// viewer registry the count falls back to the number of open event streams.
func NewGetAuctionStateUseCase(engine *Engine, viewers domain.ViewerRegistry) *GetAuctionStateUseCase {
	return &GetAuctionStateUseCase{
		engine:  engine,
		viewers: viewers,
	}
}

func (uc *GetAuctionStateUseCase) Execute(ctx context.Context, auctionID uuid.UUID) (*SnapshotDTO, error) {
	snap, err := uc.engine.Snapshot(ctx, auctionID)
	if err != nil {
		return nil, err
	}
	snap.ViewerCount = viewerCount(ctx, uc.engine, uc.viewers, auctionID)

	dto := NewSnapshotDTO(snap)
	return &dto, nil
}

// viewerCount is advisory: a registry failure degrades to the live stream count.
func viewerCount(ctx context.Context, engine *Engine, viewers domain.ViewerRegistry, auctionID uuid.UUID) int64 {
	if viewers != nil {
		count, err := viewers.Count(ctx, auctionID)
		if err == nil {
			return count
		}
		log.Warn("Viewer registry unavailable, using live stream count",
			zap.String("auctionID", auctionID.String()),
			zap.Error(err),
		)
	}
	return int64(engine.Subscribers(auctionID))
}
