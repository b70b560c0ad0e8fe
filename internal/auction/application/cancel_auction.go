package application

import (
	"context"

	"github.com/google/uuid"
)

type CancelAuctionUseCase struct {
	engine *Engine
}

func NewCancelAuctionUseCase(engine *Engine) *CancelAuctionUseCase {
	return &CancelAuctionUseCase{engine: engine}
}

func (uc *CancelAuctionUseCase) Execute(ctx context.Context, auctionID uuid.UUID) (*SnapshotDTO, error) {
	snap, err := uc.engine.Cancel(ctx, auctionID)
	if err != nil {
		return nil, err
	}
	dto := NewSnapshotDTO(snap)
	return &dto, nil
}
