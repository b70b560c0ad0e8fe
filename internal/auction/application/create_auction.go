package application

import (
	"context"
	"time"

	"github.com/cristianortiz/liveAuction/internal/auction/domain"
	"go.uber.org/zap"
)

// CreateAuctionDTO is the scheduling request for a new auction.
type CreateAuctionDTO struct {
	ItemName        string    `json:"item_name"`
	ItemDescription string    `json:"item_description"`
	ItemImageURL    string    `json:"item_image_url"`
	StartPrice      float64   `json:"start_price"`
	StartTime       time.Time `json:"start_time"`
	RegularEndTime  time.Time `json:"regular_end_time"`
	OvertimeSeconds int       `json:"overtime_seconds"` // zero takes the configured default
}

type CreateAuctionUseCase struct {
	engine *Engine
}

func NewCreateAuctionUseCase(engine *Engine) *CreateAuctionUseCase {
	return &CreateAuctionUseCase{engine: engine}
}

func (uc *CreateAuctionUseCase) Execute(ctx context.Context, cmd CreateAuctionDTO) (*SnapshotDTO, error) {
	item := domain.Item{
		Name:        cmd.ItemName,
		Description: cmd.ItemDescription,
		ImageURL:    cmd.ItemImageURL,
	}
	snap, err := uc.engine.Create(ctx, item, cmd.StartPrice, cmd.StartTime, cmd.RegularEndTime,
		time.Duration(cmd.OvertimeSeconds)*time.Second)
	if err != nil {
		log.Warn("CreateAuctionUseCase: auction not created", zap.String("item", cmd.ItemName), zap.Error(err))
		return nil, err
	}
	dto := NewSnapshotDTO(snap)
	return &dto, nil
}
