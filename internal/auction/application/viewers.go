package application

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cristianortiz/liveAuction/internal/auction/domain"
	"github.com/google/uuid"
)

var ErrViewerIDRequired = errors.New("viewer id is required")

// ViewersUseCase registers viewers of an auction and reports how many there are.
type ViewersUseCase struct {
	engine  *Engine
	viewers domain.ViewerRegistry
}

func NewViewersUseCase(engine *Engine, viewers domain.ViewerRegistry) *ViewersUseCase {
	return &ViewersUseCase{engine: engine, viewers: viewers}
}

// Register records viewerID as watching the auction and returns the new count.
func (uc *ViewersUseCase) Register(ctx context.Context, auctionID uuid.UUID, viewerID string) (int64, error) {
	if _, err := uc.engine.Snapshot(ctx, auctionID); err != nil {
		return 0, err
	}
	viewerID = strings.TrimSpace(viewerID)
	if viewerID == "" {
		return 0, ErrViewerIDRequired
	}
	if uc.viewers == nil {
		return int64(uc.engine.Subscribers(auctionID)), nil
	}
	count, err := uc.viewers.Register(ctx, auctionID, viewerID)
	if err != nil {
		return 0, fmt.Errorf("viewers use case: register on auction %s: %w", auctionID, err)
	}
	return count, nil
}

func (uc *ViewersUseCase) Count(ctx context.Context, auctionID uuid.UUID) (int64, error) {
	if _, err := uc.engine.Snapshot(ctx, auctionID); err != nil {
		return 0, err
	}
	return viewerCount(ctx, uc.engine, uc.viewers, auctionID), nil
}
