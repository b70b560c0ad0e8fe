package application

import (
	"context"
	"time"

	"github.com/cristianortiz/liveAuction/internal/auction/domain"
	"github.com/cristianortiz/liveAuction/internal/shared/pubsub"
	"github.com/google/uuid"
)

// AuctionService defines application interface layer of auction module
// exposes uses cases to external layer, aka infra
type AuctionService interface {
	// PlaceBid adjudicates one bid; rejections come back as outcomes, not errors
	PlaceBid(ctx context.Context, cmd PlaceBidDTO) (*BidResultDTO, error)
	GetAuctionState(ctx context.Context, auctionID uuid.UUID) (*SnapshotDTO, error)
	CreateAuction(ctx context.Context, cmd CreateAuctionDTO) (*SnapshotDTO, error)
	CancelAuction(ctx context.Context, auctionID uuid.UUID) (*SnapshotDTO, error)

	ActiveAuctions(ctx context.Context) ([]AuctionDTO, error)
	ScheduledAuctions(ctx context.Context) ([]AuctionDTO, error)
	EndedAuctions(ctx context.Context, since time.Time) ([]AuctionDTO, error)
	MonthlyWinners(ctx context.Context, month time.Time) ([]AuctionDTO, error)
	BidHistory(ctx context.Context, auctionID uuid.UUID, afterSeq int64, limit int) ([]LedgerEntryDTO, error)

	RegisterViewer(ctx context.Context, auctionID uuid.UUID, viewerID string) (int64, error)
	ViewerCount(ctx context.Context, auctionID uuid.UUID) (int64, error)

	// Subscribe opens an event stream; the caller must Close the subscription
	Subscribe(ctx context.Context, auctionID uuid.UUID, subscriberID string, afterSeq int64) (*pubsub.Subscription, error)
	// Now is the server clock, used to stamp outgoing frames
	Now() time.Time
}

// UseCases groups the use cases the service delegates to.
type UseCases struct {
	PlaceBid        *PlaceBidUseCase
	GetAuctionState *GetAuctionStateUseCase
	CreateAuction   *CreateAuctionUseCase
	CancelAuction   *CancelAuctionUseCase
	ListAuctions    *ListAuctionsUseCase
	BidHistory      *GetBidHistoryUseCase
	Viewers         *ViewersUseCase
}

// NewUseCases builds every use case over one engine. viewers and standing may be nil.
func NewUseCases(engine *Engine, store domain.AuctionStore, viewers domain.ViewerRegistry, standing domain.StandingChecker, requireStanding bool) UseCases {
	return UseCases{
		PlaceBid:        NewPlaceBidUseCase(engine, standing, requireStanding),
		GetAuctionState: NewGetAuctionStateUseCase(engine, viewers),
		CreateAuction:   NewCreateAuctionUseCase(engine),
		CancelAuction:   NewCancelAuctionUseCase(engine),
		ListAuctions:    NewListAuctionsUseCase(store),
		BidHistory:      NewGetBidHistoryUseCase(engine, store),
		Viewers:         NewViewersUseCase(engine, viewers),
	}
}

// concret implementation of AuctionService (struct)
type auctionService struct {
	engine *Engine
	uc     UseCases
}

func NewAuctionService(engine *Engine, uc UseCases) AuctionService {
	return &auctionService{
		engine: engine,
		uc:     uc,
	}
}

func (as *auctionService) PlaceBid(ctx context.Context, cmd PlaceBidDTO) (*BidResultDTO, error) {
	return as.uc.PlaceBid.Execute(ctx, cmd)
}

func (as *auctionService) GetAuctionState(ctx context.Context, auctionID uuid.UUID) (*SnapshotDTO, error) {
	return as.uc.GetAuctionState.Execute(ctx, auctionID)
}

func (as *auctionService) CreateAuction(ctx context.Context, cmd CreateAuctionDTO) (*SnapshotDTO, error) {
	return as.uc.CreateAuction.Execute(ctx, cmd)
}

func (as *auctionService) CancelAuction(ctx context.Context, auctionID uuid.UUID) (*SnapshotDTO, error) {
	return as.uc.CancelAuction.Execute(ctx, auctionID)
}

func (as *auctionService) ActiveAuctions(ctx context.Context) ([]AuctionDTO, error) {
	return as.uc.ListAuctions.Active(ctx)
}

func (as *auctionService) ScheduledAuctions(ctx context.Context) ([]AuctionDTO, error) {
	return as.uc.ListAuctions.Scheduled(ctx)
}

func (as *auctionService) EndedAuctions(ctx context.Context, since time.Time) ([]AuctionDTO, error) {
	return as.uc.ListAuctions.Ended(ctx, since, as.engine.clock.Now())
}

func (as *auctionService) MonthlyWinners(ctx context.Context, month time.Time) ([]AuctionDTO, error) {
	return as.uc.ListAuctions.MonthlyWinners(ctx, month)
}

func (as *auctionService) BidHistory(ctx context.Context, auctionID uuid.UUID, afterSeq int64, limit int) ([]LedgerEntryDTO, error) {
	return as.uc.BidHistory.Execute(ctx, auctionID, afterSeq, limit)
}

func (as *auctionService) RegisterViewer(ctx context.Context, auctionID uuid.UUID, viewerID string) (int64, error) {
	return as.uc.Viewers.Register(ctx, auctionID, viewerID)
}

func (as *auctionService) ViewerCount(ctx context.Context, auctionID uuid.UUID) (int64, error) {
	return as.uc.Viewers.Count(ctx, auctionID)
}

func (as *auctionService) Subscribe(ctx context.Context, auctionID uuid.UUID, subscriberID string, afterSeq int64) (*pubsub.Subscription, error) {
	return as.engine.Subscribe(ctx, auctionID, subscriberID, afterSeq)
}

func (as *auctionService) Now() time.Time {
	return as.engine.clock.Now()
}
