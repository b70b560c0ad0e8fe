package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cristianortiz/liveAuction/internal/auction/domain"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// PlaceBidDTO is DTO input for PlaceBid useCase, contains the necesary data to make a bid
type PlaceBidDTO struct {
	AuctionID uuid.UUID
	BidderID  uuid.UUID
	Amount    float64
}

// BidResultDTO is what a bidder gets back: the outcome and the state right after it.
type BidResultDTO struct {
	BidID            uuid.UUID   `json:"bid_id"`
	Outcome          string      `json:"outcome"`
	Reason           string      `json:"reason,omitempty"`
	Amount           float64     `json:"amount"`
	CurrentPrice     float64     `json:"current_price"`
	EffectiveEndTime time.Time   `json:"effective_end_time"`
	LedgerSeq        int64       `json:"ledger_seq"`
	Snapshot         SnapshotDTO `json:"snapshot"`
}

// Accepted reports whether the bid became the highest bid.
func (r *BidResultDTO) Accepted() bool {
	return r.Outcome == string(domain.OutcomeAccepted)
}

// PlaceBidUseCase checks the bidder's standing and hands the bid to the engine.
type PlaceBidUseCase struct {
	engine          *Engine
	standing        domain.StandingChecker
	requireStanding bool
}

// NewPlaceBidUseCase creates a new instace of PlaceBidUseCase. standing may be nil when the
// standing policy is off.
func NewPlaceBidUseCase(engine *Engine, standing domain.StandingChecker, requireStanding bool) *PlaceBidUseCase {
	return &PlaceBidUseCase{
		engine:          engine,
		standing:        standing,
		requireStanding: requireStanding && standing != nil,
	}
}

func (uc *PlaceBidUseCase) Execute(ctx context.Context, cmd PlaceBidDTO) (*BidResultDTO, error) {
	log.Debug("Executing PlaceBidUseCase",
		zap.String("auctionID", cmd.AuctionID.String()),
		zap.String("bidderID", cmd.BidderID.String()),
		zap.Float64("amount", cmd.Amount),
	)

	// the standing lookup is remote, so it runs before the bid enters the auction's lane
	standingOK := true
	if uc.requireStanding && cmd.BidderID != uuid.Nil {
		ok, err := uc.standing.HasStanding(ctx, cmd.BidderID)
		if err != nil {
			log.Error("PlaceBidUseCase: standing check failed",
				zap.String("bidderID", cmd.BidderID.String()),
				zap.Error(err),
			)
			return nil, fmt.Errorf("place bid use case: %w: %w", domain.ErrStandingUnavailable, err)
		}
		standingOK = ok
	}

	result, err := uc.engine.SubmitBid(ctx, cmd.AuctionID, cmd.BidderID, cmd.Amount, standingOK)
	if err != nil {
		if !errors.Is(err, domain.ErrBusy) && !errors.Is(err, domain.ErrAuctionNotFound) {
			log.Error("PlaceBidUseCase: bid not adjudicated",
				zap.String("auctionID", cmd.AuctionID.String()),
				zap.String("bidderID", cmd.BidderID.String()),
				zap.Error(err),
			)
		}
		return nil, fmt.Errorf("place bid use case: auction %s: %w", cmd.AuctionID, err)
	}

	after := result.Entry.After
	return &BidResultDTO{
		BidID:            result.Bid.ID,
		Outcome:          string(result.Bid.Outcome),
		Reason:           string(result.Bid.Reason),
		Amount:           result.Bid.Amount,
		CurrentPrice:     after.CurrentPrice,
		EffectiveEndTime: after.EffectiveEndTime,
		LedgerSeq:        result.Entry.Seq,
		Snapshot:         NewSnapshotDTO(after),
	}, nil
}
