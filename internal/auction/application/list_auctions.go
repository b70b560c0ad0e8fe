package application

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/cristianortiz/liveAuction/internal/auction/domain"
	"github.com/google/uuid"
)

// AuctionDTO is the listing form of an auction.
type AuctionDTO struct {
	ID               uuid.UUID  `json:"id"`
	ItemName         string     `json:"item_name"`
	ItemDescription  string     `json:"item_description,omitempty"`
	ItemImageURL     string     `json:"item_image_url,omitempty"`
	Status           string     `json:"status"`
	StartTime        time.Time  `json:"start_time"`
	RegularEndTime   time.Time  `json:"regular_end_time"`
	EffectiveEndTime time.Time  `json:"effective_end_time"`
	StartPrice       float64    `json:"start_price"`
	CurrentPrice     float64    `json:"current_price"`
	TotalBids        int        `json:"total_bids"`
	WinnerID         *uuid.UUID `json:"winner_id,omitempty"`
	WinningBid       float64    `json:"winning_bid,omitempty"`
	EndedAt          *time.Time `json:"ended_at,omitempty"`
}

func NewAuctionDTO(a *domain.Auction) AuctionDTO {
	dto := AuctionDTO{
		ID:               a.ID,
		ItemName:         a.Item.Name,
		ItemDescription:  a.Item.Description,
		ItemImageURL:     a.Item.ImageURL,
		Status:           string(a.Status),
		StartTime:        a.StartTime,
		RegularEndTime:   a.RegularEndTime,
		EffectiveEndTime: a.EffectiveEndTime,
		StartPrice:       a.StartPrice,
		CurrentPrice:     a.CurrentPrice,
		TotalBids:        a.TotalBids,
		EndedAt:          a.EndedAt,
	}
	if a.HasWinner() {
		winner := a.WinnerID
		dto.WinnerID = &winner
		dto.WinningBid = a.WinningBid
	}
	return dto
}

// ListAuctionsUseCase answers the listing queries: live, upcoming, ended and winners.
type ListAuctionsUseCase struct {
	store domain.AuctionStore
}

func NewListAuctionsUseCase(store domain.AuctionStore) *ListAuctionsUseCase {
	return &ListAuctionsUseCase{store: store}
}

// Active lists auctions accepting bids, the soonest closing first.
func (uc *ListAuctionsUseCase) Active(ctx context.Context) ([]AuctionDTO, error) {
	return uc.byStatus(ctx, func(a, b *domain.Auction) bool {
		return a.EffectiveEndTime.Before(b.EffectiveEndTime)
	}, domain.StatusActive, domain.StatusOvertime)
}

// Scheduled lists auctions not started yet, the soonest starting first.
func (uc *ListAuctionsUseCase) Scheduled(ctx context.Context) ([]AuctionDTO, error) {
	return uc.byStatus(ctx, func(a, b *domain.Auction) bool {
		return a.StartTime.Before(b.StartTime)
	}, domain.StatusScheduled)
}

// Ended lists auctions closed at or after since, the most recent first.
func (uc *ListAuctionsUseCase) Ended(ctx context.Context, since, now time.Time) ([]AuctionDTO, error) {
	auctions, err := uc.store.ListEndedBetween(ctx, since, now)
	if err != nil {
		return nil, fmt.Errorf("list auctions use case: ended: %w", err)
	}
	sort.Slice(auctions, func(i, j int) bool { return auctions[i].EndedAt.After(*auctions[j].EndedAt) })
	return toDTOs(auctions), nil
}

// MonthlyWinners lists the auctions with a winner that ended in the calendar month (UTC)
// containing month.
func (uc *ListAuctionsUseCase) MonthlyWinners(ctx context.Context, month time.Time) ([]AuctionDTO, error) {
	month = month.UTC()
	from := time.Date(month.Year(), month.Month(), 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, 0)

	auctions, err := uc.store.ListEndedBetween(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("list auctions use case: winners: %w", err)
	}
	winners := auctions[:0]
	for _, a := range auctions {
		if a.HasWinner() && a.EndedAt.Before(to) {
			winners = append(winners, a)
		}
	}
	sort.Slice(winners, func(i, j int) bool { return winners[i].EndedAt.Before(*winners[j].EndedAt) })
	return toDTOs(winners), nil
}

func (uc *ListAuctionsUseCase) byStatus(ctx context.Context, less func(a, b *domain.Auction) bool, statuses ...domain.AuctionStatus) ([]AuctionDTO, error) {
	auctions, err := uc.store.ListByStatus(ctx, statuses...)
	if err != nil {
		return nil, fmt.Errorf("list auctions use case: %v: %w", statuses, err)
	}
	sort.Slice(auctions, func(i, j int) bool { return less(auctions[i], auctions[j]) })
	return toDTOs(auctions), nil
}

func toDTOs(auctions []*domain.Auction) []AuctionDTO {
	out := make([]AuctionDTO, 0, len(auctions))
	for _, a := range auctions {
		out = append(out, NewAuctionDTO(a))
	}
	return out
}
