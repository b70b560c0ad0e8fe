package nats

import (
	"time"

	"github.com/cristianortiz/liveAuction/internal/auction/domain"
	"github.com/google/uuid"
)

type ledgerRecord struct {
	AuctionID        uuid.UUID `json:"auction_id"`
	Seq              int64     `json:"seq"`
	BidID            uuid.UUID `json:"bid_id"`
	BidderID         uuid.UUID `json:"bidder_id"`
	Amount           float64   `json:"amount"`
	SubmittedAt      time.Time `json:"submitted_at"`
	Outcome          string    `json:"outcome"`
	Reason           string    `json:"reason,omitempty"`
	Status           string    `json:"status"`
	CurrentPrice     float64   `json:"current_price"`
	HighestBidderID  uuid.UUID `json:"highest_bidder_id"`
	TotalBids        int       `json:"total_bids"`
	EffectiveEndTime time.Time `json:"effective_end_time"`
}

func newLedgerRecord(e domain.LedgerEntry) ledgerRecord {
	return ledgerRecord{
		AuctionID:        e.AuctionID,
		Seq:              e.Seq,
		BidID:            e.Bid.ID,
		BidderID:         e.Bid.BidderID,
		Amount:           e.Bid.Amount,
		SubmittedAt:      e.Bid.SubmittedAt,
		Outcome:          string(e.Bid.Outcome),
		Reason:           string(e.Bid.Reason),
		Status:           string(e.After.Status),
		CurrentPrice:     e.After.CurrentPrice,
		HighestBidderID:  e.After.HighestBidderID,
		TotalBids:        e.After.TotalBids,
		EffectiveEndTime: e.After.EffectiveEndTime,
	}
}

type auctionRecord struct {
	AuctionID       uuid.UUID `json:"auction_id"`
	ItemName        string    `json:"item_name"`
	ItemDescription string    `json:"item_description,omitempty"`
	Status          string    `json:"status"`
	StartPrice      float64   `json:"start_price"`
	FinalPrice      float64   `json:"final_price"`
	WinnerID        uuid.UUID `json:"winner_id"`
	TotalBids       int       `json:"total_bids"`
	StartTime       time.Time `json:"start_time"`
	EndedAt         time.Time `json:"ended_at"`
}

func newAuctionRecord(r domain.ArchiveRecord) auctionRecord {
	return auctionRecord{
		AuctionID:       r.AuctionID,
		ItemName:        r.Item.Name,
		ItemDescription: r.Item.Description,
		Status:          string(r.Status),
		StartPrice:      r.StartPrice,
		FinalPrice:      r.FinalPrice,
		WinnerID:        r.WinnerID,
		TotalBids:       r.TotalBids,
		StartTime:       r.StartTime,
		EndedAt:         r.EndedAt,
	}
}
