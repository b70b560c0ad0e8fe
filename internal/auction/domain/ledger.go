package domain

import (
	"time"

	"github.com/google/uuid"
)

// LedgerEntry is the immutable audit record of one adjudicated bid and the auction
// snapshot right after it. Seq is dense and strictly increasing per auction.
type LedgerEntry struct {
	AuctionID uuid.UUID
	Seq       int64
	Bid       Bid
	After     Snapshot
}

// Snapshot is a point-in-time view of an auction. ViewerCount is advisory and filled in
// by readers, never by the state machine.
type Snapshot struct {
	AuctionID        uuid.UUID
	ItemName         string
	Status           AuctionStatus
	StartTime        time.Time
	RegularEndTime   time.Time
	EffectiveEndTime time.Time
	OvertimeSeconds  int
	CurrentPrice     float64
	HighestBidderID  uuid.UUID
	TotalBids        int
	ViewerCount      int64
	Sequence         int64
	ServerTime       time.Time
}

// NextDeadline mirrors Auction.NextDeadline for readers holding only a snapshot.
func (s Snapshot) NextDeadline() (time.Time, bool) {
	switch s.Status {
	case StatusScheduled:
		return s.StartTime, true
	case StatusActive:
		return s.RegularEndTime, true
	case StatusOvertime:
		return s.EffectiveEndTime, true
	default:
		return time.Time{}, false
	}
}

// ArchiveRecord is what the history collaborator receives once an auction is closed.
type ArchiveRecord struct {
	AuctionID  uuid.UUID
	Item       Item
	Status     AuctionStatus
	StartPrice float64
	FinalPrice float64
	WinnerID   uuid.UUID
	TotalBids  int
	StartTime  time.Time
	EndedAt    time.Time
}

// NewArchiveRecord projects a terminal auction for archival.
func NewArchiveRecord(a *Auction) ArchiveRecord {
	rec := ArchiveRecord{
		AuctionID:  a.ID,
		Item:       a.Item,
		Status:     a.Status,
		StartPrice: a.StartPrice,
		FinalPrice: a.CurrentPrice,
		WinnerID:   a.WinnerID,
		TotalBids:  a.TotalBids,
		StartTime:  a.StartTime,
	}
	if a.EndedAt != nil {
		rec.EndedAt = *a.EndedAt
	}
	return rec
}
