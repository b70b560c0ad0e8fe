package domain

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	EventAuctionStarted   EventType = "AUCTION_STARTED"
	EventBidAccepted      EventType = "BID_ACCEPTED"
	EventOvertimeStarted  EventType = "OVERTIME_STARTED"
	EventOvertimeExtended EventType = "OVERTIME_EXTENDED"
	EventAuctionEnded     EventType = "AUCTION_ENDED"
	EventAuctionCancelled EventType = "AUCTION_CANCELLED"
)

// Event is an auction state change. Sequence is per auction, strictly increasing and
// assigned inside the auction's critical section.
type Event struct {
	AuctionID  uuid.UUID
	Sequence   int64
	Type       EventType
	OccurredAt time.Time
	Snapshot   Snapshot
	Bid        *Bid
}
