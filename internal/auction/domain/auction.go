package domain

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
)

// AuctionStatus represents the lifecycle state of an auction.
type AuctionStatus string

const (
	StatusScheduled AuctionStatus = "SCHEDULED"
	StatusActive    AuctionStatus = "ACTIVE"
	StatusOvertime  AuctionStatus = "OVERTIME"
	StatusEnded     AuctionStatus = "ENDED"
	StatusCancelled AuctionStatus = "CANCELLED"
)

// IsTerminal reports whether no further transition is possible.
func (s AuctionStatus) IsTerminal() bool {
	return s == StatusEnded || s == StatusCancelled
}

// IsBiddable reports whether bids may be adjudicated as accepted in this status.
func (s AuctionStatus) IsBiddable() bool {
	return s == StatusActive || s == StatusOvertime
}

// Item describes what is being auctioned.
type Item struct {
	Name        string
	Description string
	ImageURL    string
}

// Policy holds the adjudication knobs that are not stored per auction.
type Policy struct {
	MaxBidAmount    float64 // zero disables the ceiling
	AllowSelfOutbid bool
}

// Auction is the aggregate owning one auction's mutable state.
// It is not safe for concurrent use: the engine serializes every call per auction.
type Auction struct {
	ID               uuid.UUID
	Item             Item
	Status           AuctionStatus
	StartTime        time.Time
	RegularEndTime   time.Time
	EffectiveEndTime time.Time
	OvertimeWindow   time.Duration
	StartPrice       float64
	CurrentPrice     float64
	HighestBidderID  uuid.UUID // uuid.Nil while nobody has bid
	TotalBids        int
	EventSeq         int64
	LedgerSeq        int64
	WinnerID         uuid.UUID
	WinningBid       float64
	EndedAt          *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// NewAuction validates the schedule and creates an auction in SCHEDULED state.
func NewAuction(id uuid.UUID, item Item, startPrice float64, startTime, regularEndTime time.Time, overtimeWindow time.Duration, now time.Time) (*Auction, error) {
	switch {
	case strings.TrimSpace(item.Name) == "":
		return nil, fmt.Errorf("%w: item name is required", ErrInvalidAuction)
	case math.IsNaN(startPrice) || math.IsInf(startPrice, 0) || startPrice < 0:
		return nil, fmt.Errorf("%w: start price must be a finite non-negative amount", ErrInvalidAuction)
	case !regularEndTime.After(startTime):
		return nil, fmt.Errorf("%w: regular end time must be after start time", ErrInvalidAuction)
	case overtimeWindow <= 0:
		return nil, fmt.Errorf("%w: overtime window must be positive", ErrInvalidAuction)
	}

	return &Auction{
		ID:               id,
		Item:             item,
		Status:           StatusScheduled,
		StartTime:        startTime.UTC(),
		RegularEndTime:   regularEndTime.UTC(),
		EffectiveEndTime: regularEndTime.UTC(),
		OvertimeWindow:   overtimeWindow,
		StartPrice:       startPrice,
		CurrentPrice:     startPrice,
		CreatedAt:        now.UTC(),
		UpdatedAt:        now.UTC(),
	}, nil
}

// Clone returns a deep copy so an adjudication can be staged and discarded on failure.
func (a *Auction) Clone() *Auction {
	c := *a
	if a.EndedAt != nil {
		endedAt := *a.EndedAt
		c.EndedAt = &endedAt
	}
	return &c
}

// HasWinner reports whether an ended auction has a winning bidder.
func (a *Auction) HasWinner() bool {
	return a.Status == StatusEnded && a.WinnerID != uuid.Nil
}

// NextDeadline is the instant of the next clock-driven transition.
func (a *Auction) NextDeadline() (time.Time, bool) {
	return a.Snapshot(a.UpdatedAt).NextDeadline()
}

// Advance applies every clock-driven transition due at now and returns the emitted events.
func (a *Auction) Advance(now time.Time) []Event {
	var events []Event

	if a.Status == StatusScheduled && !now.Before(a.StartTime) {
		a.Status = StatusActive
		events = append(events, a.emit(now, EventAuctionStarted, nil))
	}

	if a.Status == StatusActive && !now.Before(a.RegularEndTime) {
		a.Status = StatusOvertime
		// grace window opens only if no bid already pushed the close past the nominal end
		if !a.EffectiveEndTime.After(a.RegularEndTime) {
			a.EffectiveEndTime = a.RegularEndTime.Add(a.OvertimeWindow)
		}
		events = append(events, a.emit(now, EventOvertimeStarted, nil))
	}

	if a.Status == StatusOvertime && !now.Before(a.EffectiveEndTime) {
		a.Status = StatusEnded
		endedAt := a.EffectiveEndTime
		a.EndedAt = &endedAt
		if a.HighestBidderID != uuid.Nil {
			a.WinnerID = a.HighestBidderID
			a.WinningBid = a.CurrentPrice
		}
		events = append(events, a.emit(now, EventAuctionEnded, nil))
	}

	if len(events) > 0 {
		a.UpdatedAt = now.UTC()
	}
	return events
}

// Adjudication is the outcome of one bid attempt: the bid, its ledger entry and the
// events produced (including clock-driven transitions applied first).
type Adjudication struct {
	Bid    Bid
	Entry  LedgerEntry
	Events []Event
}

// Accepted reports whether the bid won the adjudication.
func (r Adjudication) Accepted() bool {
	return r.Bid.Outcome == OutcomeAccepted
}

// Adjudicate decides one bid atomically. standingOK carries the result of the external
// points check performed before the bid entered the auction's lane.
func (a *Auction) Adjudicate(now time.Time, bidID, bidderID uuid.UUID, amount float64, policy Policy, standingOK bool) Adjudication {
	events := a.Advance(now)

	bid := Bid{
		ID:          bidID,
		AuctionID:   a.ID,
		BidderID:    bidderID,
		Amount:      amount,
		SubmittedAt: now.UTC(),
	}
	bid.Outcome, bid.Reason = a.judge(now, bidderID, amount, policy, standingOK)

	if bid.Outcome == OutcomeAccepted {
		a.CurrentPrice = amount
		a.HighestBidderID = bidderID
		a.TotalBids++
		a.UpdatedAt = now.UTC()

		extended := now.Add(a.OvertimeWindow).UTC()
		didExtend := extended.After(a.EffectiveEndTime)
		if didExtend {
			a.EffectiveEndTime = extended
		}

		accepted := bid
		events = append(events, a.emit(now, EventBidAccepted, &accepted))
		if didExtend {
			events = append(events, a.emit(now, EventOvertimeExtended, &accepted))
		}
	}

	a.LedgerSeq++
	entry := LedgerEntry{
		AuctionID: a.ID,
		Seq:       a.LedgerSeq,
		Bid:       bid,
		After:     a.Snapshot(now),
	}

	return Adjudication{Bid: bid, Entry: entry, Events: events}
}

func (a *Auction) judge(now time.Time, bidderID uuid.UUID, amount float64, policy Policy, standingOK bool) (Outcome, RejectReason) {
	if amount <= a.CurrentPrice {
		return OutcomeRejectedStalePrice, ""
	}
	if !a.Status.IsBiddable() || !now.Before(a.EffectiveEndTime) {
		return OutcomeRejectedAuctionClosed, ""
	}
	switch {
	case math.IsNaN(amount) || math.IsInf(amount, 0):
		return OutcomeRejectedInvalid, ReasonNonFinite
	case amount <= 0:
		return OutcomeRejectedInvalid, ReasonNonPositive
	case policy.MaxBidAmount > 0 && amount > policy.MaxBidAmount:
		return OutcomeRejectedInvalid, ReasonAboveCeiling
	case bidderID == uuid.Nil:
		return OutcomeRejectedInvalid, ReasonMissingBidder
	case !policy.AllowSelfOutbid && bidderID == a.HighestBidderID:
		return OutcomeRejectedInvalid, ReasonSelfOutbid
	case !standingOK:
		return OutcomeRejectedInvalid, ReasonInsufficientStanding
	}
	return OutcomeAccepted, ""
}

// Cancel moves a SCHEDULED or ACTIVE auction to CANCELLED.
func (a *Auction) Cancel(now time.Time) ([]Event, error) {
	events := a.Advance(now)
	if a.Status != StatusScheduled && a.Status != StatusActive {
		return events, fmt.Errorf("%w: auction %s is %s", ErrNotCancellable, a.ID, a.Status)
	}
	a.Status = StatusCancelled
	cancelledAt := now.UTC()
	a.EndedAt = &cancelledAt
	a.UpdatedAt = cancelledAt
	return append(events, a.emit(now, EventAuctionCancelled, nil)), nil
}

// Snapshot is the read-only projection sent to observers.
func (a *Auction) Snapshot(now time.Time) Snapshot {
	return Snapshot{
		AuctionID:        a.ID,
		ItemName:         a.Item.Name,
		Status:           a.Status,
		StartTime:        a.StartTime,
		RegularEndTime:   a.RegularEndTime,
		EffectiveEndTime: a.EffectiveEndTime,
		OvertimeSeconds:  int(a.OvertimeWindow / time.Second),
		CurrentPrice:     a.CurrentPrice,
		HighestBidderID:  a.HighestBidderID,
		TotalBids:        a.TotalBids,
		Sequence:         a.EventSeq,
		ServerTime:       now.UTC(),
	}
}

func (a *Auction) emit(now time.Time, typ EventType, bid *Bid) Event {
	a.EventSeq++
	return Event{
		AuctionID:  a.ID,
		Sequence:   a.EventSeq,
		Type:       typ,
		OccurredAt: now.UTC(),
		Snapshot:   a.Snapshot(now),
		Bid:        bid,
	}
}
