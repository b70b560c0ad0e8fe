package domain

import (
	"time"

	"github.com/google/uuid"
)

// Outcome is the adjudication result of one bid attempt.
type Outcome string

const (
	OutcomeAccepted              Outcome = "ACCEPTED"
	OutcomeRejectedStalePrice    Outcome = "REJECTED_STALE_PRICE"
	OutcomeRejectedAuctionClosed Outcome = "REJECTED_AUCTION_CLOSED"
	OutcomeRejectedInvalid       Outcome = "REJECTED_INVALID"
)

// RejectReason refines REJECTED_INVALID for the presentation layer.
type RejectReason string

const (
	ReasonNonFinite            RejectReason = "non_finite"
	ReasonNonPositive          RejectReason = "non_positive"
	ReasonAboveCeiling         RejectReason = "above_ceiling"
	ReasonMissingBidder        RejectReason = "missing_bidder"
	ReasonSelfOutbid           RejectReason = "self_outbid"
	ReasonInsufficientStanding RejectReason = "insufficient_standing"
)

// Bid represents one admission attempt. SubmittedAt is the server time at adjudication,
// never a client-claimed time.
type Bid struct {
	ID          uuid.UUID
	AuctionID   uuid.UUID
	BidderID    uuid.UUID
	Amount      float64
	SubmittedAt time.Time
	Outcome     Outcome
	Reason      RejectReason
}
