package domain

import "errors"

var (
	ErrAuctionNotFound     = errors.New("auction not found")
	ErrInvalidAuction      = errors.New("invalid auction")
	ErrNotCancellable      = errors.New("auction cannot be cancelled in its current state")
	ErrBusy                = errors.New("auction is busy, retry later") // retryable, the bid was never adjudicated
	ErrAdjudicationFailed  = errors.New("bid adjudication failed")      // infrastructure failure, auction state unchanged
	ErrStandingUnavailable = errors.New("bidder standing could not be verified")
)
