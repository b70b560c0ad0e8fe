package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// AuctionStore persists auctions and their bid ledger. Commit must be atomic: either the
// auction row and every ledger entry are written, or nothing is.
type AuctionStore interface {
	Create(ctx context.Context, auction *Auction) error
	Commit(ctx context.Context, auction *Auction, entries ...LedgerEntry) error
	GetByID(ctx context.Context, id uuid.UUID) (*Auction, error)
	ListByStatus(ctx context.Context, statuses ...AuctionStatus) ([]*Auction, error)
	ListEndedBetween(ctx context.Context, from, to time.Time) ([]*Auction, error)
	ListEntries(ctx context.Context, auctionID uuid.UUID, afterSeq int64, limit int) ([]LedgerEntry, error)
}

// StandingChecker answers whether a bidder may currently bid (points, bans).
type StandingChecker interface {
	HasStanding(ctx context.Context, bidderID uuid.UUID) (bool, error)
}

// ViewerRegistry tracks who is watching an auction. Counts are advisory.
type ViewerRegistry interface {
	Register(ctx context.Context, auctionID uuid.UUID, viewerID string) (int64, error)
	Count(ctx context.Context, auctionID uuid.UUID) (int64, error)
}

// PriceBoard mirrors the latest committed snapshot for readers outside this process.
// Implementations must ignore snapshots older than the one they hold.
type PriceBoard interface {
	Publish(ctx context.Context, snapshot Snapshot) error
}

// Archiver hands committed ledger entries and closed auctions to the history collaborator.
type Archiver interface {
	ArchiveEntries(ctx context.Context, entries []LedgerEntry) error
	ArchiveAuction(ctx context.Context, record ArchiveRecord) error
}
