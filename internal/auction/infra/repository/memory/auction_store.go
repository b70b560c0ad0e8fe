// Package memory is an in-process AuctionStore for development and tests. State is lost
// on restart.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/cristianortiz/liveAuction/internal/auction/domain"
	"github.com/google/uuid"
)

// AuctionStore implements domain.AuctionStore. It hands out clones so callers can never
// mutate stored state.
type AuctionStore struct {
	mu       sync.RWMutex
	auctions map[uuid.UUID]*domain.Auction
	entries  map[uuid.UUID][]domain.LedgerEntry
}

func NewAuctionStore() *AuctionStore {
	return &AuctionStore{
		auctions: make(map[uuid.UUID]*domain.Auction),
		entries:  make(map[uuid.UUID][]domain.LedgerEntry),
	}
}

func (s *AuctionStore) Create(ctx context.Context, auction *domain.Auction) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.auctions[auction.ID]; ok {
		return fmt.Errorf("memory store: auction %s already exists", auction.ID)
	}
	s.auctions[auction.ID] = auction.Clone()
	return nil
}

// Commit replaces the auction and appends the entries, which must continue the ledger's
// sequence without gaps.
func (s *AuctionStore) Commit(ctx context.Context, auction *domain.Auction, entries ...domain.LedgerEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.auctions[auction.ID]; !ok {
		return domain.ErrAuctionNotFound
	}
	next := int64(len(s.entries[auction.ID])) + 1
	for _, entry := range entries {
		if entry.AuctionID != auction.ID || entry.Seq != next {
			return fmt.Errorf("memory store: ledger entry %d out of sequence for auction %s (want %d)", entry.Seq, auction.ID, next)
		}
		next++
	}

	s.auctions[auction.ID] = auction.Clone()
	s.entries[auction.ID] = append(s.entries[auction.ID], entries...)
	return nil
}

func (s *AuctionStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Auction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.auctions[id]
	if !ok {
		return nil, domain.ErrAuctionNotFound
	}
	return a.Clone(), nil
}

func (s *AuctionStore) ListByStatus(ctx context.Context, statuses ...domain.AuctionStatus) ([]*domain.Auction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*domain.Auction
	for _, a := range s.auctions {
		if slices.Contains(statuses, a.Status) {
			out = append(out, a.Clone())
		}
	}
	return out, nil
}

// ListEndedBetween returns ENDED auctions with from <= ended_at <= to.
func (s *AuctionStore) ListEndedBetween(ctx context.Context, from, to time.Time) ([]*domain.Auction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*domain.Auction
	for _, a := range s.auctions {
		if a.Status != domain.StatusEnded || a.EndedAt == nil {
			continue
		}
		if a.EndedAt.Before(from) || a.EndedAt.After(to) {
			continue
		}
		out = append(out, a.Clone())
	}
	return out, nil
}

func (s *AuctionStore) ListEntries(ctx context.Context, auctionID uuid.UUID, afterSeq int64, limit int) ([]domain.LedgerEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := s.entries[auctionID]
	if afterSeq < 0 {
		afterSeq = 0
	}
	if afterSeq >= int64(len(entries)) {
		return []domain.LedgerEntry{}, nil
	}
	// seq n lives at index n-1
	page := entries[afterSeq:]
	if limit > 0 && len(page) > limit {
		page = page[:limit]
	}
	return slices.Clone(page), nil
}
