package memory

import (
	"context"
	"testing"
	"time"

	"github.com/cristianortiz/liveAuction/internal/auction/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func newAuction(t *testing.T) *domain.Auction {
	t.Helper()
	a, err := domain.NewAuction(uuid.New(), domain.Item{Name: "Lamp"}, 50, t0, t0.Add(time.Minute), 30*time.Second, t0)
	require.NoError(t, err)
	return a
}

func TestAuctionStore_Commit(t *testing.T) {
	ctx := context.Background()

	t.Run("Stores Clones", func(t *testing.T) {
		s := NewAuctionStore()
		a := newAuction(t)
		require.NoError(t, s.Create(ctx, a))

		a.CurrentPrice = 999
		got, err := s.GetByID(ctx, a.ID)
		require.NoError(t, err)
		assert.Equal(t, 50.0, got.CurrentPrice)

		got.CurrentPrice = 123
		again, _ := s.GetByID(ctx, a.ID)
		assert.Equal(t, 50.0, again.CurrentPrice)
	})

	t.Run("Ledger Must Stay Dense", func(t *testing.T) {
		s := NewAuctionStore()
		a := newAuction(t)
		require.NoError(t, s.Create(ctx, a))

		r := a.Adjudicate(t0.Add(time.Second), uuid.New(), uuid.New(), 60, domain.Policy{}, true)
		require.NoError(t, s.Commit(ctx, a, r.Entry))

		// replaying the same sequence is refused and leaves the store untouched
		a.CurrentPrice = 1000
		assert.Error(t, s.Commit(ctx, a, r.Entry))
		got, _ := s.GetByID(ctx, a.ID)
		assert.Equal(t, 60.0, got.CurrentPrice)
	})

	t.Run("Unknown Auction", func(t *testing.T) {
		s := NewAuctionStore()
		assert.ErrorIs(t, s.Commit(ctx, newAuction(t)), domain.ErrAuctionNotFound)
		_, err := s.GetByID(ctx, uuid.New())
		assert.ErrorIs(t, err, domain.ErrAuctionNotFound)
	})
}

func TestAuctionStore_Queries(t *testing.T) {
	ctx := context.Background()
	s := NewAuctionStore()

	live := newAuction(t)
	require.NoError(t, s.Create(ctx, live))

	ended := newAuction(t)
	require.NoError(t, s.Create(ctx, ended))
	bidder := uuid.New()
	var entries []domain.LedgerEntry
	for i, amount := range []float64{60, 55, 70} {
		r := ended.Adjudicate(t0.Add(time.Duration(i+1)*time.Second), uuid.New(), bidder, amount, domain.Policy{AllowSelfOutbid: true}, true)
		entries = append(entries, r.Entry)
	}
	ended.Advance(t0.Add(5 * time.Minute))
	require.Equal(t, domain.StatusEnded, ended.Status)
	require.NoError(t, s.Commit(ctx, ended, entries...))

	t.Run("By Status", func(t *testing.T) {
		got, err := s.ListByStatus(ctx, domain.StatusScheduled, domain.StatusActive)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, live.ID, got[0].ID)
	})

	t.Run("Ended Between Is Inclusive", func(t *testing.T) {
		endedAt := *ended.EndedAt
		got, err := s.ListEndedBetween(ctx, endedAt, endedAt)
		require.NoError(t, err)
		assert.Len(t, got, 1)

		got, err = s.ListEndedBetween(ctx, endedAt.Add(time.Nanosecond), endedAt.Add(time.Hour))
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("Entries Paging", func(t *testing.T) {
		page, err := s.ListEntries(ctx, ended.ID, 0, 2)
		require.NoError(t, err)
		require.Len(t, page, 2)
		assert.Equal(t, []int64{1, 2}, []int64{page[0].Seq, page[1].Seq})
		assert.Equal(t, domain.OutcomeRejectedStalePrice, page[1].Bid.Outcome)

		page, err = s.ListEntries(ctx, ended.ID, 2, 10)
		require.NoError(t, err)
		require.Len(t, page, 1)
		assert.Equal(t, int64(3), page[0].Seq)

		page, err = s.ListEntries(ctx, ended.ID, 3, 10)
		require.NoError(t, err)
		assert.Empty(t, page)
	})
}

func TestViewerRegistry(t *testing.T) {
	ctx := context.Background()
	r := NewViewerRegistry()
	id := uuid.New()

	n, _ := r.Register(ctx, id, "alice")
	assert.Equal(t, int64(1), n)
	n, _ = r.Register(ctx, id, "alice")
	assert.Equal(t, int64(1), n, "registering twice counts once")
	n, _ = r.Register(ctx, id, "bob")
	assert.Equal(t, int64(2), n)

	count, err := r.Count(ctx, uuid.New())
	require.NoError(t, err)
	assert.Zero(t, count)
}
