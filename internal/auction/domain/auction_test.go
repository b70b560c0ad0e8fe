package domain_test

import (
	"math"
	"testing"
	"time"

	"github.com/cristianortiz/liveAuction/internal/auction/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	t0     = time.Date(2026, 3, 1, 22, 0, 0, 0, time.UTC)
	policy = domain.Policy{MaxBidAmount: 10_000}
)

func at(seconds int) time.Time {
	return t0.Add(time.Duration(seconds) * time.Second)
}

func newActiveAuction(t *testing.T, startPrice float64, regularEndSec int) *domain.Auction {
	t.Helper()
	a, err := domain.NewAuction(uuid.New(), domain.Item{Name: "Signed jersey"}, startPrice, t0, at(regularEndSec), 30*time.Second, t0)
	require.NoError(t, err)
	events := a.Advance(t0)
	require.Len(t, events, 1)
	require.Equal(t, domain.EventAuctionStarted, events[0].Type)
	return a
}

func bid(a *domain.Auction, sec int, bidder uuid.UUID, amount float64) domain.Adjudication {
	return a.Adjudicate(at(sec), uuid.New(), bidder, amount, policy, true)
}

func TestNewAuction(t *testing.T) {
	t.Run("Valid", func(t *testing.T) {
		a, err := domain.NewAuction(uuid.New(), domain.Item{Name: "Lamp"}, 0, t0, at(60), 30*time.Second, t0)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusScheduled, a.Status)
		assert.Equal(t, a.RegularEndTime, a.EffectiveEndTime)
	})

	cases := map[string]struct {
		item   domain.Item
		price  float64
		end    time.Time
		window time.Duration
	}{
		"Missing Name":   {domain.Item{}, 0, at(60), time.Second},
		"Negative Price": {domain.Item{Name: "x"}, -1, at(60), time.Second},
		"NaN Price":      {domain.Item{Name: "x"}, math.NaN(), at(60), time.Second},
		"End Before":     {domain.Item{Name: "x"}, 0, t0, time.Second},
		"Zero Window":    {domain.Item{Name: "x"}, 0, at(60), 0},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := domain.NewAuction(uuid.New(), tc.item, tc.price, t0, tc.end, tc.window, t0)
			assert.ErrorIs(t, err, domain.ErrInvalidAuction)
		})
	}
}

func TestAdjudicate_Scenario(t *testing.T) {
	a := newActiveAuction(t, 50, 60)
	bidderA, bidderB, bidderC := uuid.New(), uuid.New(), uuid.New()

	r := bid(a, 10, bidderA, 55)
	assert.Equal(t, domain.OutcomeAccepted, r.Bid.Outcome)
	assert.Equal(t, 55.0, a.CurrentPrice)
	assert.Equal(t, at(60), a.EffectiveEndTime)

	r = bid(a, 11, bidderB, 50)
	assert.Equal(t, domain.OutcomeRejectedStalePrice, r.Bid.Outcome)
	assert.Equal(t, bidderA, a.HighestBidderID)

	r = bid(a, 58, bidderC, 60)
	assert.Equal(t, domain.OutcomeAccepted, r.Bid.Outcome)
	assert.Equal(t, at(88), a.EffectiveEndTime)
	require.Len(t, r.Events, 2)
	assert.Equal(t, domain.EventBidAccepted, r.Events[0].Type)
	assert.Equal(t, domain.EventOvertimeExtended, r.Events[1].Type)
	assert.Equal(t, at(88), r.Events[0].Snapshot.EffectiveEndTime)

	events := a.Advance(at(60))
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventOvertimeStarted, events[0].Type)
	assert.Equal(t, domain.StatusOvertime, a.Status)
	assert.Equal(t, at(88), a.EffectiveEndTime)

	assert.Empty(t, a.Advance(at(87)))

	events = a.Advance(at(88))
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventAuctionEnded, events[0].Type)
	assert.Equal(t, domain.StatusEnded, a.Status)
	assert.True(t, a.HasWinner())
	assert.Equal(t, bidderC, a.WinnerID)
	assert.Equal(t, 60.0, a.WinningBid)
	require.NotNil(t, a.EndedAt)
	assert.Equal(t, at(88), *a.EndedAt)
	assert.Equal(t, 2, a.TotalBids)
	assert.Equal(t, int64(3), a.LedgerSeq)
}

func TestAdjudicate_OvertimeRule(t *testing.T) {
	t.Run("Accepted Bid In Grace Window Extends", func(t *testing.T) {
		a := newActiveAuction(t, 10, 60)
		a.Advance(at(60))
		require.Equal(t, at(90), a.EffectiveEndTime)

		r := bid(a, 85, uuid.New(), 11)
		require.True(t, r.Accepted())
		assert.Equal(t, at(115), a.EffectiveEndTime)
		assert.Equal(t, domain.StatusOvertime, a.Status)
	})

	t.Run("Rejected Bid Does Not Extend", func(t *testing.T) {
		a := newActiveAuction(t, 10, 60)
		a.Advance(at(60))

		r := bid(a, 85, uuid.New(), 10)
		assert.Equal(t, domain.OutcomeRejectedStalePrice, r.Bid.Outcome)
		assert.Equal(t, at(90), a.EffectiveEndTime)
	})

	t.Run("Early Bid Keeps Regular End", func(t *testing.T) {
		a := newActiveAuction(t, 10, 60)
		r := bid(a, 5, uuid.New(), 11)
		require.True(t, r.Accepted())
		require.Len(t, r.Events, 1)
		assert.Equal(t, at(60), a.EffectiveEndTime)
	})

	t.Run("Lazy Transition Without Timer Tick", func(t *testing.T) {
		a := newActiveAuction(t, 10, 60)

		r := bid(a, 70, uuid.New(), 20)
		require.True(t, r.Accepted())
		assert.Equal(t, domain.StatusOvertime, a.Status)
		assert.Equal(t, at(100), a.EffectiveEndTime)
		assert.Equal(t, domain.EventOvertimeStarted, r.Events[0].Type)
	})

	t.Run("Effective End Never Decreases", func(t *testing.T) {
		a := newActiveAuction(t, 0, 60)
		last := a.EffectiveEndTime
		for i, sec := range []int{1, 40, 59, 60, 61, 75, 80, 104} {
			a.Advance(at(sec))
			bid(a, sec, uuid.New(), float64(i+1))
			assert.False(t, a.EffectiveEndTime.Before(last), "step %d", i)
			last = a.EffectiveEndTime
		}
	})
}

func TestAdjudicate_StalePriceInEveryStatus(t *testing.T) {
	scheduled, err := domain.NewAuction(uuid.New(), domain.Item{Name: "x"}, 50, at(100), at(200), 30*time.Second, t0)
	require.NoError(t, err)

	active := newActiveAuction(t, 50, 60)

	overtime := newActiveAuction(t, 50, 60)
	overtime.Advance(at(60))

	ended := newActiveAuction(t, 50, 60)
	ended.Advance(at(200))
	require.Equal(t, domain.StatusEnded, ended.Status)

	cancelled := newActiveAuction(t, 50, 60)
	_, err = cancelled.Cancel(at(1))
	require.NoError(t, err)

	for _, a := range []*domain.Auction{scheduled, active, overtime, ended, cancelled} {
		status := a.Status
		r := a.Adjudicate(at(61), uuid.New(), uuid.New(), 50, policy, true)
		assert.Equal(t, domain.OutcomeRejectedStalePrice, r.Bid.Outcome, "status %s", status)
		assert.Equal(t, 50.0, a.CurrentPrice)
	}
}

func TestAdjudicate_Closed(t *testing.T) {
	t.Run("After Effective End", func(t *testing.T) {
		a := newActiveAuction(t, 50, 60)
		r := bid(a, 90, uuid.New(), 70)
		assert.Equal(t, domain.OutcomeRejectedAuctionClosed, r.Bid.Outcome)
		assert.Equal(t, domain.StatusEnded, a.Status)
		assert.Equal(t, 50.0, a.CurrentPrice)
	})

	t.Run("Before Start", func(t *testing.T) {
		a, err := domain.NewAuction(uuid.New(), domain.Item{Name: "x"}, 0, at(100), at(200), 30*time.Second, t0)
		require.NoError(t, err)
		r := a.Adjudicate(at(10), uuid.New(), uuid.New(), 5, policy, true)
		assert.Equal(t, domain.OutcomeRejectedAuctionClosed, r.Bid.Outcome)
	})
}

func TestAdjudicate_Invalid(t *testing.T) {
	bidder := uuid.New()
	cases := map[string]struct {
		amount     float64
		bidder     uuid.UUID
		policy     domain.Policy
		standingOK bool
		reason     domain.RejectReason
	}{
		"NaN":           {math.NaN(), bidder, policy, true, domain.ReasonNonFinite},
		"Infinite":      {math.Inf(1), bidder, policy, true, domain.ReasonNonFinite},
		"Above Ceiling": {10_001, bidder, policy, true, domain.ReasonAboveCeiling},
		"Missing":       {60, uuid.Nil, policy, true, domain.ReasonMissingBidder},
		"Standing":      {60, bidder, policy, false, domain.ReasonInsufficientStanding},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			a := newActiveAuction(t, 50, 60)
			r := a.Adjudicate(at(5), uuid.New(), tc.bidder, tc.amount, tc.policy, tc.standingOK)
			assert.Equal(t, domain.OutcomeRejectedInvalid, r.Bid.Outcome)
			assert.Equal(t, tc.reason, r.Bid.Reason)
			assert.Empty(t, r.Events)
			assert.Equal(t, 50.0, a.CurrentPrice)
		})
	}

	t.Run("Self Outbid Policy", func(t *testing.T) {
		a := newActiveAuction(t, 50, 60)
		require.True(t, bid(a, 1, bidder, 51).Accepted())

		r := bid(a, 2, bidder, 52)
		assert.Equal(t, domain.ReasonSelfOutbid, r.Bid.Reason)

		r = a.Adjudicate(at(3), uuid.New(), bidder, 52, domain.Policy{AllowSelfOutbid: true}, true)
		assert.True(t, r.Accepted())
		assert.Equal(t, 52.0, a.CurrentPrice)
	})
}

func TestAdjudicate_LedgerAndSequence(t *testing.T) {
	a := newActiveAuction(t, 0, 60)
	lastEvent := a.EventSeq
	for i := 1; i <= 5; i++ {
		r := bid(a, i, uuid.New(), float64(i*10))
		assert.Equal(t, int64(i), r.Entry.Seq)
		assert.Equal(t, a.CurrentPrice, r.Entry.After.CurrentPrice)
		for _, ev := range r.Events {
			assert.Equal(t, lastEvent+1, ev.Sequence)
			lastEvent = ev.Sequence
		}
	}
	r := bid(a, 6, uuid.New(), 1)
	assert.Equal(t, int64(6), r.Entry.Seq)
	assert.Empty(t, r.Events)
	assert.Equal(t, lastEvent, a.EventSeq)
}

func TestCancel(t *testing.T) {
	t.Run("Scheduled", func(t *testing.T) {
		a, err := domain.NewAuction(uuid.New(), domain.Item{Name: "x"}, 0, at(100), at(200), 30*time.Second, t0)
		require.NoError(t, err)
		events, err := a.Cancel(at(1))
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, domain.EventAuctionCancelled, events[0].Type)
		assert.Equal(t, domain.StatusCancelled, a.Status)
	})

	t.Run("Active", func(t *testing.T) {
		a := newActiveAuction(t, 0, 60)
		_, err := a.Cancel(at(30))
		assert.NoError(t, err)
	})

	t.Run("Overtime Not Cancellable", func(t *testing.T) {
		a := newActiveAuction(t, 0, 60)
		_, err := a.Cancel(at(61))
		assert.ErrorIs(t, err, domain.ErrNotCancellable)
		assert.Equal(t, domain.StatusOvertime, a.Status)
	})

	t.Run("Terminal", func(t *testing.T) {
		a := newActiveAuction(t, 0, 60)
		a.Advance(at(500))
		_, err := a.Cancel(at(501))
		assert.ErrorIs(t, err, domain.ErrNotCancellable)
	})
}

func TestClone(t *testing.T) {
	a := newActiveAuction(t, 0, 60)
	a.Advance(at(500))

	c := a.Clone()
	*c.EndedAt = at(1)
	c.CurrentPrice = 99

	assert.Equal(t, at(90), *a.EndedAt)
	assert.Equal(t, 0.0, a.CurrentPrice)
}
