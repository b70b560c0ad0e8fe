package nats

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/cristianortiz/liveAuction/internal/auction/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLedgerMessages(t *testing.T) {
	auctionID := uuid.MustParse("6f1c1f7e-4a8b-4d5e-9a3c-2b1d0e9f8a7b")
	entry := domain.LedgerEntry{
		AuctionID: auctionID,
		Seq:       3,
		Bid: domain.Bid{
			ID:          uuid.New(),
			AuctionID:   auctionID,
			BidderID:    uuid.New(),
			Amount:      55,
			SubmittedAt: time.Date(2025, 3, 1, 12, 0, 11, 0, time.UTC),
			Outcome:     domain.OutcomeRejectedStalePrice,
		},
		After: domain.Snapshot{AuctionID: auctionID, Status: domain.StatusActive, CurrentPrice: 55, TotalBids: 1},
	}

	assert.Equal(t, "auction.ledger.6f1c1f7e-4a8b-4d5e-9a3c-2b1d0e9f8a7b", subject(ledgerSubject, auctionID))
	assert.Equal(t, "6f1c1f7e-4a8b-4d5e-9a3c-2b1d0e9f8a7b-3", ledgerMsgID(entry), "retries of the same entry dedupe")

	data, err := json.Marshal(newLedgerRecord(entry))
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "REJECTED_STALE_PRICE", got["outcome"])
	assert.Equal(t, float64(3), got["seq"])
	assert.NotContains(t, got, "reason", "empty reason is omitted")
}
