package main

import (
	"testing"
	"time"

	"github.com/cristianortiz/liveAuction/internal/auction/application"
	"github.com/cristianortiz/liveAuction/internal/auction/domain"
	"github.com/cristianortiz/liveAuction/internal/shared/pubsub"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeSnapshot(t *testing.T) {
	id := uuid.New()
	sent := time.Date(2025, 3, 1, 12, 0, 30, 0, time.UTC)
	snap, err := application.EncodeSnapshot(domain.Snapshot{
		AuctionID:        id,
		Status:           domain.StatusOvertime,
		EffectiveEndTime: sent.Add(25 * time.Second),
		CurrentPrice:     60,
		Sequence:         4,
	})
	require.NoError(t, err)

	data := []byte(`{"type":"server_auction_event","payload":` +
		string(application.Frame(pubsub.Message{Topic: id.String(), Seq: 4, Type: pubsub.TypeSnapshot, Snapshot: snap}, sent)) + `}`)

	got, seq, ok := decodeSnapshot(data)
	require.True(t, ok)
	assert.Equal(t, int64(4), seq)
	assert.Equal(t, id, got.AuctionID)
	assert.Equal(t, "OVERTIME", got.Status)
	assert.Equal(t, sent, got.ServerTime.UTC(), "offset is taken from the send time")

	_, _, ok = decodeSnapshot([]byte(`{"type":"server_bid_result","payload":{}}`))
	assert.False(t, ok)
	_, _, ok = decodeSnapshot([]byte(`not json`))
	assert.False(t, ok)
}

func TestWSURL(t *testing.T) {
	id := uuid.MustParse("6f1c1f7e-4a8b-4d5e-9a3c-2b1d0e9f8a7b")
	assert.Equal(t, "ws://localhost:9000/ws/auctions/"+id.String(), wsURL("http://localhost:9000", id))
	assert.Equal(t, "wss://auctions.example.com/ws/auctions/"+id.String(), wsURL("https://auctions.example.com", id))
}
